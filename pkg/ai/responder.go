package ai

import (
	"context"
	"log/slog"
)

const responderSystemPrompt = `あなたはQeekというアプリケーションのAIアシスタントです。
ユーザーの問いに対して、共感的かつ建設的に応答してください。
ユーザーの問いを深掘りし、思考を整理するのを手伝ってください。
回答は日本語で、親しみやすく、かつ専門的な知見を提供してください。`

// Fallback sentences shown in place of a generated reply. FallbackDefault
// doubles as the degraded-mode reply when no credential is configured.
const (
	FallbackDefault = "その問いについて考えてみましょう。もう少し詳しく教えていただけますか？"
	FallbackNetwork = "申し訳ありません。サーバーに接続できませんでした。もう一度お試しください。"
	FallbackTimeout = "申し訳ありません。応答の生成に時間がかかりすぎています。もう一度お試しください。"
	FallbackUnknown = "申し訳ありません。応答の生成中にエラーが発生しました。もう一度お試しください。"
)

// Reply is the outcome of one response-generation attempt. Content is
// always a non-empty displayable string, so callers can persist an AI
// message no matter what happened.
type Reply struct {
	Success bool
	Content string
	Kind    ErrKind
}

// Responder wraps the completion service with the assistant persona,
// fixed sampling parameters and the fallback ladder.
type Responder struct {
	client *Client
}

// NewResponder builds the response gateway. A nil client selects the
// degraded mode: every call succeeds immediately with the static
// fallback sentence and no network traffic.
func NewResponder(client *Client) *Responder {
	return &Responder{client: client}
}

// Generate produces the assistant reply for the given history.
func (r *Responder) Generate(ctx context.Context, history []Turn) Reply {
	if r.client == nil {
		slog.Warn("completion credential not configured, returning default reply")
		return Reply{Success: true, Content: FallbackDefault}
	}
	content, err := r.client.Complete(ctx, CompletionRequest{
		System:      responderSystemPrompt,
		Turns:       history,
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err == nil {
		return Reply{Success: true, Content: content}
	}
	kind := ClassifyErr(err)
	slog.Warn("response generation failed", "kind", string(kind), "err", err)
	switch kind {
	case ErrKindNetwork:
		return Reply{Success: false, Content: FallbackNetwork, Kind: kind}
	case ErrKindTimeout:
		return Reply{Success: false, Content: FallbackTimeout, Kind: kind}
	default:
		return Reply{Success: false, Content: FallbackUnknown, Kind: ErrKindUnknown}
	}
}
