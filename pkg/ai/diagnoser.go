package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"qeek/pkg/domain"
)

const diagnoserSystemPrompt = `あなたはQeekというアプリケーションのAI診断エンジンです。
ユーザーの問いと会話履歴を分析し、以下の形式でJSON形式の診断結果を返してください:
{
  "classification": ["分類1", "分類2"], // 問いの分類（例: "深掘り系", "将来投資"）
  "weight": [60, 40], // 各分類の重み（合計100%）
  "score": 70, // 優先度スコア（0-100）
  "summary": "診断サマリー文", // 問いに対する診断の要約
  "reasons": ["理由1", "理由2", "理由3"] // 診断の根拠となる理由（3つ）
}

分類は以下のカテゴリから選択してください:
- 深掘り系: 自己理解や現状分析に関する問い
- 将来投資: キャリアや学習の方向性に関する問い
- 行動計画: 具体的な行動や習慣に関する問い
- 不安解消: 心配事や懸念に関する問い
- スキル向上: 特定のスキルや知識に関する問い`

// Taxonomy lists the only classification labels a diagnosis may use.
var Taxonomy = []string{"深掘り系", "将来投資", "行動計画", "不安解消", "スキル向上"}

// ErrNotConfigured is returned when diagnosis is requested without a
// completion credential. Diagnosis has no degraded mode; the turn just
// skips it.
var ErrNotConfigured = fmt.Errorf("completion service not configured")

// ParseError reports structured output from the model that did not
// match the diagnosis shape.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("diagnosis parse: %s: %v", e.Reason, e.Err)
	}
	return "diagnosis parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Diagnoser wraps the completion service with the diagnosis-engine
// prompt and validates the structured response at the boundary.
type Diagnoser struct {
	client *Client
}

func NewDiagnoser(client *Client) *Diagnoser {
	return &Diagnoser{client: client}
}

// Diagnose analyzes the question title plus conversation history and
// returns a validated diagnosis. ID, QuestionID and CreatedAt are left
// for the caller to fill.
func (d *Diagnoser) Diagnose(ctx context.Context, title string, history []Turn) (domain.Diagnosis, error) {
	if d.client == nil {
		return domain.Diagnosis{}, ErrNotConfigured
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return domain.Diagnosis{}, err
	}
	userPrompt := fmt.Sprintf("問い: %s\n\n会話履歴: %s", title, historyJSON)
	content, err := d.client.Complete(ctx, CompletionRequest{
		System:      diagnoserSystemPrompt,
		Turns:       []Turn{{Role: "user", Content: userPrompt}},
		Temperature: 0.5,
		JSONObject:  true,
	})
	if err != nil {
		return domain.Diagnosis{}, fmt.Errorf("diagnose: %w", err)
	}
	return parseDiagnosis(content)
}

type diagnosisPayload struct {
	Classification []string  `json:"classification"`
	Weight         []float64 `json:"weight"`
	Score          float64   `json:"score"`
	Summary        string    `json:"summary"`
	Reasons        []string  `json:"reasons"`
}

func parseDiagnosis(content string) (domain.Diagnosis, error) {
	var payload diagnosisPayload
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &payload); err != nil {
		return domain.Diagnosis{}, &ParseError{Reason: "invalid JSON", Err: err}
	}
	if len(payload.Classification) == 0 {
		return domain.Diagnosis{}, &ParseError{Reason: "classification is empty"}
	}
	if len(payload.Weight) != len(payload.Classification) {
		return domain.Diagnosis{}, &ParseError{
			Reason: fmt.Sprintf("weight length %d does not match classification length %d", len(payload.Weight), len(payload.Classification)),
		}
	}
	for _, label := range payload.Classification {
		if !taxonomyContains(label) {
			return domain.Diagnosis{}, &ParseError{Reason: fmt.Sprintf("unknown classification %q", label)}
		}
	}
	weights := make([]int, 0, len(payload.Weight))
	for _, w := range payload.Weight {
		if w < 0 || w > 100 {
			return domain.Diagnosis{}, &ParseError{Reason: fmt.Sprintf("weight %v out of range", w)}
		}
		weights = append(weights, int(math.Round(w)))
	}
	if payload.Score < 0 || payload.Score > 100 {
		return domain.Diagnosis{}, &ParseError{Reason: fmt.Sprintf("score %v out of range", payload.Score)}
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return domain.Diagnosis{}, &ParseError{Reason: "summary is empty"}
	}
	return domain.Diagnosis{
		Classification: payload.Classification,
		Weight:         weights,
		Score:          int(math.Round(payload.Score)),
		Summary:        payload.Summary,
		Reasons:        payload.Reasons,
	}, nil
}

func taxonomyContains(label string) bool {
	for _, known := range Taxonomy {
		if label == known {
			return true
		}
	}
	return false
}

// stripCodeFence tolerates models that wrap JSON in a markdown fence
// despite the json_object response format.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
