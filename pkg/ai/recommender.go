package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"qeek/pkg/domain"
)

const recommenderSystemPrompt = `あなたはQeekというアプリケーションのリソース推薦エンジンです。
ユーザーの問いと診断結果に基づいて、データベースから最適なリソースを選択してください。
以下のリソースIDのリストを返してください:
["r_001", "r_002", ...]

利用可能なリソース:
r_001: 未経験からエンジニアになるためのロードマップ (guide)
r_002: プログラミング学習サイトProgate (tool)
r_003: IT未経験者向け転職エージェント (service)
r_004: キャリアコーチング無料相談 (coach)`

var resourceIDPattern = regexp.MustCompile(`r_\d{3}`)

// Recommender selects resource identifiers from the fixed catalog
// given a question and its diagnosis. It is an alternate selection
// strategy next to the blanket catalog fetch.
type Recommender struct {
	client *Client
}

func NewRecommender(client *Client) *Recommender {
	return &Recommender{client: client}
}

// Recommend returns catalog ids extracted from the model's free-text
// answer. Ids are matched lexically ("r_" plus exactly three digits),
// so a chatty response still yields a usable list.
func (r *Recommender) Recommend(ctx context.Context, title string, diagnosis domain.Diagnosis) ([]string, error) {
	if r.client == nil {
		return nil, ErrNotConfigured
	}
	diagnosisJSON, err := json.Marshal(diagnosis)
	if err != nil {
		return nil, err
	}
	userPrompt := fmt.Sprintf("問い: %s\n\n診断結果: %s", title, diagnosisJSON)
	content, err := r.client.Complete(ctx, CompletionRequest{
		System:      recommenderSystemPrompt,
		Turns:       []Turn{{Role: "user", Content: userPrompt}},
		Temperature: 0.3,
		MaxTokens:   100,
	})
	if err != nil {
		return nil, fmt.Errorf("recommend resources: %w", err)
	}
	ids := resourceIDPattern.FindAllString(content, -1)
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique, nil
}
