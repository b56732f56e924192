package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func completionServer(t *testing.T, handler func(w http.ResponseWriter, req oaiChatRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaiChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode completion request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func replyWith(text string) func(w http.ResponseWriter, req oaiChatRequest) {
	return func(w http.ResponseWriter, _ oaiChatRequest) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": text}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestGenerateSuccess(t *testing.T) {
	var got oaiChatRequest
	srv := completionServer(t, func(w http.ResponseWriter, req oaiChatRequest) {
		got = req
		replyWith("なるほど、詳しく聞かせてください。")(w, req)
	})
	responder := NewResponder(NewClient(srv.URL, "test-key", "gpt-4o", time.Second))
	reply := responder.Generate(context.Background(), []Turn{{Role: "user", Content: "仕事の悩み"}})
	if !reply.Success {
		t.Fatalf("expected success, got kind %q", reply.Kind)
	}
	if reply.Content != "なるほど、詳しく聞かせてください。" {
		t.Fatalf("unexpected content %q", reply.Content)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("system prompt not prepended: %+v", got.Messages)
	}
	if got.Temperature != 0.7 || got.MaxTokens != 500 {
		t.Fatalf("sampling parameters not fixed: temp=%v max=%d", got.Temperature, got.MaxTokens)
	}
}

func TestGenerateWithoutCredential(t *testing.T) {
	responder := NewResponder(nil)
	reply := responder.Generate(context.Background(), []Turn{{Role: "user", Content: "title"}})
	if !reply.Success {
		t.Fatalf("degraded mode must report success")
	}
	if reply.Content != FallbackDefault {
		t.Fatalf("unexpected degraded content %q", reply.Content)
	}
}

func TestGenerateNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	responder := NewResponder(NewClient(url, "k", "gpt-4o", time.Second))
	reply := responder.Generate(context.Background(), []Turn{{Role: "user", Content: "x"}})
	if reply.Success {
		t.Fatalf("expected failure")
	}
	if reply.Kind != ErrKindNetwork {
		t.Fatalf("expected network kind, got %q", reply.Kind)
	}
	if reply.Content != FallbackNetwork {
		t.Fatalf("unexpected content %q", reply.Content)
	}
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		replyWith("too late")(w, oaiChatRequest{})
	}))
	defer srv.Close()
	responder := NewResponder(NewClient(srv.URL, "k", "gpt-4o", 20*time.Millisecond))
	reply := responder.Generate(context.Background(), []Turn{{Role: "user", Content: "x"}})
	if reply.Success {
		t.Fatalf("expected failure")
	}
	if reply.Kind != ErrKindTimeout {
		t.Fatalf("expected timeout kind, got %q", reply.Kind)
	}
	if reply.Content != FallbackTimeout {
		t.Fatalf("unexpected content %q", reply.Content)
	}
}

func TestGenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()
	responder := NewResponder(NewClient(srv.URL, "k", "gpt-4o", time.Second))
	reply := responder.Generate(context.Background(), []Turn{{Role: "user", Content: "x"}})
	if reply.Success || reply.Kind != ErrKindUnknown {
		t.Fatalf("expected unknown-kind failure, got success=%v kind=%q", reply.Success, reply.Kind)
	}
	if reply.Content == "" {
		t.Fatalf("content must never be empty")
	}
}

func TestReplyContentNeverEmpty(t *testing.T) {
	cases := []Reply{
		NewResponder(nil).Generate(context.Background(), nil),
	}
	for _, reply := range cases {
		if len(reply.Content) == 0 {
			t.Fatalf("empty reply content: %+v", reply)
		}
	}
}
