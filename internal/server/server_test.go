package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"qeek/internal/app"
	"qeek/pkg/ai"
	"qeek/pkg/domain"
	"qeek/pkg/store"
)

type fixedResponder struct {
	reply ai.Reply
}

func (f *fixedResponder) Generate(ctx context.Context, history []ai.Turn) ai.Reply {
	return f.reply
}

type fixedDiagnoser struct {
	diagnosis domain.Diagnosis
}

func (f *fixedDiagnoser) Diagnose(ctx context.Context, title string, history []ai.Turn) (domain.Diagnosis, error) {
	return f.diagnosis, nil
}

type testEnv struct {
	app    *app.App
	store  *store.MemoryStore
	server *httptest.Server
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	a, err := app.New(app.Config{
		Store:     st,
		Sessions:  store.NewMemorySessionStore(),
		Responder: &fixedResponder{reply: ai.Reply{Success: true, Content: "どんな場面でそう感じますか？"}},
		Diagnoser: &fixedDiagnoser{diagnosis: domain.Diagnosis{
			Classification: []string{"不安解消"},
			Weight:         []int{100},
			Score:          65,
			Summary:        "不安の言語化が進んでいます。",
			Reasons:        []string{"繰り返し不安が語られている"},
		}},
		AITimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	cfg := Config{App: a}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := httptest.NewServer(New(cfg).Router())
	t.Cleanup(srv.Close)
	return &testEnv{app: a, store: st, server: srv}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, payload
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	status, payload := env.do(t, http.MethodGet, "/healthz", "", nil)
	if status != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("healthz = %d %v", status, payload)
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	status, payload := env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "taro@example.com", "password": "hunter22",
	})
	if status != http.StatusCreated || payload["success"] != true {
		t.Fatalf("signup = %d %v", status, payload)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("signup returned no token")
	}

	status, payload = env.do(t, http.MethodGet, "/auth/me", token, nil)
	if status != http.StatusOK {
		t.Fatalf("me = %d %v", status, payload)
	}
	user, _ := payload["user"].(map[string]any)
	if user["email"] != "taro@example.com" {
		t.Errorf("me returned %v", user)
	}

	if status, _ := env.do(t, http.MethodPost, "/auth/logout", token, nil); status != http.StatusOK {
		t.Fatalf("logout = %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/auth/me", token, nil); status != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d, want 401", status)
	}
}

func TestSignupConflictAndValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	creds := map[string]string{"email": "taro@example.com", "password": "hunter22"}
	if status, _ := env.do(t, http.MethodPost, "/auth/signup", "", creds); status != http.StatusCreated {
		t.Fatalf("signup = %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/auth/signup", "", creds); status != http.StatusConflict {
		t.Fatalf("duplicate signup = %d, want 409", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "jiro@example.com", "password": "short",
	}); status != http.StatusBadRequest {
		t.Fatalf("short password signup = %d, want 400", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "taro@example.com", "password": "wrong",
	}); status != http.StatusUnauthorized {
		t.Fatalf("bad login = %d, want 401", status)
	}
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	status, payload := env.do(t, http.MethodPost, "/questions", "", map[string]string{
		"title": "エンジニアに向いているか不安です",
	})
	if status != http.StatusCreated {
		t.Fatalf("create question = %d %v", status, payload)
	}
	question, _ := payload["question"].(map[string]any)
	questionID, _ := question["id"].(string)
	if questionID == "" {
		t.Fatal("no question id in response")
	}
	env.app.Wait()

	// Third message in the history triggers the diagnosis.
	status, payload = env.do(t, http.MethodPost, "/questions/"+questionID+"/messages", "", map[string]string{
		"content": "エラーが解決できないと落ち込みます",
	})
	if status != http.StatusOK {
		t.Fatalf("send message = %d %v", status, payload)
	}
	if payload["showDiagnosis"] != true {
		t.Errorf("showDiagnosis = %v, want true", payload["showDiagnosis"])
	}
	if _, ok := payload["diagnosis"].(map[string]any); !ok {
		t.Errorf("diagnosis missing from payload: %v", payload)
	}

	status, payload = env.do(t, http.MethodGet, "/questions/"+questionID, "", nil)
	if status != http.StatusOK {
		t.Fatalf("question details = %d %v", status, payload)
	}
	msgs, _ := payload["messages"].([]any)
	if len(msgs) != 4 {
		t.Errorf("details has %d messages, want 4", len(msgs))
	}
	if _, ok := payload["diagnosis"]; !ok {
		t.Error("details missing diagnosis")
	}

	status, payload = env.do(t, http.MethodPost, "/questions/"+questionID+"/bookmark", "", nil)
	if status != http.StatusOK || payload["bookmarked"] != true {
		t.Fatalf("bookmark = %d %v", status, payload)
	}

	status, payload = env.do(t, http.MethodGet, "/questions?bookmarked=true", "", nil)
	if status != http.StatusOK {
		t.Fatalf("list bookmarked = %d", status)
	}
	questions, _ := payload["questions"].([]any)
	if len(questions) != 1 {
		t.Errorf("bookmarked list has %d entries, want 1", len(questions))
	}

	if status, _ := env.do(t, http.MethodDelete, "/questions/"+questionID, "", nil); status != http.StatusOK {
		t.Fatalf("delete = %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/questions/"+questionID, "", nil); status != http.StatusNotFound {
		t.Fatalf("details after delete = %d, want 404", status)
	}
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	if status, _ := env.do(t, http.MethodPost, "/questions/missing/messages", "", map[string]string{
		"content": "hello",
	}); status != http.StatusNotFound {
		t.Fatalf("unknown question = %d, want 404", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/questions", "", map[string]string{
		"title": "",
	}); status != http.StatusBadRequest {
		t.Fatalf("empty title = %d, want 400", status)
	}
}

func TestResourcesAndRecommendations(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.SetResources([]domain.Resource{
		{ID: "r_001", Title: "ロードマップ", Type: "guide"},
		{ID: "r_002", Title: "Progate", Type: "tool"},
	})

	status, payload := env.do(t, http.MethodGet, "/resources", "", nil)
	if status != http.StatusOK {
		t.Fatalf("resources = %d", status)
	}
	resources, _ := payload["resources"].([]any)
	if len(resources) != 2 {
		t.Errorf("got %d resources, want 2", len(resources))
	}

	// Without a diagnosis the recommendation endpoint serves the full
	// catalog.
	q := domain.Question{ID: "q1", Title: "学び方", CreatedAt: time.Now()}
	if err := env.store.CreateQuestion(q); err != nil {
		t.Fatal(err)
	}
	status, payload = env.do(t, http.MethodGet, "/questions/q1/recommendations", "", nil)
	if status != http.StatusOK {
		t.Fatalf("recommendations = %d", status)
	}
	recommended, _ := payload["resources"].([]any)
	if len(recommended) != 2 {
		t.Errorf("got %d recommendations, want full catalog", len(recommended))
	}
}

func TestFeedback(t *testing.T) {
	env := newTestEnv(t, nil)
	if status, _ := env.do(t, http.MethodPost, "/feedback", "", map[string]string{
		"content": "診断が参考になりました",
	}); status != http.StatusCreated {
		t.Fatalf("feedback = %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/feedback", "", map[string]string{
		"content": "  ",
	}); status != http.StatusBadRequest {
		t.Fatalf("empty feedback = %d, want 400", status)
	}
}

func TestSeedGating(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Production = true
	})
	if status, _ := env.do(t, http.MethodPost, "/admin/seed", "", nil); status != http.StatusForbidden {
		t.Fatalf("production seed = %d, want 403", status)
	}

	env = newTestEnv(t, func(cfg *Config) {
		cfg.Production = true
		cfg.AllowSeeding = true
	})
	if status, _ := env.do(t, http.MethodPost, "/admin/seed", "", nil); status != http.StatusOK {
		t.Fatalf("allowed seed = %d, want 200", status)
	}
	if len(env.store.ExecutedSQL()) == 0 {
		t.Error("seeding executed no statements")
	}
}

func TestMethodAndRouteErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	if status, _ := env.do(t, http.MethodGet, "/feedback", "", nil); status != http.StatusMethodNotAllowed {
		t.Fatalf("GET /feedback = %d, want 405", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/questions/q1/unknown", "", nil); status != http.StatusNotFound {
		t.Fatalf("unknown subroute = %d, want 404", status)
	}
	status, payload := env.do(t, http.MethodPost, "/questions", "", nil)
	if status != http.StatusBadRequest || payload["success"] != false {
		t.Fatalf("empty body = %d %v, want 400 envelope", status, payload)
	}
}
