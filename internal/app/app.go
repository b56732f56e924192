// Package app orchestrates conversations: it owns the flow from a new
// question through AI replies, diagnosis and resource recommendation,
// degrading to fallbacks when persistence or generation misbehaves.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"qeek/internal/seed"
	"qeek/internal/util"
	"qeek/pkg/ai"
	"qeek/pkg/cache"
	"qeek/pkg/domain"
	"qeek/pkg/notify"
	"qeek/pkg/store"
)

const (
	messageSaveAttempts = 3

	defaultAITimeout   = 15 * time.Second
	defaultRetryDelay  = time.Second
	defaultResourceTTL = 10 * time.Minute

	resourceCacheKey = "resources"
)

// ResponseGateway produces the assistant's next conversational reply.
type ResponseGateway interface {
	Generate(ctx context.Context, history []ai.Turn) ai.Reply
}

// DiagnosisGateway turns a conversation into a structured diagnosis.
type DiagnosisGateway interface {
	Diagnose(ctx context.Context, title string, history []ai.Turn) (domain.Diagnosis, error)
}

// ResourceRecommender picks resource IDs matching a diagnosis.
type ResourceRecommender interface {
	Recommend(ctx context.Context, title string, diagnosis domain.Diagnosis) ([]string, error)
}

// Config wires the orchestrator's collaborators. Store, Sessions and
// Responder are required; the rest have working defaults or nil
// (no-op) fallbacks.
type Config struct {
	Store       store.Store
	Sessions    store.SessionStore
	Responder   ResponseGateway
	Diagnoser   DiagnosisGateway
	Recommender ResourceRecommender
	Cache       *cache.Cache
	Notifier    notify.Notifier

	// AITimeout bounds every generation call. On the conversation
	// start path a late reply loses a race against this deadline and
	// is discarded; on follow-up turns it cancels the request.
	AITimeout time.Duration

	// RediagnoseEveryTurn restores the legacy behavior of running a
	// fresh diagnosis on every turn past the threshold. When false a
	// question is diagnosed at most once.
	RediagnoseEveryTurn bool

	// RetryDelay is the pause between message persistence attempts.
	RetryDelay time.Duration

	// ResourceTTL bounds how long the resource catalog is served from
	// cache before the store is consulted again.
	ResourceTTL time.Duration
}

// App carries a question from creation through conversation, diagnosis
// and recommendation. Background reply generation started by
// StartConversation is tracked so Wait can drain it on shutdown.
type App struct {
	store       store.Store
	sessions    store.SessionStore
	responder   ResponseGateway
	diagnoser   DiagnosisGateway
	recommender ResourceRecommender
	cache       *cache.Cache
	notifier    notify.Notifier

	aiTimeout   time.Duration
	rediagnose  bool
	retryDelay  time.Duration
	resourceTTL time.Duration

	wg    sync.WaitGroup
	now   func() time.Time
	sleep func(time.Duration)
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("app: store is required")
	}
	if cfg.Responder == nil {
		return nil, fmt.Errorf("app: responder is required")
	}
	a := &App{
		store:       cfg.Store,
		sessions:    cfg.Sessions,
		responder:   cfg.Responder,
		diagnoser:   cfg.Diagnoser,
		recommender: cfg.Recommender,
		cache:       cfg.Cache,
		notifier:    cfg.Notifier,
		aiTimeout:   cfg.AITimeout,
		rediagnose:  cfg.RediagnoseEveryTurn,
		retryDelay:  cfg.RetryDelay,
		resourceTTL: cfg.ResourceTTL,
		now:         time.Now,
		sleep:       time.Sleep,
	}
	if a.aiTimeout <= 0 {
		a.aiTimeout = defaultAITimeout
	}
	if a.retryDelay <= 0 {
		a.retryDelay = defaultRetryDelay
	}
	if a.resourceTTL <= 0 {
		a.resourceTTL = defaultResourceTTL
	}
	if a.notifier == nil {
		a.notifier = notify.NopNotifier{}
	}
	return a, nil
}

// Wait blocks until background reply generation spawned by
// StartConversation has finished. Meant for graceful shutdown.
func (a *App) Wait() {
	a.wg.Wait()
}

// StartResult is the immediate outcome of opening a conversation; the
// assistant's first reply arrives asynchronously.
type StartResult struct {
	Question domain.Question
}

// StartConversation creates a question whose title doubles as the first
// user message, then kicks off the assistant's opening reply in the
// background so the caller is never blocked on generation.
func (a *App) StartConversation(ctx context.Context, title, userID string) (StartResult, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return StartResult{}, ErrTitleRequired
	}

	q := domain.Question{
		ID:        util.NewID(),
		Title:     title,
		UserID:    userID,
		CreatedAt: a.now().UTC(),
	}
	if err := a.store.CreateQuestion(q); err != nil {
		return StartResult{}, fmt.Errorf("create question: %w", err)
	}
	a.saveMessage(ctx, q.ID, domain.SenderUser, title)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		content := a.raceGenerate([]ai.Turn{{Role: "user", Content: title}})
		a.saveMessage(context.Background(), q.ID, domain.SenderAI, content)
		a.notifier.Invalidate("/chat")
	}()

	a.notifier.Invalidate("/chat", "/logs")
	return StartResult{Question: q}, nil
}

// raceGenerate runs generation against a deadline without cancelling
// the in-flight request: if the deadline wins, the caller gets the
// neutral fallback and the late reply is dropped on the floor.
func (a *App) raceGenerate(history []ai.Turn) string {
	replies := make(chan ai.Reply, 1)
	go func() {
		replies <- a.responder.Generate(context.Background(), history)
	}()

	timer := time.NewTimer(a.aiTimeout)
	defer timer.Stop()
	select {
	case reply := <-replies:
		if reply.Success {
			return reply.Content
		}
		return ai.FallbackDefault
	case <-timer.C:
		slog.Warn("initial reply timed out, serving fallback", "timeout", a.aiTimeout)
		return ai.FallbackDefault
	}
}

// TurnResult is one completed conversation turn. ShowDiagnosis tells
// the caller a diagnosis was produced this turn and should be surfaced.
type TurnResult struct {
	UserMessage   store.SavedMessage
	AIMessage     store.SavedMessage
	Diagnosis     *domain.Diagnosis
	ShowDiagnosis bool
}

// SendMessage appends a user message, generates the assistant's reply
// from the full persisted history, and runs diagnosis once the
// conversation is deep enough. Persistence failures degrade to
// placeholder messages; generation failures degrade to apology
// fallbacks. Only a missing question or unreadable history is fatal.
func (a *App) SendMessage(ctx context.Context, questionID, content string) (TurnResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return TurnResult{}, ErrMessageRequired
	}
	q, ok, err := a.store.GetQuestion(questionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load question: %w", err)
	}
	if !ok {
		return TurnResult{}, ErrQuestionNotFound
	}

	userMsg := a.saveMessage(ctx, q.ID, domain.SenderUser, content)

	history, err := a.store.ListMessages(q.ID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load conversation history: %w", err)
	}
	turns := toTurns(history)
	if userMsg.Placeholder {
		// The unpersisted message still has to reach the model.
		turns = append(turns, ai.Turn{Role: "user", Content: content})
	}

	genCtx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	reply := a.responder.Generate(genCtx, turns)
	cancel()
	aiMsg := a.saveMessage(ctx, q.ID, domain.SenderAI, reply.Content)

	result := TurnResult{UserMessage: userMsg, AIMessage: aiMsg}
	if ShouldDiagnose(len(turns)) && a.diagnosisWanted(q.ID) {
		if d, ok := a.diagnose(ctx, q, turns); ok {
			result.Diagnosis = &d
			result.ShowDiagnosis = true
		}
	}

	a.notifier.Invalidate("/chat")
	return result, nil
}

// diagnosisWanted applies the at-most-once guard. When the count is
// unreadable the turn proceeds as if undiagnosed; a duplicate diagnosis
// is the cheaper failure.
func (a *App) diagnosisWanted(questionID string) bool {
	if a.rediagnose {
		return true
	}
	n, err := a.store.CountDiagnoses(questionID)
	if err != nil {
		slog.Warn("diagnosis count unavailable", "questionId", questionID, "error", err)
		return true
	}
	return n == 0
}

func (a *App) diagnose(ctx context.Context, q domain.Question, turns []ai.Turn) (domain.Diagnosis, bool) {
	if a.diagnoser == nil {
		return domain.Diagnosis{}, false
	}
	genCtx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	defer cancel()
	d, err := a.diagnoser.Diagnose(genCtx, q.Title, turns)
	if err != nil {
		slog.Warn("diagnosis skipped", "questionId", q.ID, "error", err)
		return domain.Diagnosis{}, false
	}
	d.ID = util.NewID()
	d.QuestionID = q.ID
	d.CreatedAt = a.now().UTC()
	if err := a.store.SaveDiagnosis(d); err != nil {
		// The diagnosis was produced; losing the record must not
		// suppress it from this turn's response.
		slog.Error("diagnosis persistence failed", "questionId", q.ID, "error", err)
		return d, true
	}
	if err := a.store.SetQuestionScore(q.ID, d.Score); err != nil {
		slog.Warn("question score update failed", "questionId", q.ID, "error", err)
	}
	return d, true
}

// saveMessage persists a message with bounded retries. After the last
// attempt it fabricates a placeholder so the conversation keeps moving;
// the placeholder is flagged for the caller and never reaches the
// store. ctx is consulted between attempts only.
func (a *App) saveMessage(ctx context.Context, questionID string, sender domain.Sender, content string) store.SavedMessage {
	msg := domain.Message{
		ID:         util.NewID(),
		QuestionID: questionID,
		Sender:     sender,
		Content:    content,
		CreatedAt:  a.now().UTC(),
	}
	var lastErr error
	for attempt := 1; attempt <= messageSaveAttempts; attempt++ {
		if attempt > 1 {
			if ctx.Err() != nil {
				break
			}
			a.sleep(a.retryDelay)
		}
		if lastErr = a.store.AppendMessage(msg); lastErr == nil {
			return store.SavedMessage{Message: msg}
		}
		slog.Warn("message persistence failed",
			"questionId", questionID, "sender", sender,
			"attempt", attempt, "error", lastErr)
	}
	slog.Error("message dropped after retries, serving placeholder",
		"questionId", questionID, "sender", sender, "error", lastErr)
	msg.ID = util.NewPlaceholderID()
	return store.SavedMessage{Message: msg, Placeholder: true}
}

func toTurns(messages []domain.Message) []ai.Turn {
	turns := make([]ai.Turn, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Sender == domain.SenderAI {
			role = "assistant"
		}
		turns = append(turns, ai.Turn{Role: role, Content: m.Content})
	}
	return turns
}

// QuestionDetails is a question with its full conversation and, when
// one exists, the latest diagnosis.
type QuestionDetails struct {
	Question  domain.Question
	Messages  []domain.Message
	Diagnosis *domain.Diagnosis
}

func (a *App) Question(questionID string) (QuestionDetails, error) {
	q, ok, err := a.store.GetQuestion(questionID)
	if err != nil {
		return QuestionDetails{}, fmt.Errorf("load question: %w", err)
	}
	if !ok {
		return QuestionDetails{}, ErrQuestionNotFound
	}
	messages, err := a.store.ListMessages(questionID)
	if err != nil {
		return QuestionDetails{}, fmt.Errorf("load conversation history: %w", err)
	}
	details := QuestionDetails{Question: q, Messages: messages}
	d, ok, err := a.store.LatestDiagnosis(questionID)
	if err != nil {
		return QuestionDetails{}, fmt.Errorf("load diagnosis: %w", err)
	}
	if ok {
		details.Diagnosis = &d
	}
	return details, nil
}

func (a *App) Questions(bookmarkedOnly bool) ([]domain.Question, error) {
	questions, err := a.store.ListQuestions(bookmarkedOnly)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// ToggleBookmark flips the bookmark flag and returns the new state.
func (a *App) ToggleBookmark(questionID string) (bool, error) {
	q, ok, err := a.store.GetQuestion(questionID)
	if err != nil {
		return false, fmt.Errorf("load question: %w", err)
	}
	if !ok {
		return false, ErrQuestionNotFound
	}
	updated, err := a.store.SetBookmarked(questionID, !q.Bookmarked)
	if err != nil {
		return false, fmt.Errorf("update bookmark: %w", err)
	}
	a.notifier.Invalidate("/logs")
	return updated.Bookmarked, nil
}

// RemoveQuestion deletes a question together with its messages and
// diagnoses.
func (a *App) RemoveQuestion(questionID string) error {
	_, ok, err := a.store.GetQuestion(questionID)
	if err != nil {
		return fmt.Errorf("load question: %w", err)
	}
	if !ok {
		return ErrQuestionNotFound
	}
	if err := a.store.DeleteQuestion(questionID); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	a.notifier.Invalidate("/logs")
	return nil
}

// Resources serves the catalog through the read cache when one is
// configured.
func (a *App) Resources() ([]domain.Resource, error) {
	if a.cache == nil {
		return a.store.ListResources()
	}
	return cache.Through(a.cache, resourceCacheKey, a.resourceTTL, a.store.ListResources)
}

// RecommendedResources narrows the catalog to entries matching the
// question's diagnosis. Without a diagnosis, a recommender or any
// usable picks, the full catalog is returned so the caller always has
// something to show.
func (a *App) RecommendedResources(ctx context.Context, questionID string) ([]domain.Resource, error) {
	catalog, err := a.Resources()
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	d, ok, err := a.store.LatestDiagnosis(questionID)
	if err != nil || !ok || a.recommender == nil {
		if err != nil {
			slog.Warn("diagnosis unavailable for recommendation", "questionId", questionID, "error", err)
		}
		return catalog, nil
	}
	q, found, err := a.store.GetQuestion(questionID)
	if err != nil || !found {
		return catalog, nil
	}

	genCtx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	defer cancel()
	ids, err := a.recommender.Recommend(genCtx, q.Title, d)
	if err != nil || len(ids) == 0 {
		if err != nil {
			slog.Warn("recommendation failed, serving full catalog", "questionId", questionID, "error", err)
		}
		return catalog, nil
	}

	byID := make(map[string]domain.Resource, len(catalog))
	for _, r := range catalog {
		byID[r.ID] = r
	}
	picked := make([]domain.Resource, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			picked = append(picked, r)
		}
	}
	if len(picked) == 0 {
		return catalog, nil
	}
	return picked, nil
}

// SubmitFeedback records free-form user feedback. userID may be empty
// for anonymous submissions.
func (a *App) SubmitFeedback(content, userID string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrFeedbackRequired
	}
	fb := domain.Feedback{
		ID:        util.NewID(),
		UserID:    userID,
		Content:   content,
		CreatedAt: a.now().UTC(),
	}
	if err := a.store.SaveFeedback(fb); err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

// SeedDatabase loads the demo dataset and drops the resource cache so
// the fresh catalog is visible immediately.
func (a *App) SeedDatabase() error {
	if err := seed.Run(a.store); err != nil {
		return fmt.Errorf("seed database: %w", err)
	}
	if a.cache != nil {
		a.cache.Delete(resourceCacheKey)
	}
	a.notifier.Invalidate("/chat", "/logs")
	return nil
}
