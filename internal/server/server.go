// Package server exposes the HTTP API: auth, questions and their
// conversations, the resource catalog, feedback and seeding.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"qeek/internal/app"
	"qeek/internal/ratelimit"
	"qeek/internal/util"
	"qeek/pkg/auth"
	"qeek/pkg/domain"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// Limiter throttles conversation writes per client IP. nil
	// disables throttling.
	Limiter *ratelimit.FixedWindowLimiter

	// Production locks down seeding unless AllowSeeding is set.
	Production   bool
	AllowSeeding bool

	// TrustForwardedHeaders controls whether X-Forwarded-For is
	// believed when resolving the client IP.
	TrustForwardedHeaders bool
}

// Server exposes the HTTP endpoints.
type Server struct {
	app            *app.App
	limiter        *ratelimit.FixedWindowLimiter
	production     bool
	allowSeeding   bool
	trustForwarded bool
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		limiter:        cfg.Limiter,
		production:     cfg.Production,
		allowSeeding:   cfg.AllowSeeding,
		trustForwarded: cfg.TrustForwardedHeaders,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.Handle("/auth/me", s.withUser(s.handleMe))
	s.mux.HandleFunc("/questions", s.handleQuestions)
	s.mux.HandleFunc("/questions/", s.handleQuestionSubtree)
	s.mux.HandleFunc("/resources", s.handleResources)
	s.mux.HandleFunc("/feedback", s.handleFeedback)
	s.mux.HandleFunc("/admin/seed", s.handleSeed)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := s.app.SignUp(req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"user":  session.User,
		"token": session.Token,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := s.app.SignIn(req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"user":  session.User,
		"token": session.Token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.SignOut(token); err != nil {
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": user})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok, err := s.app.UserFromToken(token)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

// optionalUserID resolves the bearer token to a user ID when one is
// presented. Anonymous requests get an empty ID; a stale token is
// treated as anonymous rather than rejected.
func (s *Server) optionalUserID(r *http.Request) string {
	token, ok := bearerToken(r)
	if !ok {
		return ""
	}
	user, ok, err := s.app.UserFromToken(token)
	if err != nil || !ok {
		return ""
	}
	return user.ID
}

type startRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !s.allowRate(w, r) {
			return
		}
		var req startRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := s.app.StartConversation(r.Context(), req.Title, s.optionalUserID(r))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, map[string]any{"question": res.Question})
	case http.MethodGet:
		bookmarkedOnly := r.URL.Query().Get("bookmarked") == "true"
		questions, err := s.app.Questions(bookmarkedOnly)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"questions": questions})
	default:
		methodNotAllowed(w)
	}
}

// handleQuestionSubtree dispatches /questions/{id} and its children.
func (s *Server) handleQuestionSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/questions/")
	questionID, child, _ := strings.Cut(rest, "/")
	if questionID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch child {
	case "":
		s.handleQuestion(w, r, questionID)
	case "messages":
		s.handleMessages(w, r, questionID)
	case "bookmark":
		s.handleBookmark(w, r, questionID)
	case "recommendations":
		s.handleRecommendations(w, r, questionID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request, questionID string) {
	switch r.Method {
	case http.MethodGet:
		details, err := s.app.Question(questionID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		payload := map[string]any{
			"question": details.Question,
			"messages": details.Messages,
		}
		if details.Diagnosis != nil {
			payload["diagnosis"] = details.Diagnosis
		}
		writeSuccess(w, http.StatusOK, payload)
	case http.MethodDelete:
		if err := s.app.RemoveQuestion(questionID); err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, nil)
	default:
		methodNotAllowed(w)
	}
}

type messageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, questionID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r) {
		return
	}
	var req messageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	turn, err := s.app.SendMessage(r.Context(), questionID, req.Content)
	if err != nil {
		writeAppError(w, err)
		return
	}
	payload := map[string]any{
		"userMessage":   turn.UserMessage.Message,
		"aiMessage":     turn.AIMessage.Message,
		"showDiagnosis": turn.ShowDiagnosis,
	}
	if turn.Diagnosis != nil {
		payload["diagnosis"] = turn.Diagnosis
	}
	writeSuccess(w, http.StatusOK, payload)
}

func (s *Server) handleBookmark(w http.ResponseWriter, r *http.Request, questionID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	bookmarked, err := s.app.ToggleBookmark(questionID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"bookmarked": bookmarked})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request, questionID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resources, err := s.app.RecommendedResources(r.Context(), questionID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"resources": resources})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resources, err := s.app.Resources()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"resources": resources})
}

type feedbackRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req feedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.SubmitFeedback(req.Content, s.optionalUserID(r)); err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, nil)
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.production && !s.allowSeeding {
		writeError(w, http.StatusForbidden, "seeding is disabled in production")
		return
	}
	if err := s.app.SeedDatabase(); err != nil {
		writeError(w, http.StatusInternalServerError, "seeding failed")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": "database seeded"})
}

// allowRate applies the fixed-window limiter keyed by client IP. A nil
// limiter admits everything.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	if !s.limiter.Allow(util.ClientIP(r, s.trustForwarded)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSuccess wraps the payload in the success envelope.
func writeSuccess(w http.ResponseWriter, status int, payload map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// writeAppError maps orchestrator errors onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrTitleRequired),
		errors.Is(err, app.ErrMessageRequired),
		errors.Is(err, app.ErrFeedbackRequired),
		errors.Is(err, app.ErrEmailRequired),
		errors.Is(err, auth.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrQuestionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
