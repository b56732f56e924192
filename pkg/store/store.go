package store

import "qeek/pkg/domain"

// Store defines persistence operations for questions, messages,
// diagnoses, resources, users and feedback. Reads return a bool
// reporting presence; absence is not an error.
type Store interface {
	// questions
	CreateQuestion(domain.Question) error
	GetQuestion(id string) (domain.Question, bool, error)
	ListQuestions(bookmarkedOnly bool) ([]domain.Question, error)
	SetBookmarked(id string, bookmarked bool) (domain.Question, error)
	SetQuestionScore(id string, score int) error
	DeleteQuestion(id string) error

	// messages, append-only per question, chronological
	AppendMessage(domain.Message) error
	ListMessages(questionID string) ([]domain.Message, error)

	// diagnoses accumulate; the newest row is the displayed one
	SaveDiagnosis(domain.Diagnosis) error
	LatestDiagnosis(questionID string) (domain.Diagnosis, bool, error)
	CountDiagnoses(questionID string) (int, error)

	// resources, read-only catalog
	ListResources() ([]domain.Resource, error)

	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// feedback
	SaveFeedback(domain.Feedback) error

	// ExecSQL is the raw-SQL escape hatch, used only by seeding.
	ExecSQL(sql string) error
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// SavedMessage is the outcome of a message write. Placeholder marks a
// record fabricated locally after persistence retries were exhausted;
// its ID carries a non-persistent prefix and the row does not exist in
// the store.
type SavedMessage struct {
	domain.Message
	Placeholder bool
}
