package domain

import "time"

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Question is a user-initiated topic of reflection; root of a conversation.
// Score stays nil until a diagnosis exists and then carries a denormalized
// copy of the diagnosis score for list display.
type Question struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	UserID     string    `json:"userId,omitempty"`
	Score      *int      `json:"score,omitempty"`
	Bookmarked bool      `json:"bookmarked"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Message is one conversation turn. Immutable once created, append-only
// per question, ordered by CreatedAt ascending.
type Message struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"questionId"`
	Sender     Sender    `json:"sender"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Diagnosis is the structured classification a question receives once
// enough conversation exists. Classification and Weight are parallel
// slices; weights are percentages that should sum to ~100.
type Diagnosis struct {
	ID             string    `json:"id"`
	QuestionID     string    `json:"questionId"`
	Classification []string  `json:"classification"`
	Weight         []int     `json:"weight"`
	Score          int       `json:"score"`
	Summary        string    `json:"summary"`
	Reasons        []string  `json:"reasons"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Resource is one entry of the read-only curated catalog.
type Resource struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Category string `json:"category"`
	URL      string `json:"url"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Feedback is a free-text note a user leaves about the app itself.
type Feedback struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
