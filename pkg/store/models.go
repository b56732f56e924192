package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type QuestionModel struct {
	ID         string  `gorm:"primaryKey"`
	Title      string  `gorm:"not null"`
	UserID     *string `gorm:"index"`
	Score      *int
	Bookmarked bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

type MessageModel struct {
	ID         string    `gorm:"primaryKey"`
	QuestionID string    `gorm:"not null;index"`
	Sender     string    `gorm:"not null"`
	Content    string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

type DiagnosisModel struct {
	ID             string         `gorm:"primaryKey"`
	QuestionID     string         `gorm:"not null;index"`
	Classification datatypes.JSON `gorm:"type:jsonb"`
	Weight         datatypes.JSON `gorm:"type:jsonb"`
	Score          int            `gorm:"not null"`
	Summary        string         `gorm:"type:text"`
	Reasons        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;index"`
}

type ResourceModel struct {
	ID       string `gorm:"primaryKey"`
	Title    string `gorm:"not null"`
	Type     string `gorm:"not null"`
	Category string
	URL      string
}

type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type FeedbackModel struct {
	ID        string  `gorm:"primaryKey"`
	Content   string  `gorm:"type:text;not null"`
	UserID    *string `gorm:"index"`
	CreatedAt time.Time `gorm:"not null"`
}
