package app

import "errors"

var (
	ErrTitleRequired    = errors.New("question title is required")
	ErrMessageRequired  = errors.New("message content is required")
	ErrQuestionNotFound = errors.New("question not found")
	ErrFeedbackRequired = errors.New("feedback content is required")

	ErrEmailRequired      = errors.New("email and password are required")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)
