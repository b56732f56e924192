package util

import "github.com/google/uuid"

// NewID returns a random record identifier.
func NewID() string {
	return uuid.NewString()
}

// NewPlaceholderID mints an identifier for records that could not be
// persisted. The prefix keeps them distinguishable from durable rows.
func NewPlaceholderID() string {
	return "temp-" + uuid.NewString()
}
