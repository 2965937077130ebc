package domain

import (
	"time"
)

// SessionRecord represents one started conversation with a companion.
type SessionRecord struct {
	ID          string    `json:"id"`
	CompanionID string    `json:"companion_id"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Bookmark marks a companion as saved by a user.
// A user may bookmark a given companion at most once.
type Bookmark struct {
	ID          string    `json:"id"`
	CompanionID string    `json:"companion_id"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}
