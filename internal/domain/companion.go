// Package domain contains core domain types for the EduVox API.
package domain

import (
	"time"
)

// Companion represents a learning companion owned by its author.
type Companion struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Subject     string    `json:"subject"`
	Topic       string    `json:"topic"`
	Duration    int       `json:"duration"`
	Description string    `json:"description,omitempty"`
	Personality string    `json:"personality,omitempty"`
	Author      string    `json:"author"`
	CreatedAt   time.Time `json:"created_at"`

	// Bookmarked is a per-viewer flag populated on list reads.
	// It is not stored on the companion row.
	Bookmarked bool `json:"bookmarked"`
}

// CompanionFilter narrows companion list queries.
type CompanionFilter struct {
	Subject string
	Topic   string
	Page    int
	Limit   int
}

// Offset returns the zero-based row offset for the filter's page.
func (f CompanionFilter) Offset() int {
	page := f.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * f.PageSize()
}

// PageSize returns the effective page size, defaulting to 10.
func (f CompanionFilter) PageSize() int {
	if f.Limit <= 0 {
		return 10
	}
	return f.Limit
}
