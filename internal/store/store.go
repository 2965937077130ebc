// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/eduvox/eduvox/internal/domain"
)

// Repository defines the interface for persisting companion, session,
// bookmark and usage-counter data.
type Repository interface {
	// InsertCompanion stores a new companion row.
	InsertCompanion(ctx context.Context, c *domain.Companion) error

	// GetCompanion retrieves a companion by id. Returns (nil, nil) when
	// no row exists.
	GetCompanion(ctx context.Context, id string) (*domain.Companion, error)

	// ListCompanionsByAuthor returns the author's companions, newest
	// first, honoring the filter's subject/topic matching and paging.
	ListCompanionsByAuthor(ctx context.Context, author string, f domain.CompanionFilter) ([]*domain.Companion, error)

	// ListCompanionsOldestFirst returns all of the author's companions
	// ordered by creation time ascending, for retention eviction.
	ListCompanionsOldestFirst(ctx context.Context, author string) ([]*domain.Companion, error)

	// RecentCompanionsByAuthor returns the author's newest companions.
	RecentCompanionsByAuthor(ctx context.Context, author string, limit int) ([]*domain.Companion, error)

	// CountCompanionsByAuthor returns the author's live companion count.
	CountCompanionsByAuthor(ctx context.Context, author string) (int, error)

	// DeleteCompanion removes a companion row by id. Deleting a missing
	// row is an error.
	DeleteCompanion(ctx context.Context, id string) error

	// DeleteCompanionsByAuthor removes all of the author's companions.
	DeleteCompanionsByAuthor(ctx context.Context, author string) (int64, error)

	// InsertSessionRecord stores a new session history row.
	InsertSessionRecord(ctx context.Context, rec *domain.SessionRecord) error

	// ListSessionsOldestFirst returns all of the user's session records
	// ordered by creation time ascending, for retention eviction.
	ListSessionsOldestFirst(ctx context.Context, userID string) ([]*domain.SessionRecord, error)

	// RecentSessionCompanions returns the companions behind the user's
	// most recent sessions, newest session first.
	RecentSessionCompanions(ctx context.Context, userID string, limit int) ([]*domain.Companion, error)

	// CountSessionsByUser returns the user's live session record count.
	CountSessionsByUser(ctx context.Context, userID string) (int, error)

	// DeleteSessionRecord removes a session history row by id. Deleting
	// a missing row is an error.
	DeleteSessionRecord(ctx context.Context, id string) error

	// DeleteSessionsByUser removes all of the user's session records.
	DeleteSessionsByUser(ctx context.Context, userID string) (int64, error)

	// GetBookmark retrieves the bookmark for (userID, companionID).
	// Returns (nil, nil) when no row exists.
	GetBookmark(ctx context.Context, userID, companionID string) (*domain.Bookmark, error)

	// InsertBookmark stores a new bookmark row. A duplicate
	// (user, companion) pair fails the unique constraint.
	InsertBookmark(ctx context.Context, b *domain.Bookmark) error

	// DeleteBookmark removes the bookmark for (userID, companionID).
	// Removing a non-existent bookmark is not an error.
	DeleteBookmark(ctx context.Context, userID, companionID string) error

	// ListBookmarkedCompanions returns the companions the user has
	// bookmarked, newest bookmark first.
	ListBookmarkedCompanions(ctx context.Context, userID string, limit int) ([]*domain.Companion, error)

	// BookmarkedCompanionIDs reports which of the given companion ids
	// the user has bookmarked.
	BookmarkedCompanionIDs(ctx context.Context, userID string, companionIDs []string) (map[string]bool, error)

	// DeleteBookmarksByUser removes all of the user's bookmarks.
	DeleteBookmarksByUser(ctx context.Context, userID string) (int64, error)

	// GetLifetimeStats retrieves the user's lifetime counters. Returns
	// (nil, nil) when no row exists.
	GetLifetimeStats(ctx context.Context, userID string) (*domain.LifetimeStats, error)

	// InitLifetimeStats creates the user's lifetime counter row seeded
	// from current live row counts. Idempotent: an existing row is left
	// untouched.
	InitLifetimeStats(ctx context.Context, userID string) error

	// IncrementCompanionCount atomically bumps the lifetime companion
	// counter. Errors when no stats row exists.
	IncrementCompanionCount(ctx context.Context, userID string) error

	// IncrementSessionCount atomically bumps the lifetime session
	// counter. Errors when no stats row exists.
	IncrementSessionCount(ctx context.Context, userID string) error

	// UpdateLifetimeStats overwrites the user's counters. Used only by
	// the read-modify-write fallback path.
	UpdateLifetimeStats(ctx context.Context, stats *domain.LifetimeStats) error

	// DeleteLifetimeStats removes the user's counter row.
	DeleteLifetimeStats(ctx context.Context, userID string) (int64, error)

	// CheckAndResetMonthly returns the user's conversation count for the
	// month containing now, atomically resetting the counter when the
	// stored period has rolled over.
	CheckAndResetMonthly(ctx context.Context, userID string, now time.Time) (int, error)

	// IncrementMonthly atomically bumps the user's conversation count
	// for the month containing now, resetting first on rollover.
	IncrementMonthly(ctx context.Context, userID string, now time.Time) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
