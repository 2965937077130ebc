package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eduvox/eduvox/internal/store"
)

// Evictor enforces the per-user retention caps on companions and session
// history by deleting the single oldest row before a new insert once the
// cap is reached.
//
// It runs synchronously inside the creating request. Eviction failures
// propagate and abort the whole creation, so a user's live row count can
// never grow past the cap. At most one row is evicted per call even when
// the backlog somehow exceeds the cap by more than one.
type Evictor struct {
	repo store.Repository
}

// NewEvictor creates an evictor backed by repo.
func NewEvictor(repo store.Repository) *Evictor {
	return &Evictor{repo: repo}
}

// EnsureCompanionCapacity evicts the author's oldest companion when the
// live count is at or above cap.
func (e *Evictor) EnsureCompanionCapacity(ctx context.Context, author string, cap int) error {
	companions, err := e.repo.ListCompanionsOldestFirst(ctx, author)
	if err != nil {
		return fmt.Errorf("list companions for eviction: %w", err)
	}
	if len(companions) < cap {
		return nil
	}

	oldest := companions[0]
	if err := e.repo.DeleteCompanion(ctx, oldest.ID); err != nil {
		return fmt.Errorf("evict oldest companion: %w", err)
	}

	slog.Info("Evicted oldest companion to stay under retention cap",
		"user_id", author, "companion_id", oldest.ID, "cap", cap)
	return nil
}

// EnsureSessionCapacity evicts the user's oldest session record when the
// live count is at or above cap.
func (e *Evictor) EnsureSessionCapacity(ctx context.Context, userID string, cap int) error {
	sessions, err := e.repo.ListSessionsOldestFirst(ctx, userID)
	if err != nil {
		return fmt.Errorf("list sessions for eviction: %w", err)
	}
	if len(sessions) < cap {
		return nil
	}

	oldest := sessions[0]
	if err := e.repo.DeleteSessionRecord(ctx, oldest.ID); err != nil {
		return fmt.Errorf("evict oldest session record: %w", err)
	}

	slog.Info("Evicted oldest session record to stay under retention cap",
		"user_id", userID, "session_id", oldest.ID, "cap", cap)
	return nil
}
