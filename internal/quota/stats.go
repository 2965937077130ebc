// Package quota implements plan-limit evaluation, lifetime usage
// counters, retention eviction and the monthly conversation window.
package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eduvox/eduvox/internal/domain"
	"github.com/eduvox/eduvox/internal/store"
)

// StatsTracker maintains the per-user lifetime counter record.
//
// Reads lazily backfill a missing record from current live row counts.
// Increments run after the primary write has already committed and are
// strictly best-effort: every failure is logged and swallowed so
// bookkeeping can never undo a creation.
type StatsTracker struct {
	repo store.Repository
}

// NewStatsTracker creates a tracker backed by repo.
func NewStatsTracker(repo store.Repository) *StatsTracker {
	return &StatsTracker{repo: repo}
}

// Lifetime returns the user's lifetime counters.
//
// On any failure it returns zero-valued counters together with the error,
// so callers can keep serving (the historical behavior) or treat the
// failure as a denial, per policy.
func (t *StatsTracker) Lifetime(ctx context.Context, userID string) (domain.LifetimeStats, error) {
	zero := domain.LifetimeStats{UserID: userID}

	stats, err := t.repo.GetLifetimeStats(ctx, userID)
	if err != nil {
		slog.Error("Failed to read lifetime stats", "error", err, "user_id", userID)
		return zero, fmt.Errorf("read lifetime stats: %w", err)
	}
	if stats != nil {
		return *stats, nil
	}

	// First read for this user: backfill from live row counts, then
	// re-read. The insert is idempotent, so a concurrent first read
	// cannot double-initialize.
	if err := t.repo.InitLifetimeStats(ctx, userID); err != nil {
		slog.Error("Failed to initialize lifetime stats", "error", err, "user_id", userID)
		return zero, fmt.Errorf("initialize lifetime stats: %w", err)
	}

	stats, err = t.repo.GetLifetimeStats(ctx, userID)
	if err != nil || stats == nil {
		slog.Error("Failed to re-read lifetime stats after initialization", "error", err, "user_id", userID)
		return zero, fmt.Errorf("re-read lifetime stats: %w", err)
	}

	return *stats, nil
}

// IncrementCompanions bumps the lifetime companion counter. Best-effort.
func (t *StatsTracker) IncrementCompanions(ctx context.Context, userID string) {
	t.increment(ctx, userID, "companion",
		t.repo.IncrementCompanionCount,
		func(stats *domain.LifetimeStats) { stats.TotalCompanionsCreated++ },
	)
}

// IncrementSessions bumps the lifetime session counter. Best-effort.
func (t *StatsTracker) IncrementSessions(ctx context.Context, userID string) {
	t.increment(ctx, userID, "session",
		t.repo.IncrementSessionCount,
		func(stats *domain.LifetimeStats) { stats.TotalSessionsCompleted++ },
	)
}

// increment tries the atomic counter update first and falls back to a
// read-modify-write of current+1 when that errors. Neither failure
// propagates: the primary action already committed.
func (t *StatsTracker) increment(ctx context.Context, userID, counter string, atomic func(context.Context, string) error, bump func(*domain.LifetimeStats)) {
	err := atomic(ctx, userID)
	if err == nil {
		return
	}
	slog.Warn("Atomic lifetime increment failed, falling back to read-modify-write",
		"error", err, "user_id", userID, "counter", counter)

	stats, err := t.repo.GetLifetimeStats(ctx, userID)
	if err != nil || stats == nil {
		slog.Error("Lifetime increment fallback could not read stats",
			"error", err, "user_id", userID, "counter", counter)
		return
	}

	bump(stats)
	if err := t.repo.UpdateLifetimeStats(ctx, stats); err != nil {
		slog.Error("Lifetime increment fallback update failed",
			"error", err, "user_id", userID, "counter", counter)
	}
}
