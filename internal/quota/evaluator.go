package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/eduvox/eduvox/internal/auth"
	"github.com/eduvox/eduvox/internal/config"
	"github.com/eduvox/eduvox/internal/store"
)

// PlanEvaluator maps an identity's plan grants to numeric ceilings and
// decides whether a companion may be created or a conversation started.
//
// Companion creation is checked against the lifetime created count, not
// the live row count, so recreating after eviction still consumes the
// ceiling. Conversation starts for restricted tiers are checked against
// the monthly rolling window.
//
// The check is intentionally not atomic with the insert it guards: two
// concurrent requests can both pass before either commits, overshooting
// a ceiling by the width of one round trip. That is a property of the
// original system, kept as-is.
type PlanEvaluator struct {
	repo   store.Repository
	stats  *StatsTracker
	limits config.QuotaConfig
	now    func() time.Time
}

// NewPlanEvaluator creates an evaluator using the given ceilings.
func NewPlanEvaluator(repo store.Repository, stats *StatsTracker, limits config.QuotaConfig) *PlanEvaluator {
	return &PlanEvaluator{
		repo:   repo,
		stats:  stats,
		limits: limits,
		now:    time.Now,
	}
}

// CompanionCeiling resolves the identity's lifetime companion ceiling.
// The second return is true for unlimited plans. Grant precedence: the
// pro plan wins, then the core feature, then the basic feature; an
// identity with no recognized grant gets the most restrictive ceiling.
func (e *PlanEvaluator) CompanionCeiling(id auth.Identity) (int, bool) {
	switch {
	case id.Has(auth.Capability{Plan: auth.PlanPro}):
		return 0, true
	case id.Has(auth.Capability{Feature: auth.FeatureCoreCompanionLimit}):
		return e.limits.CoreCompanionLimit, false
	case id.Has(auth.Capability{Feature: auth.FeatureBasicCompanionLimit}):
		return e.limits.BasicCompanionLimit, false
	default:
		return e.limits.BasicCompanionLimit, false
	}
}

// CanCreateCompanion reports whether the identity may create another
// companion. A lifetime count at or above the ceiling denies.
func (e *PlanEvaluator) CanCreateCompanion(ctx context.Context, id auth.Identity) bool {
	limit, unlimited := e.CompanionCeiling(id)
	if unlimited {
		return true
	}

	stats, err := e.stats.Lifetime(ctx, id.UserID)
	if err != nil && !e.limits.StatsFailOpen {
		slog.Warn("Denying companion creation on unreadable lifetime stats",
			"error", err, "user_id", id.UserID)
		return false
	}

	return stats.TotalCompanionsCreated < limit
}

// CanStartConversation reports whether the identity may start another
// conversation this month. Unlimited tiers always pass; restricted tiers
// are checked against the monthly window. A window read failure denies.
func (e *PlanEvaluator) CanStartConversation(ctx context.Context, id auth.Identity) bool {
	if id.Has(auth.Capability{Feature: auth.FeatureCoreCompanionLimit}) ||
		id.Has(auth.Capability{Plan: auth.PlanPro}) {
		return true
	}

	count, err := e.repo.CheckAndResetMonthly(ctx, id.UserID, e.now())
	if err != nil {
		slog.Error("Failed to check monthly conversation window", "error", err, "user_id", id.UserID)
		return false
	}

	return count < e.limits.MonthlyCap
}

// RecordConversation bumps the identity's monthly window after a session
// has been committed. Best-effort: failures are logged and swallowed so
// bookkeeping cannot undo the session.
func (e *PlanEvaluator) RecordConversation(ctx context.Context, userID string) {
	if err := e.repo.IncrementMonthly(ctx, userID, e.now()); err != nil {
		slog.Error("Failed to increment monthly conversation count", "error", err, "user_id", userID)
	}
}

// MonthlyConversationCount returns the identity's conversation count for
// the current month, zero when the window cannot be read.
func (e *PlanEvaluator) MonthlyConversationCount(ctx context.Context, id auth.Identity) int {
	count, err := e.repo.CheckAndResetMonthly(ctx, id.UserID, e.now())
	if err != nil {
		slog.Error("Failed to read monthly conversation count", "error", err, "user_id", id.UserID)
		return 0
	}
	return count
}
