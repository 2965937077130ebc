// Package companion orchestrates companion, session and bookmark
// operations over the store, applying plan limits, retention eviction and
// best-effort usage bookkeeping.
package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eduvox/eduvox/internal/auth"
	"github.com/eduvox/eduvox/internal/config"
	"github.com/eduvox/eduvox/internal/domain"
	"github.com/eduvox/eduvox/internal/quota"
	"github.com/eduvox/eduvox/internal/shared"
	"github.com/eduvox/eduvox/internal/store"
	"github.com/google/uuid"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrCompanionLimitReached = errors.New("you have reached your companion creation limit for your current subscription plan")
	ErrMonthlyLimitReached   = errors.New("you have reached your monthly conversation limit for your current subscription plan")
	ErrCompanionNotFound     = errors.New("companion not found")
	ErrAlreadyBookmarked     = errors.New("companion is already bookmarked")
	ErrValidation            = errors.New("validation failed")
)

// Service implements the companion/session/bookmark operations.
type Service struct {
	repo      store.Repository
	evaluator *quota.PlanEvaluator
	stats     *quota.StatsTracker
	evictor   *quota.Evictor
	limits    config.QuotaConfig
}

// NewService wires the orchestration layer.
func NewService(repo store.Repository, evaluator *quota.PlanEvaluator, stats *quota.StatsTracker, evictor *quota.Evictor, limits config.QuotaConfig) *Service {
	return &Service{
		repo:      repo,
		evaluator: evaluator,
		stats:     stats,
		evictor:   evictor,
		limits:    limits,
	}
}

// CreateCompanionInput is the caller-supplied companion definition.
type CreateCompanionInput struct {
	Name        string `json:"name"`
	Subject     string `json:"subject"`
	Topic       string `json:"topic"`
	Duration    int    `json:"duration"`
	Description string `json:"description"`
	Personality string `json:"personality"`
}

// Validate checks required fields.
func (in CreateCompanionInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(in.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if strings.TrimSpace(in.Topic) == "" {
		return fmt.Errorf("%w: topic is required", ErrValidation)
	}
	if in.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	return nil
}

// CreateCompanion checks the caller's plan ceiling against lifetime
// counts, makes room under the retention cap, inserts the companion and
// then bumps the lifetime counter best-effort.
func (s *Service) CreateCompanion(ctx context.Context, id auth.Identity, in CreateCompanionInput) (*domain.Companion, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if !s.evaluator.CanCreateCompanion(ctx, id) {
		return nil, ErrCompanionLimitReached
	}

	if err := s.evictor.EnsureCompanionCapacity(ctx, id.UserID, s.limits.CompanionRetentionCap); err != nil {
		return nil, fmt.Errorf("ensure companion capacity: %w", err)
	}

	c := &domain.Companion{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Subject:     strings.TrimSpace(in.Subject),
		Topic:       strings.TrimSpace(in.Topic),
		Duration:    in.Duration,
		Description: strings.TrimSpace(in.Description),
		Personality: strings.TrimSpace(in.Personality),
		Author:      id.UserID,
		CreatedAt:   time.Now(),
	}

	if err := s.repo.InsertCompanion(ctx, c); err != nil {
		return nil, fmt.Errorf("create companion: %w", err)
	}

	// Bookkeeping after the committed insert. Failure must not undo it.
	s.stats.IncrementCompanions(ctx, id.UserID)

	return c, nil
}

// StartSession verifies the companion exists, enforces the monthly
// conversation window, makes room under the session retention cap and
// records the session. Lifetime and monthly counters are bumped
// best-effort afterwards.
func (s *Service) StartSession(ctx context.Context, id auth.Identity, companionID string) (*domain.SessionRecord, error) {
	if strings.TrimSpace(companionID) == "" {
		return nil, fmt.Errorf("%w: companion id is required", ErrValidation)
	}

	c, err := s.repo.GetCompanion(ctx, companionID)
	if err != nil {
		return nil, fmt.Errorf("look up companion: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCompanionNotFound, companionID)
	}

	if !s.evaluator.CanStartConversation(ctx, id) {
		return nil, ErrMonthlyLimitReached
	}

	if err := s.evictor.EnsureSessionCapacity(ctx, id.UserID, s.limits.SessionRetentionCap); err != nil {
		return nil, fmt.Errorf("ensure session capacity: %w", err)
	}

	rec := &domain.SessionRecord{
		ID:          uuid.NewString(),
		CompanionID: companionID,
		UserID:      id.UserID,
		CreatedAt:   time.Now(),
	}

	if err := s.repo.InsertSessionRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("record session: %w", err)
	}

	s.stats.IncrementSessions(ctx, id.UserID)
	s.evaluator.RecordConversation(ctx, id.UserID)

	return rec, nil
}

// AddBookmark bookmarks a companion for the user. Re-bookmarking an
// already bookmarked companion is a conflict.
func (s *Service) AddBookmark(ctx context.Context, id auth.Identity, companionID string) (*domain.Bookmark, error) {
	if strings.TrimSpace(companionID) == "" {
		return nil, fmt.Errorf("%w: companion id is required", ErrValidation)
	}

	c, err := s.repo.GetCompanion(ctx, companionID)
	if err != nil {
		return nil, fmt.Errorf("look up companion: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCompanionNotFound, companionID)
	}

	existing, err := s.repo.GetBookmark(ctx, id.UserID, companionID)
	if err != nil {
		return nil, fmt.Errorf("check existing bookmark: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyBookmarked
	}

	b := &domain.Bookmark{
		ID:          uuid.NewString(),
		CompanionID: companionID,
		UserID:      id.UserID,
		CreatedAt:   time.Now(),
	}

	if err := s.repo.InsertBookmark(ctx, b); err != nil {
		// A concurrent bookmark can land between the existence check and
		// the insert; the UNIQUE(user_id, companion_id) constraint turns
		// that race into a conflict rather than a second row.
		if shared.IsSQLiteUniqueError(err) {
			return nil, ErrAlreadyBookmarked
		}
		return nil, fmt.Errorf("add bookmark: %w", err)
	}

	return b, nil
}

// RemoveBookmark deletes the user's bookmark for a companion. Removing a
// bookmark that does not exist is not an error.
func (s *Service) RemoveBookmark(ctx context.Context, id auth.Identity, companionID string) error {
	if strings.TrimSpace(companionID) == "" {
		return fmt.Errorf("%w: companion id is required", ErrValidation)
	}
	if err := s.repo.DeleteBookmark(ctx, id.UserID, companionID); err != nil {
		return fmt.Errorf("remove bookmark: %w", err)
	}
	return nil
}

// GetCompanion fetches a single companion by id.
func (s *Service) GetCompanion(ctx context.Context, companionID string) (*domain.Companion, error) {
	c, err := s.repo.GetCompanion(ctx, companionID)
	if err != nil {
		return nil, fmt.Errorf("look up companion: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCompanionNotFound, companionID)
	}
	return c, nil
}

// ListCompanions returns the caller's companions with filters and paging.
// Anonymous callers browse the built-in catalog instead.
func (s *Service) ListCompanions(ctx context.Context, id auth.Identity, f domain.CompanionFilter) ([]*domain.Companion, error) {
	if id.IsAnonymous() {
		return catalogPointers(domain.FilterDefaultCompanions(f)), nil
	}

	companions, err := s.repo.ListCompanionsByAuthor(ctx, id.UserID, f)
	if err != nil {
		return nil, fmt.Errorf("list companions: %w", err)
	}

	s.annotateBookmarks(ctx, id.UserID, companions)
	return companions, nil
}

// PopularCompanions returns featured companions for the landing page:
// the caller's newest when signed in, fixed catalog picks otherwise.
func (s *Service) PopularCompanions(ctx context.Context, id auth.Identity, limit int) ([]*domain.Companion, error) {
	if limit <= 0 {
		limit = 3
	}

	if id.IsAnonymous() {
		return catalogPointers(domain.PopularDefaultCompanions(limit)), nil
	}

	companions, err := s.repo.RecentCompanionsByAuthor(ctx, id.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list popular companions: %w", err)
	}

	s.annotateBookmarks(ctx, id.UserID, companions)
	return companions, nil
}

// RecentSessions returns the companions behind the user's latest
// sessions, newest first.
func (s *Service) RecentSessions(ctx context.Context, userID string, limit int) ([]*domain.Companion, error) {
	if limit <= 0 {
		limit = 10
	}

	companions, err := s.repo.RecentSessionCompanions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent sessions: %w", err)
	}

	s.annotateBookmarks(ctx, userID, companions)
	return companions, nil
}

// UserCompanions returns all companions authored by the user.
func (s *Service) UserCompanions(ctx context.Context, userID string) ([]*domain.Companion, error) {
	companions, err := s.repo.ListCompanionsByAuthor(ctx, userID, domain.CompanionFilter{Limit: s.limits.CompanionRetentionCap})
	if err != nil {
		return nil, fmt.Errorf("list user companions: %w", err)
	}
	return companions, nil
}

// UserBookmarks returns the companions the user has bookmarked.
func (s *Service) UserBookmarks(ctx context.Context, userID string, limit int) ([]*domain.Companion, error) {
	if limit <= 0 {
		limit = 10
	}

	companions, err := s.repo.ListBookmarkedCompanions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	for _, c := range companions {
		c.Bookmarked = true
	}
	return companions, nil
}

// UsageSummary is the caller's quota position.
type UsageSummary struct {
	Lifetime             domain.LifetimeStats `json:"lifetime"`
	MonthlyConversations int                  `json:"monthly_conversations"`
	CompanionLimit       int                  `json:"companion_limit"`
	Unlimited            bool                 `json:"unlimited"`
	CanCreateCompanion   bool                 `json:"can_create_companion"`
	CanStartConversation bool                 `json:"can_start_conversation"`
}

// Usage reports the caller's lifetime counters, monthly window and
// current permissions.
func (s *Service) Usage(ctx context.Context, id auth.Identity) UsageSummary {
	// A failed stats read degrades to zeros here; only the limit check
	// consults the fail-open policy.
	stats, _ := s.stats.Lifetime(ctx, id.UserID)

	limit, unlimited := s.evaluator.CompanionCeiling(id)
	return UsageSummary{
		Lifetime:             stats,
		MonthlyConversations: s.evaluator.MonthlyConversationCount(ctx, id),
		CompanionLimit:       limit,
		Unlimited:            unlimited,
		CanCreateCompanion:   s.evaluator.CanCreateCompanion(ctx, id),
		CanStartConversation: s.evaluator.CanStartConversation(ctx, id),
	}
}

// TableDeletion reports the outcome of one table's cascade delete.
type TableDeletion struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows_deleted"`
	Err   error  `json:"-"`
}

// PurgeUserData removes all of a deleted user's rows. Each table is
// attempted independently; one failure does not block the others.
func (s *Service) PurgeUserData(ctx context.Context, userID string) []TableDeletion {
	deletions := []struct {
		table  string
		delete func(context.Context, string) (int64, error)
	}{
		{"user_lifetime_stats", s.repo.DeleteLifetimeStats},
		{"companions", s.repo.DeleteCompanionsByAuthor},
		{"session_history", s.repo.DeleteSessionsByUser},
		{"bookmarks", s.repo.DeleteBookmarksByUser},
	}

	results := make([]TableDeletion, 0, len(deletions))
	for _, d := range deletions {
		rows, err := d.delete(ctx, userID)
		if err != nil {
			slog.Error("Failed to delete user rows", "error", err, "user_id", userID, "table", d.table)
		} else {
			slog.Info("Deleted user rows", "user_id", userID, "table", d.table, "rows", rows)
		}
		results = append(results, TableDeletion{Table: d.table, Rows: rows, Err: err})
	}
	return results
}

// annotateBookmarks sets the per-viewer bookmarked flag on list results.
// A failed bookmark read leaves the flags false rather than failing the
// listing.
func (s *Service) annotateBookmarks(ctx context.Context, userID string, companions []*domain.Companion) {
	if len(companions) == 0 {
		return
	}

	ids := make([]string, 0, len(companions))
	for _, c := range companions {
		ids = append(ids, c.ID)
	}

	bookmarked, err := s.repo.BookmarkedCompanionIDs(ctx, userID, ids)
	if err != nil {
		slog.Warn("Failed to annotate bookmarks", "error", err, "user_id", userID)
		return
	}

	for _, c := range companions {
		c.Bookmarked = bookmarked[c.ID]
	}
}

func catalogPointers(companions []domain.Companion) []*domain.Companion {
	out := make([]*domain.Companion, len(companions))
	for i := range companions {
		out[i] = &companions[i]
	}
	return out
}
