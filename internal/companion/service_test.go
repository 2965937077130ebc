package companion

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/eduvox/eduvox/internal/auth"
	"github.com/eduvox/eduvox/internal/config"
	"github.com/eduvox/eduvox/internal/domain"
	"github.com/eduvox/eduvox/internal/quota"
	"github.com/eduvox/eduvox/internal/store"
)

func testLimits() config.QuotaConfig {
	return config.QuotaConfig{
		CompanionRetentionCap: 9,
		SessionRetentionCap:   10,
		BasicCompanionLimit:   3,
		CoreCompanionLimit:    10,
		MonthlyCap:            10,
		StatsFailOpen:         true,
	}
}

func newTestService(t *testing.T) (*Service, store.Repository) {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})

	limits := testLimits()
	stats := quota.NewStatsTracker(repo)
	evaluator := quota.NewPlanEvaluator(repo, stats, limits)
	evictor := quota.NewEvictor(repo)
	return NewService(repo, evaluator, stats, evictor, limits), repo
}

func validInput() CreateCompanionInput {
	return CreateCompanionInput{
		Name:     "AlgebraBot",
		Subject:  "maths",
		Topic:    "Algebra",
		Duration: 10,
	}
}

func proUser(userID string) auth.Identity {
	return auth.Identity{UserID: userID, Plan: auth.PlanPro}
}

func basicUser(userID string) auth.Identity {
	return auth.Identity{UserID: userID, Features: []string{auth.FeatureBasicCompanionLimit}}
}

func TestCreateCompanionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		mutate func(*CreateCompanionInput)
	}{
		{"missing name", func(in *CreateCompanionInput) { in.Name = " " }},
		{"missing subject", func(in *CreateCompanionInput) { in.Subject = "" }},
		{"missing topic", func(in *CreateCompanionInput) { in.Topic = "" }},
		{"non-positive duration", func(in *CreateCompanionInput) { in.Duration = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			if _, err := svc.CreateCompanion(ctx, basicUser("u1"), in); !errors.Is(err, ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateCompanionUnderLimit(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCompanion(ctx, basicUser("u1"), validInput())
	if err != nil {
		t.Fatalf("CreateCompanion failed: %v", err)
	}
	if c.ID == "" || c.Author != "u1" {
		t.Errorf("Bad companion: %+v", c)
	}

	// The lifetime counter observed the creation.
	stats, err := repo.GetLifetimeStats(ctx, "u1")
	if err != nil || stats == nil {
		t.Fatalf("GetLifetimeStats: %v", err)
	}
	if stats.TotalCompanionsCreated != 1 {
		t.Errorf("Expected lifetime count 1, got %d", stats.TotalCompanionsCreated)
	}
}

func TestCreateCompanionDeniedAtLifetimeLimit(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	id := basicUser("u1")

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateCompanion(ctx, id, validInput()); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}

	_, err := svc.CreateCompanion(ctx, id, validInput())
	if !errors.Is(err, ErrCompanionLimitReached) {
		t.Fatalf("Expected limit-reached error, got %v", err)
	}

	// Denial wrote nothing.
	count, cerr := repo.CountCompanionsByAuthor(ctx, "u1")
	if cerr != nil {
		t.Fatalf("Count failed: %v", cerr)
	}
	if count != 3 {
		t.Errorf("Expected 3 live rows after denial, got %d", count)
	}
}

func TestCreateCompanionEvictsAtRetentionCap(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	id := proUser("u1")

	// Fill to the retention cap with distinct timestamps.
	start := time.Now().Add(-time.Hour)
	for i := 0; i < 9; i++ {
		c := &domain.Companion{
			ID:        "seed-" + string(rune('a'+i)),
			Name:      "Seed",
			Subject:   "maths",
			Topic:     "t",
			Duration:  5,
			Author:    "u1",
			CreatedAt: start.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.InsertCompanion(ctx, c); err != nil {
			t.Fatalf("Seed insert failed: %v", err)
		}
	}

	created, err := svc.CreateCompanion(ctx, id, validInput())
	if err != nil {
		t.Fatalf("CreateCompanion failed: %v", err)
	}

	// One eviction, one insert: live count stays at the cap.
	count, err := repo.CountCompanionsByAuthor(ctx, "u1")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 9 {
		t.Errorf("Expected live count to stay at 9, got %d", count)
	}

	// The oldest seed is gone, the new row exists.
	if got, _ := repo.GetCompanion(ctx, "seed-a"); got != nil {
		t.Error("Expected oldest companion evicted")
	}
	if got, _ := repo.GetCompanion(ctx, created.ID); got == nil {
		t.Error("Expected new companion present")
	}
}

func TestStartSessionUnknownCompanion(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.StartSession(ctx, proUser("u1"), "missing")
	if !errors.Is(err, ErrCompanionNotFound) {
		t.Fatalf("Expected not-found error, got %v", err)
	}

	count, cerr := repo.CountSessionsByUser(ctx, "u1")
	if cerr != nil {
		t.Fatalf("Count failed: %v", cerr)
	}
	if count != 0 {
		t.Errorf("Expected no session row after failure, got %d", count)
	}
}

func TestStartSessionRecordsAndCounts(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	id := basicUser("u1")

	c, err := svc.CreateCompanion(ctx, id, validInput())
	if err != nil {
		t.Fatalf("CreateCompanion failed: %v", err)
	}

	rec, err := svc.StartSession(ctx, id, c.ID)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if rec.CompanionID != c.ID || rec.UserID != "u1" {
		t.Errorf("Bad session record: %+v", rec)
	}

	stats, err := repo.GetLifetimeStats(ctx, "u1")
	if err != nil || stats == nil {
		t.Fatalf("GetLifetimeStats: %v", err)
	}
	if stats.TotalSessionsCompleted != 1 {
		t.Errorf("Expected lifetime session count 1, got %d", stats.TotalSessionsCompleted)
	}

	monthly, err := repo.CheckAndResetMonthly(ctx, "u1", time.Now())
	if err != nil {
		t.Fatalf("CheckAndResetMonthly failed: %v", err)
	}
	if monthly != 1 {
		t.Errorf("Expected monthly count 1, got %d", monthly)
	}
}

func TestStartSessionDeniedAtMonthlyCap(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	id := basicUser("u1")

	c, err := svc.CreateCompanion(ctx, id, validInput())
	if err != nil {
		t.Fatalf("CreateCompanion failed: %v", err)
	}

	now := time.Now()
	for i := 0; i < 10; i++ {
		if err := repo.IncrementMonthly(ctx, "u1", now); err != nil {
			t.Fatalf("IncrementMonthly failed: %v", err)
		}
	}

	if _, err := svc.StartSession(ctx, id, c.ID); !errors.Is(err, ErrMonthlyLimitReached) {
		t.Fatalf("Expected monthly limit error, got %v", err)
	}

	// A pro user with the same window usage is not limited.
	for i := 0; i < 10; i++ {
		if err := repo.IncrementMonthly(ctx, "u2", now); err != nil {
			t.Fatalf("IncrementMonthly failed: %v", err)
		}
	}
	if _, err := svc.StartSession(ctx, proUser("u2"), c.ID); err != nil {
		t.Fatalf("Expected pro session allowed, got %v", err)
	}
}

func TestStartSessionEvictsAtRetentionCap(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	id := proUser("u1")

	c, err := svc.CreateCompanion(ctx, id, validInput())
	if err != nil {
		t.Fatalf("CreateCompanion failed: %v", err)
	}

	start := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		rec := &domain.SessionRecord{
			ID:          "seed-" + string(rune('a'+i)),
			CompanionID: c.ID,
			UserID:      "u1",
			CreatedAt:   start.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.InsertSessionRecord(ctx, rec); err != nil {
			t.Fatalf("Seed insert failed: %v", err)
		}
	}

	if _, err := svc.StartSession(ctx, id, c.ID); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	count, err := repo.CountSessionsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 10 {
		t.Errorf("Expected live session count to stay at 10, got %d", count)
	}
	if sessions, _ := repo.ListSessionsOldestFirst(ctx, "u1"); len(sessions) > 0 && sessions[0].ID == "seed-a" {
		t.Error("Expected oldest session evicted")
	}
}

func TestBookmarkConflictAndIdempotentRemove(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	id := basicUser("u1")

	c, err := svc.CreateCompanion(ctx, id, validInput())
	if err != nil {
		t.Fatalf("CreateCompanion failed: %v", err)
	}

	if _, err := svc.AddBookmark(ctx, id, c.ID); err != nil {
		t.Fatalf("AddBookmark failed: %v", err)
	}

	if _, err := svc.AddBookmark(ctx, id, c.ID); !errors.Is(err, ErrAlreadyBookmarked) {
		t.Fatalf("Expected already-bookmarked error, got %v", err)
	}

	// The conflict left a single row behind.
	b, err := repo.GetBookmark(ctx, "u1", c.ID)
	if err != nil || b == nil {
		t.Fatalf("GetBookmark: %v", err)
	}

	if err := svc.RemoveBookmark(ctx, id, c.ID); err != nil {
		t.Fatalf("RemoveBookmark failed: %v", err)
	}
	// Removing again is not an error.
	if err := svc.RemoveBookmark(ctx, id, c.ID); err != nil {
		t.Errorf("Expected idempotent remove, got %v", err)
	}
}

// staleBookmarkReads simulates a concurrent bookmark landing between the
// existence check and the insert: the check never sees the row, the
// insert does.
type staleBookmarkReads struct {
	store.Repository
}

func (staleBookmarkReads) GetBookmark(context.Context, string, string) (*domain.Bookmark, error) {
	return nil, nil
}

func TestAddBookmarkConcurrentDuplicate(t *testing.T) {
	_, repo := newTestService(t)
	ctx := context.Background()

	limits := testLimits()
	stale := staleBookmarkReads{Repository: repo}
	stats := quota.NewStatsTracker(stale)
	evaluator := quota.NewPlanEvaluator(stale, stats, limits)
	svc := NewService(stale, evaluator, stats, quota.NewEvictor(stale), limits)

	c, err := svc.CreateCompanion(ctx, proUser("u1"), validInput())
	if err != nil {
		t.Fatalf("CreateCompanion failed: %v", err)
	}

	if _, err := svc.AddBookmark(ctx, basicUser("u2"), c.ID); err != nil {
		t.Fatalf("AddBookmark failed: %v", err)
	}

	// The duplicate insert trips the unique constraint and must surface
	// as the bookmark conflict, not an internal error.
	if _, err := svc.AddBookmark(ctx, basicUser("u2"), c.ID); !errors.Is(err, ErrAlreadyBookmarked) {
		t.Fatalf("Expected already-bookmarked error, got %v", err)
	}

	b, err := repo.GetBookmark(ctx, "u2", c.ID)
	if err != nil || b == nil {
		t.Fatalf("Expected single bookmark row to survive, got %+v, err %v", b, err)
	}
}

func TestAddBookmarkUnknownCompanion(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AddBookmark(context.Background(), basicUser("u1"), "missing")
	if !errors.Is(err, ErrCompanionNotFound) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestListCompanionsAnonymousCatalog(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	got, err := svc.ListCompanions(ctx, auth.Identity{}, domain.CompanionFilter{})
	if err != nil {
		t.Fatalf("ListCompanions failed: %v", err)
	}
	if len(got) != len(domain.DefaultCompanions) {
		t.Errorf("Expected full catalog, got %d entries", len(got))
	}

	got, err = svc.ListCompanions(ctx, auth.Identity{}, domain.CompanionFilter{Subject: "maths"})
	if err != nil {
		t.Fatalf("ListCompanions with filter failed: %v", err)
	}
	for _, c := range got {
		if c.Subject != "maths" {
			t.Errorf("Catalog filter leaked subject %s", c.Subject)
		}
	}
}

func TestListCompanionsAnnotatesBookmarks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := proUser("u1")

	first, err := svc.CreateCompanion(ctx, id, validInput())
	if err != nil {
		t.Fatalf("CreateCompanion failed: %v", err)
	}
	in := validInput()
	in.Name = "Second"
	second, err := svc.CreateCompanion(ctx, id, in)
	if err != nil {
		t.Fatalf("CreateCompanion failed: %v", err)
	}
	if _, err := svc.AddBookmark(ctx, id, second.ID); err != nil {
		t.Fatalf("AddBookmark failed: %v", err)
	}

	got, err := svc.ListCompanions(ctx, id, domain.CompanionFilter{})
	if err != nil {
		t.Fatalf("ListCompanions failed: %v", err)
	}
	for _, c := range got {
		want := c.ID == second.ID
		if c.Bookmarked != want {
			t.Errorf("Companion %s bookmarked=%v, want %v (first=%s)", c.ID, c.Bookmarked, want, first.ID)
		}
	}
}

func TestPopularCompanionsAnonymous(t *testing.T) {
	svc, _ := newTestService(t)

	got, err := svc.PopularCompanions(context.Background(), auth.Identity{}, 3)
	if err != nil {
		t.Fatalf("PopularCompanions failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 featured companions, got %d", len(got))
	}
	if got[0].Name != "Calculus Wizard" {
		t.Errorf("Unexpected featured ordering: %s", got[0].Name)
	}
}

func TestUsageSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := basicUser("u1")

	c, err := svc.CreateCompanion(ctx, id, validInput())
	if err != nil {
		t.Fatalf("CreateCompanion failed: %v", err)
	}
	if _, err := svc.StartSession(ctx, id, c.ID); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	usage := svc.Usage(ctx, id)
	if usage.Lifetime.TotalCompanionsCreated != 1 || usage.Lifetime.TotalSessionsCompleted != 1 {
		t.Errorf("Bad lifetime stats: %+v", usage.Lifetime)
	}
	if usage.MonthlyConversations != 1 {
		t.Errorf("Expected monthly count 1, got %d", usage.MonthlyConversations)
	}
	if usage.CompanionLimit != 3 || usage.Unlimited {
		t.Errorf("Bad ceiling: limit=%d unlimited=%v", usage.CompanionLimit, usage.Unlimited)
	}
	if !usage.CanCreateCompanion || !usage.CanStartConversation {
		t.Errorf("Expected permissions granted: %+v", usage)
	}
}

func TestPurgeUserDataSettlesAllTables(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	id := basicUser("u1")

	c, err := svc.CreateCompanion(ctx, id, validInput())
	if err != nil {
		t.Fatalf("CreateCompanion failed: %v", err)
	}
	if _, err := svc.StartSession(ctx, id, c.ID); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := svc.AddBookmark(ctx, id, c.ID); err != nil {
		t.Fatalf("AddBookmark failed: %v", err)
	}

	results := svc.PurgeUserData(ctx, "u1")
	if len(results) != 4 {
		t.Fatalf("Expected 4 table results, got %d", len(results))
	}
	for _, res := range results {
		if res.Err != nil {
			t.Errorf("Table %s failed: %v", res.Table, res.Err)
		}
		if res.Rows != 1 {
			t.Errorf("Table %s: expected 1 row deleted, got %d", res.Table, res.Rows)
		}
	}

	count, err := repo.CountCompanionsByAuthor(ctx, "u1")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no companions after purge, got %d", count)
	}
}
