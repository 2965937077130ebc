package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eduvox/eduvox/internal/domain"
	"github.com/eduvox/eduvox/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS companions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		subject TEXT NOT NULL,
		topic TEXT NOT NULL,
		duration INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		personality TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_companions_author_created ON companions(author, created_at);

	CREATE TABLE IF NOT EXISTS session_history (
		id TEXT PRIMARY KEY,
		companion_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_history_user_created ON session_history(user_id, created_at);

	CREATE TABLE IF NOT EXISTS bookmarks (
		id TEXT PRIMARY KEY,
		companion_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(user_id, companion_id)
	);

	CREATE TABLE IF NOT EXISTS user_lifetime_stats (
		user_id TEXT PRIMARY KEY,
		total_companions_created INTEGER NOT NULL DEFAULT 0,
		total_sessions_completed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS monthly_conversations (
		user_id TEXT PRIMARY KEY,
		period_start INTEGER NOT NULL,
		count INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const companionColumns = `id, name, subject, topic, duration, description, personality, author, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCompanion(row rowScanner) (*domain.Companion, error) {
	var c domain.Companion
	var createdAt int64

	err := row.Scan(
		&c.ID, &c.Name, &c.Subject, &c.Topic, &c.Duration,
		&c.Description, &c.Personality, &c.Author, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.CreatedAt = time.Unix(createdAt, 0)
	return &c, nil
}

func (s *SQLiteStore) queryCompanions(ctx context.Context, query string, args ...interface{}) ([]*domain.Companion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query companions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close companion rows", "error", closeErr)
		}
	}()

	var companions []*domain.Companion
	for rows.Next() {
		c, err := scanCompanion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan companion row: %w", err)
		}
		companions = append(companions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companion rows: %w", err)
	}

	return companions, nil
}

// InsertCompanion stores a new companion row.
func (s *SQLiteStore) InsertCompanion(ctx context.Context, c *domain.Companion) error {
	query := `
	INSERT INTO companions (id, name, subject, topic, duration, description, personality, author, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Subject, c.Topic, c.Duration,
		c.Description, c.Personality, c.Author, c.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert companion: %w", err)
	}
	return nil
}

// GetCompanion retrieves a companion by id.
func (s *SQLiteStore) GetCompanion(ctx context.Context, id string) (*domain.Companion, error) {
	query := `SELECT ` + companionColumns + ` FROM companions WHERE id = ?`

	c, err := scanCompanion(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan companion row: %w", err)
	}
	return c, nil
}

// ListCompanionsByAuthor returns the author's companions, newest first.
func (s *SQLiteStore) ListCompanionsByAuthor(ctx context.Context, author string, f domain.CompanionFilter) ([]*domain.Companion, error) {
	query := `SELECT ` + companionColumns + ` FROM companions WHERE author = ?`
	args := []interface{}{author}

	if f.Subject != "" {
		query += ` AND subject LIKE ?`
		args = append(args, "%"+f.Subject+"%")
	}
	if f.Topic != "" {
		query += ` AND (topic LIKE ? OR name LIKE ?)`
		args = append(args, "%"+f.Topic+"%", "%"+f.Topic+"%")
	}

	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, f.PageSize(), f.Offset())

	return s.queryCompanions(ctx, query, args...)
}

// ListCompanionsOldestFirst returns all of the author's companions ordered
// by creation time ascending.
func (s *SQLiteStore) ListCompanionsOldestFirst(ctx context.Context, author string) ([]*domain.Companion, error) {
	query := `SELECT ` + companionColumns + ` FROM companions WHERE author = ? ORDER BY created_at ASC, rowid ASC`
	return s.queryCompanions(ctx, query, author)
}

// RecentCompanionsByAuthor returns the author's newest companions.
func (s *SQLiteStore) RecentCompanionsByAuthor(ctx context.Context, author string, limit int) ([]*domain.Companion, error) {
	query := `SELECT ` + companionColumns + ` FROM companions WHERE author = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`
	return s.queryCompanions(ctx, query, author, limit)
}

// CountCompanionsByAuthor returns the author's live companion count.
func (s *SQLiteStore) CountCompanionsByAuthor(ctx context.Context, author string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companions WHERE author = ?`, author).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count companions: %w", err)
	}
	return count, nil
}

// DeleteCompanion removes a companion row by id.
func (s *SQLiteStore) DeleteCompanion(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM companions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete companion: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("companion %s not found", id)
	}
	return nil
}

// DeleteCompanionsByAuthor removes all of the author's companions.
func (s *SQLiteStore) DeleteCompanionsByAuthor(ctx context.Context, author string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM companions WHERE author = ?`, author)
	if err != nil {
		return 0, fmt.Errorf("delete companions by author: %w", err)
	}
	return result.RowsAffected()
}

// InsertSessionRecord stores a new session history row.
func (s *SQLiteStore) InsertSessionRecord(ctx context.Context, rec *domain.SessionRecord) error {
	query := `INSERT INTO session_history (id, companion_id, user_id, created_at) VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, rec.ID, rec.CompanionID, rec.UserID, rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert session record: %w", err)
	}
	return nil
}

// ListSessionsOldestFirst returns all of the user's session records
// ordered by creation time ascending.
func (s *SQLiteStore) ListSessionsOldestFirst(ctx context.Context, userID string) ([]*domain.SessionRecord, error) {
	query := `
		SELECT id, companion_id, user_id, created_at
		FROM session_history WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query session records: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var records []*domain.SessionRecord
	for rows.Next() {
		var rec domain.SessionRecord
		var createdAt int64

		if err := rows.Scan(&rec.ID, &rec.CompanionID, &rec.UserID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}

		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}

	return records, nil
}

// RecentSessionCompanions returns the companions behind the user's most
// recent sessions, newest session first.
func (s *SQLiteStore) RecentSessionCompanions(ctx context.Context, userID string, limit int) ([]*domain.Companion, error) {
	query := `
		SELECT c.id, c.name, c.subject, c.topic, c.duration, c.description, c.personality, c.author, c.created_at
		FROM session_history s
		JOIN companions c ON c.id = s.companion_id
		WHERE s.user_id = ?
		ORDER BY s.created_at DESC, s.rowid DESC
		LIMIT ?`
	return s.queryCompanions(ctx, query, userID, limit)
}

// CountSessionsByUser returns the user's live session record count.
func (s *SQLiteStore) CountSessionsByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_history WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count session records: %w", err)
	}
	return count, nil
}

// DeleteSessionRecord removes a session history row by id.
func (s *SQLiteStore) DeleteSessionRecord(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM session_history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session record %s not found", id)
	}
	return nil
}

// DeleteSessionsByUser removes all of the user's session records.
func (s *SQLiteStore) DeleteSessionsByUser(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM session_history WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete session records by user: %w", err)
	}
	return result.RowsAffected()
}

// GetBookmark retrieves the bookmark for (userID, companionID).
func (s *SQLiteStore) GetBookmark(ctx context.Context, userID, companionID string) (*domain.Bookmark, error) {
	query := `
		SELECT id, companion_id, user_id, created_at
		FROM bookmarks WHERE user_id = ? AND companion_id = ?`

	var b domain.Bookmark
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query, userID, companionID).Scan(
		&b.ID, &b.CompanionID, &b.UserID, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan bookmark row: %w", err)
	}

	b.CreatedAt = time.Unix(createdAt, 0)
	return &b, nil
}

// InsertBookmark stores a new bookmark row.
func (s *SQLiteStore) InsertBookmark(ctx context.Context, b *domain.Bookmark) error {
	query := `INSERT INTO bookmarks (id, companion_id, user_id, created_at) VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, b.ID, b.CompanionID, b.UserID, b.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert bookmark: %w", err)
	}
	return nil
}

// DeleteBookmark removes the bookmark for (userID, companionID).
func (s *SQLiteStore) DeleteBookmark(ctx context.Context, userID, companionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE user_id = ? AND companion_id = ?`, userID, companionID)
	if err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	return nil
}

// ListBookmarkedCompanions returns the companions the user has bookmarked,
// newest bookmark first.
func (s *SQLiteStore) ListBookmarkedCompanions(ctx context.Context, userID string, limit int) ([]*domain.Companion, error) {
	query := `
		SELECT c.id, c.name, c.subject, c.topic, c.duration, c.description, c.personality, c.author, c.created_at
		FROM bookmarks b
		JOIN companions c ON c.id = b.companion_id
		WHERE b.user_id = ?
		ORDER BY b.created_at DESC, b.rowid DESC
		LIMIT ?`
	return s.queryCompanions(ctx, query, userID, limit)
}

// BookmarkedCompanionIDs reports which of the given companion ids the user
// has bookmarked.
func (s *SQLiteStore) BookmarkedCompanionIDs(ctx context.Context, userID string, companionIDs []string) (map[string]bool, error) {
	bookmarked := make(map[string]bool, len(companionIDs))
	if len(companionIDs) == 0 {
		return bookmarked, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(companionIDs)), ",")
	query := `SELECT companion_id FROM bookmarks WHERE user_id = ? AND companion_id IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(companionIDs)+1)
	args = append(args, userID)
	for _, id := range companionIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookmarked ids: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close bookmark id rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan bookmarked id: %w", err)
		}
		bookmarked[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookmarked ids: %w", err)
	}

	return bookmarked, nil
}

// DeleteBookmarksByUser removes all of the user's bookmarks.
func (s *SQLiteStore) DeleteBookmarksByUser(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete bookmarks by user: %w", err)
	}
	return result.RowsAffected()
}

// GetLifetimeStats retrieves the user's lifetime counters.
func (s *SQLiteStore) GetLifetimeStats(ctx context.Context, userID string) (*domain.LifetimeStats, error) {
	query := `
		SELECT user_id, total_companions_created, total_sessions_completed
		FROM user_lifetime_stats WHERE user_id = ?`

	var stats domain.LifetimeStats
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.UserID, &stats.TotalCompanionsCreated, &stats.TotalSessionsCompleted,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan lifetime stats row: %w", err)
	}

	return &stats, nil
}

// InitLifetimeStats creates the user's lifetime counter row seeded from
// current live row counts. The single INSERT ... SELECT with ON CONFLICT
// DO NOTHING makes the lazy backfill idempotent under concurrent reads.
func (s *SQLiteStore) InitLifetimeStats(ctx context.Context, userID string) error {
	query := `
		INSERT INTO user_lifetime_stats (user_id, total_companions_created, total_sessions_completed)
		VALUES (
			?,
			(SELECT COUNT(*) FROM companions WHERE author = ?),
			(SELECT COUNT(*) FROM session_history WHERE user_id = ?)
		)
		ON CONFLICT(user_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, userID, userID, userID); err != nil {
		return fmt.Errorf("initialize lifetime stats: %w", err)
	}
	return nil
}

func (s *SQLiteStore) incrementLifetimeColumn(ctx context.Context, column, userID string) error {
	query := `UPDATE user_lifetime_stats SET ` + column + ` = ` + column + ` + 1 WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no lifetime stats row for user %s", userID)
	}
	return nil
}

// IncrementCompanionCount atomically bumps the lifetime companion counter.
func (s *SQLiteStore) IncrementCompanionCount(ctx context.Context, userID string) error {
	return s.incrementLifetimeColumn(ctx, "total_companions_created", userID)
}

// IncrementSessionCount atomically bumps the lifetime session counter.
func (s *SQLiteStore) IncrementSessionCount(ctx context.Context, userID string) error {
	return s.incrementLifetimeColumn(ctx, "total_sessions_completed", userID)
}

// UpdateLifetimeStats overwrites the user's counters.
func (s *SQLiteStore) UpdateLifetimeStats(ctx context.Context, stats *domain.LifetimeStats) error {
	query := `
		UPDATE user_lifetime_stats
		SET total_companions_created = ?, total_sessions_completed = ?
		WHERE user_id = ?`

	result, err := s.db.ExecContext(ctx, query,
		stats.TotalCompanionsCreated, stats.TotalSessionsCompleted, stats.UserID,
	)
	if err != nil {
		return fmt.Errorf("update lifetime stats: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no lifetime stats row for user %s", stats.UserID)
	}
	return nil
}

// DeleteLifetimeStats removes the user's counter row.
func (s *SQLiteStore) DeleteLifetimeStats(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM user_lifetime_stats WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete lifetime stats: %w", err)
	}
	return result.RowsAffected()
}

// monthStart returns the first instant of the UTC calendar month
// containing t, as a unix timestamp.
func monthStart(t time.Time) int64 {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC).Unix()
}

const (
	busyMaxRetries     = 3
	busyRetryBaseDelay = 50 * time.Millisecond
)

// withBusyRetry runs fn with exponential backoff on SQLite concurrency
// errors. The connection's busy_timeout absorbs most contention; this
// covers the write-upgrade conflicts that surface as immediate
// SQLITE_BUSY inside explicit transactions.
func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < busyMaxRetries; i++ {
		err = fn()
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if i < busyMaxRetries-1 {
			delay := busyRetryBaseDelay * time.Duration(1<<i) // exponential backoff
			slog.Debug("Database locked, retrying", "op", op, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return err
}

// CheckAndResetMonthly returns the user's conversation count for the month
// containing now. The reset-on-rollover and the read happen inside one
// transaction so the displayed count and the enforced count cannot drift.
func (s *SQLiteStore) CheckAndResetMonthly(ctx context.Context, userID string, now time.Time) (int, error) {
	var count int
	err := withBusyRetry(ctx, "check and reset monthly", func() error {
		var txErr error
		count, txErr = s.checkAndResetMonthly(ctx, userID, now)
		return txErr
	})
	return count, err
}

func (s *SQLiteStore) checkAndResetMonthly(ctx context.Context, userID string, now time.Time) (int, error) {
	period := monthStart(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin monthly check: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("failed to rollback monthly check", "error", rbErr)
		}
	}()

	reset := `
		INSERT INTO monthly_conversations (user_id, period_start, count)
		VALUES (?, ?, 0)
		ON CONFLICT(user_id) DO UPDATE SET period_start = excluded.period_start, count = 0
		WHERE monthly_conversations.period_start < excluded.period_start`

	if _, err := tx.ExecContext(ctx, reset, userID, period); err != nil {
		return 0, fmt.Errorf("reset monthly count: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx, `SELECT count FROM monthly_conversations WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read monthly count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit monthly check: %w", err)
	}

	return count, nil
}

// IncrementMonthly atomically bumps the user's conversation count for the
// month containing now, resetting first when the period has rolled over.
// A now earlier than the stored period never moves the window backward.
func (s *SQLiteStore) IncrementMonthly(ctx context.Context, userID string, now time.Time) error {
	period := monthStart(now)

	query := `
		INSERT INTO monthly_conversations (user_id, period_start, count)
		VALUES (?, ?, 1)
		ON CONFLICT(user_id) DO UPDATE SET
			count = CASE
				WHEN monthly_conversations.period_start < excluded.period_start THEN 1
				ELSE monthly_conversations.count + 1
			END,
			period_start = CASE
				WHEN monthly_conversations.period_start < excluded.period_start THEN excluded.period_start
				ELSE monthly_conversations.period_start
			END`

	if _, err := s.db.ExecContext(ctx, query, userID, period); err != nil {
		return fmt.Errorf("increment monthly count: %w", err)
	}
	return nil
}
