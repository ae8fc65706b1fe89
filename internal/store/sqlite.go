package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aibekov/chaincademy/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	statsMu sync.Mutex // Mutex for stats read-modify-write cycles to prevent SQLITE_BUSY
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
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		wallet_address TEXT,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS progress_records (
		user_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		lessons_json TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		certificate_minted INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, course_id)
	);
	CREATE INDEX IF NOT EXISTS idx_progress_user ON progress_records(user_id);

	CREATE TABLE IF NOT EXISTS user_stats (
		user_id TEXT PRIMARY KEY,
		courses_completed INTEGER NOT NULL DEFAULT 0,
		submissions INTEGER NOT NULL DEFAULT 0,
		accepted_submissions INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		ai_scores_json TEXT NOT NULL DEFAULT '[]',
		achievements_json TEXT NOT NULL DEFAULT '[]',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		lesson_id TEXT NOT NULL,
		accepted INTEGER NOT NULL,
		score REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_user ON submissions(user_id, created_at);
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

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, wallet_address, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var wallet sql.NullString
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &wallet, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.WalletAddress = wallet.String
	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, wallet_address, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		wallet_address = COALESCE(excluded.wallet_address, users.wallet_address),
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	var wallet interface{}
	if user.WalletAddress != "" {
		wallet = user.WalletAddress
	}

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, wallet,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// GetProgress retrieves the progress record for a (user, course) pair.
func (s *SQLiteStore) GetProgress(ctx context.Context, userID, courseID string) (*domain.ProgressRecord, error) {
	query := `
		SELECT user_id, course_id, lessons_json, completed, certificate_minted,
		       started_at, completed_at, updated_at
		FROM progress_records WHERE user_id = ? AND course_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID, courseID)

	rec, err := scanProgress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan progress row: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProgress(row rowScanner) (*domain.ProgressRecord, error) {
	var rec domain.ProgressRecord
	var lessonsJSON string
	var completedAt sql.NullInt64
	var startedAt, updatedAt int64

	err := row.Scan(
		&rec.UserID, &rec.CourseID, &lessonsJSON,
		&rec.Completed, &rec.CertificateMinted,
		&startedAt, &completedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(lessonsJSON), &rec.Lessons); err != nil {
		return nil, fmt.Errorf("decode lessons: %w", err)
	}
	if rec.Lessons == nil {
		rec.Lessons = make(map[string]bool)
	}

	rec.StartedAt = time.Unix(startedAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		rec.CompletedAt = &t
	}

	return &rec, nil
}

// UpsertProgress creates or updates a progress record.
// certificate_minted is never cleared here; SetCertificateMinted owns it.
func (s *SQLiteStore) UpsertProgress(ctx context.Context, rec *domain.ProgressRecord) error {
	lessonsJSON, err := json.Marshal(rec.Lessons)
	if err != nil {
		return fmt.Errorf("encode lessons: %w", err)
	}

	query := `
	INSERT INTO progress_records (
		user_id, course_id, lessons_json, completed, certificate_minted,
		started_at, completed_at, updated_at
	) VALUES (?, ?, ?, ?, 0, ?, ?, ?)
	ON CONFLICT(user_id, course_id) DO UPDATE SET
		lessons_json = excluded.lessons_json,
		completed = MAX(excluded.completed, progress_records.completed),
		completed_at = COALESCE(progress_records.completed_at, excluded.completed_at),
		updated_at = excluded.updated_at`

	var completedAt interface{}
	if rec.CompletedAt != nil {
		completedAt = rec.CompletedAt.Unix()
	}

	_, err = s.db.ExecContext(ctx, query,
		rec.UserID, rec.CourseID, string(lessonsJSON), rec.Completed,
		rec.StartedAt.Unix(), completedAt, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// ListProgress retrieves all progress records for a user.
func (s *SQLiteStore) ListProgress(ctx context.Context, userID string) ([]*domain.ProgressRecord, error) {
	query := `
		SELECT user_id, course_id, lessons_json, completed, certificate_minted,
		       started_at, completed_at, updated_at
		FROM progress_records WHERE user_id = ?`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query progress records: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close progress rows", "error", closeErr)
		}
	}()

	var records []*domain.ProgressRecord
	for rows.Next() {
		rec, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress records: %w", err)
	}

	return records, nil
}

// SetCertificateMinted permanently sets the certificate_minted flag.
// The WHERE clause is the idempotence latch: a row already minted is not
// matched, and the caller gets ErrAlreadyMinted.
func (s *SQLiteStore) SetCertificateMinted(ctx context.Context, userID, courseID string) error {
	query := `
		UPDATE progress_records SET certificate_minted = 1, updated_at = ?
		WHERE user_id = ? AND course_id = ? AND completed = 1 AND certificate_minted = 0`

	result, err := s.db.ExecContext(ctx, query, time.Now().Unix(), userID, courseID)
	if err != nil {
		return fmt.Errorf("set certificate minted: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		rec, err := s.GetProgress(ctx, userID, courseID)
		if err != nil {
			return err
		}
		if rec != nil && rec.CertificateMinted {
			return ErrAlreadyMinted
		}
		return fmt.Errorf("progress record not eligible for minting: user=%s course=%s", userID, courseID)
	}

	return nil
}

// GetStats retrieves cumulative statistics for a user.
func (s *SQLiteStore) GetStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	query := `
		SELECT user_id, courses_completed, submissions, accepted_submissions,
		       level, ai_scores_json, achievements_json, updated_at
		FROM user_stats WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var stats domain.UserStats
	var scoresJSON, achievementsJSON string
	var updatedAt int64

	err := row.Scan(
		&stats.UserID, &stats.CoursesCompleted, &stats.Submissions,
		&stats.AcceptedSubmissions, &stats.Level,
		&scoresJSON, &achievementsJSON, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return &domain.UserStats{UserID: userID, Level: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan stats row: %w", err)
	}

	if err := json.Unmarshal([]byte(scoresJSON), &stats.AIScores); err != nil {
		return nil, fmt.Errorf("decode ai scores: %w", err)
	}
	if err := json.Unmarshal([]byte(achievementsJSON), &stats.Achievements); err != nil {
		return nil, fmt.Errorf("decode achievements: %w", err)
	}
	stats.UpdatedAt = time.Unix(updatedAt, 0)

	return &stats, nil
}

// UpsertStats creates or updates a user statistics record.
func (s *SQLiteStore) UpsertStats(ctx context.Context, stats *domain.UserStats) error {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	scoresJSON, err := json.Marshal(stats.AIScores)
	if err != nil {
		return fmt.Errorf("encode ai scores: %w", err)
	}
	achievementsJSON, err := json.Marshal(stats.Achievements)
	if err != nil {
		return fmt.Errorf("encode achievements: %w", err)
	}

	query := `
	INSERT INTO user_stats (
		user_id, courses_completed, submissions, accepted_submissions,
		level, ai_scores_json, achievements_json, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		courses_completed = excluded.courses_completed,
		submissions = excluded.submissions,
		accepted_submissions = excluded.accepted_submissions,
		level = excluded.level,
		ai_scores_json = excluded.ai_scores_json,
		achievements_json = excluded.achievements_json,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		stats.UserID, stats.CoursesCompleted, stats.Submissions,
		stats.AcceptedSubmissions, stats.Level,
		string(scoresJSON), string(achievementsJSON), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert stats: %w", err)
	}
	return nil
}

// InsertSubmission appends a submission event.
func (s *SQLiteStore) InsertSubmission(ctx context.Context, sub *domain.Submission) error {
	query := `
	INSERT INTO submissions (id, user_id, course_id, lesson_id, accepted, score, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	var score interface{}
	if sub.Score != nil {
		score = *sub.Score
	}

	_, err := s.db.ExecContext(ctx, query,
		sub.ID, sub.UserID, sub.CourseID, sub.LessonID,
		sub.Accepted, score, sub.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// ListSubmissions retrieves the most recent submissions for a user.
func (s *SQLiteStore) ListSubmissions(ctx context.Context, userID string, limit int) ([]*domain.Submission, error) {
	query := `
		SELECT id, user_id, course_id, lesson_id, accepted, score, created_at
		FROM submissions WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close submission rows", "error", closeErr)
		}
	}()

	var subs []*domain.Submission
	for rows.Next() {
		var sub domain.Submission
		var score sql.NullFloat64
		var createdAt int64

		if err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.CourseID, &sub.LessonID,
			&sub.Accepted, &score, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan submission row: %w", err)
		}

		if score.Valid {
			v := score.Float64
			sub.Score = &v
		}
		sub.CreatedAt = time.Unix(createdAt, 0)
		subs = append(subs, &sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}

	return subs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
