// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aibekov/chaincademy/internal/domain"
)

// ErrAlreadyMinted is returned when the certificate flag for a progress
// record has already been set.
var ErrAlreadyMinted = errors.New("certificate already minted")

// Repository defines the interface for persisting user, progress and
// statistics data.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil if not found.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetProgress retrieves the progress record for a (user, course) pair.
	// Returns nil if the user has not visited the course yet.
	GetProgress(ctx context.Context, userID, courseID string) (*domain.ProgressRecord, error)

	// UpsertProgress creates or updates a progress record.
	UpsertProgress(ctx context.Context, rec *domain.ProgressRecord) error

	// ListProgress retrieves all progress records for a user.
	ListProgress(ctx context.Context, userID string) ([]*domain.ProgressRecord, error)

	// SetCertificateMinted permanently sets the certificate_minted flag.
	// The update is guarded so the flag can only transition once; a second
	// call returns ErrAlreadyMinted.
	SetCertificateMinted(ctx context.Context, userID, courseID string) error

	// GetStats retrieves cumulative statistics for a user. Returns an empty
	// record (never nil) when the user has no statistics yet.
	GetStats(ctx context.Context, userID string) (*domain.UserStats, error)

	// UpsertStats creates or updates a user statistics record.
	UpsertStats(ctx context.Context, stats *domain.UserStats) error

	// InsertSubmission appends a submission event.
	InsertSubmission(ctx context.Context, sub *domain.Submission) error

	// ListSubmissions retrieves the most recent submissions for a user,
	// newest first.
	ListSubmissions(ctx context.Context, userID string, limit int) ([]*domain.Submission, error)

	// Ping verifies database connectivity and returns an error if the
	// database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
