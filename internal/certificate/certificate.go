// Package certificate implements the course-completion certificate minting
// flow over the ledger write boundary.
package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aibekov/chaincademy/internal/domain"
	"github.com/aibekov/chaincademy/internal/events"
	"github.com/aibekov/chaincademy/internal/ledger"
	"github.com/aibekov/chaincademy/internal/store"
)

var (
	// ErrCourseNotComplete means the course completion gate has not passed.
	ErrCourseNotComplete = errors.New("course is not completed")
	// ErrAlreadyMinted means the certificate for this (user, course) pair
	// was already minted.
	ErrAlreadyMinted = errors.New("certificate already minted")
	// ErrNoWallet means the user has not connected a wallet address.
	ErrNoWallet = errors.New("no wallet address connected")
	// ErrMintInFlight means a mint for the same pair is still pending.
	ErrMintInFlight = errors.New("mint already in progress")
	// ErrMintingDisabled means no ledger writer is configured.
	ErrMintingDisabled = errors.New("certificate minting is not configured")
)

// mintLocks prevents concurrent mint attempts for the same (user, course)
// pair from one server instance. This is the best-effort client-side guard;
// the store's guarded update is the durable latch.
var mintLocks sync.Map

// MintResult reports a successful mint.
type MintResult struct {
	TxHash   string `json:"tx_hash"`
	CourseID string `json:"course_id"`
}

// Service drives certificate minting.
type Service struct {
	repo   store.Repository
	writer ledger.Writer
	hub    *events.Hub
	retry  store.RetryPolicy
}

// NewService creates a certificate service. writer may be nil when no
// relayer is configured; minting is then rejected.
func NewService(repo store.Repository, writer ledger.Writer, hub *events.Hub, retry store.RetryPolicy) *Service {
	return &Service{repo: repo, writer: writer, hub: hub, retry: retry}
}

// Enabled reports whether a ledger writer is configured.
func (s *Service) Enabled() bool {
	return s.writer != nil
}

// CanMint reports whether the mint action should be offered: the course is
// completed and no certificate has been minted yet.
func CanMint(rec *domain.ProgressRecord) bool {
	return rec != nil && rec.Completed && !rec.CertificateMinted
}

// Mint submits the certificate mint for a completed course. On success the
// certificate_minted flag is set permanently; on any ledger failure the
// flag stays false so the learner may retry.
func (s *Service) Mint(ctx context.Context, userID string, course *domain.Course, walletAddress string) (*MintResult, error) {
	if s.writer == nil {
		return nil, ErrMintingDisabled
	}
	if walletAddress == "" {
		return nil, ErrNoWallet
	}

	key := userID + ":" + course.ID
	lock, _ := mintLocks.LoadOrStore(key, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("Mint already in progress", "user_id", userID, "course_id", course.ID)
		return nil, ErrMintInFlight
	}
	defer func() {
		mutex.Unlock()
		mintLocks.Delete(key)
	}()

	rec, err := s.repo.GetProgress(ctx, userID, course.ID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if rec == nil || !rec.Completed {
		return nil, ErrCourseNotComplete
	}
	if rec.CertificateMinted {
		return nil, ErrAlreadyMinted
	}

	slog.Info("Minting certificate", "user_id", userID, "course_id", course.ID, "wallet", walletAddress)

	handle, err := s.writer.Mint(ctx, walletAddress, course.MetadataURI)
	if err != nil {
		slog.Error("Mint submission failed", "error", err, "user_id", userID, "course_id", course.ID)
		return nil, fmt.Errorf("mint certificate: %w", err)
	}

	if err := s.writer.WaitFinalized(ctx, handle); err != nil {
		slog.Error("Mint finalization failed", "error", err, "user_id", userID, "tx_hash", handle.Hash)
		return nil, fmt.Errorf("finalize mint: %w", err)
	}

	// The flag flips only after the chain write is finalized.
	err = s.retry.Run(ctx, func() error {
		return s.repo.SetCertificateMinted(ctx, userID, course.ID)
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyMinted) {
			return nil, ErrAlreadyMinted
		}
		// The chain write succeeded but the flag did not persist; surface
		// the error, the learner's retry will hit ErrAlreadyMinted only
		// after the flag eventually lands.
		return nil, fmt.Errorf("persist minted flag: %w", err)
	}

	slog.Info("Certificate minted", "user_id", userID, "course_id", course.ID, "tx_hash", handle.Hash)
	if s.hub != nil {
		s.hub.Publish(events.CertificateMinted(userID, course.ID, handle.Hash))
	}

	return &MintResult{TxHash: handle.Hash, CourseID: course.ID}, nil
}
