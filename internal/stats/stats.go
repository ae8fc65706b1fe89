// Package stats maintains cumulative learner statistics and detects newly
// earned achievements after every mutation.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aibekov/chaincademy/internal/achievement"
	"github.com/aibekov/chaincademy/internal/domain"
	"github.com/aibekov/chaincademy/internal/events"
	"github.com/aibekov/chaincademy/internal/store"
	"github.com/segmentio/ksuid"
)

// Service owns mutation of user statistics. The achievement evaluator
// itself stays pure; this service feeds it snapshots and persists the diff.
type Service struct {
	repo store.Repository
	hub  *events.Hub
}

// NewService creates a statistics service.
func NewService(repo store.Repository, hub *events.Hub) *Service {
	return &Service{repo: repo, hub: hub}
}

// Get returns the statistics snapshot for a user.
func (s *Service) Get(ctx context.Context, userID string) (*domain.UserStats, error) {
	return s.repo.GetStats(ctx, userID)
}

// RecordSubmission appends a submission event and updates aggregates.
// Returns the updated snapshot.
func (s *Service) RecordSubmission(ctx context.Context, userID, courseID, lessonID string, accepted bool, score *float64) (*domain.UserStats, error) {
	sub := &domain.Submission{
		ID:        ksuid.New().String(),
		UserID:    userID,
		CourseID:  courseID,
		LessonID:  lessonID,
		Accepted:  accepted,
		Score:     score,
		CreatedAt: time.Now(),
	}
	if err := s.repo.InsertSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("record submission: %w", err)
	}

	return s.mutate(ctx, userID, func(st *domain.UserStats) {
		st.Submissions++
		if accepted {
			st.AcceptedSubmissions++
		}
		if score != nil {
			st.AIScores = append(st.AIScores, *score)
		}
	})
}

// IncrementCoursesCompleted bumps the completed-course counter.
// Returns the updated snapshot.
func (s *Service) IncrementCoursesCompleted(ctx context.Context, userID string) (*domain.UserStats, error) {
	return s.mutate(ctx, userID, func(st *domain.UserStats) {
		st.CoursesCompleted++
	})
}

// Submissions returns the most recent submissions for a user.
func (s *Service) Submissions(ctx context.Context, userID string, limit int) ([]*domain.Submission, error) {
	return s.repo.ListSubmissions(ctx, userID, limit)
}

// mutate loads the snapshot, applies fn, recomputes level and achievements,
// persists, and announces anything newly earned.
func (s *Service) mutate(ctx context.Context, userID string, fn func(*domain.UserStats)) (*domain.UserStats, error) {
	st, err := s.repo.GetStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	fn(st)
	st.Level = levelFor(st)

	earned := achievement.Evaluate(st)
	newly := achievement.Diff(st.Achievements, earned)
	for _, id := range newly {
		st.Achievements = append(st.Achievements, string(id))
	}

	if err := s.repo.UpsertStats(ctx, st); err != nil {
		return nil, fmt.Errorf("persist stats: %w", err)
	}

	for _, id := range newly {
		slog.Info("Achievement earned", "user_id", userID, "achievement", id)
		if s.hub != nil {
			s.hub.Publish(events.AchievementEarned(userID, string(id)))
		}
	}

	return st, nil
}

// levelFor derives the learner level from accepted work: every five
// accepted submissions or completed courses advance one level, starting
// at level 1.
func levelFor(st *domain.UserStats) int {
	return 1 + (st.AcceptedSubmissions+st.CoursesCompleted*2)/5
}
