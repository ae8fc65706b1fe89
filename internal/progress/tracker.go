package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aibekov/chaincademy/internal/domain"
	"github.com/aibekov/chaincademy/internal/events"
	"github.com/aibekov/chaincademy/internal/stats"
	"github.com/aibekov/chaincademy/internal/store"
	"github.com/aibekov/chaincademy/internal/validator"
)

var (
	// ErrLessonLocked means the target lesson's unlock conditions are not met.
	ErrLessonLocked = errors.New("lesson is locked")
	// ErrLessonNotFound means the lesson does not belong to the course.
	ErrLessonNotFound = errors.New("lesson not found in course")
	// ErrNoProblem means a submission was made against a lesson without a
	// practice problem.
	ErrNoProblem = errors.New("lesson has no practice problem")
	// ErrTransitionInFlight means another transition for the same
	// (user, course) pair is still being processed.
	ErrTransitionInFlight = errors.New("progress transition already in progress")
)

// transitionLocks serializes transitions per (user, course) pair so writes
// reach the store in transition order and a double-click cannot race.
var transitionLocks sync.Map

// Tracker drives lesson progression for learners.
type Tracker struct {
	repo      store.Repository
	validator validator.Client
	stats     *stats.Service
	hub       *events.Hub
	retry     store.RetryPolicy
}

// NewTracker creates a progress tracker. validator may be nil when the
// validation service is not configured; submissions are then rejected.
func NewTracker(repo store.Repository, vc validator.Client, st *stats.Service, hub *events.Hub, retry store.RetryPolicy) *Tracker {
	return &Tracker{
		repo:      repo,
		validator: vc,
		stats:     st,
		hub:       hub,
		retry:     retry,
	}
}

// Record returns the progress record for a (user, course) pair, creating
// an empty one on first visit. The empty record is not persisted until the
// first transition.
func (t *Tracker) Record(ctx context.Context, userID string, course *domain.Course) (*domain.ProgressRecord, error) {
	rec, err := t.repo.GetProgress(ctx, userID, course.ID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if rec == nil {
		rec = domain.NewProgressRecord(userID, course.ID)
	}
	return rec, nil
}

// Advance handles navigation from one lesson to the next. Leaving a lesson
// without a practice problem completes it; leaving a problem lesson
// requires a prior valid submission. The target must be unlocked after the
// departure completion is applied.
func (t *Tracker) Advance(ctx context.Context, userID string, course *domain.Course, fromLessonID, toLessonID string) (*domain.ProgressRecord, error) {
	unlock, err := t.lock(userID, course.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := t.Record(ctx, userID, course)
	if err != nil {
		return nil, err
	}

	var pending []events.Event
	changed := false

	if fromLessonID != "" {
		from := course.Lesson(fromLessonID)
		if from == nil {
			return nil, fmt.Errorf("%w: %s", ErrLessonNotFound, fromLessonID)
		}
		// The departure lesson must itself be reachable; otherwise a crafted
		// request could complete locked lessons by "leaving" them.
		if !IsUnlocked(course, rec, from.ID) {
			return nil, fmt.Errorf("%w: %s", ErrLessonLocked, from.ID)
		}
		if !CanAdvance(from, rec) {
			return nil, fmt.Errorf("%w: %s requires a valid submission", ErrLessonLocked, fromLessonID)
		}
		// Problem-free lessons complete on departure; completed lessons
		// never regress.
		if !from.HasProblem() && MarkLessonComplete(rec, from.ID) {
			changed = true
			pending = append(pending, events.LessonCompleted(userID, course.ID, from.ID))
		}
	}

	if toLessonID != "" {
		if course.LessonIndex(toLessonID) < 0 {
			return nil, fmt.Errorf("%w: %s", ErrLessonNotFound, toLessonID)
		}
		if !IsUnlocked(course, rec, toLessonID) {
			return nil, fmt.Errorf("%w: %s", ErrLessonLocked, toLessonID)
		}
	}

	completed := CompletionTransition(course, rec)
	if completed != nil {
		changed = true
		pending = append(pending, *completed)
	}

	if changed {
		if err := t.persist(ctx, rec); err != nil {
			// In-memory state stays authoritative for the session; the
			// caller surfaces the failure as a non-blocking notification.
			return rec, err
		}
	}

	t.finish(ctx, userID, pending, completed != nil)
	return rec, nil
}

// Submit validates code against a lesson's practice problem and completes
// the lesson on a valid verdict. A cancelled or failed validation never
// marks the lesson complete.
func (t *Tracker) Submit(ctx context.Context, userID string, course *domain.Course, lessonID, code string) (*domain.Verdict, *domain.ProgressRecord, error) {
	if t.validator == nil {
		return nil, nil, fmt.Errorf("submit: %w", validator.ErrUnavailable)
	}

	lesson := course.Lesson(lessonID)
	if lesson == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrLessonNotFound, lessonID)
	}
	if !lesson.HasProblem() {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoProblem, lessonID)
	}

	unlock, err := t.lock(userID, course.ID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	rec, err := t.Record(ctx, userID, course)
	if err != nil {
		return nil, nil, err
	}
	if !IsUnlocked(course, rec, lessonID) {
		return nil, nil, fmt.Errorf("%w: %s", ErrLessonLocked, lessonID)
	}

	verdict, err := t.validator.Validate(ctx, lesson.Problem.Text(), code)
	if err != nil {
		return nil, nil, fmt.Errorf("validate submission: %w", err)
	}
	if ctx.Err() != nil {
		// Abandoned validation must not produce a completion side effect.
		return nil, nil, ctx.Err()
	}

	if _, err := t.stats.RecordSubmission(ctx, userID, course.ID, lessonID, verdict.Valid, verdict.Score); err != nil {
		slog.Warn("Failed to record submission", "error", err, "user_id", userID, "lesson_id", lessonID)
	}

	if !verdict.Valid {
		return verdict, rec, nil
	}

	var pending []events.Event
	changed := MarkLessonComplete(rec, lessonID)
	if changed {
		pending = append(pending, events.LessonCompleted(userID, course.ID, lessonID))
	}

	completed := CompletionTransition(course, rec)
	if completed != nil {
		changed = true
		pending = append(pending, *completed)
	}

	if changed {
		if err := t.persist(ctx, rec); err != nil {
			return verdict, rec, err
		}
	}

	t.finish(ctx, userID, pending, completed != nil)
	return verdict, rec, nil
}

// lock acquires the per-(user, course) transition mutex without blocking.
func (t *Tracker) lock(userID, courseID string) (func(), error) {
	key := userID + ":" + courseID
	lock, _ := transitionLocks.LoadOrStore(key, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("Progress transition already in flight", "user_id", userID, "course_id", courseID)
		return nil, ErrTransitionInFlight
	}
	return func() {
		mutex.Unlock()
		transitionLocks.Delete(key)
	}, nil
}

func (t *Tracker) persist(ctx context.Context, rec *domain.ProgressRecord) error {
	err := t.retry.Run(ctx, func() error {
		return t.repo.UpsertProgress(ctx, rec)
	})
	if err != nil {
		slog.Error("Failed to persist progress", "error", err, "user_id", rec.UserID, "course_id", rec.CourseID)
		return fmt.Errorf("persist progress: %w", err)
	}
	return nil
}

// finish publishes pending events and applies completion side effects.
func (t *Tracker) finish(ctx context.Context, userID string, pending []events.Event, courseCompleted bool) {
	for _, ev := range pending {
		slog.Info("Progress event", "type", ev.Type, "user_id", ev.UserID, "course_id", ev.CourseID, "lesson_id", ev.LessonID)
		if t.hub != nil {
			t.hub.Publish(ev)
		}
	}

	if courseCompleted && t.stats != nil {
		if _, err := t.stats.IncrementCoursesCompleted(ctx, userID); err != nil {
			slog.Warn("Failed to update course completion stats", "error", err, "user_id", userID)
		}
	}
}
