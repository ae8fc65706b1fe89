package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aibekov/chaincademy/internal/domain"
	"github.com/aibekov/chaincademy/internal/events"
	"github.com/aibekov/chaincademy/internal/stats"
	"github.com/aibekov/chaincademy/internal/store"
	"github.com/aibekov/chaincademy/internal/validator"
)

// fakeRepo is an in-memory store.Repository for tracker tests.
type fakeRepo struct {
	progress    map[string]*domain.ProgressRecord
	stats       map[string]*domain.UserStats
	submissions []*domain.Submission
	upsertErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		progress: make(map[string]*domain.ProgressRecord),
		stats:    make(map[string]*domain.UserStats),
	}
}

func (f *fakeRepo) key(userID, courseID string) string { return userID + ":" + courseID }

func (f *fakeRepo) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return nil, nil
}

func (f *fakeRepo) UpsertUser(ctx context.Context, user *domain.User) error { return nil }

func (f *fakeRepo) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	return nil
}

func (f *fakeRepo) GetProgress(ctx context.Context, userID, courseID string) (*domain.ProgressRecord, error) {
	if rec, ok := f.progress[f.key(userID, courseID)]; ok {
		return rec.Clone(), nil
	}
	return nil, nil
}

func (f *fakeRepo) UpsertProgress(ctx context.Context, rec *domain.ProgressRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.progress[f.key(rec.UserID, rec.CourseID)] = rec.Clone()
	return nil
}

func (f *fakeRepo) ListProgress(ctx context.Context, userID string) ([]*domain.ProgressRecord, error) {
	return nil, nil
}

func (f *fakeRepo) SetCertificateMinted(ctx context.Context, userID, courseID string) error {
	return nil
}

func (f *fakeRepo) GetStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	if st, ok := f.stats[userID]; ok {
		return st, nil
	}
	return &domain.UserStats{UserID: userID, Level: 1}, nil
}

func (f *fakeRepo) UpsertStats(ctx context.Context, st *domain.UserStats) error {
	f.stats[st.UserID] = st
	return nil
}

func (f *fakeRepo) InsertSubmission(ctx context.Context, sub *domain.Submission) error {
	f.submissions = append(f.submissions, sub)
	return nil
}

func (f *fakeRepo) ListSubmissions(ctx context.Context, userID string, limit int) ([]*domain.Submission, error) {
	return f.submissions, nil
}

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

// fakeValidator returns a canned verdict or error.
type fakeValidator struct {
	verdict *domain.Verdict
	err     error
	cancel  context.CancelFunc
	calls   int
}

func (f *fakeValidator) Validate(ctx context.Context, problemStatement, code string) (*domain.Verdict, error) {
	f.calls++
	if f.cancel != nil {
		// Simulate the caller abandoning the request mid-validation.
		f.cancel()
	}
	return f.verdict, f.err
}

func newTracker(repo *fakeRepo, vc validator.Client) *Tracker {
	return NewTracker(repo, vc, stats.NewService(repo, events.NewHub()), events.NewHub(), store.RetryPolicy{})
}

func TestTracker_Record_FirstVisit(t *testing.T) {
	repo := newFakeRepo()
	tracker := newTracker(repo, nil)
	course := testCourse()

	rec, err := tracker.Record(context.Background(), "u1", course)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec == nil {
		t.Fatal("Expected an empty record on first visit")
	}
	if rec.CompletedCount() != 0 || rec.Completed {
		t.Error("Expected a fresh empty record")
	}
	if len(repo.progress) != 0 {
		t.Error("Expected first visit not to persist anything")
	}
}

func TestTracker_Advance_ProblemFreeLessonCompletes(t *testing.T) {
	repo := newFakeRepo()
	tracker := newTracker(repo, nil)
	course := testCourse()

	rec, err := tracker.Advance(context.Background(), "u1", course, "intro", "types")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !rec.LessonDone("intro") {
		t.Error("Expected departed problem-free lesson to be completed")
	}

	stored, _ := repo.GetProgress(context.Background(), "u1", course.ID)
	if stored == nil || !stored.LessonDone("intro") {
		t.Error("Expected completion to be persisted")
	}
}

func TestTracker_Advance_BlockedByLockedTarget(t *testing.T) {
	repo := newFakeRepo()
	tracker := newTracker(repo, nil)
	course := testCourse()

	// Jumping straight to the third lesson must fail and change nothing.
	_, err := tracker.Advance(context.Background(), "u1", course, "", "first-contract")
	if !errors.Is(err, ErrLessonLocked) {
		t.Fatalf("Expected ErrLessonLocked, got %v", err)
	}
	if len(repo.progress) != 0 {
		t.Error("Expected rejected advancement to leave no state change")
	}
}

func TestTracker_Advance_BlockedByLockedDeparture(t *testing.T) {
	repo := newFakeRepo()
	tracker := newTracker(repo, nil)
	course := testCourse()

	// "Leaving" a lesson the learner never reached must not complete it.
	rec, err := tracker.Advance(context.Background(), "u1", course, "types", "")
	if !errors.Is(err, ErrLessonLocked) {
		t.Fatalf("Expected ErrLessonLocked, got %v", err)
	}
	if rec != nil && rec.LessonDone("types") {
		t.Error("Expected locked departure lesson to stay incomplete")
	}
	if len(repo.progress) != 0 {
		t.Error("Expected rejected advancement to leave no state change")
	}
}

func TestTracker_Advance_ProblemLessonRequiresSubmission(t *testing.T) {
	repo := newFakeRepo()
	tracker := newTracker(repo, nil)
	course := testCourse()

	rec := domain.NewProgressRecord("u1", course.ID)
	rec.Lessons["intro"] = true
	rec.Lessons["types"] = true
	repo.progress[repo.key("u1", course.ID)] = rec

	_, err := tracker.Advance(context.Background(), "u1", course, "first-contract", "")
	if !errors.Is(err, ErrLessonLocked) {
		t.Errorf("Expected ErrLessonLocked for uncompleted problem lesson, got %v", err)
	}
}

func TestTracker_Advance_UnknownLesson(t *testing.T) {
	repo := newFakeRepo()
	tracker := newTracker(repo, nil)
	course := testCourse()

	_, err := tracker.Advance(context.Background(), "u1", course, "", "nope")
	if !errors.Is(err, ErrLessonNotFound) {
		t.Errorf("Expected ErrLessonNotFound, got %v", err)
	}
}

func TestTracker_Submit_ValidVerdictCompletesCourse(t *testing.T) {
	repo := newFakeRepo()
	score := 92.5
	vc := &fakeValidator{verdict: &domain.Verdict{Valid: true, SyntaxCorrect: true, Compilable: true, Score: &score}}
	tracker := newTracker(repo, vc)
	course := testCourse()

	rec := domain.NewProgressRecord("u1", course.ID)
	rec.Lessons["intro"] = true
	rec.Lessons["types"] = true
	repo.progress[repo.key("u1", course.ID)] = rec

	verdict, got, err := tracker.Submit(context.Background(), "u1", course, "first-contract", "contract Counter {}")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !verdict.Valid {
		t.Error("Expected valid verdict")
	}
	if !got.LessonDone("first-contract") {
		t.Error("Expected lesson to complete on valid verdict")
	}
	if !got.Completed {
		t.Error("Expected course completion on last lesson")
	}

	st, _ := repo.GetStats(context.Background(), "u1")
	if st.Submissions != 1 || st.AcceptedSubmissions != 1 {
		t.Errorf("Expected submission counters 1/1, got %d/%d", st.Submissions, st.AcceptedSubmissions)
	}
	if st.CoursesCompleted != 1 {
		t.Errorf("Expected 1 completed course, got %d", st.CoursesCompleted)
	}
	if len(repo.submissions) != 1 {
		t.Errorf("Expected 1 recorded submission, got %d", len(repo.submissions))
	}
}

func TestTracker_Submit_InvalidVerdictDoesNotComplete(t *testing.T) {
	repo := newFakeRepo()
	vc := &fakeValidator{verdict: &domain.Verdict{Valid: false, ErrorText: "missing increment function"}}
	tracker := newTracker(repo, vc)
	course := testCourse()

	rec := domain.NewProgressRecord("u1", course.ID)
	rec.Lessons["intro"] = true
	rec.Lessons["types"] = true
	repo.progress[repo.key("u1", course.ID)] = rec

	verdict, got, err := tracker.Submit(context.Background(), "u1", course, "first-contract", "contract Broken")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if verdict.Valid {
		t.Error("Expected invalid verdict")
	}
	if got.LessonDone("first-contract") {
		t.Error("Expected lesson to stay incomplete")
	}

	// The attempt still counts in statistics.
	st, _ := repo.GetStats(context.Background(), "u1")
	if st.Submissions != 1 || st.AcceptedSubmissions != 0 {
		t.Errorf("Expected submission counters 1/0, got %d/%d", st.Submissions, st.AcceptedSubmissions)
	}
}

func TestTracker_Submit_LockedLessonRejected(t *testing.T) {
	repo := newFakeRepo()
	vc := &fakeValidator{verdict: &domain.Verdict{Valid: true}}
	tracker := newTracker(repo, vc)
	course := testCourse()

	_, _, err := tracker.Submit(context.Background(), "u1", course, "first-contract", "code")
	if !errors.Is(err, ErrLessonLocked) {
		t.Fatalf("Expected ErrLessonLocked, got %v", err)
	}
	if vc.calls != 0 {
		t.Error("Expected no validation call for a locked lesson")
	}
}

func TestTracker_Submit_NoProblemRejected(t *testing.T) {
	repo := newFakeRepo()
	vc := &fakeValidator{verdict: &domain.Verdict{Valid: true}}
	tracker := newTracker(repo, vc)
	course := testCourse()

	_, _, err := tracker.Submit(context.Background(), "u1", course, "intro", "code")
	if !errors.Is(err, ErrNoProblem) {
		t.Errorf("Expected ErrNoProblem, got %v", err)
	}
}

func TestTracker_Submit_NoValidatorConfigured(t *testing.T) {
	repo := newFakeRepo()
	tracker := newTracker(repo, nil)
	course := testCourse()

	_, _, err := tracker.Submit(context.Background(), "u1", course, "first-contract", "code")
	if !errors.Is(err, validator.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestTracker_Submit_CancelledValidationNeverCompletes(t *testing.T) {
	repo := newFakeRepo()
	ctx, cancel := context.WithCancel(context.Background())
	vc := &fakeValidator{verdict: &domain.Verdict{Valid: true}, cancel: cancel}
	tracker := newTracker(repo, vc)
	course := testCourse()

	rec := domain.NewProgressRecord("u1", course.ID)
	rec.Lessons["intro"] = true
	rec.Lessons["types"] = true
	repo.progress[repo.key("u1", course.ID)] = rec

	_, _, err := tracker.Submit(ctx, "u1", course, "first-contract", "code")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	stored, _ := repo.GetProgress(context.Background(), "u1", course.ID)
	if stored.LessonDone("first-contract") || stored.Completed {
		t.Error("Expected cancelled validation to leave no completion")
	}
}

func TestTracker_Advance_PersistFailureKeepsRecord(t *testing.T) {
	repo := newFakeRepo()
	repo.upsertErr = errors.New("disk full")
	tracker := newTracker(repo, nil)
	course := testCourse()

	rec, err := tracker.Advance(context.Background(), "u1", course, "intro", "types")
	if err == nil {
		t.Fatal("Expected persist error to surface")
	}
	if rec == nil || !rec.LessonDone("intro") {
		t.Error("Expected in-memory record to carry the completion despite persist failure")
	}
}

// Full linear journey: two problem-free lessons auto-complete on departure,
// the final problem lesson completes on a valid submission, and the course
// completes exactly once.
func TestTracker_LinearCourseCompletion(t *testing.T) {
	repo := newFakeRepo()
	vc := &fakeValidator{verdict: &domain.Verdict{Valid: true}}
	tracker := newTracker(repo, vc)
	course := testCourse()
	ctx := context.Background()

	rec, err := tracker.Advance(ctx, "u1", course, "intro", "types")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !rec.LessonDone("intro") || rec.Completed {
		t.Fatal("Expected intro completed, course in progress")
	}

	rec, err = tracker.Advance(ctx, "u1", course, "types", "first-contract")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !rec.LessonDone("types") || rec.Completed {
		t.Fatal("Expected types completed, course in progress")
	}

	verdict, rec, err := tracker.Submit(ctx, "u1", course, "first-contract", "contract Counter {}")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !verdict.Valid || !rec.Completed {
		t.Fatal("Expected valid verdict and completed course")
	}

	// A later no-op transition does not re-complete anything.
	rec, err = tracker.Advance(ctx, "u1", course, "", "intro")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !rec.Completed {
		t.Error("Expected completion to persist")
	}

	st, _ := repo.GetStats(ctx, "u1")
	if st.CoursesCompleted != 1 {
		t.Errorf("Expected course completion counted once, got %d", st.CoursesCompleted)
	}
}

func TestTracker_TransitionLockSerializes(t *testing.T) {
	repo := newFakeRepo()
	tracker := newTracker(repo, nil)

	unlock, err := tracker.lock("u1", "solidity-101")
	if err != nil {
		t.Fatalf("Expected first lock to succeed, got %v", err)
	}

	if _, err := tracker.lock("u1", "solidity-101"); !errors.Is(err, ErrTransitionInFlight) {
		t.Errorf("Expected ErrTransitionInFlight, got %v", err)
	}

	// A different course is an independent lock.
	unlock2, err := tracker.lock("u1", "defi-201")
	if err != nil {
		t.Fatalf("Expected lock for a different course to succeed, got %v", err)
	}
	unlock2()
	unlock()

	if _, err := tracker.lock("u1", "solidity-101"); err != nil {
		t.Errorf("Expected relock after unlock to succeed, got %v", err)
	}
}
