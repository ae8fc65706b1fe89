// Package progress implements lesson progression: unlock gating, lesson
// completion, and the course completion gate.
//
// The transition logic is a set of pure functions over (course, record)
// so it can be tested without storage; Tracker layers persistence, the
// validator boundary, and event dispatch on top.
package progress

import (
	"time"

	"github.com/aibekov/chaincademy/internal/domain"
	"github.com/aibekov/chaincademy/internal/events"
)

// IsUnlocked reports whether a lesson may be visited. A lesson is unlocked
// iff it is the first lesson in its course, it is already completed, the
// course as a whole is completed, or the immediately preceding lesson is
// completed. Lessons not in the course are never unlocked.
func IsUnlocked(course *domain.Course, rec *domain.ProgressRecord, lessonID string) bool {
	idx := course.LessonIndex(lessonID)
	if idx < 0 {
		return false
	}
	if idx == 0 {
		return true
	}
	if rec == nil {
		return false
	}
	if rec.LessonDone(lessonID) || rec.Completed || IsCourseComplete(course, rec) {
		return true
	}
	return rec.LessonDone(course.Lessons[idx-1].ID)
}

// CanAdvance reports whether the learner may move past a lesson: either the
// lesson has no practice problem, or it has already been completed through
// a valid submission.
func CanAdvance(lesson *domain.Lesson, rec *domain.ProgressRecord) bool {
	if !lesson.HasProblem() {
		return true
	}
	return rec != nil && rec.LessonDone(lesson.ID)
}

// IsCourseComplete reports whether every lesson in the course sequence is
// completed. Pure and total, O(lesson count).
func IsCourseComplete(course *domain.Course, rec *domain.ProgressRecord) bool {
	if rec == nil || len(course.Lessons) == 0 {
		return false
	}
	for i := range course.Lessons {
		if !rec.LessonDone(course.Lessons[i].ID) {
			return false
		}
	}
	return true
}

// MarkLessonComplete sets the lesson's completed flag and reports whether
// the record changed. Idempotent: marking an already-completed lesson is a
// no-op and returns false.
func MarkLessonComplete(rec *domain.ProgressRecord, lessonID string) bool {
	if rec.Lessons == nil {
		rec.Lessons = make(map[string]bool)
	}
	if rec.Lessons[lessonID] {
		return false
	}
	rec.Lessons[lessonID] = true
	rec.UpdatedAt = time.Now()
	return true
}

// CompletionTransition detects the false-to-true course completion edge.
// On the edge it latches rec.Completed, stamps CompletedAt, and returns a
// CourseCompleted event; once latched it never fires again. Completed is
// terminal for this subsystem: there is no uncomplete path.
func CompletionTransition(course *domain.Course, rec *domain.ProgressRecord) *events.Event {
	if rec.Completed || !IsCourseComplete(course, rec) {
		return nil
	}
	now := time.Now()
	rec.Completed = true
	rec.CompletedAt = &now
	rec.UpdatedAt = now
	ev := events.CourseCompleted(rec.UserID, rec.CourseID)
	return &ev
}
