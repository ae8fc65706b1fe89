package domain

import (
	"time"
)

// ProgressRecord is the per-user, per-course completion state.
// Lessons maps lesson ID to completed. Completed and CertificateMinted
// are monotonic within this subsystem: once true, no transition resets them.
type ProgressRecord struct {
	UserID            string          `json:"user_id"`
	CourseID          string          `json:"course_id"`
	Lessons           map[string]bool `json:"lessons"`
	Completed         bool            `json:"completed"`
	CertificateMinted bool            `json:"certificate_minted"`
	StartedAt         time.Time       `json:"started_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewProgressRecord creates an empty record for a first course visit.
func NewProgressRecord(userID, courseID string) *ProgressRecord {
	now := time.Now()
	return &ProgressRecord{
		UserID:    userID,
		CourseID:  courseID,
		Lessons:   make(map[string]bool),
		StartedAt: now,
		UpdatedAt: now,
	}
}

// LessonDone reports whether the given lesson has been completed.
func (r *ProgressRecord) LessonDone(lessonID string) bool {
	return r.Lessons[lessonID]
}

// CompletedCount returns the number of completed lessons.
func (r *ProgressRecord) CompletedCount() int {
	n := 0
	for _, done := range r.Lessons {
		if done {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the record.
func (r *ProgressRecord) Clone() *ProgressRecord {
	cp := *r
	cp.Lessons = make(map[string]bool, len(r.Lessons))
	for k, v := range r.Lessons {
		cp.Lessons[k] = v
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
