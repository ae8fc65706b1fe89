// Package events provides the progression event type and real-time delivery
// of events to connected browser sessions.
package events

import (
	"time"
)

// Type identifies a progression event.
type Type string

const (
	// TypeLessonCompleted fires when a lesson transitions to completed.
	TypeLessonCompleted Type = "lesson_completed"
	// TypeCourseCompleted fires exactly once per (user, course) on the
	// false-to-true course completion edge.
	TypeCourseCompleted Type = "course_completed"
	// TypeCertificateMinted fires after a successful on-chain mint.
	TypeCertificateMinted Type = "certificate_minted"
	// TypeAchievementEarned fires when a newly earned achievement is detected.
	TypeAchievementEarned Type = "achievement_earned"
)

// Event is a single progression event delivered to the user's sessions.
type Event struct {
	Type        Type      `json:"type"`
	UserID      string    `json:"-"`
	CourseID    string    `json:"course_id,omitempty"`
	LessonID    string    `json:"lesson_id,omitempty"`
	Achievement string    `json:"achievement,omitempty"`
	TxHash      string    `json:"tx_hash,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// LessonCompleted builds a lesson completion event.
func LessonCompleted(userID, courseID, lessonID string) Event {
	return Event{
		Type:       TypeLessonCompleted,
		UserID:     userID,
		CourseID:   courseID,
		LessonID:   lessonID,
		OccurredAt: time.Now(),
	}
}

// CourseCompleted builds a course completion event.
func CourseCompleted(userID, courseID string) Event {
	return Event{
		Type:       TypeCourseCompleted,
		UserID:     userID,
		CourseID:   courseID,
		OccurredAt: time.Now(),
	}
}

// CertificateMinted builds a certificate mint event.
func CertificateMinted(userID, courseID, txHash string) Event {
	return Event{
		Type:       TypeCertificateMinted,
		UserID:     userID,
		CourseID:   courseID,
		TxHash:     txHash,
		OccurredAt: time.Now(),
	}
}

// AchievementEarned builds an achievement event.
func AchievementEarned(userID, achievement string) Event {
	return Event{
		Type:        TypeAchievementEarned,
		UserID:      userID,
		Achievement: achievement,
		OccurredAt:  time.Now(),
	}
}
