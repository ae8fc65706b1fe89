package domain

import (
	"time"
)

// UserStats holds cumulative learner statistics. The achievement evaluator
// reads these; mutation happens only through the stats service.
type UserStats struct {
	UserID              string    `json:"user_id"`
	CoursesCompleted    int       `json:"courses_completed"`
	Submissions         int       `json:"submissions"`
	AcceptedSubmissions int       `json:"accepted_submissions"`
	Level               int       `json:"level"`
	AIScores            []float64 `json:"ai_scores"`
	Achievements        []string  `json:"achievements"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// MeanAIScore returns the mean of recorded AI scores, 0 for an empty list.
func (s *UserStats) MeanAIScore() float64 {
	if len(s.AIScores) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s.AIScores {
		sum += v
	}
	return sum / float64(len(s.AIScores))
}

// Submission is a single recorded code submission event.
type Submission struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	LessonID  string    `json:"lesson_id"`
	Accepted  bool      `json:"accepted"`
	Score     *float64  `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
