// Package achievement derives named achievements from cumulative user
// statistics. Evaluation is a pure function of the statistics snapshot:
// no state is kept here, and the caller diffs the result against the
// previously stored set to detect newly earned achievements.
package achievement

import (
	"math"

	"github.com/aibekov/chaincademy/internal/domain"
	"github.com/samber/lo"
)

// ID names an achievement.
type ID string

const (
	CourseMaster      ID = "CourseMaster"
	SubmissionWarrior ID = "SubmissionWarrior"
	QualityCoder      ID = "QualityCoder"
	RisingStar        ID = "RisingStar"
	AIProdigy         ID = "AIProdigy"
)

// Def describes a single achievement: its display metadata, the threshold,
// and how to read the relevant value out of a statistics snapshot.
type Def struct {
	ID          ID
	Name        string
	Description string
	Threshold   float64
	Value       func(stats *domain.UserStats) float64
}

// Earned reports whether the statistics satisfy this achievement.
func (d Def) Earned(stats *domain.UserStats) bool {
	return d.Value(stats) >= d.Threshold
}

// All lists every achievement definition in a fixed order.
var All = []Def{
	{
		ID:          CourseMaster,
		Name:        "Course Master",
		Description: "Complete 5 courses",
		Threshold:   5,
		Value:       func(s *domain.UserStats) float64 { return float64(s.CoursesCompleted) },
	},
	{
		ID:          SubmissionWarrior,
		Name:        "Submission Warrior",
		Description: "Submit 50 solutions",
		Threshold:   50,
		Value:       func(s *domain.UserStats) float64 { return float64(s.Submissions) },
	},
	{
		ID:          QualityCoder,
		Name:        "Quality Coder",
		Description: "Get 25 submissions accepted",
		Threshold:   25,
		Value:       func(s *domain.UserStats) float64 { return float64(s.AcceptedSubmissions) },
	},
	{
		ID:          RisingStar,
		Name:        "Rising Star",
		Description: "Reach level 5",
		Threshold:   5,
		Value:       func(s *domain.UserStats) float64 { return float64(s.Level) },
	},
	{
		ID:          AIProdigy,
		Name:        "AI Prodigy",
		Description: "Hold a mean AI score of 90 or above",
		Threshold:   90,
		Value:       func(s *domain.UserStats) float64 { return s.MeanAIScore() },
	},
}

// Lookup returns the definition for an achievement ID.
func Lookup(id ID) (Def, bool) {
	for _, d := range All {
		if d.ID == id {
			return d, true
		}
	}
	return Def{}, false
}

// Evaluate returns the set of achievements the statistics currently earn,
// in the fixed definition order. Deterministic: identical stats always
// produce identical results.
func Evaluate(stats *domain.UserStats) []ID {
	return lo.FilterMap(All, func(d Def, _ int) (ID, bool) {
		return d.ID, d.Earned(stats)
	})
}

// Progress returns the fraction of the threshold reached for one
// achievement, clamped to [0, 1]. Unknown IDs report 0.
func Progress(id ID, stats *domain.UserStats) float64 {
	d, ok := Lookup(id)
	if !ok || d.Threshold <= 0 {
		return 0
	}
	return math.Min(d.Value(stats)/d.Threshold, 1)
}

// Diff returns the achievements in current that are absent from previous.
// The caller persists and announces these as newly earned.
func Diff(previous []string, current []ID) []ID {
	return lo.Filter(current, func(id ID, _ int) bool {
		return !lo.Contains(previous, string(id))
	})
}
