// Package domain contains core domain types for the Chaincademy platform.
package domain

// Level describes course difficulty.
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

// Course is an ordered sequence of lessons. Immutable after catalog load.
type Course struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Level       Level    `json:"level" yaml:"level"`
	MetadataURI string   `json:"metadata_uri" yaml:"metadataUri"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Lessons     []Lesson `json:"lessons" yaml:"lessons"`
}

// TotalLessons returns the number of lessons in the course.
func (c *Course) TotalLessons() int {
	return len(c.Lessons)
}

// LessonIndex returns the position of a lesson in the course sequence,
// or -1 if the lesson does not belong to this course.
func (c *Course) LessonIndex(lessonID string) int {
	for i := range c.Lessons {
		if c.Lessons[i].ID == lessonID {
			return i
		}
	}
	return -1
}

// Lesson returns the lesson with the given ID, or nil.
func (c *Course) Lesson(lessonID string) *Lesson {
	if i := c.LessonIndex(lessonID); i >= 0 {
		return &c.Lessons[i]
	}
	return nil
}

// Lesson is a single unit of course content. Order within the course's
// lesson sequence determines unlock order.
type Lesson struct {
	ID      string            `json:"id" yaml:"id"`
	Title   string            `json:"title" yaml:"title"`
	Content string            `json:"content,omitempty" yaml:"-"`
	File    string            `json:"-" yaml:"file"`
	Problem *ProblemStatement `json:"problem,omitempty" yaml:"problem,omitempty"`
}

// HasProblem returns true if the lesson carries a practice problem that
// must be validated before the lesson can be completed.
func (l *Lesson) HasProblem() bool {
	return l.Problem != nil
}
