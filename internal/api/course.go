package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aibekov/chaincademy/internal/domain"
	"github.com/aibekov/chaincademy/internal/identity"
	"github.com/aibekov/chaincademy/internal/progress"
	"github.com/go-chi/chi/v5"
)

// CourseHandler handles catalog and lesson endpoints.
type CourseHandler struct {
	*Handler
}

// NewCourseHandler creates a new course handler.
func NewCourseHandler(base *Handler) *CourseHandler {
	return &CourseHandler{Handler: base}
}

// RegisterRoutes registers course routes.
func (h *CourseHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/courses", h.List)
	r.Get("/api/courses/{courseID}", h.Get)
	r.Get("/api/courses/{courseID}/lessons/{lessonID}/hint", h.Hint)
}

// courseSummary is the list-view shape of a course.
type courseSummary struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Level        domain.Level `json:"level"`
	Tags         []string     `json:"tags,omitempty"`
	TotalLessons int          `json:"total_lessons"`
}

// List returns all courses in the catalog.
func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	courses := h.catalog.List()

	out := make([]courseSummary, 0, len(courses))
	for _, c := range courses {
		out = append(out, courseSummary{
			ID:           c.ID,
			Title:        c.Title,
			Description:  c.Description,
			Level:        c.Level,
			Tags:         c.Tags,
			TotalLessons: c.TotalLessons(),
		})
	}

	JSON(w, http.StatusOK, map[string]interface{}{"courses": out})
}

// problemView is the problem statement without its hints. Hints are only
// disclosed one at a time through the hint endpoint.
type problemView struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`
	HintCount    int      `json:"hint_count"`
}

// lessonView is a lesson enriched with the caller's progression state.
type lessonView struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Content   string       `json:"content,omitempty"`
	Problem   *problemView `json:"problem,omitempty"`
	Unlocked  bool         `json:"unlocked"`
	Completed bool         `json:"completed"`
}

// Get returns one course with per-lesson unlock and completion state for
// the requesting learner.
func (h *CourseHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	courseID := chi.URLParam(r, "courseID")

	course, ok := h.catalog.Course(courseID)
	if !ok {
		Error(w, http.StatusNotFound, "course not found")
		return
	}

	rec, err := h.tracker.Record(r.Context(), userID, course)
	if err != nil {
		slog.Error("Failed to load progress", "error", err, "user_id", userID, "course_id", courseID)
		domainError(w, err)
		return
	}

	lessons := make([]lessonView, 0, len(course.Lessons))
	for i := range course.Lessons {
		l := course.Lessons[i]
		view := lessonView{
			ID:        l.ID,
			Title:     l.Title,
			Content:   l.Content,
			Unlocked:  progress.IsUnlocked(course, rec, l.ID),
			Completed: rec.LessonDone(l.ID),
		}
		if l.HasProblem() {
			view.Problem = &problemView{
				Title:        l.Problem.Title,
				Description:  l.Problem.Description,
				Requirements: l.Problem.Requirements,
				HintCount:    len(l.Problem.Hints),
			}
		}
		lessons = append(lessons, view)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"id":           course.ID,
		"title":        course.Title,
		"description":  course.Description,
		"level":        course.Level,
		"metadata_uri": course.MetadataURI,
		"lessons":      lessons,
		"completed":    rec.Completed,
		"minted":       rec.CertificateMinted,
	})
}

// Hint returns one hint of a lesson's practice problem. Hints are
// disclosed sequentially: ?index=N returns the N-th hint (0-based).
func (h *CourseHandler) Hint(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	lessonID := chi.URLParam(r, "lessonID")

	course, ok := h.catalog.Course(courseID)
	if !ok {
		Error(w, http.StatusNotFound, "course not found")
		return
	}
	lesson := course.Lesson(lessonID)
	if lesson == nil || !lesson.HasProblem() {
		Error(w, http.StatusNotFound, "no practice problem for this lesson")
		return
	}

	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil || index < 0 {
		index = 0
	}

	// Work on a copy so the shared catalog entry keeps no hint cursor.
	problem := *lesson.Problem
	problem.HintIndex = index

	hint := problem.NextHint()
	if hint == "" {
		Error(w, http.StatusNotFound, "no more hints")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"hint":      hint,
		"index":     index,
		"remaining": problem.HasHints(),
	})
}
