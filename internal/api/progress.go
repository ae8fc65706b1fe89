package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aibekov/chaincademy/internal/domain"
	"github.com/aibekov/chaincademy/internal/identity"
	"github.com/go-chi/chi/v5"
)

// ProgressHandler handles progression endpoints.
type ProgressHandler struct {
	*Handler
	validationEnabled bool
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(base *Handler, validationEnabled bool) *ProgressHandler {
	return &ProgressHandler{Handler: base, validationEnabled: validationEnabled}
}

// RegisterRoutes registers progression routes.
func (h *ProgressHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/progress", h.ListProgress)
	r.Get("/api/courses/{courseID}/progress", h.GetProgress)
	r.Post("/api/courses/{courseID}/advance", h.Advance)
	r.Post("/api/courses/{courseID}/lessons/{lessonID}/submit", h.Submit)
}

// ListProgress returns the learner's progress across all visited courses.
func (h *ProgressHandler) ListProgress(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	records, err := h.repo.ListProgress(r.Context(), userID)
	if err != nil {
		domainError(w, err)
		return
	}
	if records == nil {
		records = []*domain.ProgressRecord{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{"progress": records})
}

// GetProgress returns the learner's progress record for a course.
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	courseID := chi.URLParam(r, "courseID")

	course, ok := h.catalog.Course(courseID)
	if !ok {
		Error(w, http.StatusNotFound, "course not found")
		return
	}

	rec, err := h.tracker.Record(r.Context(), userID, course)
	if err != nil {
		domainError(w, err)
		return
	}

	JSON(w, http.StatusOK, rec)
}

type advanceRequest struct {
	FromLessonID string `json:"from_lesson_id"`
	ToLessonID   string `json:"to_lesson_id"`
}

// Advance applies a lesson navigation transition. Leaving a problem-free
// lesson completes it; the target lesson must be unlocked.
func (h *ProgressHandler) Advance(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	courseID := chi.URLParam(r, "courseID")

	course, ok := h.catalog.Course(courseID)
	if !ok {
		Error(w, http.StatusNotFound, "course not found")
		return
	}

	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.tracker.Advance(r.Context(), userID, course, req.FromLessonID, req.ToLessonID)
	if err != nil {
		// A persistence failure still returns the in-memory record so the
		// client can keep the session state; the error rides alongside.
		if rec != nil {
			slog.Warn("Progress persisted with errors", "error", err, "user_id", userID, "course_id", courseID)
			JSON(w, http.StatusOK, map[string]interface{}{
				"progress": rec,
				"warning":  "progress could not be saved, retry later",
			})
			return
		}
		domainError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"progress": rec})
}

type submitRequest struct {
	Code string `json:"code"`
}

// Submit validates submitted code against the lesson's practice problem.
func (h *ProgressHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	courseID := chi.URLParam(r, "courseID")
	lessonID := chi.URLParam(r, "lessonID")

	if !h.validationEnabled {
		Error(w, http.StatusServiceUnavailable, "code validation is not configured")
		return
	}

	course, ok := h.catalog.Course(courseID)
	if !ok {
		Error(w, http.StatusNotFound, "course not found")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		Error(w, http.StatusBadRequest, "code cannot be empty")
		return
	}

	verdict, rec, err := h.tracker.Submit(r.Context(), userID, course, lessonID, req.Code)
	if err != nil {
		if verdict != nil && rec != nil {
			// Verdict arrived but persistence failed; the verdict is still
			// the learner's to see.
			JSON(w, http.StatusOK, map[string]interface{}{
				"verdict":  verdict,
				"progress": rec,
				"warning":  "progress could not be saved, retry later",
			})
			return
		}
		domainError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"verdict":  verdict,
		"progress": rec,
	})
}
