package api

import (
	"net/http"
	"strconv"

	"github.com/aibekov/chaincademy/internal/achievement"
	"github.com/aibekov/chaincademy/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

// AchievementHandler handles statistics and achievement endpoints.
type AchievementHandler struct {
	*Handler
}

// NewAchievementHandler creates a new achievement handler.
func NewAchievementHandler(base *Handler) *AchievementHandler {
	return &AchievementHandler{Handler: base}
}

// RegisterRoutes registers achievement and stats routes.
func (h *AchievementHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/stats", h.Stats)
	r.Get("/api/achievements", h.Achievements)
	r.Get("/api/submissions", h.Submissions)
}

// Stats returns the learner's cumulative statistics.
func (h *AchievementHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	st, err := h.stats.Get(r.Context(), userID)
	if err != nil {
		domainError(w, err)
		return
	}

	JSON(w, http.StatusOK, st)
}

// achievementView pairs a definition with the learner's progress toward it.
type achievementView struct {
	ID          achievement.ID `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Earned      bool           `json:"earned"`
	Progress    float64        `json:"progress"`
}

// Achievements returns every achievement with earned state and the
// progress fraction used for progress bars.
func (h *AchievementHandler) Achievements(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	st, err := h.stats.Get(r.Context(), userID)
	if err != nil {
		domainError(w, err)
		return
	}

	earned := achievement.Evaluate(st)
	out := lo.Map(achievement.All, func(d achievement.Def, _ int) achievementView {
		return achievementView{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Earned:      lo.Contains(earned, d.ID),
			Progress:    achievement.Progress(d.ID, st),
		}
	})

	JSON(w, http.StatusOK, map[string]interface{}{"achievements": out})
}

// Submissions returns the learner's recent submissions, newest first.
func (h *AchievementHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}

	subs, err := h.stats.Submissions(r.Context(), userID, limit)
	if err != nil {
		domainError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"submissions": subs})
}
