package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aibekov/chaincademy/internal/config"
	"github.com/aibekov/chaincademy/internal/identity"
	"github.com/aibekov/chaincademy/internal/store"
	"github.com/go-chi/chi/v5"
)

// BoundaryChecker reports reachability of an external boundary service.
type BoundaryChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check and frontend config endpoints.
type HealthHandler struct {
	repo      store.Repository
	cfg       *config.Config
	validator BoundaryChecker
	relayer   BoundaryChecker
}

// NewHealthHandler creates a new health handler. validator and relayer may
// be nil when those boundaries are not configured.
func NewHealthHandler(repo store.Repository, cfg *config.Config, validator, relayer BoundaryChecker) *HealthHandler {
	return &HealthHandler{repo: repo, cfg: cfg, validator: validator, relayer: relayer}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	healthCheckTimeout := 5 * time.Second
	if h.cfg != nil {
		healthCheckTimeout = h.cfg.Timeout.HealthCheck
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		checks["database"] = "unreachable"
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.validator != nil {
		if err := h.validator.Health(ctx); err != nil {
			checks["validator"] = "unreachable"
			status = "degraded"
		} else {
			checks["validator"] = "ok"
		}
	}

	if h.relayer != nil {
		if err := h.relayer.Health(ctx); err != nil {
			checks["relayer"] = "unreachable"
			status = "degraded"
		} else {
			checks["relayer"] = "ok"
		}
	}

	JSON(w, statusCode, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// GetConfig returns the server configuration flags for the frontend.
func (h *HealthHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"validation_enabled": h.validator != nil,
		"mint_enabled":       h.relayer != nil,
	})
}

// GetMe returns the current learner's identity.
func (h *HealthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":        user.UserID,
		"username":       user.Username,
		"wallet_address": user.WalletAddress,
		"has_wallet":     user.HasWallet(),
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// RegisterRoutes registers config and identity routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.GetConfig)
	r.Get("/api/me", h.GetMe)
}
