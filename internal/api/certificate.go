package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aibekov/chaincademy/internal/certificate"
	"github.com/aibekov/chaincademy/internal/identity"
	"github.com/go-chi/chi/v5"
)

// CertificateHandler handles certificate minting endpoints.
type CertificateHandler struct {
	*Handler
	mintTimeout time.Duration
}

// NewCertificateHandler creates a new certificate handler.
func NewCertificateHandler(base *Handler, mintTimeout time.Duration) *CertificateHandler {
	if mintTimeout <= 0 {
		mintTimeout = 3 * time.Minute
	}
	return &CertificateHandler{Handler: base, mintTimeout: mintTimeout}
}

// RegisterRoutes registers certificate routes.
func (h *CertificateHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/courses/{courseID}/certificate", h.Status)
	r.Post("/api/courses/{courseID}/certificate/mint", h.Mint)
}

// Status reports mint eligibility for the learner and course.
func (h *CertificateHandler) Status(w http.ResponseWriter, r *http.Request) {
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

	JSON(w, http.StatusOK, map[string]interface{}{
		"can_mint":     h.certs.Enabled() && certificate.CanMint(rec),
		"minted":       rec.CertificateMinted,
		"completed":    rec.Completed,
		"mint_enabled": h.certs.Enabled(),
	})
}

// Mint mints the completion certificate to the learner's wallet. The mint
// waits for chain finalization, so the handler runs under its own timeout
// rather than the default request deadline.
func (h *CertificateHandler) Mint(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	courseID := chi.URLParam(r, "courseID")

	course, ok := h.catalog.Course(courseID)
	if !ok {
		Error(w, http.StatusNotFound, "course not found")
		return
	}

	wallet := identity.WalletFromContext(r.Context())
	if wallet == "" {
		// Fall back to the wallet bound on a previous connect.
		user, err := h.repo.GetUser(r.Context(), userID)
		if err == nil && user != nil {
			wallet = user.WalletAddress
		}
	}
	if wallet == "" {
		Error(w, http.StatusPreconditionFailed, "connect a wallet before minting")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.mintTimeout)
	defer cancel()

	result, err := h.certs.Mint(ctx, userID, course, wallet)
	if err != nil {
		slog.Error("Mint failed", "error", err, "user_id", userID, "course_id", courseID)
		domainError(w, err)
		return
	}

	JSON(w, http.StatusOK, result)
}
