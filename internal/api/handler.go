// Package api provides HTTP handlers for the Chaincademy API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aibekov/chaincademy/internal/catalog"
	"github.com/aibekov/chaincademy/internal/certificate"
	"github.com/aibekov/chaincademy/internal/ledger"
	"github.com/aibekov/chaincademy/internal/progress"
	"github.com/aibekov/chaincademy/internal/stats"
	"github.com/aibekov/chaincademy/internal/store"
	"github.com/aibekov/chaincademy/internal/validator"
)

// Handler provides common handler dependencies.
type Handler struct {
	repo    store.Repository
	catalog *catalog.Service
	tracker *progress.Tracker
	certs   *certificate.Service
	stats   *stats.Service
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, cat *catalog.Service, tracker *progress.Tracker, certs *certificate.Service, st *stats.Service) *Handler {
	return &Handler{
		repo:    repo,
		catalog: cat,
		tracker: tracker,
		certs:   certs,
		stats:   st,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// domainError maps known domain errors to HTTP status codes; everything
// else is a 500. Boundary failures stay non-fatal: the client gets a JSON
// error and the session continues.
func domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, progress.ErrLessonLocked):
		Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, progress.ErrLessonNotFound), errors.Is(err, progress.ErrNoProblem):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, progress.ErrTransitionInFlight), errors.Is(err, certificate.ErrMintInFlight):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, certificate.ErrAlreadyMinted):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, certificate.ErrCourseNotComplete), errors.Is(err, certificate.ErrNoWallet):
		Error(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, certificate.ErrMintingDisabled):
		Error(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, validator.ErrUnavailable):
		Error(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, ledger.ErrRejected):
		Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrChain):
		Error(w, http.StatusBadGateway, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
