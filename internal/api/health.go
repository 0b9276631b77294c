package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kltan/smartshopper/internal/store"
)

// HealthHandler reports service readiness.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a health handler over the audit store.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// RegisterHealth mounts the readiness endpoint.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/healthz", h.HandleHealthz)
}

// HandleHealthz verifies the audit database is reachable. The external
// collaborators are deliberately not probed: their failures degrade per
// component and must not flap readiness.
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			Error(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
