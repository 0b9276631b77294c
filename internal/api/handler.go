// Package api provides HTTP handlers for the chat API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/kltan/smartshopper/internal/bot"
	"github.com/kltan/smartshopper/internal/domain"
	"github.com/kltan/smartshopper/internal/identity"
	"github.com/kltan/smartshopper/internal/metrics"
	"github.com/kltan/smartshopper/internal/session"
	"github.com/kltan/smartshopper/internal/store"
)

// maxRequestBodySize caps chat request bodies (64KB is generous for a
// transcript).
const maxRequestBodySize = 64 << 10

// Handler serves the chat endpoints.
type Handler struct {
	engine        *bot.Engine
	sessions      session.Store
	repo          store.Repository
	ratePerMinute int
}

// NewHandler creates the chat API handler.
func NewHandler(engine *bot.Engine, sessions session.Store, repo store.Repository, ratePerMinute int) *Handler {
	return &Handler{
		engine:        engine,
		sessions:      sessions,
		repo:          repo,
		ratePerMinute: ratePerMinute,
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

// RegisterRoutes mounts the chat API on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(h.ratePerMinute, time.Minute))
		r.Post("/chat", h.HandleChat)
		r.Get("/session", h.HandleSession)
		r.Post("/session/reset", h.HandleSessionReset)
		r.Get("/handoff", h.HandleHandoff)
	})
}

// ChatRequest is the POST /api/chat payload.
type ChatRequest struct {
	Message string            `json:"message"`
	History domain.Transcript `json:"history,omitempty"`
}

// HandleChat runs one conversation turn.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Debug("draining request body", "error", err)
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	sessionKey := identity.ChatSessionKey(r.Context())
	reply := h.engine.HandleTurn(r.Context(), sessionKey, req.Message, req.History)
	JSON(w, http.StatusOK, reply)
}

// SessionSnapshot is the GET /api/session payload consumed by the widget.
type SessionSnapshot struct {
	SessionID     string         `json:"session_id"`
	Profile       domain.Profile `json:"profile"`
	PrimaryIntent string         `json:"primary_intent"`
	SubStatus     string         `json:"sub_status"`
	Step          int            `json:"step"`
}

// HandleSession returns the current decision-tree state.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sessionKey := identity.ChatSessionKey(r.Context())

	var snap SessionSnapshot
	h.sessions.Do(sessionKey, func(s *domain.Session) {
		snap = SessionSnapshot{
			SessionID:     identity.SessionIDFromContext(r.Context()),
			Profile:       s.Profile,
			PrimaryIntent: string(s.PrimaryIntent),
			SubStatus:     string(s.SubStatus),
			Step:          s.Step,
		}
	})
	JSON(w, http.StatusOK, snap)
}

// HandleSessionReset returns the session slot to defaults.
func (h *Handler) HandleSessionReset(w http.ResponseWriter, r *http.Request) {
	sessionKey := identity.ChatSessionKey(r.Context())
	h.sessions.Reset(sessionKey)
	metrics.SessionResetsTotal.WithLabelValues("api").Inc()
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// HandleHandoff returns the hand-off summary written when this session's
// last conversation completed.
func (h *Handler) HandleHandoff(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		Error(w, http.StatusNotFound, "handoff storage disabled")
		return
	}

	sessionKey := identity.ChatSessionKey(r.Context())
	rec, err := h.repo.GetHandoff(r.Context(), sessionKey)
	if err != nil {
		slog.Error("handoff lookup failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load handoff summary")
		return
	}
	if rec == nil {
		Error(w, http.StatusNotFound, "no handoff summary for this session")
		return
	}
	JSON(w, http.StatusOK, rec)
}
