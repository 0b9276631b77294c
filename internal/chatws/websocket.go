// Package chatws serves the conversation loop over a WebSocket: the widget
// sends user turns, the driver answers, one reply per message.
package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/kltan/smartshopper/internal/bot"
	"github.com/kltan/smartshopper/internal/domain"
	"github.com/kltan/smartshopper/internal/identity"
)

// Handler upgrades chat connections and pumps turns through the driver.
type Handler struct {
	engine        *bot.Engine
	allowedOrigin string
	isDev         bool
}

// NewHandler creates the WebSocket chat handler.
func NewHandler(engine *bot.Engine, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		engine:        engine,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsMessage is the wire format in both directions.
type wsMessage struct {
	Role    string            `json:"role,omitempty"`
	Content string            `json:"content"`
	History domain.Transcript `json:"history,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionKey := identity.ChatSessionKey(r.Context())
	slog.Info("chat websocket connection", "user_id", userID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// One turn at a time: read a user message, answer it, repeat. The
	// transcript travels with each message so the driver stays stateless
	// about history.
	var history domain.Transcript
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			slog.Debug("chat websocket read error", "error", err, "user_id", userID)
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil || strings.TrimSpace(msg.Content) == "" {
			if writeErr := h.writeJSON(ctx, ws, wsMessage{Error: "invalid message"}); writeErr != nil {
				return
			}
			continue
		}
		if len(msg.History) > 0 {
			history = msg.History
		}

		reply := h.engine.HandleTurn(ctx, sessionKey, msg.Content, history)
		history = append(history,
			domain.Turn{Role: domain.RoleUser, Content: msg.Content},
			reply,
		)

		if err := h.writeJSON(ctx, ws, wsMessage{Role: string(reply.Role), Content: reply.Content}); err != nil {
			slog.Debug("chat websocket write error", "error", err, "user_id", userID)
			return
		}
	}
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	allowed, err := url.Parse(h.allowedOrigin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, allowed.Host)
}
