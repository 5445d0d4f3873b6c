package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/Yllib/socketclaude/internal/transport"
)

// WebSocketHandler upgrades direct client connections and pumps their
// commands through the dispatcher.
type WebSocketHandler struct {
	dispatcher    *Dispatcher
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates the direct websocket endpoint handler.
func NewWebSocketHandler(dispatcher *Dispatcher, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		dispatcher:    dispatcher,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("WebSocket connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	tr := transport.NewDirect(ctx, ws)
	conn := h.dispatcher.NewConn(tr)
	defer func() {
		tr.MarkClosed()
		conn.Detach()
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				slog.Info("WebSocket closed", "ip", r.RemoteAddr)
			} else {
				slog.Debug("WebSocket read failed", "error", err)
			}
			return
		}
		conn.Handle(ctx, data)
	}
}

// checkOrigin validates the Origin header. Development mode and non-browser
// clients (no Origin header) are always allowed; a configured origin is
// otherwise matched exactly.
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.isDev || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	return strings.EqualFold(origin, h.allowedOrigin)
}
