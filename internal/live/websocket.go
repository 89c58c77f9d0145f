package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/smartstar/internal/identity"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// SnapshotFunc returns the current snapshot of a device. ok is false when the
// device is not signed in.
type SnapshotFunc func(ctx context.Context, deviceID string) (snapshot any, ok bool)

// Handler upgrades requests to a snapshot push channel.
type Handler struct {
	hub           *Hub
	snapshot      SnapshotFunc
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, snapshot SnapshotFunc, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		hub:           hub,
		snapshot:      snapshot,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

type clientMessage struct {
	Type string `json:"type"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	initial, ok := h.snapshot(r.Context(), deviceID)
	if !ok {
		http.Error(w, `{"error":"not_authenticated"}`, http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "device_id", deviceID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "connection ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "device_id", deviceID)
		}
	}()

	connID := uuid.NewString()
	h.hub.Register(deviceID, connID, ws)
	defer h.hub.Unregister(deviceID, connID, ws)

	if err := writeJSON(ws, Frame{Type: "snapshot", Snapshot: initial}); err != nil {
		slog.Debug("Failed to send initial snapshot", "error", err, "device_id", deviceID)
		return
	}

	h.readLoop(r.Context(), ws, deviceID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, deviceID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "device_id", deviceID)
			} else {
				slog.Debug("WebSocket read ended", "error", err, "device_id", deviceID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := writeJSON(ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		}
	}
}
