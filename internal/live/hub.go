// Package live pushes conversation snapshots to the open tabs of a device.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Frame is the JSON envelope of every server message.
type Frame struct {
	Type     string `json:"type"`
	Snapshot any    `json:"snapshot,omitempty"`
}

// Hub tracks the live WebSocket connections of every device.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Register adds a connection for a device tab.
func (h *Hub) Register(deviceID, connID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[deviceID]; !exists {
		h.active[deviceID] = make(map[string]*websocket.Conn)
	}
	h.active[deviceID][connID] = conn
	slog.Info("Live connection registered", "device_id", deviceID, "conn_id", connID)
}

// Unregister removes a connection if it is still the registered one.
func (h *Hub) Unregister(deviceID, connID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.active[deviceID]; ok {
		if current, exists := conns[connID]; exists && current == conn {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(h.active, deviceID)
			}
			slog.Info("Live connection unregistered", "device_id", deviceID, "conn_id", connID)
		}
	}
}

// Count returns the number of open connections of a device.
func (h *Hub) Count(deviceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[deviceID])
}

// Broadcast sends a snapshot frame to every connection of a device. Failed
// writes are logged; the read loop of that connection cleans it up.
func (h *Hub) Broadcast(deviceID string, snapshot any) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.active[deviceID]))
	for _, c := range h.active[deviceID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(Frame{Type: "snapshot", Snapshot: snapshot})
	if err != nil {
		slog.Error("Failed to encode snapshot", "device_id", deviceID, "error", err)
		return
	}
	for _, c := range conns {
		if err := write(c, data); err != nil {
			slog.Debug("Live write failed", "device_id", deviceID, "error", err)
		}
	}
}

// CloseDevice terminates every connection of a device.
func (h *Hub) CloseDevice(deviceID string) {
	h.mu.Lock()
	conns := h.active[deviceID]
	delete(h.active, deviceID)
	h.mu.Unlock()

	for connID, conn := range conns {
		_ = conn.Close(websocket.StatusNormalClosure, "signed out")
		slog.Info("Live connection closed", "device_id", deviceID, "conn_id", connID)
	}
}

func write(c *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, data)
}

func writeJSON(c *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return write(c, data)
}
