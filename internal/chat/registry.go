package chat

import (
	"log/slog"
	"sync"
	"time"
)

// Factory builds the controller for a device signed in as userID.
type Factory func(deviceID, userID string) *Controller

type registryEntry struct {
	ctrl     *Controller
	lastUsed time.Time
}

// Registry holds one controller per signed-in device.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	factory Factory
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
		factory: factory,
		now:     time.Now,
	}
}

// Get returns the controller of a device, creating it on first use. A
// controller owned by a different user is replaced. created reports whether
// a new controller was built.
func (r *Registry) Get(deviceID, userID string) (ctrl *Controller, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[deviceID]; ok && e.ctrl.UserID() == userID {
		e.lastUsed = r.now()
		return e.ctrl, false
	}

	ctrl = r.factory(deviceID, userID)
	r.entries[deviceID] = &registryEntry{ctrl: ctrl, lastUsed: r.now()}
	slog.Info("Conversation controller created", "device_id", deviceID, "user_id", userID)
	return ctrl, true
}

// Remove drops the controller of a device.
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[deviceID]; ok {
		delete(r.entries, deviceID)
		slog.Info("Conversation controller removed", "device_id", deviceID)
	}
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// EvictIdle removes controllers unused for longer than ttl. Controllers with
// a send in flight are kept. It returns the evicted device ids.
func (r *Registry) EvictIdle(ttl time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-ttl)
	var evicted []string
	for deviceID, e := range r.entries {
		if e.lastUsed.After(cutoff) || e.ctrl.Sending() {
			continue
		}
		delete(r.entries, deviceID)
		evicted = append(evicted, deviceID)
	}
	return evicted
}
