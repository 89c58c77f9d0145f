// Package store provides the durable client-side state of each browser device.
package store

import (
	"context"
	"time"
)

// Fixed key names of the per-device session state.
const (
	KeyLoggedIn = "isLoggedIn"
	KeyUserName = "userName"
	KeyUserID   = "userId"
)

// Repository is a durable string key-value store namespaced by device.
type Repository interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, deviceID, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, deviceID, key, value string) error

	// Replace atomically swaps the whole device namespace for values. On error
	// the previous namespace is left untouched.
	Replace(ctx context.Context, deviceID string, values map[string]string) error

	// Touch marks the device namespace as used now without changing any value.
	Touch(ctx context.Context, deviceID string) error

	// Clear removes every key of the device namespace.
	Clear(ctx context.Context, deviceID string) error

	// PurgeIdle removes namespaces whose newest write or touch is older than ttl.
	PurgeIdle(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
