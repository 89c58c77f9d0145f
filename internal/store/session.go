package store

import (
	"context"
	"fmt"
	"log/slog"
)

// SessionStore remembers the authentication state and display name of one
// device across reloads. Absent keys read as their zero value.
type SessionStore struct {
	repo     Repository
	deviceID string
}

// NewSessionStore binds a session store to a device namespace of repo.
func NewSessionStore(repo Repository, deviceID string) *SessionStore {
	return &SessionStore{repo: repo, deviceID: deviceID}
}

// RecordLogin marks the device authenticated as userID with display name name.
// The previous state is replaced in one transaction, so a failed write leaves
// the device exactly as it was.
func (s *SessionStore) RecordLogin(ctx context.Context, userID, name string) error {
	values := map[string]string{
		KeyLoggedIn: "true",
		KeyUserName: name,
		KeyUserID:   userID,
	}
	if err := s.repo.Replace(ctx, s.deviceID, values); err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

// Touch keeps an authenticated device from being purged as idle.
func (s *SessionStore) Touch(ctx context.Context) {
	if err := s.repo.Touch(ctx, s.deviceID); err != nil {
		slog.Warn("failed to touch session state", "device_id", s.deviceID, "error", err)
	}
}

// IsAuthenticated returns the durable authenticated flag.
func (s *SessionStore) IsAuthenticated(ctx context.Context) bool {
	return s.get(ctx, KeyLoggedIn) == "true"
}

// CurrentName returns the durable display name, or "" if unset.
func (s *SessionStore) CurrentName(ctx context.Context) string {
	return s.get(ctx, KeyUserName)
}

// CurrentUserID returns the identifier the device logged in with, or "" if unset.
func (s *SessionStore) CurrentUserID(ctx context.Context) string {
	return s.get(ctx, KeyUserID)
}

// Clear erases all durable state of the device.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.repo.Clear(ctx, s.deviceID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *SessionStore) get(ctx context.Context, key string) string {
	value, ok, err := s.repo.Get(ctx, s.deviceID, key)
	if err != nil {
		slog.Warn("failed to read session state", "device_id", s.deviceID, "key", key, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return value
}
