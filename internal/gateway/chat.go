package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ashureev/smartstar/internal/domain"
)

var errMissingSessionID = errors.New("response carries no session id")

// ListHistory returns the chat session summaries of a user, possibly empty.
func (c *Client) ListHistory(ctx context.Context, userID string) ([]domain.ChatHistory, error) {
	data, err := c.sendOK(ctx, "list_history", http.MethodGet, "/api/chat/history/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("list_history: %w", err)
	}
	history := make([]domain.ChatHistory, 0, len(records))
	for _, r := range records {
		history = append(history, r.toHistory())
	}
	return history, nil
}

// LoadMessages returns the persisted messages of a session in canonical form.
func (c *Client) LoadMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	data, err := c.sendOK(ctx, "load_messages", http.MethodGet, "/api/chat/messages/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("load_messages: %w", err)
	}
	now := time.Now()
	messages := make([]domain.Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, r.toMessage(now))
	}
	return messages, nil
}

// CreateSession persists a new chat session summary and returns its id.
func (c *Client) CreateSession(ctx context.Context, userID, title, lastMessage string) (string, error) {
	data, err := c.sendOK(ctx, "create_session", http.MethodPost, "/api/chat/save", map[string]string{
		"userId":      userID,
		"title":       title,
		"lastMessage": lastMessage,
	})
	if err != nil {
		return "", err
	}

	r, err := decodeRecord(data)
	if err != nil {
		return "", fmt.Errorf("create_session: %w", err)
	}
	id := r.str("id")
	if id == "" {
		return "", fmt.Errorf("create_session: %w", errMissingSessionID)
	}
	return id, nil
}

// SaveMessage appends one message to a persisted session.
func (c *Client) SaveMessage(ctx context.Context, sessionID string, role domain.Role, content string) error {
	_, err := c.sendOK(ctx, "save_message", http.MethodPost, "/api/chat/message/save", map[string]string{
		"historyId": sessionID,
		"role":      string(role),
		"content":   content,
	})
	return err
}

// DeleteHistory removes a persisted session.
func (c *Client) DeleteHistory(ctx context.Context, sessionID string) error {
	_, err := c.sendOK(ctx, "delete_history", http.MethodDelete, "/api/chat/history/delete/"+url.PathEscape(sessionID), nil)
	return err
}
