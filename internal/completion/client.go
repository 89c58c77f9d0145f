// Package completion produces assistant replies through a chat completion provider.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SystemInstruction sets the assistant persona and the suggestion tagging convention.
const SystemInstruction = "You are 'Smart Star', a friendly and professional AI financial assistant. " +
	"When the user greets you, welcome them warmly and keep the conversation natural. " +
	"When you recommend services (personalized financial product picks, exchange rate information, " +
	"spending analysis and similar), do not list them in the body of the answer. Instead, put them on " +
	"the very last line after the tag '[[SUGGESTIONS]]', separated by commas. " +
	"Example: 'Nice to meet you! How can I help?\n[[SUGGESTIONS]] Product picks, Exchange rates, Spending analysis'. " +
	"Never mention the names of specific financial institutions."

// Fallback replies shown when the provider fails.
const (
	FallbackLoading  = "The assistant is getting ready. Please ask again in a moment!"
	FallbackUnstable = "The connection is unstable. Please try again in a moment."
)

// Turn roles in the provider's vocabulary.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

var errEmptyCompletion = errors.New("empty completion")

// Turn is one prior exchange entry passed to the provider.
type Turn struct {
	Role    string // RoleUser or RoleModel
	Content string
}

// Config holds completion client configuration.
type Config struct {
	URL         string
	Token       string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client calls an OpenAI-compatible chat completion endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a completion client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// buildMessages converts a user utterance and prior turns into the provider's
// message list, system instruction first and the new utterance last.
func buildMessages(text string, history []Turn) []chatMessage {
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: SystemInstruction})
	for _, turn := range history {
		role := "assistant"
		if turn.Role == RoleUser {
			role = "user"
		}
		messages = append(messages, chatMessage{Role: role, Content: turn.Content})
	}
	return append(messages, chatMessage{Role: "user", Content: text})
}

// Complete returns the text of the top completion choice.
func (c *Client) Complete(ctx context.Context, text string, history []Turn) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    buildMessages(text, history),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close completion response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("completion provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", errEmptyCompletion
	}
	return parsed.Choices[0].Message.Content, nil
}

// Reply is Complete that always yields displayable text: provider errors are
// logged and replaced by a fallback message.
func (c *Client) Reply(ctx context.Context, text string, history []Turn) string {
	reply, err := c.Complete(ctx, text, history)
	if err != nil {
		c.logger.Error("completion failed", "error", err, "history_turns", len(history))
		return Fallback(err)
	}
	return reply
}

// Fallback picks the user-facing text for a provider error.
func Fallback(err error) string {
	if strings.Contains(strings.ToLower(err.Error()), "loading") {
		return FallbackLoading
	}
	return FallbackUnstable
}
