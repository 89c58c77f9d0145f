// Package gateway wraps the Smart Star backend HTTP API. Every operation is a
// single stateless request/response exchange.
package gateway

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
)

// maxResponseBodySize caps how much of a backend response is read (4MB).
const maxResponseBodySize = 4 << 20

// ErrTransport matches every *TransportError.
var ErrTransport = errors.New("backend transport failure")

// TransportError reports a network failure or an unexpected HTTP status.
// It is kept apart from business outcomes such as rejected credentials.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying network error, if any.
func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Client calls the backend HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a backend client. A nil httpClient uses a client without timeout,
// so a hung request only ends when the transport or the context gives up.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// send performs one exchange and returns the status and body. Network
// failures are returned as *TransportError; status handling is up to callers.
func (c *Client) send(ctx context.Context, op, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close backend response body", "op", op, "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Op: op, Err: err}
	}

	c.logger.Debug("backend exchange", "op", op, "method", method, "path", path, "status", resp.StatusCode)
	return resp.StatusCode, data, nil
}

// sendOK is send with every non-2xx status turned into a *TransportError.
func (c *Client) sendOK(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	status, data, err := c.send(ctx, op, method, path, payload)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, &TransportError{Op: op, StatusCode: status}
	}
	return data, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
