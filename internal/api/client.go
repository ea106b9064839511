// Package api is the request layer in front of the transport-schedule REST
// backend. Every authenticated call reads the current token from the session,
// classifies the outcome and reports rejected tokens back to the session.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds a single request when no other deadline is set
const DefaultTimeout = 15 * time.Second

const maxResponseBytes = 4 << 20

// TokenSource provides the current bearer token and accepts invalidation
type TokenSource interface {
	Token() (string, bool)
	Invalidate(ctx context.Context, token string) error
}

// Client sends authenticated requests to the backend
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	timeout time.Duration
	log     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request deadline
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a client for baseURL (which already includes any /api prefix)
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "api")
	return c
}

// BaseURL returns the configured backend URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request performs one authenticated call. body, when non-nil, is sent as
// JSON. The result is the raw JSON payload, or nil for 204 and empty bodies.
// There are no retries.
func (c *Client) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	token, ok := c.tokens.Token()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	status, respBody, err := c.do(ctx, method, path, token, body)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusUnauthorized:
		if err := c.tokens.Invalidate(ctx, token); err != nil {
			c.log.Error("failed to clear rejected session", "error", err)
		}
		return nil, ErrSessionExpired
	case status == http.StatusNoContent:
		return nil, nil
	case status < 200 || status > 299:
		return nil, newRequestFailed(status, respBody)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}
	if !json.Valid(respBody) {
		return nil, fmt.Errorf("failed to parse %s %s response: invalid JSON", method, path)
	}
	return json.RawMessage(respBody), nil
}

// DecodeInto unmarshals a Request result into v
func DecodeInto(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("failed to decode response: empty body")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do sends the request and reads the response body. Only transport failures
// are returned as errors; every received status is handed back to the caller.
func (c *Client) do(ctx context.Context, method, path, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log := c.log.With("request_id", requestID, "method", method, "path", path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("request failed", "error", err, "duration", time.Since(start))
		return 0, nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.Warn("failed to read response", "status", resp.StatusCode, "error", err)
		return 0, nil, &NetworkError{Method: method, Path: path, Err: err}
	}

	log.Debug("request completed", "status", resp.StatusCode, "duration", time.Since(start))
	return resp.StatusCode, respBody, nil
}
