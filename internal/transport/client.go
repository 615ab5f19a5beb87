// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jeranaias/rigrun-stream/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is the backend address used when none is configured.
	DefaultBaseURL = "http://127.0.0.1:8787"

	// DefaultTimeout bounds plain (non-streaming) requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries applies to idempotent REST calls only. Chat requests
	// are never retried.
	DefaultMaxRetries = 3

	// MaxResponseSize is the maximum allowed plain response size (10MB).
	MaxResponseSize = 10 * 1024 * 1024

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 5 * time.Second

	userAgent = "rigrun-stream/0.1.0"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config holds client settings.
type Config struct {
	BaseURL string
	// ClientID is sent as X-Client-ID on every request.
	ClientID   string
	Timeout    time.Duration
	MaxRetries int
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the HTTP client for the chat backend.
type Client struct {
	baseURL    string
	clientID   string
	maxRetries int
	logger     zerolog.Logger

	// httpClient serves plain requests; streamClient has no timeout so long
	// streams are bounded by their context instead.
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a client, filling zero config fields with defaults.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		maxRetries:   cfg.MaxRetries,
		logger:       logger.With().Str("component", "transport").Logger(),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
	}
}

// WithHTTPClient replaces the client used for plain requests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.clientID != "" {
		req.Header.Set("X-Client-ID", c.clientID)
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request")
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	c.setHeaders(req)
	return req, nil
}

// =============================================================================
// PLAIN REQUESTS
// =============================================================================

// Chat performs a single non-streaming chat request. It is never retried so
// a fallback issues exactly one request.
func (c *Client) Chat(ctx context.Context, reqBody ChatRequest) (*ChatResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat", reqBody)
	if err != nil {
		return nil, err
	}
	var resp ChatResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateSession asks the backend for a new session id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var resp sessionResponse
	err := c.withRetry(ctx, func() error {
		req, err := c.newRequest(ctx, http.MethodPost, "/api/session", struct{}{})
		if err != nil {
			return err
		}
		return c.do(req, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", ErrNoSession
	}
	return resp.SessionID, nil
}

// ListDocuments returns the documents attached to a session.
func (c *Client) ListDocuments(ctx context.Context, sessionID string) ([]Document, error) {
	var resp documentsResponse
	err := c.withRetry(ctx, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, "/api/session/"+url.PathEscape(sessionID)+"/documents", nil)
		if err != nil {
			return err
		}
		return c.do(req, &resp)
	})
	return resp.Documents, err
}

// FetchModelStatus reads the current status of a provider/model once.
func (c *Client) FetchModelStatus(ctx context.Context, sel model.Selection) (model.ModelStatus, error) {
	var st model.ModelStatus
	req, err := c.newRequest(ctx, http.MethodGet, "/api/models/status?"+statusQuery(sel), nil)
	if err != nil {
		return st, err
	}
	if err := c.do(req, &st); err != nil {
		return st, err
	}
	st.State = model.ParseModelState(string(st.State))
	return st, nil
}

func statusQuery(sel model.Selection) string {
	q := url.Values{}
	q.Set("providerId", sel.ProviderID)
	q.Set("modelId", sel.ModelID)
	return q.Encode()
}

// do sends req and decodes a JSON body into out. Non-2xx responses become
// classified *Error values.
func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return connectionError(err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return err
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp.StatusCode, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "parse response")
	}
	return nil
}

// readResponse reads the body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, connectionError(err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, errors.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts an HTTP error response into *Error, keeping
// the provider message verbatim when the body carries one.
func handleErrorResponse(status int, body []byte) error {
	var p errorPayload
	if err := json.Unmarshal(body, &p); err != nil || p.text() == "" {
		p = errorPayload{Message: strings.TrimSpace(string(body))}
		if p.Message == "" {
			p.Message = http.StatusText(status)
		}
	}
	return classify(p, status)
}

// =============================================================================
// RETRY
// =============================================================================

// withRetry runs fn with exponential backoff on connection failures and
// 5xx responses.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		c.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("retrying backend request")
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	return be.Kind == KindConnection || be.Status >= 500
}

func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
