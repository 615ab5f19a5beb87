// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// =============================================================================
// ERROR KINDS
// =============================================================================

// ErrorKind classifies a backend failure.
type ErrorKind int

const (
	// KindProvider is an upstream or request failure reported verbatim.
	KindProvider ErrorKind = iota
	// KindRateLimit is a 429-class failure.
	KindRateLimit
	// KindConnection means the backend could not be reached.
	KindConnection
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindConnection:
		return "connection"
	default:
		return "provider"
	}
}

// Sentinel errors for errors.Is matching against Error.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrConnection  = errors.New("backend unreachable")
	ErrProvider    = errors.New("provider error")

	// ErrNoSession is returned when the backend does not issue a session id.
	ErrNoSession = errors.New("backend returned no session id")
)

// Error is a classified backend failure. Message is the provider-supplied
// text, kept verbatim so diagnostics reach the user unmodified.
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == KindRateLimit
	case ErrConnection:
		return e.Kind == KindConnection
	case ErrProvider:
		return e.Kind == KindProvider
	}
	return false
}

// StreamError reports a failure after the stream was established. The
// stream is treated as stalled; callers rely on their fallback path.
type StreamError struct {
	Events int // events delivered before the failure
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error after %d events: %v", e.Events, e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a rate-limit failure.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// IsConnection reports whether err is a connection failure.
func IsConnection(err error) bool { return errors.Is(err, ErrConnection) }

// =============================================================================
// CLASSIFICATION
// =============================================================================

// errorPayload is the JSON body of error events and error responses.
type errorPayload struct {
	Message           string `json:"message"`
	IsConnectionError bool   `json:"isConnectionError,omitempty"`
	Kind              string `json:"kind,omitempty"`
	Status            int    `json:"status,omitempty"`
	// Some upstreams nest the message: {"error":{"message":...}}
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code,omitempty"`
	} `json:"error,omitempty"`
}

func (p errorPayload) text() string {
	if p.Message != "" {
		return p.Message
	}
	if p.Error != nil {
		return p.Error.Message
	}
	return ""
}

// classify picks the kind for an error payload. An explicit kind or 429
// status wins; the "rate limit" text match is kept for backends that only
// report a message. Rate limiting takes precedence over the connection flag.
func classify(p errorPayload, httpStatus int) *Error {
	status := p.Status
	if status == 0 {
		status = httpStatus
	}
	msg := p.text()
	e := &Error{Kind: KindProvider, Message: msg, Status: status}

	kind := strings.ToLower(strings.ReplaceAll(p.Kind, "-", "_"))
	switch {
	case kind == "rate_limit" || status == http.StatusTooManyRequests:
		e.Kind = KindRateLimit
	case mentionsRateLimit(msg):
		e.Kind = KindRateLimit
	case kind == "connection" || p.IsConnectionError:
		e.Kind = KindConnection
	}
	return e
}

func mentionsRateLimit(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "rate limit") ||
		strings.Contains(m, "rate-limit") ||
		strings.Contains(m, "too many requests")
}

// connectionError wraps a transport-level failure (dial, TLS, reset).
func connectionError(err error) *Error {
	return &Error{Kind: KindConnection, Message: err.Error(), Err: err}
}
