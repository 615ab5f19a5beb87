// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidURLScheme is returned when a backend URL is not http or https.
	ErrInvalidURLScheme = errors.New("only http and https schemes are allowed")

	// ErrMissingHost is returned when a backend URL has no host.
	ErrMissingHost = errors.New("backend URL has no host")
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the backend connection status.
type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

// String returns the status label shown to the user.
func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// =============================================================================
// MONITOR
// =============================================================================

// Monitor holds the connection status. The zero value is not usable; call
// NewMonitor.
type Monitor struct {
	mu      sync.RWMutex
	status  Status
	reason  string
	changes chan struct{}
}

// NewMonitor creates a monitor in the unknown state.
func NewMonitor() *Monitor {
	return &Monitor{changes: make(chan struct{}, 1)}
}

// SetOnline marks the backend reachable.
func (m *Monitor) SetOnline() {
	m.set(StatusOnline, "")
}

// SetOffline marks the backend unreachable with a short reason.
func (m *Monitor) SetOffline(reason string) {
	m.set(StatusOffline, reason)
}

func (m *Monitor) set(s Status, reason string) {
	m.mu.Lock()
	changed := m.status != s || m.reason != reason
	m.status = s
	m.reason = reason
	m.mu.Unlock()

	if changed {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	}
}

// Status returns the current status.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Reason returns the reason given with the last SetOffline.
func (m *Monitor) Reason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}

// IsOffline reports whether the backend is marked unreachable.
func (m *Monitor) IsOffline() bool {
	return m.Status() == StatusOffline
}

// Changes signals after every status change. Signals coalesce.
func (m *Monitor) Changes() <-chan struct{} {
	return m.changes
}

// =============================================================================
// URL VALIDATION
// =============================================================================

// IsLocalhost checks if a host string refers to the loopback interface.
// Accepts "localhost", any 127.0.0.0/8 address, and IPv6 loopback forms,
// with or without a port.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// ValidateBaseURL checks that a backend URL uses http(s) and names a host.
// It reports whether traffic would travel unencrypted off this machine.
func ValidateBaseURL(rawURL string) (insecureRemote bool, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, errors.Wrap(err, "parse backend URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return false, ErrInvalidURLScheme
	}
	if parsed.Hostname() == "" {
		return false, ErrMissingHost
	}
	return scheme == "http" && !IsLocalhost(parsed.Hostname()), nil
}
