// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a key has no value.
	ErrNotFound = errors.New("key not found")

	// ErrClosed is returned when a backend is used after Close.
	ErrClosed = errors.New("store closed")

	// ErrInvalidValue is returned when a value is not valid JSON.
	ErrInvalidValue = errors.New("value is not valid JSON")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// StoreError wraps a backend failure with the operation and key involved.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// =============================================================================
// INTERFACES
// =============================================================================

// KV is a durable key/value backend. Values are JSON documents.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists keys starting with prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Watcher is implemented by backends that can report changes made by other
// processes sharing the same storage.
type Watcher interface {
	// Watch calls fn with each externally changed key until ctx is done.
	Watch(ctx context.Context, fn func(key string)) error
}

// =============================================================================
// BACKEND SELECTION
// =============================================================================

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the file or database path for file and sqlite backends.
	Path  string
	Redis RedisOptions
}

// Open creates the backend named by opts.Backend.
func Open(opts Options) (KV, error) {
	switch strings.ToLower(opts.Backend) {
	case BackendFile, "":
		return OpenFile(opts.Path)
	case BackendSQLite:
		return OpenSQLite(opts.Path)
	case BackendRedis:
		return OpenRedis(opts.Redis)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, errors.Wrap(ErrUnknownBackend, opts.Backend)
	}
}
