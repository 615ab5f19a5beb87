// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/pkg/errors"

	"github.com/jeranaias/rigrun-stream/internal/config"
	"github.com/jeranaias/rigrun-stream/internal/transport"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the backend could not be reached
	ExitNetworkError = 5
)

// UsageError marks an error caused by bad command-line input.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// ConfigError marks a failure to load or validate the config.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// NewUsageError creates a usage error from a message.
func NewUsageError(format string, args ...any) error {
	return &UsageError{Err: errors.Errorf(format, args...)}
}

// ExitCodeFor maps an error to the process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var usage *UsageError
	var validate config.ValidateErrors
	var tErr *transport.Error
	var cfgErr *ConfigError
	switch {
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.As(err, &validate), errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.As(err, &tErr) && tErr.Kind == transport.KindConnection:
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}
