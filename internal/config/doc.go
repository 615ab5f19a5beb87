// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and validation for
// rigrun-stream.
//
// # Key Types
//
//   - Config: Main configuration structure with all sections
//   - Duration: TOML-friendly duration ("300ms", "15s")
//   - ValidationError: One invalid field
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGRUN_STREAM_*)
//   - ~/.rigrun/stream.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	debounce := cfg.Timing.Debounce.Duration
package config
