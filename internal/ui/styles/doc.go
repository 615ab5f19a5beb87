// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling for the rigrun-stream TUI.
//
// Colors use Lip Gloss AdaptiveColor so one palette serves light and dark
// terminals. NewTheme detects the terminal's color profile with termenv;
// NewThemeWithProfile pins it, which keeps tests deterministic.
package styles
