// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigrun-stream command line.
//
// # Commands
//
//   - chat: line-oriented REPL with history and slash commands
//   - tui: full-screen chat view
//   - status: model status for the current selection
//   - memory: list, show and clear stored memory tokens
//   - settings: show and change stored request settings
//   - session: create backend sessions and list their documents
//   - config: show, get, init and locate the config file
//
// Every command shares the bootstrap in app.go: config is loaded from
// --config (or the default path), logging is set up from its logging
// section, and storage is opened from its storage section.
package cli
