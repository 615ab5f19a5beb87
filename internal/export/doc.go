// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a session transcript to Markdown or JSON.
//
// Progress indicators are ephemeral and never exported. Error replies are
// kept and marked.
//
//	t := export.NewTranscript(sessionID, sel, state.Messages)
//	path, err := export.WriteFile(t, export.NewMarkdownExporter(nil), nil)
package export
