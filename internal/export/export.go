// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/util"
)

// ErrEmptyTranscript is returned when there is nothing to export.
var ErrEmptyTranscript = errors.New("conversation has no messages")

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is the exported view of one session's conversation.
type Transcript struct {
	SessionID  string          `json:"sessionId"`
	Selection  model.Selection `json:"selection"`
	Messages   []model.Message `json:"messages"`
	ExportedAt time.Time       `json:"exportedAt"`
}

// NewTranscript builds a transcript from a conversation snapshot, dropping
// progress indicators.
func NewTranscript(sessionID string, sel model.Selection, msgs []model.Message) Transcript {
	kept := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsIndicator() {
			kept = append(kept, m)
		}
	}
	return Transcript{
		SessionID:  sessionID,
		Selection:  sel,
		Messages:   kept,
		ExportedAt: time.Now(),
	}
}

// TotalTokens sums the usage reported with each answer.
func (t Transcript) TotalTokens() int {
	total := 0
	for _, m := range t.Messages {
		if m.Metadata.Usage != nil {
			total += m.Metadata.Usage.TotalTokens
		}
	}
	return total
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a transcript in one format.
type Exporter interface {
	Export(t Transcript) ([]byte, error)

	// FileExtension returns the extension including the dot, e.g. ".md".
	FileExtension() string
}

// Options configures export behavior.
type Options struct {
	// OutputDir is where WriteFile puts the file (default: current directory).
	OutputDir string

	// IncludeMetadata adds a header with session, model and token totals.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times.
	IncludeTimestamps bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

// Formats lists the names accepted by ForFormat.
var Formats = []string{"markdown", "json"}

// ForFormat returns the exporter for a format name. "md" is accepted for
// markdown.
func ForFormat(name string, opts *Options) (Exporter, error) {
	switch strings.ToLower(name) {
	case "", "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	default:
		return nil, errors.Errorf("unknown export format %q (valid: %s)", name, strings.Join(Formats, ", "))
	}
}

// =============================================================================
// WRITE
// =============================================================================

// WriteFile exports t into opts.OutputDir and returns the file path. The
// name carries the session id and the export time.
func WriteFile(t Transcript, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	content, err := exporter.Export(t)
	if err != nil {
		return "", errors.Wrap(err, "export failed")
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	stamp := t.ExportedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	name := fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(t.SessionID),
		stamp.Format("20060102_150405"),
		exporter.FileExtension(),
	)
	path := filepath.Join(dir, name)
	if err := util.AtomicWriteFileWithDir(path, content, 0600, 0755); err != nil {
		return "", errors.Wrap(err, "write export")
	}
	return path, nil
}

// sanitizeFilename keeps letters, digits, dash and underscore, capped at 36
// runes.
func sanitizeFilename(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == 36 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
		n++
	}
	if b.Len() == 0 {
		return "session"
	}
	return b.String()
}
