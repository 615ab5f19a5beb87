// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-stream/internal/model"
)

func sampleTranscript() Transcript {
	answer := model.NewAssistantMessage("**Paris**", model.Metadata{
		Model:  "llama3",
		Cached: true,
		Usage:  &model.Usage{TotalTokens: 42},
	})
	msgs := []model.Message{
		model.NewUserMessage("Capital of France?"),
		answer,
		model.NewUserMessage("And Spain?"),
		model.NewErrorMessage("provider failed"),
		model.NewIndicatorMessage("Thinking..."),
	}
	t := NewTranscript("sess-1", model.Selection{ProviderID: "local", ModelID: "llama3"}, msgs)
	t.ExportedAt = time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	return t
}

func TestNewTranscript_DropsIndicators(t *testing.T) {
	tr := sampleTranscript()
	require.Len(t, tr.Messages, 4)
	for _, m := range tr.Messages {
		assert.False(t, m.IsIndicator())
	}
	assert.Equal(t, 42, tr.TotalTokens())
}

func TestMarkdownExporter_Export(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\nsession: sess-1\nmodel: local/llama3\nmessages: 4\ntokens: 42\n"))
	assert.Contains(t, md, "# Conversation sess-1")
	assert.Contains(t, md, "[You]")
	assert.Contains(t, md, "**Paris**")
	assert.Contains(t, md, "<sub>Model: llama3 | cached | Tokens: 42</sub>")
	assert.Contains(t, md, "### [Error]")
	assert.Contains(t, md, "> provider failed")
	assert.NotContains(t, md, "Thinking...")
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	opts := &Options{}
	out, err := NewMarkdownExporter(opts).Export(sampleTranscript())
	require.NoError(t, err)
	md := string(out)
	assert.True(t, strings.HasPrefix(md, "# Conversation"))
	assert.NotContains(t, md, "<sub>")
}

func TestJSONExporter_Export(t *testing.T) {
	out, err := NewJSONExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)

	var back Transcript
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "sess-1", back.SessionID)
	assert.Len(t, back.Messages, 4)
	assert.True(t, back.Messages[3].IsError())
}

func TestExport_EmptyTranscript(t *testing.T) {
	empty := NewTranscript("s", model.Selection{}, []model.Message{model.NewIndicatorMessage("x")})
	_, err := NewMarkdownExporter(nil).Export(empty)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
	_, err = NewJSONExporter(nil).Export(empty)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestForFormat(t *testing.T) {
	for _, name := range []string{"", "markdown", "MD"} {
		e, err := ForFormat(name, nil)
		require.NoError(t, err)
		assert.Equal(t, ".md", e.FileExtension())
	}
	e, err := ForFormat("json", nil)
	require.NoError(t, err)
	assert.Equal(t, ".json", e.FileExtension())

	_, err = ForFormat("pdf", nil)
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	path, err := WriteFile(sampleTranscript(), NewJSONExporter(nil), &Options{OutputDir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "conversation_sess-1_20250301_123000.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sessionId": "sess-1"`)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-b-c", sanitizeFilename("a/b c"))
	assert.Equal(t, "session", sanitizeFilename(""))
	assert.Len(t, sanitizeFilename(strings.Repeat("x", 80)), 36)
}
