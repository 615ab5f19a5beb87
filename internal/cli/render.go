// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigrun-stream/internal/model"
)

// =============================================================================
// TRANSCRIPT PRINTER
// =============================================================================

// Transcript prints conversation snapshots to a line-oriented terminal.
// Each finished message is printed once. The progress indicator is printed
// whenever its text changes.
type Transcript struct {
	out       io.Writer
	md        *glamour.TermRenderer
	printed   map[string]bool
	indicator string
}

// NewTranscript creates a printer. When markdown is set, answers are
// rendered with glamour wrapped to width.
func NewTranscript(out io.Writer, markdown bool, width int) *Transcript {
	t := &Transcript{out: out, printed: make(map[string]bool)}
	if markdown {
		if width <= 0 {
			width = 80
		}
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
		if err == nil {
			t.md = r
		}
	}
	return t
}

// Render prints whatever in msgs has not been printed yet. User messages
// are only marked, since the user just typed them.
func (t *Transcript) Render(msgs []model.Message) {
	for _, msg := range msgs {
		if t.printed[msg.ID] {
			continue
		}
		switch {
		case msg.IsIndicator():
			if msg.Content != t.indicator {
				t.indicator = msg.Content
				fmt.Fprintln(t.out, IndicatorStyle.Render("  ... "+msg.Content))
			}
			continue
		case msg.Role == model.RoleUser:
		case msg.IsError():
			fmt.Fprintln(t.out, ErrorStyle.Render("[Error]")+" "+msg.Content)
		default:
			t.printAnswer(msg)
		}
		t.printed[msg.ID] = true
		t.indicator = ""
	}
}

func (t *Transcript) printAnswer(msg model.Message) {
	label := AssistantStyle.Render(msg.Role.DisplayName() + ":")
	if info := answerSummary(msg.Metadata); info != "" {
		label += " " + DimStyle.Render(info)
	}
	fmt.Fprintln(t.out, label)

	body := msg.Content
	if t.md != nil {
		if out, err := t.md.Render(msg.Content); err == nil {
			body = strings.Trim(out, "\n")
		}
	}
	fmt.Fprintln(t.out, body)
	fmt.Fprintln(t.out)
}

// Reset forgets what was printed, after the conversation is cleared.
func (t *Transcript) Reset() {
	t.printed = make(map[string]bool)
	t.indicator = ""
}

func answerSummary(meta model.Metadata) string {
	var parts []string
	if meta.Model != "" {
		parts = append(parts, meta.Model)
	}
	if meta.Cached {
		parts = append(parts, "cached")
	}
	if meta.Usage != nil && meta.Usage.TotalTokens > 0 {
		parts = append(parts, fmt.Sprintf("%d tokens", meta.Usage.TotalTokens))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
