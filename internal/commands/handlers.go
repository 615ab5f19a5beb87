// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/jeranaias/rigrun-stream/internal/export"
	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/session"
)

// memoryPreviewLen caps how much of the memory token /memory prints.
const memoryPreviewLen = 48

func (r *Registry) handleHelp(_ *Context, _ []string) Result {
	byCategory := make(map[string][]*Command)
	for _, cmd := range r.All() {
		byCategory[cmd.Category] = append(byCategory[cmd.Category], cmd)
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var b strings.Builder
	for i, category := range categories {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(category + ":\n")
		for _, cmd := range byCategory[category] {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Name
			}
			fmt.Fprintf(&b, "  %-28s %s\n", usage, cmd.Description)
		}
	}
	return Result{Output: strings.TrimRight(b.String(), "\n")}
}

func handleQuit(_ *Context, _ []string) Result {
	return Result{Quit: true}
}

func handleRetry(ctx *Context, _ []string) Result {
	if err := ctx.Session.RetryLastMessage(ctx.ctx(), ctx.options()); err != nil {
		return Result{Err: err}
	}
	return Result{Submitted: true}
}

func handleClear(ctx *Context, _ []string) Result {
	ctx.Session.ClearMessages()
	return Result{Output: "Conversation cleared."}
}

func handleCancel(ctx *Context, _ []string) Result {
	if ctx.Session.Cancel() {
		return Result{Output: "Request cancelled."}
	}
	return Result{Output: "Nothing to cancel."}
}

func handleModel(ctx *Context, args []string) Result {
	if len(args) == 0 {
		return Result{Output: "Current model: " + ctx.Store.CurrentSelection().String()}
	}
	sel := model.Selection{ProviderID: strings.ToLower(args[0])}
	if len(args) > 1 {
		sel.ModelID = args[1]
	}
	if err := ctx.Store.SetSelection(ctx.ctx(), sel); err != nil {
		return Result{Err: errors.Wrap(err, "save selection")}
	}
	return Result{Output: "Switched to " + sel.String()}
}

func handleStatus(ctx *Context, _ []string) Result {
	var ms model.ModelStatus
	if ctx.Status != nil {
		ms = ctx.Status.Status()
	}
	return Result{Output: FormatStatus(ctx.Store.CurrentSelection(), ms, ctx.Session.State(), ctx.Session.SessionID())}
}

func handleMemory(ctx *Context, args []string) Result {
	id := ctx.Session.SessionID()
	if len(args) > 0 {
		if !strings.EqualFold(args[0], "clear") {
			return Result{Err: errors.Errorf("/memory: unknown argument %q (expected: clear)", args[0])}
		}
		if err := ctx.Store.ClearMemory(ctx.ctx(), id); err != nil {
			return Result{Err: errors.Wrap(err, "clear memory")}
		}
		return Result{Output: "Memory cleared."}
	}

	rec, err := ctx.Store.Memory(ctx.ctx(), id)
	if err != nil {
		return Result{Err: errors.Wrap(err, "read memory")}
	}
	if rec.IsEmpty() {
		return Result{Output: "No memory stored for this session."}
	}
	return Result{Output: fmt.Sprintf("Memory token: %s (%d chunks)", Preview(rec.Token, memoryPreviewLen), len(rec.Chunks))}
}

// handleExport writes the conversation to a file: /export [format] [dir].
func handleExport(ctx *Context, args []string) Result {
	format, dir := "markdown", "."
	if len(args) > 0 {
		format = args[0]
	}
	if len(args) > 1 {
		dir = args[1]
	}
	opts := export.DefaultOptions()
	opts.OutputDir = dir
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return Result{Err: errors.Wrap(err, "/export")}
	}

	t := export.NewTranscript(ctx.Session.SessionID(), ctx.Store.CurrentSelection(), ctx.Session.State().Messages)
	path, err := export.WriteFile(t, exporter, opts)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Output: "Exported to " + path}
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatStatus renders the status block shown by /status.
func FormatStatus(sel model.Selection, ms model.ModelStatus, st session.State, sessionID string) string {
	state := string(ms.State)
	if state == "" {
		state = "unknown"
	}
	if ms.Message != "" {
		state += " (" + ms.Message + ")"
	}
	switch {
	case st.ProviderBusy:
		state += ", busy"
	case st.Loading:
		state += ", loading"
	case st.Unloading:
		state += ", unloading"
	}

	cooldown := "none"
	if st.RateLimit.Active {
		cooldown = fmt.Sprintf("%ds remaining", st.RateLimit.RemainingSeconds)
	}

	lines := [][2]string{
		{"Model", sel.String()},
		{"State", state},
		{"Phase", st.Phase.String()},
		{"Cooldown", cooldown},
		{"Connection", st.Connection.String()},
		{"Session", sessionID},
	}
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%-11s %s", l[0]+":", l[1])
	}
	return b.String()
}

// Preview shortens s to at most n runes, marking the cut with "...".
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 4 {
		return s
	}
	return string(r[:n-3]) + "..."
}
