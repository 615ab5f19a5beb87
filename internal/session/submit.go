// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/transport"
)

// =============================================================================
// SUBMISSION
// =============================================================================

// SendToAgent submits text. It returns a rejection error, with no other
// effect, when a guard fails; otherwise the exchange proceeds in the
// background and ctx bounds its lifetime.
func (c *Controller) SendToAgent(ctx context.Context, text string, opts SendOptions) error {
	text = normalizeText(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return c.submit(ctx, text, opts, false)
}

// RetryLastMessage removes the last exchange and resends its text.
func (c *Controller) RetryLastMessage(ctx context.Context, opts SendOptions) error {
	return c.submit(ctx, "", opts, true)
}

func (c *Controller) submit(ctx context.Context, text string, opts SendOptions, retry bool) error {
	sel := c.selection()

	c.mu.Lock()
	if retry {
		if c.lastText == "" {
			c.mu.Unlock()
			return ErrNothingToRetry
		}
		text = c.lastText
	}
	if err := c.guardLocked(text, sel); err != nil {
		c.mu.Unlock()
		c.logger.Debug().Err(err).Bool("retry", retry).Msg("Submission rejected")
		return err
	}

	c.flushPendingLocked()
	if retry {
		c.removeLastExchangeLocked()
	}

	c.nextID++
	subCtx, cancel := context.WithCancel(ctx)
	sub := &submission{
		id:        c.nextID,
		text:      text,
		selection: sel,
		startedAt: c.clock.Now(),
		ctx:       subCtx,
		cancel:    cancel,
	}
	c.active = sub
	c.awaiting = true
	c.phase = PhaseGuarding
	c.lastText = text
	c.conv.Append(model.NewUserMessage(text))
	c.mu.Unlock()
	c.notify()

	var mem model.MemoryRecord
	if !opts.DisableAllMemoryRecall && c.memory != nil {
		rec, err := c.memory.Memory(subCtx, c.sessionID)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to read memory; sending without it")
		} else {
			mem = rec
		}
	}

	c.mu.Lock()
	if _, ok := c.isCurrentLocked(sub.id); !ok {
		c.mu.Unlock()
		return nil
	}
	sub.req = c.buildRequest(text, sel, mem, opts)

	streamCtx, streamCancel := context.WithCancel(subCtx)
	sub.streamCancel = streamCancel
	c.phase = PhaseStreaming

	budget := c.cfg.timeoutFor(sel) - c.clock.Now().Sub(sub.startedAt)
	id := sub.id
	sub.fallback = c.clock.AfterFunc(budget, func() { c.onFallbackTimeout(id) })
	req := sub.req
	c.mu.Unlock()

	c.logger.Info().
		Uint64("submission", id).
		Str("selection", sel.String()).
		Bool("memory", mem.Token != "").
		Msg("Submission started")

	go c.runStream(streamCtx, id, req)
	return nil
}

// guardLocked applies the submission guards in order.
func (c *Controller) guardLocked(text string, sel model.Selection) error {
	if c.active != nil {
		if c.active.text == text {
			return ErrDuplicateSubmission
		}
		return ErrSubmissionInFlight
	}
	if c.status != nil && (c.status.IsLoading() || c.status.IsUnloading() || c.status.IsProviderBusy()) {
		return ErrModelBusy
	}
	if c.cooldown != nil && c.cooldown.Active() && !sel.IsLocal() {
		return ErrRateLimited
	}
	return nil
}

// removeLastExchangeLocked drops the trailing user message and its reply.
func (c *Controller) removeLastExchangeLocked() {
	msgs := c.conv.Messages()
	n := len(msgs)
	switch {
	case n >= 2 && msgs[n-1].Role == model.RoleAssistant && msgs[n-2].Role == model.RoleUser:
		c.conv.RemoveTrailing(2)
	case n >= 1 && msgs[n-1].Role == model.RoleUser:
		c.conv.RemoveTrailing(1)
	}
}

func (c *Controller) buildRequest(text string, sel model.Selection, mem model.MemoryRecord, opts SendOptions) transport.ChatRequest {
	req := transport.ChatRequest{
		Message:                 text,
		MemoryToken:             mem.Token,
		DisableLongMemoryRecall: opts.DisableLongMemoryRecall,
		DisableAllMemoryRecall:  opts.DisableAllMemoryRecall,
		SystemPrompt:            ComposeSystemPrompt(opts.SystemInstruction, opts.Persona),
		SessionID:               c.sessionID,
		ProviderID:              sel.ProviderID,
		ModelID:                 sel.ModelID,
	}
	if sel.IsLocal() {
		req.UnloadAfterCall = opts.UnloadAfterCall
	}
	return req
}

// ComposeSystemPrompt joins the system instruction and persona with a
// blank line. Either may be empty.
func ComposeSystemPrompt(instruction, persona string) string {
	instruction = strings.TrimSpace(instruction)
	persona = strings.TrimSpace(persona)
	switch {
	case instruction != "" && persona != "":
		return instruction + "\n\n" + persona
	case instruction != "":
		return instruction
	default:
		return persona
	}
}

func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// =============================================================================
// CANCEL AND CLEAR
// =============================================================================

// Cancel abandons the submission in flight. Later stream or fallback
// results are discarded. Returns false if nothing was in flight.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	sub := c.active
	if sub == nil {
		c.mu.Unlock()
		return false
	}
	c.releaseLocked(sub)
	c.conv.DropTrailingIndicator()
	c.mu.Unlock()

	c.logger.Info().Uint64("submission", sub.id).Msg("Submission cancelled")
	c.notify()
	return true
}

// ClearMessages empties the conversation and forgets the last text. A
// delayed answer display is dropped. The submission in flight, if any, is
// left running.
func (c *Controller) ClearMessages() {
	c.mu.Lock()
	if c.pending != nil {
		c.pending.timer.Stop()
		c.pending = nil
		if c.active == nil {
			c.phase = PhaseIdle
		}
	}
	c.conv.Clear()
	c.lastText = ""
	c.mu.Unlock()
	c.notify()
}
