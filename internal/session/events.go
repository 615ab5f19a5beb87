// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/transport"
)

// memorySaveTimeout bounds the background memory write after an answer.
const memorySaveTimeout = 5 * time.Second

// =============================================================================
// STREAM
// =============================================================================

func (c *Controller) runStream(ctx context.Context, id uint64, req transport.ChatRequest) {
	err := c.transport.StreamChat(ctx, req, func(ev transport.Event) {
		c.handleStreamEvent(id, ev)
	})
	c.handleStreamEnd(id, err)
}

// handleStreamEvent applies one stream event if id still holds the guard.
func (c *Controller) handleStreamEvent(id uint64, ev transport.Event) {
	c.mu.Lock()
	sub, ok := c.isCurrentLocked(id)
	if !ok || sub.fallbackStarted {
		c.mu.Unlock()
		return
	}

	switch ev.Type {
	case transport.EventAgent:
		c.progressLog.Do(func() {
			c.logger.Debug().Uint64("submission", id).Str("status", ev.Status).Msg("Agent progress")
		})
		sub.agentStatus = ev.Status
		switch {
		case !sub.debounceStarted:
			sub.debounceStarted = true
			sub.debounce = c.clock.AfterFunc(c.cfg.Debounce, func() { c.showIndicator(id) })
		case sub.indicatorShown:
			c.conv.UpdateIndicator(indicatorText(ev.Status))
		}
	case transport.EventAnswer:
		if ev.Answer == nil {
			c.mu.Unlock()
			return
		}
		c.commitAnswerLocked(sub, ev.Answer, "stream")
	case transport.EventError, transport.EventProviderError:
		e := ev.Err
		if e == nil {
			e = &transport.Error{Kind: transport.KindProvider}
		}
		c.commitErrorLocked(sub, e, "stream")
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.notify()
}

// handleStreamEnd runs when the stream call returns. A classified error
// before the stream opened ends the submission; anything else leaves it
// for the fallback.
func (c *Controller) handleStreamEnd(id uint64, err error) {
	c.mu.Lock()
	sub, ok := c.isCurrentLocked(id)
	if !ok || sub.fallbackStarted {
		c.mu.Unlock()
		return
	}
	sub.streamClosed = true

	var streamErr *transport.StreamError
	var tErr *transport.Error
	switch {
	case err != nil && sub.ctx.Err() != nil:
		c.abandonLocked(sub)
		c.mu.Unlock()
		c.notify()
		return
	case err == nil:
		c.logger.Warn().Uint64("submission", id).Msg("Stream ended without an answer; waiting for fallback")
	case errors.As(err, &streamErr):
		c.logger.Warn().Err(err).Uint64("submission", id).Msg("Stream stalled; waiting for fallback")
	case errors.As(err, &tErr):
		c.commitErrorLocked(sub, tErr, "stream")
		c.mu.Unlock()
		c.notify()
		return
	default:
		c.logger.Warn().Err(err).Uint64("submission", id).Msg("Stream failed; waiting for fallback")
	}
	c.mu.Unlock()
}

// showIndicator fires when the debounce elapses.
func (c *Controller) showIndicator(id uint64) {
	c.mu.Lock()
	sub, ok := c.isCurrentLocked(id)
	if !ok || sub.indicatorShown {
		c.mu.Unlock()
		return
	}
	sub.indicatorShown = true
	sub.indicatorAt = c.clock.Now()
	c.conv.ReplaceTrailingIndicator(model.NewIndicatorMessage(indicatorText(sub.agentStatus)))
	if !sub.fallbackStarted {
		c.phase = PhaseIndicator
	}
	c.mu.Unlock()
	c.notify()
}

func indicatorText(status string) string {
	if status == "" {
		return DefaultIndicatorText
	}
	return status
}

// =============================================================================
// FALLBACK
// =============================================================================

// onFallbackTimeout closes the stream and issues the single plain chat call.
func (c *Controller) onFallbackTimeout(id uint64) {
	c.mu.Lock()
	sub, ok := c.isCurrentLocked(id)
	if !ok || sub.fallbackStarted {
		c.mu.Unlock()
		return
	}
	sub.fallbackStarted = true
	stalled := sub.streamClosed
	if sub.streamCancel != nil {
		sub.streamCancel()
	}
	sub.streamClosed = true
	c.phase = PhaseFallback
	ctx, req := sub.ctx, sub.req
	c.mu.Unlock()

	c.logger.Warn().
		Uint64("submission", id).
		Dur("budget", c.cfg.timeoutFor(sub.selection)).
		Bool("stream_ended", stalled).
		Msg("No answer from stream; falling back to plain chat")
	c.notify()

	go func() {
		resp, err := c.transport.Chat(ctx, req)
		c.handleFallbackResult(id, resp, err)
	}()
}

// handleFallbackResult commits the plain chat result if the guard still
// matches.
func (c *Controller) handleFallbackResult(id uint64, resp *transport.ChatResponse, err error) {
	c.mu.Lock()
	sub, ok := c.isCurrentLocked(id)
	if !ok {
		c.mu.Unlock()
		c.logger.Debug().Uint64("submission", id).Msg("Discarding superseded fallback result")
		return
	}

	var tErr *transport.Error
	switch {
	case err == nil && resp != nil:
		c.commitAnswerLocked(sub, resp, "fallback")
	case err != nil && sub.ctx.Err() != nil:
		c.abandonLocked(sub)
	case errors.As(err, &tErr):
		c.commitErrorLocked(sub, tErr, "fallback")
	default:
		msg := "empty response from backend"
		if err != nil {
			msg = err.Error()
		}
		c.commitErrorLocked(sub, &transport.Error{Kind: transport.KindProvider, Message: msg, Err: err}, "fallback")
	}
	c.mu.Unlock()
	c.notify()
}

// =============================================================================
// COMMIT
// =============================================================================

// commitAnswerLocked finishes the submission with an answer. Bookkeeping
// happens now; only the visible replacement may wait for the indicator's
// minimum visible time.
func (c *Controller) commitAnswerLocked(sub *submission, resp *transport.ChatResponse, via string) {
	c.releaseLocked(sub)

	if !resp.Cached && c.cooldown != nil {
		c.cooldown.StartFor(sub.selection)
	}
	if mem := resp.Memory(); !mem.IsEmpty() && c.memory != nil {
		go c.saveMemory(mem)
	}
	if c.connectivity != nil {
		c.connectivity.SetOnline()
	}

	msg := model.NewAssistantMessage(resp.Message, resp.MessageMetadata())
	wait := time.Duration(0)
	if sub.indicatorShown {
		wait = c.cfg.MinVisible - c.clock.Now().Sub(sub.indicatorAt)
	}
	if wait > 0 {
		p := &pendingReplacement{msg: msg}
		p.timer = c.clock.AfterFunc(wait, func() { c.applyPending(p) })
		c.pending = p
		c.phase = PhaseSettling
	} else {
		c.conv.ReplaceTrailingIndicator(msg)
	}

	c.logger.Info().
		Uint64("submission", sub.id).
		Str("via", via).
		Bool("cached", resp.Cached).
		Str("model", resp.Model).
		Dur("delay", wait).
		Msg("Answer received")
}

// commitErrorLocked finishes the submission with a classified failure.
func (c *Controller) commitErrorLocked(sub *submission, e *transport.Error, via string) {
	c.releaseLocked(sub)

	log := c.logger.Warn().
		Uint64("submission", sub.id).
		Str("via", via).
		Str("kind", e.Kind.String()).
		Int("status", e.Status)

	switch {
	case e.Kind == transport.KindRateLimit && sub.selection.IsLocal():
		if c.status != nil {
			c.status.MarkProviderBusy(c.cfg.BusyNotice)
		}
		c.conv.DropTrailingIndicator()
		log.Msg("Local provider busy")
	case e.Kind == transport.KindRateLimit:
		if c.cooldown != nil {
			c.cooldown.StartFor(sub.selection)
		}
		c.conv.ReplaceTrailingIndicator(model.NewErrorMessage(c.cfg.RateLimitMessage))
		log.Msg("Rate limited")
	case e.Kind == transport.KindConnection:
		if c.connectivity != nil {
			c.connectivity.SetOffline(e.Message)
		}
		c.conv.DropTrailingIndicator()
		log.Str("reason", e.Message).Msg("Backend unreachable")
	default:
		text := e.Message
		if text == "" {
			text = e.Error()
		}
		c.conv.ReplaceTrailingIndicator(model.NewErrorMessage(text))
		log.Str("message", e.Message).Msg("Provider error")
	}
}

// abandonLocked ends a submission whose context was cancelled by the caller.
func (c *Controller) abandonLocked(sub *submission) {
	c.releaseLocked(sub)
	c.conv.DropTrailingIndicator()
	c.logger.Info().Uint64("submission", sub.id).Msg("Submission abandoned")
}

// applyPending shows a delayed answer once its wait elapses.
func (c *Controller) applyPending(p *pendingReplacement) {
	c.mu.Lock()
	if c.pending != p {
		c.mu.Unlock()
		return
	}
	c.conv.ReplaceTrailingIndicator(p.msg)
	c.pending = nil
	if c.active == nil {
		c.phase = PhaseIdle
	}
	c.mu.Unlock()
	c.notify()
}

// flushPendingLocked shows a delayed answer immediately.
func (c *Controller) flushPendingLocked() {
	p := c.pending
	if p == nil {
		return
	}
	p.timer.Stop()
	c.pending = nil
	c.conv.ReplaceTrailingIndicator(p.msg)
	if c.active == nil {
		c.phase = PhaseIdle
	}
}

func (c *Controller) saveMemory(rec model.MemoryRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), memorySaveTimeout)
	defer cancel()
	if err := c.memory.SaveMemory(ctx, c.sessionID, rec); err != nil {
		c.logger.Error().Err(err).Msg("Failed to save memory")
	}
}
