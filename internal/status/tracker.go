// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package status

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/rigrun-stream/internal/clock"
	"github.com/jeranaias/rigrun-stream/internal/model"
)

// =============================================================================
// INTERFACES
// =============================================================================

// Source delivers status from the backend.
type Source interface {
	StreamModelStatus(ctx context.Context, sel model.Selection, fn func(model.ModelStatus)) error
	FetchModelStatus(ctx context.Context, sel model.Selection) (model.ModelStatus, error)
}

// SelectionNotifier reports selection changes.
type SelectionNotifier interface {
	SubscribeSelection(fn func(model.Selection)) (unsubscribe func())
}

// =============================================================================
// CONFIG
// =============================================================================

// Config holds tracker timings.
type Config struct {
	// StreamRetryDelay is the wait between a failed status stream and the
	// switch to polling (default: 5 seconds).
	StreamRetryDelay time.Duration
	// LocalPollInterval applies to the local provider family (default: 10 seconds).
	LocalPollInterval time.Duration
	// RemotePollInterval applies to every other provider (default: 15 seconds).
	RemotePollInterval time.Duration
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		StreamRetryDelay:   5 * time.Second,
		LocalPollInterval:  10 * time.Second,
		RemotePollInterval: 15 * time.Second,
	}
}

// Mode is the tracker's current operating mode.
type Mode int

const (
	ModeStopped Mode = iota
	ModeStreaming
	ModeWaitingRetry
	ModePolling
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeStreaming:
		return "streaming"
	case ModeWaitingRetry:
		return "waiting-retry"
	case ModePolling:
		return "polling"
	default:
		return "stopped"
	}
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker holds the current ModelStatus for the selected provider/model.
type Tracker struct {
	mu        sync.Mutex
	cfg       Config
	clock     clock.Clock
	source    Source
	selection model.SelectionFunc
	logger    zerolog.Logger

	status model.ModelStatus
	sel    model.Selection
	mode   Mode

	// gen increments on every restart; callbacks carrying an older value
	// are discarded.
	gen     uint64
	baseCtx context.Context
	cancel  context.CancelFunc
	pending clock.Timer

	busy      bool
	busyGen   uint64
	busyTimer clock.Timer

	unsubscribe func()
	changes     chan struct{}
}

// New creates a stopped Tracker.
func New(cfg Config, clk clock.Clock, source Source, selection model.SelectionFunc, logger zerolog.Logger) *Tracker {
	def := DefaultConfig()
	if cfg.StreamRetryDelay <= 0 {
		cfg.StreamRetryDelay = def.StreamRetryDelay
	}
	if cfg.LocalPollInterval <= 0 {
		cfg.LocalPollInterval = def.LocalPollInterval
	}
	if cfg.RemotePollInterval <= 0 {
		cfg.RemotePollInterval = def.RemotePollInterval
	}
	return &Tracker{
		cfg:       cfg,
		clock:     clk,
		source:    source,
		selection: selection,
		logger:    logger.With().Str("component", "status").Logger(),
		changes:   make(chan struct{}, 1),
	}
}

// Start begins tracking the current selection. If notifier is non-nil the
// tracker restarts whenever it reports a selection change. ctx bounds every
// network call the tracker makes.
func (t *Tracker) Start(ctx context.Context, notifier SelectionNotifier) {
	sel := t.selection()
	t.mu.Lock()
	t.baseCtx = ctx
	t.restartLocked(sel)
	t.mu.Unlock()

	t.mu.Lock()
	subscribed := t.unsubscribe != nil
	t.mu.Unlock()
	if notifier != nil && !subscribed {
		unsubscribe := notifier.SubscribeSelection(func(model.Selection) { t.Restart() })
		t.mu.Lock()
		t.unsubscribe = unsubscribe
		t.mu.Unlock()
	}
	t.notify()
}

// Restart tears down the current stream or poll loop and starts the mode
// matching the current selection.
func (t *Tracker) Restart() {
	t.restartFor(t.selection())
}

// restartFor restarts tracking for sel. The selection is resolved by the
// caller so no storage read happens under t.mu.
func (t *Tracker) restartFor(sel model.Selection) {
	t.mu.Lock()
	if t.baseCtx == nil {
		t.mu.Unlock()
		return
	}
	t.restartLocked(sel)
	t.mu.Unlock()
	t.notify()
}

// Stop halts tracking and drops the selection subscription.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.teardownLocked()
	t.mode = ModeStopped
	t.baseCtx = nil
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	if t.busyTimer != nil {
		t.busyTimer.Stop()
		t.busyTimer = nil
	}
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (t *Tracker) teardownLocked() {
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *Tracker) restartLocked(sel model.Selection) {
	t.teardownLocked()
	gen := t.gen
	t.sel = sel
	ctx, cancel := context.WithCancel(t.baseCtx)
	t.cancel = cancel

	t.logger.Debug().Str("selection", t.sel.String()).Msg("tracking model status")

	if t.sel.IsLocal() {
		t.status = model.ModelStatus{
			ProviderID: t.sel.ProviderID,
			ModelID:    t.sel.ModelID,
			State:      model.StateIdle,
			Timestamp:  t.clock.Now(),
		}
		t.mode = ModeStreaming
		go t.runStream(ctx, gen, t.sel)
		return
	}
	t.mode = ModePolling
	t.pollLocked(ctx, gen)
}

// =============================================================================
// STREAM MODE
// =============================================================================

func (t *Tracker) runStream(ctx context.Context, gen uint64, sel model.Selection) {
	err := t.source.StreamModelStatus(ctx, sel, func(st model.ModelStatus) {
		t.apply(gen, st)
	})
	if ctx.Err() != nil {
		return
	}

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.logger.Warn().Err(err).Dur("retry_in", t.cfg.StreamRetryDelay).Msg("status stream ended, falling back to polling")
	t.mode = ModeWaitingRetry
	t.pending = t.clock.AfterFunc(t.cfg.StreamRetryDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if gen != t.gen {
			return
		}
		t.mode = ModePolling
		t.pollLocked(ctx, gen)
	})
	t.mu.Unlock()
	t.notify()
}

// =============================================================================
// POLL MODE
// =============================================================================

// pollLocked refreshes the status once and schedules the next poll. The
// local family asks the backend; other providers get a synthesized status.
func (t *Tracker) pollLocked(ctx context.Context, gen uint64) {
	sel := t.sel
	interval := t.cfg.RemotePollInterval
	if model.IsLocalFamily(sel.ProviderID) {
		interval = t.cfg.LocalPollInterval
		go t.fetch(ctx, gen, sel)
	} else {
		t.status = model.ReadyStatus(sel, t.clock.Now())
		t.notify()
	}

	t.pending = t.clock.AfterFunc(interval, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if gen != t.gen {
			return
		}
		t.pollLocked(ctx, gen)
	})
}

func (t *Tracker) fetch(ctx context.Context, gen uint64, sel model.Selection) {
	st, err := t.source.FetchModelStatus(ctx, sel)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		t.logger.Debug().Err(err).Msg("status poll failed")
		st = model.ModelStatus{
			ProviderID: sel.ProviderID,
			ModelID:    sel.ModelID,
			State:      model.StateError,
			Message:    err.Error(),
		}
	}
	t.apply(gen, st)
}

// apply replaces the status if gen is still current.
func (t *Tracker) apply(gen uint64, st model.ModelStatus) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	if st.Timestamp.IsZero() {
		st.Timestamp = t.clock.Now()
	}
	t.status = st
	t.mu.Unlock()
	t.notify()
}

// =============================================================================
// BUSY NOTICE
// =============================================================================

// MarkProviderBusy raises the busy notice for d. A later call extends it.
func (t *Tracker) MarkProviderBusy(d time.Duration) {
	t.mu.Lock()
	if t.busyTimer != nil {
		t.busyTimer.Stop()
	}
	t.busyGen++
	gen := t.busyGen
	t.busy = true
	t.busyTimer = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if gen != t.busyGen {
			t.mu.Unlock()
			return
		}
		t.busy = false
		t.busyTimer = nil
		t.mu.Unlock()
		t.notify()
	})
	t.mu.Unlock()
	t.notify()
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Status returns the current status.
func (t *Tracker) Status() model.ModelStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Mode returns the operating mode.
func (t *Tracker) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// IsLoading reports whether the selected model is loading.
func (t *Tracker) IsLoading() bool {
	return t.Status().IsLoading()
}

// IsUnloading reports whether the selected model is unloading.
func (t *Tracker) IsUnloading() bool {
	return t.Status().IsUnloading()
}

// IsProviderBusy reports whether the busy notice is showing.
func (t *Tracker) IsProviderBusy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

// Changes signals after every status, mode, or busy change. Signals coalesce.
func (t *Tracker) Changes() <-chan struct{} {
	return t.changes
}

func (t *Tracker) notify() {
	select {
	case t.changes <- struct{}{}:
	default:
	}
}
