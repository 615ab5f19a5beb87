// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"sync"
	"time"

	"github.com/jeranaias/rigrun-stream/internal/clock"
	"github.com/jeranaias/rigrun-stream/internal/model"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config holds countdown settings.
type Config struct {
	// Cooldown is the countdown length (default: 60 seconds).
	Cooldown time.Duration
	// Tick is the decrement interval (default: 1 second).
	Tick time.Duration
}

// DefaultConfig returns the default cooldown configuration.
func DefaultConfig() Config {
	return Config{
		Cooldown: 60 * time.Second,
		Tick:     time.Second,
	}
}

// State is a snapshot of the countdown.
type State struct {
	Active           bool
	RemainingSeconds int
}

// =============================================================================
// TIMER
// =============================================================================

// Timer counts down from the cooldown length once per tick and clears
// itself at zero.
type Timer struct {
	mu        sync.Mutex
	clock     clock.Clock
	selection model.SelectionFunc
	ticks     int
	tick      time.Duration

	active    bool
	remaining int
	pending   clock.Timer
	gen       uint64

	changes chan struct{}
}

// New creates a Timer. selection is consulted on every Start, never on StartFor.
func New(cfg Config, clk clock.Clock, selection model.SelectionFunc) *Timer {
	def := DefaultConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	ticks := int(cfg.Cooldown / cfg.Tick)
	if ticks < 1 {
		ticks = 1
	}
	return &Timer{
		clock:     clk,
		selection: selection,
		ticks:     ticks,
		tick:      cfg.Tick,
		changes:   make(chan struct{}, 1),
	}
}

// Start begins (or restarts) the countdown. It does nothing while the local
// provider is selected. The selection lookup may touch storage; callers
// holding a lock should use StartFor.
func (t *Timer) Start() {
	sel := model.Selection{}
	if t.selection != nil {
		sel = t.selection()
	}
	t.StartFor(sel)
}

// StartFor begins (or restarts) the countdown for a known selection. It
// does nothing for the local provider.
func (t *Timer) StartFor(sel model.Selection) {
	if sel.IsLocal() {
		return
	}

	t.mu.Lock()
	t.stopLocked()
	t.gen++
	t.active = true
	t.remaining = t.ticks
	t.scheduleLocked(t.gen)
	t.mu.Unlock()

	t.notify()
}

// Reset clears the countdown immediately.
func (t *Timer) Reset() {
	t.mu.Lock()
	wasActive := t.active
	t.stopLocked()
	t.gen++
	t.active = false
	t.remaining = 0
	t.mu.Unlock()

	if wasActive {
		t.notify()
	}
}

// State returns the current countdown state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{Active: t.active, RemainingSeconds: t.remaining}
}

// Active reports whether the countdown is running.
func (t *Timer) Active() bool {
	return t.State().Active
}

// Changes signals after every tick, start, and reset. Signals coalesce.
func (t *Timer) Changes() <-chan struct{} {
	return t.changes
}

func (t *Timer) scheduleLocked(gen uint64) {
	t.pending = t.clock.AfterFunc(t.tick, func() { t.onTick(gen) })
}

func (t *Timer) onTick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.active {
		t.mu.Unlock()
		return
	}
	t.remaining--
	if t.remaining <= 0 {
		t.remaining = 0
		t.active = false
		t.pending = nil
	} else {
		t.scheduleLocked(gen)
	}
	t.mu.Unlock()

	t.notify()
}

func (t *Timer) stopLocked() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *Timer) notify() {
	select {
	case t.changes <- struct{}{}:
	default:
	}
}
