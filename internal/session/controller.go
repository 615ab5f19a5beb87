// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigrun-stream/internal/clock"
	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/offline"
	"github.com/jeranaias/rigrun-stream/internal/ratelimit"
	"github.com/jeranaias/rigrun-stream/internal/transport"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Transport is the backend the controller talks to.
type Transport interface {
	StreamChat(ctx context.Context, req transport.ChatRequest, fn func(transport.Event)) error
	Chat(ctx context.Context, req transport.ChatRequest) (*transport.ChatResponse, error)
}

// MemoryStore persists the memory token between requests.
type MemoryStore interface {
	Memory(ctx context.Context, sessionID string) (model.MemoryRecord, error)
	SaveMemory(ctx context.Context, sessionID string, rec model.MemoryRecord) error
}

// StatusSource reports whether the selected model can take a request.
type StatusSource interface {
	IsLoading() bool
	IsUnloading() bool
	IsProviderBusy() bool
	MarkProviderBusy(d time.Duration)
}

// Cooldown is the post-answer rate limit.
type Cooldown interface {
	StartFor(sel model.Selection)
	Active() bool
	State() ratelimit.State
}

// Connectivity receives backend reachability.
type Connectivity interface {
	SetOnline()
	SetOffline(reason string)
	Status() offline.Status
}

// Deps bundles the collaborators of a Controller.
type Deps struct {
	Transport    Transport
	Memory       MemoryStore
	Status       StatusSource
	Cooldown     Cooldown
	Connectivity Connectivity
	Selection    model.SelectionFunc
	Clock        clock.Clock
	Logger       zerolog.Logger
}

// =============================================================================
// CONFIG
// =============================================================================

// DefaultRateLimitMessage replaces the pending reply on a remote rate limit.
const DefaultRateLimitMessage = "Rate limit reached. Please wait a minute before sending another message."

// DefaultIndicatorText is shown when the backend sends an empty progress event.
const DefaultIndicatorText = "Thinking..."

// Config holds the controller's timings.
type Config struct {
	// Debounce delays the progress indicator after the first agent event (default: 300ms).
	Debounce time.Duration
	// MinVisible is the shortest time an indicator stays on screen (default: 450ms).
	MinVisible time.Duration
	// BusyNotice is how long a local rate limit shows as busy (default: 3 seconds).
	BusyNotice time.Duration

	// Fallback budgets, measured from submission start.
	LocalTimeout   time.Duration // default: 30 seconds
	BuiltinTimeout time.Duration // default: 15 seconds
	OtherTimeout   time.Duration // default: 20 seconds

	RateLimitMessage string
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:         300 * time.Millisecond,
		MinVisible:       450 * time.Millisecond,
		BusyNotice:       3 * time.Second,
		LocalTimeout:     30 * time.Second,
		BuiltinTimeout:   15 * time.Second,
		OtherTimeout:     20 * time.Second,
		RateLimitMessage: DefaultRateLimitMessage,
	}
}

// timeoutFor returns the fallback budget for a selection.
func (c Config) timeoutFor(sel model.Selection) time.Duration {
	switch {
	case model.IsLocalFamily(sel.ProviderID):
		return c.LocalTimeout
	case sel.Kind() == model.ProviderKindBuiltin:
		return c.BuiltinTimeout
	default:
		return c.OtherTimeout
	}
}

// =============================================================================
// PHASE
// =============================================================================

// Phase is the lifecycle position of the current submission.
type Phase int

const (
	PhaseIdle Phase = iota
	// PhaseGuarding covers memory lookup before the stream opens.
	PhaseGuarding
	PhaseStreaming
	// PhaseIndicator means the progress indicator is visible.
	PhaseIndicator
	// PhaseFallback means the stream timed out and the plain chat call is running.
	PhaseFallback
	// PhaseSettling means the answer is committed but its display is delayed.
	PhaseSettling
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseGuarding:
		return "guarding"
	case PhaseStreaming:
		return "streaming"
	case PhaseIndicator:
		return "indicator"
	case PhaseFallback:
		return "fallback"
	case PhaseSettling:
		return "settling"
	default:
		return "idle"
	}
}

// =============================================================================
// STATE SNAPSHOT
// =============================================================================

// State is what the presentation layer renders.
type State struct {
	Messages     []model.Message
	Awaiting     bool
	Phase        Phase
	RateLimit    ratelimit.State
	Loading      bool
	Unloading    bool
	ProviderBusy bool
	Connection   offline.Status
}

// =============================================================================
// CONTROLLER
// =============================================================================

// SendOptions are the per-request settings.
type SendOptions struct {
	SystemInstruction       string
	Persona                 string
	DisableLongMemoryRecall bool
	DisableAllMemoryRecall  bool
	UnloadAfterCall         bool
}

// submission is the in-flight request guard plus its bookkeeping.
type submission struct {
	id        uint64
	text      string
	selection model.Selection
	startedAt time.Time
	req       transport.ChatRequest

	ctx          context.Context
	cancel       context.CancelFunc
	streamCancel context.CancelFunc

	debounce clock.Timer
	fallback clock.Timer

	debounceStarted bool
	indicatorShown  bool
	indicatorAt     time.Time
	agentStatus     string

	streamClosed    bool
	fallbackStarted bool
	done            bool
}

// pendingReplacement is an answer waiting out the indicator's minimum
// visible time.
type pendingReplacement struct {
	msg   model.Message
	timer clock.Timer
}

// Controller owns the conversation and the submission state machine.
type Controller struct {
	mu sync.Mutex

	cfg       Config
	sessionID string

	transport    Transport
	memory       MemoryStore
	status       StatusSource
	cooldown     Cooldown
	connectivity Connectivity
	selection    model.SelectionFunc
	clock        clock.Clock
	logger       zerolog.Logger

	conv     *model.Conversation
	phase    Phase
	awaiting bool
	active   *submission
	pending  *pendingReplacement
	lastText string
	nextID   uint64

	progressLog rate.Sometimes
	changes     chan struct{}
}

// NewController creates a controller for one backend session.
func NewController(cfg Config, sessionID string, deps Deps) *Controller {
	if cfg.RateLimitMessage == "" {
		cfg.RateLimitMessage = DefaultRateLimitMessage
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	sel := deps.Selection
	if sel == nil {
		sel = func() model.Selection { return model.Selection{ProviderID: model.ProviderLocal} }
	}
	return &Controller{
		cfg:          cfg,
		sessionID:    sessionID,
		transport:    deps.Transport,
		memory:       deps.Memory,
		status:       deps.Status,
		cooldown:     deps.Cooldown,
		connectivity: deps.Connectivity,
		selection:    sel,
		clock:        clk,
		logger:       deps.Logger.With().Str("component", "session").Logger(),
		conv:         model.NewConversation(),
		progressLog:  rate.Sometimes{First: 1, Interval: 2 * time.Second},
		changes:      make(chan struct{}, 1),
	}
}

// SessionID returns the backend session the controller is bound to.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// State returns a snapshot for rendering.
func (c *Controller) State() State {
	c.mu.Lock()
	st := State{
		Messages: c.conv.Messages(),
		Awaiting: c.awaiting,
		Phase:    c.phase,
	}
	c.mu.Unlock()

	if c.cooldown != nil {
		st.RateLimit = c.cooldown.State()
	}
	if c.status != nil {
		st.Loading = c.status.IsLoading()
		st.Unloading = c.status.IsUnloading()
		st.ProviderBusy = c.status.IsProviderBusy()
	}
	if c.connectivity != nil {
		st.Connection = c.connectivity.Status()
	}
	return st
}

// Messages returns a copy of the conversation.
func (c *Controller) Messages() []model.Message {
	return c.conv.Messages()
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// IsAwaiting reports whether a reply is outstanding.
func (c *Controller) IsAwaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaiting
}

// LastSent returns the text of the last accepted submission.
func (c *Controller) LastSent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastText
}

// Changes signals after every conversation or phase change. Signals coalesce.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// isCurrentLocked reports whether id still holds the guard.
func (c *Controller) isCurrentLocked(id uint64) (*submission, bool) {
	sub := c.active
	if sub == nil || sub.id != id || sub.done {
		return nil, false
	}
	return sub, true
}

// releaseLocked ends the submission: timers stop, the context is cancelled,
// and the guard is released.
func (c *Controller) releaseLocked(sub *submission) {
	sub.done = true
	if sub.debounce != nil {
		sub.debounce.Stop()
	}
	if sub.fallback != nil {
		sub.fallback.Stop()
	}
	if sub.cancel != nil {
		sub.cancel()
	}
	if c.active == sub {
		c.active = nil
	}
	c.awaiting = false
	if c.pending != nil {
		c.phase = PhaseSettling
	} else {
		c.phase = PhaseIdle
	}
}
