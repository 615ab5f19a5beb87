// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigrun-stream/internal/commands"
	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/session"
	"github.com/jeranaias/rigrun-stream/internal/ui/styles"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Controller is the session core the view drives.
type Controller interface {
	commands.Session
	SendToAgent(ctx context.Context, text string, opts session.SendOptions) error
	Changes() <-chan struct{}
}

// StatusFeed is the tracked model status.
type StatusFeed interface {
	Status() model.ModelStatus
	Changes() <-chan struct{}
}

// Config wires the view to a session.
type Config struct {
	Ctx        context.Context
	Controller Controller
	Store      commands.SelectionStore
	Status     StatusFeed
	// Feeds are extra change signals that should trigger a redraw.
	Feeds []<-chan struct{}
	// Options supplies the per-request settings at submit time.
	Options func() session.SendOptions
	// Markdown renders assistant answers with glamour.
	Markdown bool
	Theme    *styles.Theme
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	cfg       Config
	theme     *styles.Theme
	registry  *commands.Registry
	completer *commands.Completer

	width  int
	height int
	ready  bool

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	markdown *glamour.TermRenderer

	// Snapshot read on the last change signal.
	state       session.State
	modelStatus model.ModelStatus
	selection   model.Selection

	// notice is feedback from the last submit or command.
	notice string
}

// New creates a chat model.
func New(cfg Config) Model {
	if cfg.Ctx == nil {
		cfg.Ctx = context.Background()
	}
	if cfg.Theme == nil {
		cfg.Theme = styles.NewTheme()
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message, or /help"
	ti.CharLimit = 8192
	ti.PromptStyle = cfg.Theme.InputPrompt
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = cfg.Theme.Spinner

	reg := commands.NewRegistry()
	m := Model{
		cfg:       cfg,
		theme:     cfg.Theme,
		registry:  reg,
		completer: commands.NewCompleter(reg),
		viewport:  viewport.New(80, 20),
		input:     ti,
		spinner:   sp,
	}
	m.refresh()
	return m
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the cursor blink, the spinner and every change listener.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	for i := range m.feeds() {
		cmds = append(cmds, m.listen(i))
	}
	return tea.Batch(cmds...)
}

// changeMsg reports a signal on feed index Feed.
type changeMsg struct {
	Feed int
}

// feeds lists every change channel in a fixed order.
func (m Model) feeds() []<-chan struct{} {
	out := []<-chan struct{}{m.cfg.Controller.Changes()}
	if m.cfg.Status != nil {
		out = append(out, m.cfg.Status.Changes())
	}
	return append(out, m.cfg.Feeds...)
}

// listen waits for the next signal on one feed.
func (m Model) listen(feed int) tea.Cmd {
	ctx := m.cfg.Ctx
	ch := m.feeds()[feed]
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			return changeMsg{Feed: feed}
		}
	}
}

// refresh re-reads the snapshot from the session core.
func (m *Model) refresh() {
	m.state = m.cfg.Controller.State()
	if m.cfg.Status != nil {
		m.modelStatus = m.cfg.Status.Status()
	}
	if m.cfg.Store != nil {
		m.selection = m.cfg.Store.CurrentSelection()
	}
}

func (m *Model) commandContext() *commands.Context {
	return &commands.Context{
		Ctx:     m.cfg.Ctx,
		Session: m.cfg.Controller,
		Store:   m.cfg.Store,
		Status:  m.cfg.Status,
		Options: m.options,
	}
}

func (m *Model) options() session.SendOptions {
	if m.cfg.Options == nil {
		return session.SendOptions{}
	}
	return m.cfg.Options()
}

func (m *Model) setMarkdownWidth(width int) {
	if !m.cfg.Markdown {
		return
	}
	style := "light"
	if m.theme.IsDark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.markdown = nil
		return
	}
	m.markdown = r
}
