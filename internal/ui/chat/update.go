// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigrun-stream/internal/commands"
	"github.com/jeranaias/rigrun-stream/internal/session"
)

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(10, msg.Width-4)
		m.setMarkdownWidth(max(20, msg.Width-4))
		m.ready = true
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case changeMsg:
		m.refresh()
		m.layout()
		return m, m.listen(msg.Feed)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.hasIndicator() {
			m.renderTranscript()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.state.Awaiting {
			m.cancel()
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEsc:
		if m.state.Awaiting {
			m.cancel()
		}
		return m, nil

	case tea.KeyEnter:
		return m.submit()

	case tea.KeyTab:
		if cands := m.completer.Complete(m.input.Value()); len(cands) == 1 {
			m.input.SetValue(cands[0] + " ")
			m.input.CursorEnd()
		}
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyCtrlU, tea.KeyCtrlD:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) cancel() {
	if m.cfg.Controller.Cancel() {
		m.notice = "Request cancelled."
	}
	m.refresh()
	m.layout()
}

// =============================================================================
// SUBMIT
// =============================================================================

// submit sends the input or runs it as a command. A rejected message stays
// in the input so it can be sent again.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}

	if commands.IsCommand(text) {
		res := m.registry.Execute(m.commandContext(), m.registry.Parse(text))
		if res.Quit {
			return m, tea.Quit
		}
		m.input.Reset()
		m.notice = resultText(res)
		m.refresh()
		m.layout()
		return m, nil
	}

	err := m.cfg.Controller.SendToAgent(m.cfg.Ctx, text, m.options())
	switch {
	case err == nil:
		m.input.Reset()
		m.notice = ""
	case session.IsRejection(err):
		m.notice = "Not sent: " + err.Error()
	default:
		m.notice = "Error: " + err.Error()
	}
	m.refresh()
	m.layout()
	return m, nil
}

func resultText(res commands.Result) string {
	switch {
	case res.Err == nil:
		return res.Output
	case session.IsRejection(res.Err):
		return "Not sent: " + res.Err.Error()
	default:
		return "Error: " + res.Err.Error()
	}
}

// =============================================================================
// LAYOUT
// =============================================================================

// layout sizes the viewport to what the header and footer leave over and
// re-renders the transcript.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	chrome := lipgloss.Height(m.renderHeader()) + lipgloss.Height(m.renderFooter())
	m.viewport.Width = m.width
	m.viewport.Height = max(1, m.height-chrome)
	m.renderTranscript()
}

func (m *Model) renderTranscript() {
	atBottom := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(m.renderMessages())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) hasIndicator() bool {
	n := len(m.state.Messages)
	return n > 0 && m.state.Messages[n-1].IsIndicator()
}
