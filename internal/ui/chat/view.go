// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/offline"
)

const (
	maxSelectionWidth = 32
	maxSessionWidth   = 12
	statusSeparator   = " | "
)

// View renders the chat view.
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderFooter(),
	)
}

// =============================================================================
// HEADER AND FOOTER
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("rigrun-stream")
	sid := truncateCells(m.cfg.Controller.SessionID(), maxSessionWidth)
	return m.theme.Header.Width(m.width).Render(title + "  " + m.theme.Muted.Render("session "+sid))
}

func (m Model) renderFooter() string {
	parts := make([]string, 0, 3)
	if m.notice != "" {
		parts = append(parts, m.theme.Notice.Render(wrapText(m.notice, max(10, m.width-2))))
	}
	parts = append(parts, m.input.View(), m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderStatusBar() string {
	sel := truncateCells(m.selection.String(), maxSelectionWidth)
	provider := m.theme.ProviderCloud.Render(sel)
	if model.IsLocalFamily(m.selection.ProviderID) {
		provider = m.theme.ProviderLocal.Render(sel)
	}

	segments := []string{provider, stateLabel(m)}
	if m.state.RateLimit.Active {
		segments = append(segments, m.theme.Cooldown.Render(fmt.Sprintf("cooldown %ds", m.state.RateLimit.RemainingSeconds)))
	}
	switch m.state.Connection {
	case offline.StatusOnline:
		segments = append(segments, m.theme.Online.Render("online"))
	case offline.StatusOffline:
		segments = append(segments, m.theme.Offline.Render("offline"))
	default:
		segments = append(segments, m.theme.Muted.Render("connecting"))
	}
	if m.state.Awaiting {
		segments = append(segments, m.theme.Muted.Render(m.state.Phase.String()))
	}

	return m.theme.StatusBar.Width(m.width).Render(strings.Join(segments, m.theme.Muted.Render(statusSeparator)))
}

// stateLabel names what the model is doing. Guards take precedence over
// the reported state.
func stateLabel(m Model) string {
	switch {
	case m.state.ProviderBusy:
		return m.theme.Cooldown.Render("busy")
	case m.state.Loading:
		return m.theme.Cooldown.Render("loading")
	case m.state.Unloading:
		return m.theme.Cooldown.Render("unloading")
	case m.modelStatus.State == model.StateError:
		return m.theme.Offline.Render("error")
	case m.modelStatus.State == "":
		return m.theme.Muted.Render("ready")
	default:
		return m.theme.Muted.Render(strings.ToLower(string(m.modelStatus.State)))
	}
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m Model) renderMessages() string {
	if len(m.state.Messages) == 0 {
		return m.theme.Muted.Render("No messages yet. Type below and press Enter.")
	}
	width := max(10, m.width-2)
	blocks := make([]string, 0, len(m.state.Messages))
	for _, msg := range m.state.Messages {
		blocks = append(blocks, m.renderMessage(msg, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderMessage(msg model.Message, width int) string {
	if msg.IsIndicator() {
		return "  " + m.spinner.View() + " " + m.theme.Indicator.Render(wrapText(msg.Content, width-4))
	}
	if msg.Role == model.RoleUser {
		return m.theme.UserLabel.Render(msg.Role.DisplayName()) + "\n" +
			m.theme.MessageBody.Render(wrapText(msg.Content, width))
	}

	label := m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	if info := answerInfo(msg.Metadata); info != "" {
		label += " " + m.theme.Muted.Render(info)
	}
	if msg.IsError() {
		return label + "\n" + m.theme.ErrorMessage.Render(wrapText(msg.Content, width))
	}
	if m.markdown != nil {
		if out, err := m.markdown.Render(msg.Content); err == nil {
			return label + "\n" + strings.Trim(out, "\n")
		}
	}
	return label + "\n" + m.theme.MessageBody.Render(wrapText(msg.Content, width))
}

// answerInfo summarizes where an answer came from.
func answerInfo(meta model.Metadata) string {
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
