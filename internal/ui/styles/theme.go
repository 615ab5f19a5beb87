// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components of the TUI.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style

	// Messages
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	MessageBody    lipgloss.Style
	ErrorMessage   lipgloss.Style
	Indicator      lipgloss.Style
	Spinner        lipgloss.Style

	// Input
	InputPrompt lipgloss.Style
	Notice      lipgloss.Style

	// Status bar
	StatusBar     lipgloss.Style
	ProviderLocal lipgloss.Style
	ProviderCloud lipgloss.Style
	Online        lipgloss.Style
	Offline       lipgloss.Style
	Cooldown      lipgloss.Style
	Muted         lipgloss.Style
}

// NewTheme creates a theme for the attached terminal.
func NewTheme() *Theme {
	return NewThemeWithProfile(termenv.ColorProfile(), termenv.HasDarkBackground())
}

// NewThemeWithProfile creates a theme for a fixed color profile.
func NewThemeWithProfile(profile termenv.Profile, dark bool) *Theme {
	lipgloss.SetColorProfile(profile)
	lipgloss.SetHasDarkBackground(dark)

	t := &Theme{IsDark: dark, ColorProfile: profile}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.UserLabel = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.AssistantLabel = lipgloss.NewStyle().Foreground(Purple).Bold(true)
	t.MessageBody = lipgloss.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.ErrorMessage = lipgloss.NewStyle().Foreground(Rose).PaddingLeft(2)
	t.Indicator = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)
	t.Spinner = lipgloss.NewStyle().Foreground(Purple)

	t.InputPrompt = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.Notice = lipgloss.NewStyle().Foreground(Amber)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.ProviderLocal = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.ProviderCloud = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.Online = lipgloss.NewStyle().Foreground(Emerald)
	t.Offline = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.Cooldown = lipgloss.NewStyle().Foreground(Amber)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
}
