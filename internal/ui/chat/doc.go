// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the full-screen chat view for rigrun-stream.

The view is a Bubble Tea model over a session.Controller. It owns no
conversation state of its own: every render reads the controller's
snapshot, so the transcript, the progress indicator and the status bar
always agree with the session core.

# Key Components

## Model (model.go)

Holds the viewport, text input and spinner, plus the change feeds it
listens on (controller, status tracker, cooldown timer, connectivity).

## Update Loop (update.go)

  - Enter submits the input, or runs it as a slash command
  - Tab completes command names
  - Ctrl+C and Esc cancel the reply in flight; Ctrl+C on an idle view quits
  - Each change signal re-reads the snapshot and re-arms its listener

## View Rendering (view.go)

Header, transcript, input line and a status bar showing the selection,
the model state, the cooldown countdown and the connection.

# Usage

	m := chat.New(chat.Config{
		Ctx:        ctx,
		Controller: ctrl,
		Store:      store,
		Status:     tracker,
		Feeds:      []<-chan struct{}{limiter.Changes(), monitor.Changes()},
		Options:    opts,
		Theme:      styles.NewTheme(),
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
*/
package chat
