// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/rigrun-stream/internal/ui/chat"
	"github.com/jeranaias/rigrun-stream/internal/ui/styles"
)

func newTUICommand(opts *GlobalOptions) *cobra.Command {
	var sf sendFlags
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Full-screen chat (the default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUIWith(cmd, opts, &sf)
		},
	}
	sf.register(cmd)
	return cmd
}

// runTUI backs the root command, which has no send flags of its own.
func runTUI(cmd *cobra.Command, opts *GlobalOptions) error {
	return runTUIWith(cmd, opts, &sendFlags{})
}

func runTUIWith(cmd *cobra.Command, opts *GlobalOptions, sf *sendFlags) error {
	if !IsTTY() || !IsStdoutTTY() {
		return NewUsageError("the full-screen chat needs a terminal; use 'rigrun-stream chat' instead")
	}
	return withApp(opts, true, func(app *App) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sess, err := app.StartSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Stop()

		_, settings := SendOptions(ctx, app.Store)
		m := chat.New(chat.Config{
			Ctx:        ctx,
			Controller: sess.Controller,
			Store:      app.Store,
			Status:     sess.Tracker,
			Feeds:      []<-chan struct{}{sess.Limiter.Changes(), app.Monitor.Changes()},
			Options:    sf.options(ctx, cmd, app),
			Markdown:   settings.RenderMarkdown,
			Theme:      styles.NewTheme(),
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := app.Store.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				app.Logger.Warn().Err(err).Msg("Selection watch stopped")
			}
			return nil
		})
		g.Go(func() error {
			defer cancel()
			_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(gctx)).Run()
			if errors.Is(err, tea.ErrProgramKilled) && gctx.Err() != nil {
				return nil
			}
			return err
		})
		return g.Wait()
	})
}
