// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &GlobalOptions{}

	root := &cobra.Command{
		Use:           "rigrun-stream",
		Short:         "Streaming chat client for a rigrun backend",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "Path to the config file (default ~/.rigrun/stream.toml)")
	flags.StringVar(&opts.BackendURL, "url", "", "Backend base URL")
	flags.StringVar(&opts.Storage, "storage", "", "Storage backend: sqlite, file, redis, or memory")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, or error")

	root.AddCommand(
		newChatCommand(opts),
		newTUICommand(opts),
		newStatusCommand(opts),
		newMemoryCommand(opts),
		newSettingsCommand(opts),
		newModelCommand(opts),
		newSessionCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	root := NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
		var usage *UsageError
		if errors.As(err, &usage) {
			fmt.Fprintln(os.Stderr, DimStyle.Render("Run 'rigrun-stream --help' for usage."))
		}
		return ExitCodeFor(err)
	}
	return ExitSuccess
}

// withApp loads the config, builds the App, and closes it after fn.
func withApp(opts *GlobalOptions, interactive bool, fn func(app *App) error) error {
	cfg, err := LoadConfig(*opts)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, interactive)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
