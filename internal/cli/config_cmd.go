// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-stream/internal/config"
)

func newConfigCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*opts)
			if err != nil {
				return err
			}
			return printTOML(cmd.OutOrStdout(), cfg.String(), ColorsEnabled())
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one config value, e.g. timing.debounce",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*opts)
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				return NewUsageError("%v", err)
			}
			if strings.EqualFold(args[0], "storage.redis_password") && v != "" {
				v = "[REDACTED]"
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.ConfigPath
			if path == "" {
				p, err := config.ConfigPath()
				if err != nil {
					return err
				}
				path = p
				if err := config.EnsureConfigDir(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil && !force {
				return NewUsageError("%s already exists (use --force to overwrite)", path)
			}
			cfg := config.Default()
			cfg.SetDefaults()
			if err := config.SaveTOML(cfg, path); err != nil {
				return &ConfigError{Err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Wrote "+path))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := opts.ConfigPath
			if p == "" {
				var err error
				if p, err = config.ConfigPath(); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}

	cmd.AddCommand(show, get, initCmd, path)
	return cmd
}

// printTOML writes src, highlighted when color is set.
func printTOML(w io.Writer, src string, color bool) error {
	if color {
		if err := quick.Highlight(w, src, "toml", "terminal256", "monokai"); err == nil {
			return nil
		}
	}
	_, err := io.WriteString(w, src)
	return err
}
