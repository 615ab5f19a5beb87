// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-stream/internal/commands"
)

func newMemoryCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or clear stored session memory",
	}

	var jsonMode bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions with stored memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, false, func(app *App) error {
				out := cmd.OutOrStdout()
				return OutputJSON(out, jsonMode, "memory list", func() (interface{}, error) {
					ids, err := app.Store.MemorySessions(cmd.Context())
					if err != nil {
						return nil, err
					}
					sort.Strings(ids)
					if !jsonMode {
						if len(ids) == 0 {
							fmt.Fprintln(out, DimStyle.Render("No stored memory."))
						}
						for _, id := range ids {
							fmt.Fprintln(out, id)
						}
					}
					return ids, nil
				})
			})
		},
	}
	list.Flags().BoolVar(&jsonMode, "json", false, "Output in JSON format")

	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show the memory token and chunks for a session",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, false, func(app *App) error {
				out := cmd.OutOrStdout()
				return OutputJSON(out, jsonMode, "memory show", func() (interface{}, error) {
					rec, err := app.Store.Memory(cmd.Context(), args[0])
					if err != nil {
						return nil, err
					}
					if !jsonMode {
						if rec.IsEmpty() {
							fmt.Fprintln(out, DimStyle.Render("No memory stored for this session."))
						} else {
							fmt.Fprintln(out, RenderLabel("Token", rec.Token))
							fmt.Fprintln(out, RenderLabel("Chunks", fmt.Sprint(len(rec.Chunks))))
							for i, c := range rec.Chunks {
								fmt.Fprintf(out, "  %d. %s\n", i+1, commands.Preview(c, 100))
							}
						}
					}
					return MemoryData{SessionID: args[0], Token: rec.Token, Chunks: rec.Chunks}, nil
				})
			})
		},
	}
	show.Flags().BoolVar(&jsonMode, "json", false, "Output in JSON format")

	clear := &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Delete the memory stored for a session",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, false, func(app *App) error {
				if err := app.Store.ClearMemory(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Memory cleared."))
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, clear)
	return cmd
}

// exactArgs is cobra.ExactArgs with usage-error classification.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}
