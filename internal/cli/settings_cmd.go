// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/storage"
)

// settingKeys lists the keys accepted by settings set, in display order.
var settingKeys = []string{
	"system",
	"persona",
	"no-long-memory",
	"no-memory",
	"unload",
	"markdown",
}

func newSettingsCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the stored request and display settings",
	}

	var jsonMode bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, false, func(app *App) error {
				out := cmd.OutOrStdout()
				return OutputJSON(out, jsonMode, "settings show", func() (interface{}, error) {
					st, err := app.Store.Settings(cmd.Context())
					if err != nil {
						return nil, err
					}
					if !jsonMode {
						printSettings(out, st)
					}
					return st, nil
				})
			})
		},
	}
	show.Flags().BoolVar(&jsonMode, "json", false, "Output in JSON format")

	set := &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Change one setting",
		Long:      "Change one setting. Keys: " + strings.Join(settingKeys, ", ") + ".",
		Args:      exactArgs(2),
		ValidArgs: settingKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, false, func(app *App) error {
				st, err := app.Store.Settings(cmd.Context())
				if err != nil {
					return err
				}
				if err := applySetting(&st, args[0], args[1]); err != nil {
					return err
				}
				if err := app.Store.SaveSettings(cmd.Context(), st); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Saved "+args[0]+"."))
				return nil
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, false, func(app *App) error {
				if err := app.Store.SaveSettings(cmd.Context(), storage.DefaultSettings()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Settings reset."))
				return nil
			})
		},
	}

	cmd.AddCommand(show, set, reset)
	return cmd
}

// applySetting parses value for key into st.
func applySetting(st *storage.Settings, key, value string) error {
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, NewUsageError("%s expects true or false, got %q", key, value)
		}
		return b, nil
	}

	var err error
	switch strings.ToLower(key) {
	case "system":
		st.SystemInstruction = value
	case "persona":
		st.Persona = value
	case "no-long-memory":
		st.DisableLongMemoryRecall, err = parseBool()
	case "no-memory":
		st.DisableAllMemoryRecall, err = parseBool()
	case "unload":
		st.UnloadAfterCall, err = parseBool()
	case "markdown":
		st.RenderMarkdown, err = parseBool()
	default:
		return NewUsageError("unknown setting %q (valid: %s)", key, strings.Join(settingKeys, ", "))
	}
	return err
}

func printSettings(w io.Writer, st storage.Settings) {
	orNone := func(s string) string {
		if s == "" {
			return DimStyle.Render("(none)")
		}
		return s
	}
	fmt.Fprintln(w, RenderLabel("system", orNone(st.SystemInstruction)))
	fmt.Fprintln(w, RenderLabel("persona", orNone(st.Persona)))
	fmt.Fprintln(w, RenderLabel("no-long-memory", strconv.FormatBool(st.DisableLongMemoryRecall)))
	fmt.Fprintln(w, RenderLabel("no-memory", strconv.FormatBool(st.DisableAllMemoryRecall)))
	fmt.Fprintln(w, RenderLabel("unload", strconv.FormatBool(st.UnloadAfterCall)))
	fmt.Fprintln(w, RenderLabel("markdown", strconv.FormatBool(st.RenderMarkdown)))
}

// =============================================================================
// MODEL
// =============================================================================

func newModelCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "model [provider [model]]",
		Short: "Show or change the provider/model selection",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, false, func(app *App) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					fmt.Fprintln(out, app.Store.CurrentSelection().String())
					return nil
				}
				sel := model.Selection{ProviderID: strings.ToLower(args[0])}
				if len(args) == 2 {
					sel.ModelID = args[1]
				}
				if err := app.Store.SetSelection(cmd.Context(), sel); err != nil {
					return err
				}
				fmt.Fprintln(out, SuccessStyle.Render("Switched to "+sel.String()))
				return nil
			})
		},
	}
}
