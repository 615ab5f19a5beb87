// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/transport"
)

// statusTimeout bounds the one-shot status request.
const statusTimeout = 10 * time.Second

func newStatusCommand(opts *GlobalOptions) *cobra.Command {
	var jsonMode bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the backend and model status for the current selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, false, func(app *App) error {
				out := cmd.OutOrStdout()
				return OutputJSON(out, jsonMode, "status", func() (interface{}, error) {
					data, err := collectStatus(cmd.Context(), app)
					if err != nil {
						return nil, err
					}
					if !jsonMode {
						printStatus(out, data)
					}
					return data, nil
				})
			})
		},
	}
	cmd.Flags().BoolVar(&jsonMode, "json", false, "Output in JSON format")
	return cmd
}

// collectStatus asks the backend for the local family's status. Other
// providers have no status endpoint and report ready. Only a connection
// failure is reported as offline; other errors fail the command.
func collectStatus(ctx context.Context, app *App) (StatusData, error) {
	sel := app.Store.CurrentSelection()
	data := StatusData{
		Backend:   app.Client.BaseURL(),
		Selection: sel,
		Storage:   app.Config.Storage.Backend,
	}

	if !model.IsLocalFamily(sel.ProviderID) {
		data.Status = model.ReadyStatus(sel, time.Now())
		data.Synthesized = true
		data.Online = true
		return data, nil
	}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	st, err := app.Client.FetchModelStatus(ctx, sel)
	if err != nil {
		var tErr *transport.Error
		if errors.As(err, &tErr) && tErr.Kind == transport.KindConnection {
			data.Reason = tErr.Message
			return data, nil
		}
		return data, errors.Wrap(err, "fetch model status")
	}
	data.Online = true
	data.Status = st
	return data, nil
}

func printStatus(w io.Writer, data StatusData) {
	fmt.Fprintln(w, TitleStyle.Render("rigrun-stream status"))
	fmt.Fprintln(w, RenderSeparator(30))

	conn := SuccessStyle.Render("online")
	if !data.Online {
		conn = ErrorStyle.Render("offline")
		if data.Reason != "" {
			conn += " " + DimStyle.Render("("+data.Reason+")")
		}
	}
	fmt.Fprintln(w, LabelStyle.Render("Backend:"), ValueStyle.Render(data.Backend), conn)
	fmt.Fprintln(w, RenderLabel("Model", data.Selection.String()))
	if data.Online {
		state := string(data.Status.State)
		if data.Status.Message != "" {
			state += " (" + data.Status.Message + ")"
		}
		if data.Synthesized {
			state += " " + DimStyle.Render("[no status feed]")
		}
		fmt.Fprintln(w, RenderLabel("State", state))
	}
	fmt.Fprintln(w, RenderLabel("Storage", data.Storage))
}
