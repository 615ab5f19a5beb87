// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-stream/internal/transport"
)

func newSessionCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage backend sessions",
	}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Create a backend session and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, false, func(app *App) error {
				id, err := app.Client.CreateSession(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}

	var jsonMode bool
	docs := &cobra.Command{
		Use:   "docs <session-id>",
		Short: "List documents uploaded to a session",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, false, func(app *App) error {
				out := cmd.OutOrStdout()
				return OutputJSON(out, jsonMode, "session docs", func() (interface{}, error) {
					docs, err := app.Client.ListDocuments(cmd.Context(), args[0])
					if err != nil {
						return nil, err
					}
					if !jsonMode {
						printDocuments(out, docs)
					}
					return DocumentsData{SessionID: args[0], Documents: docs}, nil
				})
			})
		},
	}
	docs.Flags().BoolVar(&jsonMode, "json", false, "Output in JSON format")

	cmd.AddCommand(newCmd, docs)
	return cmd
}

func printDocuments(w io.Writer, docs []transport.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No documents."))
		return
	}
	fmt.Fprintf(w, "%-36s  %-30s  %10s  %s\n", "ID", "NAME", "SIZE", "UPLOADED")
	for _, d := range docs {
		uploaded := "-"
		if !d.UploadedAt.IsZero() {
			uploaded = d.UploadedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%-36s  %-30s  %10s  %s\n", d.ID, d.Name, formatBytes(d.Size), uploaded)
	}
}

// formatBytes renders a byte count with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
