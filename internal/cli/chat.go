// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-oriented interactive chat.
//
// The REPL reads a line with history and completion, submits it to the
// session controller, and prints the transcript as the reply arrives.
//
// Keyboard:
//
//	Up/Down             History
//	Tab                 Complete a slash command
//	Ctrl+C              Cancel the reply in flight, or exit at the prompt
//	Ctrl+D              Exit chat

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/rigrun-stream/internal/commands"
	"github.com/jeranaias/rigrun-stream/internal/config"
	"github.com/jeranaias/rigrun-stream/internal/offline"
	"github.com/jeranaias/rigrun-stream/internal/session"
)

// =============================================================================
// INPUT
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor that completes with completer.
func NewChatCLI(completer *commands.Completer) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetTabCompletionStyle(liner.TabPrints)
	if completer != nil {
		line.SetCompleter(completer.Complete)
	}

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// COMMAND
// =============================================================================

// sendFlags override the stored settings for one run.
type sendFlags struct {
	system       string
	persona      string
	noLongMemory bool
	noMemory     bool
	unload       bool
}

func (f *sendFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.system, "system", "", "System instruction for this run")
	cmd.Flags().StringVar(&f.persona, "persona", "", "Persona for this run")
	cmd.Flags().BoolVar(&f.noLongMemory, "no-long-memory", false, "Disable long-term memory recall")
	cmd.Flags().BoolVar(&f.noMemory, "no-memory", false, "Disable all memory recall")
	cmd.Flags().BoolVar(&f.unload, "unload", false, "Unload the local model after each call")
}

// options returns a function producing the stored settings with every
// changed flag applied on top.
func (f *sendFlags) options(ctx context.Context, cmd *cobra.Command, app *App) func() session.SendOptions {
	return func() session.SendOptions {
		opts, _ := SendOptions(ctx, app.Store)
		flags := cmd.Flags()
		if flags.Changed("system") {
			opts.SystemInstruction = f.system
		}
		if flags.Changed("persona") {
			opts.Persona = f.persona
		}
		if flags.Changed("no-long-memory") {
			opts.DisableLongMemoryRecall = f.noLongMemory
		}
		if flags.Changed("no-memory") {
			opts.DisableAllMemoryRecall = f.noMemory
		}
		if flags.Changed("unload") {
			opts.UnloadAfterCall = f.unload
		}
		return opts
	}
}

func newChatCommand(opts *GlobalOptions) *cobra.Command {
	var sf sendFlags
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat on a line-oriented terminal",
		Long: `Start an interactive chat. With a message argument, send it, print the
reply, and exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, len(args) == 0, func(app *App) error {
				if len(args) > 0 {
					return runOneShot(cmd, app, &sf, strings.Join(args, " "))
				}
				return runChat(cmd, app, &sf)
			})
		},
	}
	sf.register(cmd)
	return cmd
}

// =============================================================================
// ONE-SHOT
// =============================================================================

func runOneShot(cmd *cobra.Command, app *App, sf *sendFlags, text string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	sess, err := app.StartSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Stop()

	out := cmd.OutOrStdout()
	_, settings := SendOptions(ctx, app.Store)
	transcript := NewTranscript(out, settings.RenderMarkdown && IsStdoutTTY(), GetTerminalWidth())

	if err := sess.Controller.SendToAgent(ctx, text, sf.options(ctx, cmd, app)()); err != nil {
		return err
	}
	waitForReply(ctx, sess.Controller, transcript)
	if ctx.Err() != nil {
		return errors.New("cancelled")
	}
	return lastError(sess.Controller.State())
}

// lastError reports a connection failure or an error answer as an error so
// the exit code reflects it.
func lastError(st session.State) error {
	if n := len(st.Messages); n > 0 && st.Messages[n-1].IsError() {
		return errors.New(st.Messages[n-1].Content)
	}
	if st.Connection == offline.StatusOffline {
		return errors.New("backend unreachable")
	}
	return nil
}

// =============================================================================
// REPL
// =============================================================================

func runChat(cmd *cobra.Command, app *App, sf *sendFlags) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sess, err := app.StartSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Stop()

	out := cmd.OutOrStdout()
	registry := commands.NewRegistry()
	input := NewChatCLI(commands.NewCompleter(registry))
	defer input.Close()

	_, settings := SendOptions(ctx, app.Store)
	transcript := NewTranscript(out, settings.RenderMarkdown && IsStdoutTTY(), GetTerminalWidth())
	repl := &chatREPL{
		app:        app,
		sess:       sess,
		registry:   registry,
		input:      input,
		transcript: transcript,
		out:        out,
		options:    sf.options(ctx, cmd, app),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.Store.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
			app.Logger.Warn().Err(err).Msg("Selection watch stopped")
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return repl.run(gctx)
	})
	return g.Wait()
}

type chatREPL struct {
	app        *App
	sess       *Session
	registry   *commands.Registry
	input      *ChatCLI
	transcript *Transcript
	out        io.Writer
	options    func() session.SendOptions
}

func (r *chatREPL) run(ctx context.Context) error {
	r.printWelcome()
	for {
		line, err := r.input.ReadInput(PromptStyle.Render("stream> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or closed stdin
			fmt.Fprintln(r.out)
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}

		if parsed := r.registry.Parse(line); parsed.IsCommand {
			if quit := r.runCommand(ctx, parsed); quit {
				return nil
			}
			continue
		}

		if err := r.sess.Controller.SendToAgent(ctx, line, r.options()); err != nil {
			r.printError(err)
			continue
		}
		r.wait(ctx)
	}
}

func (r *chatREPL) runCommand(ctx context.Context, parsed commands.ParseResult) bool {
	res := r.registry.Execute(&commands.Context{
		Ctx:     ctx,
		Session: r.sess.Controller,
		Store:   r.app.Store,
		Status:  r.sess.Tracker,
		Options: r.options,
	}, parsed)

	if res.Err != nil {
		r.printError(res.Err)
	}
	if res.Output != "" {
		fmt.Fprintln(r.out, res.Output)
	}
	if parsed.Command != nil && parsed.Command.Name == "/clear" {
		r.transcript.Reset()
	}
	if res.Submitted {
		r.wait(ctx)
	}
	return res.Quit
}

// wait renders until the reply settles. Ctrl+C cancels the submission.
func (r *chatREPL) wait(ctx context.Context) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sig:
			if r.sess.Controller.Cancel() {
				fmt.Fprintln(r.out, WarningStyle.Render("[Cancelled]"))
			}
			cancel()
		case <-waitCtx.Done():
		}
	}()
	waitForReply(waitCtx, r.sess.Controller, r.transcript)
}

func (r *chatREPL) printError(err error) {
	if session.IsRejection(err) {
		fmt.Fprintln(r.out, WarningStyle.Render("[Not sent]")+" "+err.Error())
		return
	}
	fmt.Fprintln(r.out, ErrorStyle.Render("[Error]")+" "+err.Error())
}

func (r *chatREPL) printWelcome() {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, TitleStyle.Render("rigrun-stream chat"))
	fmt.Fprintln(r.out, RenderSeparator(30))
	fmt.Fprintln(r.out, RenderLabel("Model", r.app.Store.CurrentSelection().String()))
	fmt.Fprintln(r.out, RenderLabel("Session", r.sess.ID))
	fmt.Fprintln(r.out, RenderLabel("Backend", r.app.Client.BaseURL()))
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, DimStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(r.out)
}

// =============================================================================
// WAITING
// =============================================================================

// replySource is what waitForReply observes.
type replySource interface {
	State() session.State
	Changes() <-chan struct{}
}

// waitForReply prints the transcript on every change until no reply is
// outstanding and no delayed answer is pending, or ctx is done.
func waitForReply(ctx context.Context, src replySource, t *Transcript) {
	for {
		st := src.State()
		t.Render(st.Messages)
		if !st.Awaiting && st.Phase == session.PhaseIdle {
			return
		}
		select {
		case <-src.Changes():
		case <-ctx.Done():
			t.Render(src.State().Messages)
			return
		}
	}
}
