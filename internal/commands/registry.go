// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/jeranaias/rigrun-stream/internal/export"
	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/session"
)

// ErrUnknownCommand is returned for a slash command that is not registered.
var ErrUnknownCommand = errors.New("unknown command")

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Session is the part of the session controller commands drive.
type Session interface {
	SessionID() string
	State() session.State
	RetryLastMessage(ctx context.Context, opts session.SendOptions) error
	ClearMessages()
	Cancel() bool
}

// SelectionStore holds the selection and the memory record.
type SelectionStore interface {
	CurrentSelection() model.Selection
	SetSelection(ctx context.Context, sel model.Selection) error
	Memory(ctx context.Context, sessionID string) (model.MemoryRecord, error)
	ClearMemory(ctx context.Context, sessionID string) error
}

// StatusReporter returns the tracked model status.
type StatusReporter interface {
	Status() model.ModelStatus
}

// Context is what a handler acts on.
type Context struct {
	Ctx     context.Context
	Session Session
	Store   SelectionStore
	Status  StatusReporter
	// Options supplies the per-request settings for /retry.
	Options func() session.SendOptions
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) options() session.SendOptions {
	if c.Options == nil {
		return session.SendOptions{}
	}
	return c.Options()
}

// Result tells the frontend what happened.
type Result struct {
	// Output is plain text to show the user.
	Output string
	Err    error
	// Submitted means a new submission is in flight.
	Submitted bool
	Quit      bool
}

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name    string
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/model <provider> [model]")
	Usage string

	Category string

	// ArgValues suggests values for the first argument during completion.
	ArgValues []string

	Handler func(ctx *Context, args []string) Result
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a registry with the built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	return r.aliases[name]
}

// All returns the registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Execute runs a parsed command.
func (r *Registry) Execute(ctx *Context, res ParseResult) Result {
	if !res.IsCommand {
		return Result{}
	}
	if res.Command == nil {
		return Result{Err: errors.Wrap(ErrUnknownCommand, res.CommandName)}
	}
	return res.Command.Handler(ctx, res.Args)
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Category:    "General",
		Handler:     r.handleHelp,
	})
	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Exit",
		Category:    "General",
		Handler:     handleQuit,
	})
	r.Register(&Command{
		Name:        "/retry",
		Aliases:     []string{"/r"},
		Description: "Resend the last message",
		Category:    "Conversation",
		Handler:     handleRetry,
	})
	r.Register(&Command{
		Name:        "/clear",
		Aliases:     []string{"/c"},
		Description: "Clear the conversation",
		Category:    "Conversation",
		Handler:     handleClear,
	})
	r.Register(&Command{
		Name:        "/cancel",
		Aliases:     []string{"/stop"},
		Description: "Abandon the reply in flight",
		Category:    "Conversation",
		Handler:     handleCancel,
	})
	r.Register(&Command{
		Name:        "/model",
		Aliases:     []string{"/m"},
		Description: "Show or change the provider and model",
		Usage:       "/model [<provider> [model]]",
		Category:    "Model",
		ArgValues:   []string{model.ProviderLocal, model.ProviderBuiltin},
		Handler:     handleModel,
	})
	r.Register(&Command{
		Name:        "/status",
		Aliases:     []string{"/s"},
		Description: "Show model, cooldown and connection status",
		Category:    "Model",
		Handler:     handleStatus,
	})
	r.Register(&Command{
		Name:        "/memory",
		Description: "Show or clear the stored memory token",
		Usage:       "/memory [clear]",
		Category:    "Conversation",
		ArgValues:   []string{"clear"},
		Handler:     handleMemory,
	})
	r.Register(&Command{
		Name:        "/export",
		Description: "Save the conversation to a file",
		Usage:       "/export [markdown|json] [dir]",
		Category:    "Conversation",
		ArgValues:   export.Formats,
		Handler:     handleExport,
	})
}
