// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system shared by the chat
// REPL and the TUI.
//
// # Key Types
//
//   - Registry: the built-in commands, looked up by name or alias
//   - Context: the session, store and status a handler acts on
//   - Result: what a frontend should print, and whether to wait or quit
//   - Completer: prefix completion for command names and arguments
//
// # Built-in Commands
//
//   - /help: Show available commands
//   - /retry: Resend the last message
//   - /clear: Clear the conversation
//   - /cancel: Abandon the reply in flight
//   - /model: Show or change the provider/model selection
//   - /status: Show model, cooldown and connection status
//   - /memory: Show or clear the stored memory token
//   - /quit: Exit
//
// # Usage
//
//	reg := commands.NewRegistry()
//	if res := reg.Parse(input); res.IsCommand {
//	    out := reg.Execute(ctx, res)
//	    ...
//	}
package commands
