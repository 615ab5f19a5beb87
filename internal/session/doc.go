// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the streaming conversation controller.
//
// A Controller turns one submitted message into a single de-duplicated,
// cancellable exchange with the backend. The SSE stream is the primary
// transport; a plain chat call is issued once if no terminal event arrives
// within the provider's budget.
//
// # Key Types
//
//   - Controller: Submission guards, stream lifecycle, indicator timing
//   - Config: Debounce, minimum visible time, and fallback budgets
//   - State: Snapshot handed to the presentation layer
//   - Phase: Where the current submission is in its lifecycle
//
// # Usage
//
//	ctrl := session.NewController(session.DefaultConfig(), sessionID, session.Deps{
//	    Transport:    client,
//	    Memory:       store,
//	    Status:       tracker,
//	    Cooldown:     limiter,
//	    Connectivity: monitor,
//	    Selection:    store.CurrentSelection,
//	    Clock:        clock.Real(),
//	    Logger:       logger,
//	})
//	if err := ctrl.SendToAgent(ctx, "Hello!", session.SendOptions{}); err != nil {
//	    // rejected by a guard; nothing changed
//	}
//	for range ctrl.Changes() {
//	    render(ctrl.State())
//	}
//
// # Concurrency
//
// Every mutation runs under one mutex. Stream events, timer callbacks, and
// fallback results re-enter through it and are discarded unless they carry
// the token of the submission still in flight.
package session
