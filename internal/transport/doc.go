// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport talks to the chat backend over HTTP.
//
// It issues the streaming chat request (server-sent events), the plain
// request/response fallback, the model-status feed, and the session and
// document REST calls. The client keeps no conversation state.
//
// # Key Types
//
//   - Client: HTTP client for the backend
//   - ChatRequest / ChatResponse: chat payloads shared by both transports
//   - Event: one decoded stream event (agent, answer, error)
//   - Error: classified failure (rate limit, connection, provider)
//   - SSEReader: server-sent event parser
//
// # Usage
//
//	client := transport.NewClient(transport.DefaultConfig(), logger)
//	err := client.StreamChat(ctx, req, func(ev transport.Event) {
//	    switch ev.Type {
//	    case transport.EventAgent:
//	        fmt.Println("status:", ev.Status)
//	    case transport.EventAnswer:
//	        fmt.Println(ev.Answer.Message)
//	    }
//	})
//
// # Errors
//
// Failures are classified by the transport rather than by callers
// inspecting message text. Use errors.Is with ErrRateLimited,
// ErrConnection, or ErrProvider, or IsRateLimited and friends.
package transport
