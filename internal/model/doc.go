// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the session core.
//
// # Key Types
//
//   - Message: Single chat entry with role, content, timestamp, and metadata
//   - Conversation: Ordered message list with the trailing-indicator invariant
//   - ModelStatus: Load state of the selected provider/model
//   - Selection: Current provider and model identifiers
//   - MemoryRecord: Per-session memory token and chunks
//
// # Usage
//
// Build up a conversation while a response is in flight:
//
//	conv := model.NewConversation()
//	conv.Append(model.NewUserMessage("Hello!"))
//	conv.ReplaceTrailingIndicator(model.NewIndicatorMessage("Thinking..."))
//	conv.ReplaceTrailingIndicator(model.NewAssistantMessage("Hi there.", model.Metadata{}))
//
// The conversation now holds two messages; the indicator was overwritten.
package model
