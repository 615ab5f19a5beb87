// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Usage holds token counts reported with an answer.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Metadata carries response details and display flags for a message.
type Metadata struct {
	Cached       bool   `json:"cached,omitempty"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`

	// IsIndicator marks the ephemeral progress bubble shown while waiting.
	IsIndicator bool `json:"isIndicator,omitempty"`
	IsError     bool `json:"isError,omitempty"`
}

// Message represents a single entry in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a final assistant message.
func NewAssistantMessage(content string, meta Metadata) Message {
	msg := NewMessage(RoleAssistant, content)
	meta.IsIndicator = false
	msg.Metadata = meta
	return msg
}

// NewIndicatorMessage creates a progress indicator carrying status text.
func NewIndicatorMessage(status string) Message {
	msg := NewMessage(RoleAssistant, status)
	msg.Metadata.IsIndicator = true
	return msg
}

// NewErrorMessage creates an error-flagged assistant message.
func NewErrorMessage(content string) Message {
	msg := NewMessage(RoleAssistant, content)
	msg.Metadata.IsError = true
	return msg
}

// IsIndicator reports whether the message is a progress indicator.
func (m Message) IsIndicator() bool {
	return m.Metadata.IsIndicator
}

// IsError reports whether the message carries an error.
func (m Message) IsError() bool {
	return m.Metadata.IsError
}

// =============================================================================
// MEMORY RECORD
// =============================================================================

// MemoryRecord is the cross-request memory returned by the backend for a
// session. Either field may be empty.
type MemoryRecord struct {
	Token  string   `json:"token,omitempty"`
	Chunks []string `json:"chunks,omitempty"`
}

// IsEmpty reports whether the record carries nothing worth persisting.
func (r MemoryRecord) IsEmpty() bool {
	return r.Token == "" && len(r.Chunks) == 0
}
