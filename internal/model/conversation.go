// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "sync"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered message list shown to the presentation layer.
//
// At most one message may be an indicator, and while present it is always
// the last element. All mutations preserve that rule.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds a message to the end of the conversation. A trailing indicator
// is dropped first so it never sits in front of a non-indicator message.
func (c *Conversation) Append(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropTrailingIndicatorLocked()
	c.messages = append(c.messages, msg)
}

// ReplaceTrailingIndicator overwrites the trailing indicator with msg, or
// appends msg if the last message is not an indicator.
func (c *Conversation) ReplaceTrailingIndicator(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.messages); n > 0 && c.messages[n-1].IsIndicator() {
		c.messages[n-1] = msg
		return
	}
	c.messages = append(c.messages, msg)
}

// UpdateIndicator changes the text of the trailing indicator in place.
// Returns false if there is no trailing indicator.
func (c *Conversation) UpdateIndicator(content string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.messages)
	if n == 0 || !c.messages[n-1].IsIndicator() {
		return false
	}
	c.messages[n-1].Content = content
	return true
}

// DropTrailingIndicator removes the trailing indicator if one exists.
func (c *Conversation) DropTrailingIndicator() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropTrailingIndicatorLocked()
}

func (c *Conversation) dropTrailingIndicatorLocked() bool {
	n := len(c.messages)
	if n == 0 || !c.messages[n-1].IsIndicator() {
		return false
	}
	c.messages = c.messages[:n-1]
	return true
}

// RemoveTrailing removes up to n messages from the end and returns how many
// were removed.
func (c *Conversation) RemoveTrailing(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.messages) {
		n = len(c.messages)
	}
	if n <= 0 {
		return 0
	}
	c.messages = c.messages[:len(c.messages)-n]
	return n
}

// Clear removes every message.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// Messages returns a copy of the message list.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last returns the last message, if any.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// HasIndicator reports whether the conversation currently ends with an indicator.
func (c *Conversation) HasIndicator() bool {
	last, ok := c.Last()
	return ok && last.IsIndicator()
}
