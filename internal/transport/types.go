// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"time"

	"github.com/jeranaias/rigrun-stream/internal/model"
)

// =============================================================================
// CHAT PAYLOADS
// =============================================================================

// ChatRequest is the payload shared by the stream and plain chat calls.
type ChatRequest struct {
	Message                 string `json:"message"`
	MemoryToken             string `json:"memoryToken,omitempty"`
	DisableLongMemoryRecall bool   `json:"disableLongMemoryRecall"`
	DisableAllMemoryRecall  bool   `json:"disableAllMemoryRecall"`
	SystemPrompt            string `json:"systemPrompt,omitempty"`
	// UnloadAfterCall is only honored by the local provider.
	UnloadAfterCall bool `json:"unloadAfterCall,omitempty"`

	SessionID  string `json:"sessionId,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
	ModelID    string `json:"modelId,omitempty"`
}

// ResponseMetadata carries memory returned with an answer.
type ResponseMetadata struct {
	MemoryToken  string   `json:"memoryToken,omitempty"`
	MemoryChunks []string `json:"memoryChunks,omitempty"`
}

// ChatResponse is the answer payload from either transport.
type ChatResponse struct {
	Message      string           `json:"message"`
	Model        string           `json:"model"`
	Provider     string           `json:"provider"`
	Cached       bool             `json:"cached"`
	FinishReason string           `json:"finishReason"`
	Usage        model.Usage      `json:"usage"`
	Metadata     ResponseMetadata `json:"metadata"`
}

// Memory returns the memory record carried by the response, if any.
func (r *ChatResponse) Memory() model.MemoryRecord {
	return model.MemoryRecord{
		Token:  r.Metadata.MemoryToken,
		Chunks: r.Metadata.MemoryChunks,
	}
}

// MessageMetadata converts the response details for display.
func (r *ChatResponse) MessageMetadata() model.Metadata {
	usage := r.Usage
	return model.Metadata{
		Cached:       r.Cached,
		Model:        r.Model,
		Provider:     r.Provider,
		Usage:        &usage,
		FinishReason: r.FinishReason,
	}
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventType names an SSE event from the chat stream.
type EventType string

const (
	EventAgent         EventType = "agent"
	EventAnswer        EventType = "answer"
	EventError         EventType = "error"
	EventProviderError EventType = "provider-error"
)

// Event is one decoded chat stream event. Exactly one of Status, Answer, or
// Err is meaningful, depending on Type.
type Event struct {
	Type   EventType
	Status string
	Answer *ChatResponse
	Err    *Error
}

// Terminal reports whether the event ends the exchange.
func (e Event) Terminal() bool {
	return e.Type == EventAnswer || e.Type == EventError || e.Type == EventProviderError
}

type agentPayload struct {
	Message string `json:"message"`
}

// =============================================================================
// SESSION AND DOCUMENTS
// =============================================================================

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

// Document is an uploaded file attached to a session.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type documentsResponse struct {
	Documents []Document `json:"documents"`
}
