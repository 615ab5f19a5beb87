// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output for scripting.
//
// Every command with a --json flag prints one JSONResponse envelope.

package cli

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/transport"
)

// JSONResponse is the envelope printed by --json commands.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the RFC3339 time the response was generated
	Timestamp string `json:"timestamp"`

	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the response as indented JSON.
func (r *JSONResponse) Print(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// OutputJSON runs handler and, in JSON mode, prints its result or error in
// the envelope. Outside JSON mode handler does its own printing.
func OutputJSON(w io.Writer, jsonMode bool, command string, handler func() (interface{}, error)) error {
	data, err := handler()
	if !jsonMode {
		return err
	}
	if err != nil {
		NewJSONErrorResponse(command, err).Print(w)
		return err
	}
	return NewJSONResponse(command, data).Print(w)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// StatusData is the data returned by the status command.
type StatusData struct {
	Backend     string            `json:"backend"`
	Online      bool              `json:"online"`
	Reason      string            `json:"reason,omitempty"`
	Selection   model.Selection   `json:"selection"`
	Status      model.ModelStatus `json:"status"`
	Synthesized bool              `json:"synthesized"`
	Storage     string            `json:"storage"`
}

// MemoryData is the data returned by memory show.
type MemoryData struct {
	SessionID string   `json:"sessionId"`
	Token     string   `json:"token,omitempty"`
	Chunks    []string `json:"chunks,omitempty"`
}

// DocumentsData is the data returned by session docs.
type DocumentsData struct {
	SessionID string               `json:"sessionId"`
	Documents []transport.Document `json:"documents"`
}
