// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"
)

// =============================================================================
// MODEL STATUS
// =============================================================================

// ModelState is the load state reported for a provider/model pair.
type ModelState string

const (
	StateIdle      ModelState = "IDLE"
	StateLoading   ModelState = "LOADING"
	StateUnloading ModelState = "UNLOADING"
	StateLoaded    ModelState = "LOADED"
	StateError     ModelState = "ERROR"
)

// Valid reports whether s is one of the known states.
func (s ModelState) Valid() bool {
	switch s {
	case StateIdle, StateLoading, StateUnloading, StateLoaded, StateError:
		return true
	}
	return false
}

// ParseModelState normalizes a wire value. Unknown values map to StateIdle.
func ParseModelState(v string) ModelState {
	s := ModelState(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return StateIdle
	}
	return s
}

// ModelStatus is a snapshot of one selection's load state. Updates replace
// it wholesale.
type ModelStatus struct {
	ProviderID string     `json:"providerId"`
	ModelID    string     `json:"modelId"`
	State      ModelState `json:"state"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
}

// IsLoading reports whether the model is being loaded.
func (s ModelStatus) IsLoading() bool { return s.State == StateLoading }

// IsUnloading reports whether the model is being unloaded.
func (s ModelStatus) IsUnloading() bool { return s.State == StateUnloading }

// ReadyStatus builds the synthesized idle status used when no status feed
// exists for a provider.
func ReadyStatus(sel Selection, at time.Time) ModelStatus {
	return ModelStatus{
		ProviderID: sel.ProviderID,
		ModelID:    sel.ModelID,
		State:      StateIdle,
		Message:    "ready",
		Timestamp:  at,
	}
}
