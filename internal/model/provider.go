// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// PROVIDERS
// =============================================================================

const (
	// ProviderLocal is the local model server (Ollama behind the backend).
	ProviderLocal = "local"

	// ProviderBuiltin is the built-in remote provider.
	ProviderBuiltin = "openrouter"
)

// ProviderKind groups provider ids by how the session core treats them.
type ProviderKind int

const (
	ProviderKindOther ProviderKind = iota
	ProviderKindLocal
	ProviderKindBuiltin
)

// String returns a short name for the kind.
func (k ProviderKind) String() string {
	switch k {
	case ProviderKindLocal:
		return "local"
	case ProviderKindBuiltin:
		return "builtin"
	default:
		return "other"
	}
}

// KindOf classifies a provider id.
func KindOf(providerID string) ProviderKind {
	switch strings.ToLower(providerID) {
	case ProviderLocal:
		return ProviderKindLocal
	case ProviderBuiltin:
		return ProviderKindBuiltin
	default:
		return ProviderKindOther
	}
}

// IsLocalFamily reports whether the id belongs to the local provider
// family: "local" itself or any "local-" variant.
func IsLocalFamily(providerID string) bool {
	id := strings.ToLower(providerID)
	return id == ProviderLocal || strings.HasPrefix(id, ProviderLocal+"-")
}

// =============================================================================
// SELECTION
// =============================================================================

// Selection is the currently chosen provider and model.
type Selection struct {
	ProviderID string `json:"providerId"`
	ModelID    string `json:"modelId"`
}

// IsLocal reports whether the local provider is selected.
func (s Selection) IsLocal() bool {
	return KindOf(s.ProviderID) == ProviderKindLocal
}

// Kind returns the provider kind of the selection.
func (s Selection) Kind() ProviderKind {
	return KindOf(s.ProviderID)
}

// String renders the selection as provider/model.
func (s Selection) String() string {
	if s.ModelID == "" {
		return s.ProviderID
	}
	return s.ProviderID + "/" + s.ModelID
}

// SelectionFunc returns the current selection. Components call it at the
// moment they need the selection rather than caching it.
type SelectionFunc func() Selection
