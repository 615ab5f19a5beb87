// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jeranaias/rigrun-stream/internal/model"
)

// =============================================================================
// KEYS
// =============================================================================

const (
	KeyProvider = "provider"
	KeyModel    = "model"
	KeySettings = "settings"
	KeyClientID = "client_id"

	memoryKeyPrefix = "mem:"
)

// MemoryKey returns the key holding a session's memory record.
func MemoryKey(sessionID string) string {
	return memoryKeyPrefix + sessionID
}

// accessTimeout bounds reads made through CurrentSelection, which has no
// caller context.
const accessTimeout = 2 * time.Second

// =============================================================================
// SETTINGS
// =============================================================================

// Settings are the user-facing display and request preferences.
type Settings struct {
	SystemInstruction       string `json:"systemInstruction,omitempty"`
	Persona                 string `json:"persona,omitempty"`
	DisableLongMemoryRecall bool   `json:"disableLongMemoryRecall,omitempty"`
	DisableAllMemoryRecall  bool   `json:"disableAllMemoryRecall,omitempty"`
	UnloadAfterCall         bool   `json:"unloadAfterCall,omitempty"`
	RenderMarkdown          bool   `json:"renderMarkdown"`
}

// DefaultSettings returns the settings used before anything is saved.
func DefaultSettings() Settings {
	return Settings{RenderMarkdown: true}
}

// =============================================================================
// STORE
// =============================================================================

// Store provides typed JSON access to a KV backend and notifies observers
// when the provider/model selection changes.
type Store struct {
	kv     KV
	logger zerolog.Logger

	defaultSel model.Selection

	mu      sync.Mutex
	nextSub uint64
	subs    map[uint64]func(model.Selection)
	lastSel model.Selection
}

// New creates a Store over kv.
func New(kv KV, logger zerolog.Logger) *Store {
	return &Store{
		kv:     kv,
		logger: logger.With().Str("component", "storage").Logger(),
		subs:   make(map[uint64]func(model.Selection)),
	}
}

// WithDefaultSelection sets the selection reported when none is stored.
func (s *Store) WithDefaultSelection(sel model.Selection) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultSel = sel
	s.lastSel = sel
	return s
}

// KV returns the underlying backend.
func (s *Store) KV() KV {
	return s.kv
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

// GetJSON decodes key into v. It reports false if the key is missing.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, &StoreError{Op: "decode", Key: key, Err: err}
	}
	return true, nil
}

// SetJSON encodes v under key.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &StoreError{Op: "encode", Key: key, Err: err}
	}
	return s.kv.Set(ctx, key, raw)
}

// =============================================================================
// SELECTION
// =============================================================================

// Selection returns the stored provider/model, filling missing parts from
// the default selection.
func (s *Store) Selection(ctx context.Context) (model.Selection, error) {
	s.mu.Lock()
	sel := s.defaultSel
	s.mu.Unlock()

	var provider, modelID string
	found, err := s.GetJSON(ctx, KeyProvider, &provider)
	if err != nil {
		return sel, err
	}
	if found && provider != "" {
		sel.ProviderID = provider
	}
	found, err = s.GetJSON(ctx, KeyModel, &modelID)
	if err != nil {
		return sel, err
	}
	if found && modelID != "" {
		sel.ModelID = modelID
	}
	return sel, nil
}

// CurrentSelection reads the selection fresh on every call. Errors fall
// back to the default selection and are logged.
func (s *Store) CurrentSelection() model.Selection {
	ctx, cancel := context.WithTimeout(context.Background(), accessTimeout)
	defer cancel()
	sel, err := s.Selection(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("read selection failed, using default")
	}
	return sel
}

// SetSelection stores the provider and model and notifies observers.
func (s *Store) SetSelection(ctx context.Context, sel model.Selection) error {
	if err := s.SetJSON(ctx, KeyProvider, sel.ProviderID); err != nil {
		return err
	}
	if err := s.SetJSON(ctx, KeyModel, sel.ModelID); err != nil {
		return err
	}
	s.publishSelection(sel)
	return nil
}

// SubscribeSelection registers fn to run after every selection change,
// whether made by this process or reported by the backend's watcher.
// The returned function removes the subscription.
func (s *Store) SubscribeSelection(fn func(model.Selection)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// publishSelection notifies observers if sel differs from the last
// published selection. Callbacks run outside the store lock.
func (s *Store) publishSelection(sel model.Selection) {
	s.mu.Lock()
	if sel == s.lastSel {
		s.mu.Unlock()
		return
	}
	s.lastSel = sel
	fns := make([]func(model.Selection), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	s.logger.Debug().Str("selection", sel.String()).Msg("selection changed")
	for _, fn := range fns {
		fn(sel)
	}
}

// Watch forwards external changes from the backend to selection observers.
// It blocks until ctx is done. Backends without change feeds return at once.
func (s *Store) Watch(ctx context.Context) error {
	w, ok := s.kv.(Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, func(key string) {
		if key != KeyProvider && key != KeyModel {
			return
		}
		sel, err := s.Selection(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("reload selection after external change")
			return
		}
		s.publishSelection(sel)
	})
}

// =============================================================================
// MEMORY
// =============================================================================

// Memory returns the memory record for a session. A missing record is empty.
func (s *Store) Memory(ctx context.Context, sessionID string) (model.MemoryRecord, error) {
	var rec model.MemoryRecord
	_, err := s.GetJSON(ctx, MemoryKey(sessionID), &rec)
	return rec, err
}

// SaveMemory overwrites the session's memory record.
func (s *Store) SaveMemory(ctx context.Context, sessionID string, rec model.MemoryRecord) error {
	return s.SetJSON(ctx, MemoryKey(sessionID), rec)
}

// ClearMemory removes the session's memory record.
func (s *Store) ClearMemory(ctx context.Context, sessionID string) error {
	return s.kv.Delete(ctx, MemoryKey(sessionID))
}

// MemorySessions lists session ids that have a stored memory record.
func (s *Store) MemorySessions(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, memoryKeyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, memoryKeyPrefix))
	}
	return ids, nil
}

// =============================================================================
// SETTINGS AND CLIENT ID
// =============================================================================

// Settings returns the stored settings or DefaultSettings.
func (s *Store) Settings(ctx context.Context) (Settings, error) {
	st := DefaultSettings()
	_, err := s.GetJSON(ctx, KeySettings, &st)
	return st, err
}

// SaveSettings stores the settings.
func (s *Store) SaveSettings(ctx context.Context, st Settings) error {
	return s.SetJSON(ctx, KeySettings, st)
}

// ClientID returns the stable client identifier, generating and storing it
// on first use.
func (s *Store) ClientID(ctx context.Context) (string, error) {
	var id string
	found, err := s.GetJSON(ctx, KeyClientID, &id)
	if err != nil {
		return "", err
	}
	if found && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.SetJSON(ctx, KeyClientID, id); err != nil {
		return "", err
	}
	return id, nil
}
