// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists client state that must survive a restart.
//
// A KV backend holds raw JSON values; Store layers typed accessors on top
// for the provider/model selection, per-session memory records, display
// settings, and the stable client identifier.
//
// # Backends
//
//   - file: single JSON document written atomically, watched with fsnotify
//   - sqlite: key/value table in a local database (modernc.org/sqlite)
//   - redis: shared keyspace with a pub/sub change feed
//   - memory: process-local map, used in tests
//
// # Usage
//
//	kv, err := storage.Open(storage.Options{Backend: storage.BackendFile, Path: path})
//	store := storage.New(kv, logger)
//	unsubscribe := store.SubscribeSelection(func(sel model.Selection) {
//	    tracker.Restart()
//	})
//	defer unsubscribe()
package storage
