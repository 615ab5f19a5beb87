// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/jeranaias/rigrun-stream/internal/util"
)

// =============================================================================
// FILE BACKEND
// =============================================================================

// FileKV stores every key in one JSON document on disk.
//
// Writes replace the whole file atomically. Watch reports keys changed by
// another process editing the same file.
type FileKV struct {
	path string

	mu     sync.Mutex
	data   map[string]json.RawMessage
	closed bool
}

// OpenFile loads (or creates) the JSON document at path.
func OpenFile(path string) (*FileKV, error) {
	if path == "" {
		return nil, errors.New("file backend requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, "create storage directory")
	}

	f := &FileKV{path: path, data: make(map[string]json.RawMessage)}
	data, err := f.readFile()
	if err != nil {
		return nil, err
	}
	f.data = data
	return f, nil
}

// Path returns the backing file path.
func (f *FileKV) Path() string {
	return f.path
}

func (f *FileKV) readFile() (map[string]json.RawMessage, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read storage file")
	}
	out := make(map[string]json.RawMessage)
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrapf(err, "parse storage file %s", f.path)
	}
	return out, nil
}

func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	v, ok := f.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (f *FileKV) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return &StoreError{Op: "set", Key: key, Err: ErrInvalidValue}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	prev, had := f.data[key]
	f.data[key] = append(json.RawMessage(nil), value...)
	if err := f.flushLocked(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (f *FileKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	prev, had := f.data[key]
	if !had {
		return nil
	}
	delete(f.data, key)
	if err := f.flushLocked(); err != nil {
		f.data[key] = prev
		return &StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (f *FileKV) Keys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileKV) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FileKV) flushLocked() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode storage file")
	}
	return util.AtomicWriteFile(f.path, raw, 0600)
}

// =============================================================================
// WATCH
// =============================================================================

// Watch reloads the file whenever it changes on disk and reports every key
// whose value differs from what this process last saw. Our own writes leave
// nothing to report.
func (f *FileKV) Watch(ctx context.Context, fn func(key string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create file watcher")
	}
	defer w.Close()

	// Watch the directory: atomic renames replace the file inode.
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return errors.Wrap(err, "watch storage directory")
	}
	name := filepath.Clean(f.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			for _, key := range f.reload() {
				fn(key)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return errors.Wrap(err, "file watcher")
		}
	}
}

// reload re-reads the file and returns the keys that changed.
func (f *FileKV) reload() []string {
	fresh, err := f.readFile()
	if err != nil {
		// Partially written by a non-atomic editor; the next event retries.
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	var changed []string
	for k, v := range fresh {
		if old, ok := f.data[k]; !ok || !sameJSON(old, v) {
			changed = append(changed, k)
		}
	}
	for k := range f.data {
		if _, ok := fresh[k]; !ok {
			changed = append(changed, k)
		}
	}
	f.data = fresh
	sort.Strings(changed)
	return changed
}

// sameJSON compares two values ignoring whitespace. The file is written
// indented while values held in memory are compact.
func sameJSON(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
