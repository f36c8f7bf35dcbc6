// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// MemoryBackend is an in-process Backend, grounded on
// original_source's MemoryLabelStore shape (a mutex-guarded map
// standing in for the durable store) generalized from labels to whole
// layer directories. Useful for tests and ephemeral stores; nothing it
// holds survives process exit.
type MemoryBackend struct {
	log *zap.Logger

	mu   sync.RWMutex
	dirs map[LayerID]*memDir
}

type memDir struct {
	files     map[string]*bytes.Buffer
	finalized bool
}

// NewMemoryBackend returns an empty in-memory backend. log may be nil.
func NewMemoryBackend(log *zap.Logger) *MemoryBackend {
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryBackend{log: log, dirs: make(map[LayerID]*memDir)}
}

func (b *MemoryBackend) ListDirectories(ctx context.Context) ([]LayerID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]LayerID, 0, len(b.dirs))
	for id, d := range b.dirs {
		if d.finalized {
			out = append(out, id)
		}
	}
	return out, nil
}

func (b *MemoryBackend) CreateDirectory(ctx context.Context) (LayerID, error) {
	id, err := NewLayerID()
	if err != nil {
		return id, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirs[id] = &memDir{files: make(map[string]*bytes.Buffer)}
	b.log.Debug("directory created", zap.String("layer", id.String()))
	return id, nil
}

func (b *MemoryBackend) CreateDirectoryWithID(ctx context.Context, id LayerID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.dirs[id]; ok {
		return fmt.Errorf("stratum: memory backend: directory %s: %w", id, ErrAlreadyExists)
	}
	b.dirs[id] = &memDir{files: make(map[string]*bytes.Buffer)}
	b.log.Debug("directory created", zap.String("layer", id.String()))
	return nil
}

func (b *MemoryBackend) DirectoryExists(ctx context.Context, id LayerID) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.dirs[id]
	return ok && d.finalized, nil
}

func (b *MemoryBackend) FileExists(ctx context.Context, id LayerID, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.dirs[id]
	if !ok {
		return false, nil
	}
	_, ok = d.files[name]
	return ok, nil
}

func (b *MemoryBackend) OpenFile(ctx context.Context, id LayerID, name string, write bool) (FileHandle, error) {
	b.mu.Lock()
	d, ok := b.dirs[id]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("stratum: memory backend: directory %s: %w", id, ErrNotFound)
	}
	if write && d.finalized {
		b.mu.Unlock()
		return nil, fmt.Errorf("stratum: memory backend: directory %s already finalized", id)
	}
	buf, ok := d.files[name]
	if !ok {
		buf = &bytes.Buffer{}
		d.files[name] = buf
	}
	b.mu.Unlock()
	return &memFileHandle{backend: b, buf: buf, write: write}, nil
}

func (b *MemoryBackend) FinalizeDirectory(ctx context.Context, id LayerID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.dirs[id]
	if !ok {
		return fmt.Errorf("stratum: memory backend: directory %s: %w", id, ErrNotFound)
	}
	d.finalized = true
	b.log.Info("directory finalized", zap.String("layer", id.String()))
	return nil
}

func (b *MemoryBackend) DeleteDirectory(ctx context.Context, id LayerID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.dirs, id)
	b.log.Debug("directory deleted", zap.String("layer", id.String()))
	return nil
}

// memFileHandle adapts a shared *bytes.Buffer to FileHandle. Reads and
// writes both hold the backend lock only for the duration of the call,
// matching the real file backend's per-operation syscall granularity.
type memFileHandle struct {
	backend *MemoryBackend
	buf     *bytes.Buffer
	write   bool
	readPos int
}

func (h *memFileHandle) Read(p []byte) (int, error) {
	h.backend.mu.RLock()
	defer h.backend.mu.RUnlock()
	b := h.buf.Bytes()
	if h.readPos >= len(b) {
		return 0, io.EOF
	}
	n := copy(p, b[h.readPos:])
	h.readPos += n
	return n, nil
}

func (h *memFileHandle) Write(p []byte) (int, error) {
	if !h.write {
		return 0, fmt.Errorf("stratum: memory backend: file opened read-only")
	}
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	return h.buf.Write(p)
}

func (h *memFileHandle) Close() error { return nil }

// Sync is a no-op: there is no stable storage to flush to, a memory
// backend's durability is exactly process lifetime.
func (h *memFileHandle) Sync() error { return nil }

func (h *memFileHandle) Map() ([]byte, error) {
	h.backend.mu.RLock()
	defer h.backend.mu.RUnlock()
	out := make([]byte, h.buf.Len())
	copy(out, h.buf.Bytes())
	return out, nil
}
