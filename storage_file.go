// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileBackend is a directory-per-layer durable Backend (§4.8).
// Finalized layers live at <root>/<hex(id)>/; a layer under
// construction lives at <root>/.building-<uuid>/ so it is invisible to
// ListDirectories by construction (no separate marker needed) until
// FinalizeDirectory renames it into place. Grounded on
// original_source/src/storage/directory.rs's staged-then-renamed
// directory discipline and locking.rs's exclusive/shared file-lock use,
// adapted from tokio futures to blocking calls (§5: suspension happens
// only at I/O boundaries, which in Go means the call itself blocks).
type FileBackend struct {
	log  *zap.Logger
	root string

	mu sync.Mutex
	// building maps the id handed out by CreateDirectory to the
	// .building-<uuid> path it is physically staged under, until
	// FinalizeDirectory renames it to its permanent hex(id) name.
	building map[LayerID]string
}

// NewFileBackend opens (creating if necessary) a backend rooted at dir.
// log may be nil.
func NewFileBackend(dir string, log *zap.Logger) (*FileBackend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newIoError("mkdir root", err)
	}
	return &FileBackend{log: log, root: dir, building: make(map[LayerID]string)}, nil
}

func (b *FileBackend) finalPath(id LayerID) string {
	return filepath.Join(b.root, id.String())
}

func (b *FileBackend) ListDirectories(ctx context.Context) ([]LayerID, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, newIoError("readdir", err)
	}
	var out []LayerID
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := ParseLayerID(e.Name())
		if err != nil {
			continue // not a layer directory (e.g. a stale .building-* entry)
		}
		out = append(out, id)
	}
	return out, nil
}

func (b *FileBackend) CreateDirectory(ctx context.Context) (LayerID, error) {
	id, err := NewLayerID()
	if err != nil {
		return id, err
	}
	stagingName := ".building-" + uuid.New().String()
	stagingPath := filepath.Join(b.root, stagingName)
	if err := os.Mkdir(stagingPath, 0o755); err != nil {
		return id, newIoError("mkdir staging", err)
	}
	b.mu.Lock()
	b.building[id] = stagingPath
	b.mu.Unlock()
	b.log.Debug("directory staged", zap.String("layer", id.String()), zap.String("path", stagingPath))
	return id, nil
}

func (b *FileBackend) CreateDirectoryWithID(ctx context.Context, id LayerID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.building[id]; ok {
		return fmt.Errorf("stratum: file backend: directory %s: %w", id, ErrAlreadyExists)
	}
	if _, err := os.Stat(b.finalPath(id)); err == nil {
		return fmt.Errorf("stratum: file backend: directory %s: %w", id, ErrAlreadyExists)
	}
	stagingName := ".building-" + uuid.New().String()
	stagingPath := filepath.Join(b.root, stagingName)
	if err := os.Mkdir(stagingPath, 0o755); err != nil {
		return newIoError("mkdir staging", err)
	}
	b.building[id] = stagingPath
	b.log.Debug("directory staged", zap.String("layer", id.String()), zap.String("path", stagingPath))
	return nil
}

func (b *FileBackend) dirPath(id LayerID) (path string, finalized bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.building[id]; ok {
		return p, false
	}
	return b.finalPath(id), true
}

func (b *FileBackend) DirectoryExists(ctx context.Context, id LayerID) (bool, error) {
	_, err := os.Stat(b.finalPath(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, newIoError("stat", err)
	}
	return true, nil
}

func (b *FileBackend) FileExists(ctx context.Context, id LayerID, name string) (bool, error) {
	path, _ := b.dirPath(id)
	_, err := os.Stat(filepath.Join(path, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, newIoError("stat", err)
	}
	return true, nil
}

func (b *FileBackend) OpenFile(ctx context.Context, id LayerID, name string, write bool) (FileHandle, error) {
	path, finalized := b.dirPath(id)
	if write && finalized {
		return nil, fmt.Errorf("stratum: file backend: directory %s already finalized", id)
	}
	full := filepath.Join(path, name)
	flags := os.O_RDONLY
	if write {
		flags = os.O_RDWR | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return nil, newIoError("open", err)
	}
	return &fileHandle{f: f}, nil
}

// FinalizeDirectory writes a durability sentinel under an exclusive
// flock, fsyncs it, then atomically renames the staging directory to
// its permanent name — the rename is what makes it visible to
// ListDirectories/DirectoryExists (§5: "a layer directory becomes
// visible only after all its files have been successfully fsynced").
func (b *FileBackend) FinalizeDirectory(ctx context.Context, id LayerID) error {
	b.mu.Lock()
	stagingPath, ok := b.building[id]
	b.mu.Unlock()
	if !ok {
		if exists, _ := b.DirectoryExists(ctx, id); exists {
			return nil // already finalized; idempotent
		}
		return fmt.Errorf("stratum: file backend: directory %s: %w", id, ErrNotFound)
	}

	lockPath := filepath.Join(stagingPath, ".finalize.lock")
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return newIoError("lock finalize sentinel", err)
	}
	defer fl.Unlock()

	sentinel := filepath.Join(stagingPath, ".finalized")
	if err := os.WriteFile(sentinel, []byte(id.String()), 0o644); err != nil {
		return newIoError("write finalize sentinel", err)
	}
	sf, err := os.Open(sentinel)
	if err != nil {
		return newIoError("reopen finalize sentinel", err)
	}
	if err := sf.Sync(); err != nil {
		sf.Close()
		return newIoError("fsync finalize sentinel", err)
	}
	sf.Close()

	if err := os.Rename(stagingPath, b.finalPath(id)); err != nil {
		return newIoError("rename to final directory", err)
	}
	b.mu.Lock()
	delete(b.building, id)
	b.mu.Unlock()
	b.log.Info("directory finalized", zap.String("layer", id.String()), zap.String("path", b.finalPath(id)))
	return nil
}

func (b *FileBackend) DeleteDirectory(ctx context.Context, id LayerID) error {
	b.mu.Lock()
	stagingPath, ok := b.building[id]
	if ok {
		delete(b.building, id)
	}
	b.mu.Unlock()
	if ok {
		err := os.RemoveAll(stagingPath)
		b.log.Debug("staging directory removed", zap.String("layer", id.String()), zap.Error(err))
		return newIoError("remove staging directory", err)
	}
	err := os.RemoveAll(b.finalPath(id))
	b.log.Debug("directory removed", zap.String("layer", id.String()), zap.Error(err))
	return newIoError("remove directory", err)
}

// fileHandle adapts *os.File plus mmap-go to FileHandle.
type fileHandle struct {
	f *os.File
}

func (h *fileHandle) Read(p []byte) (int, error)  { return h.f.Read(p) }
func (h *fileHandle) Write(p []byte) (int, error) { return h.f.Write(p) }
func (h *fileHandle) Close() error                { return h.f.Close() }
func (h *fileHandle) Sync() error                 { return h.f.Sync() }

// Map memory-maps the file read-only via mmap-go, copies it into a
// plain byte slice the caller owns, and unmaps — giving readers a
// stable view independent of the handle's lifetime without requiring
// every caller to remember to Unmap.
func (h *fileHandle) Map() ([]byte, error) {
	info, err := h.f.Stat()
	if err != nil {
		return nil, newIoError("stat for mmap", err)
	}
	if info.Size() == 0 {
		return nil, nil
	}
	m, err := mmap.Map(h.f, mmap.RDONLY, 0)
	if err != nil {
		return nil, newIoError("mmap", err)
	}
	defer m.Unmap()
	out := make([]byte, len(m))
	copy(out, m)
	return out, nil
}
