// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// FileLabelStore is a durable LabelStore, one small file per label
// under <root>/<name>.label holding "<layer-hex> <version>". Grounded
// on original_source/src/storage/locking.rs's exclusive-lock-for-write
// / shared-lock-for-read discipline, implemented with gofrs/flock
// instead of fs2+tokio-blocking (§6.3). CAS correctness comes from
// holding the exclusive lock across the whole read-check-write, not
// from the rename alone; the write-temp-then-rename step on top of
// that gives readers an atomic view even without taking a lock.
type FileLabelStore struct {
	log  *zap.Logger
	root string
}

// NewFileLabelStore opens (creating if necessary) a label store rooted
// at dir. log may be nil.
func NewFileLabelStore(dir string, log *zap.Logger) (*FileLabelStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newIoError("mkdir label root", err)
	}
	return &FileLabelStore{log: log, root: dir}, nil
}

func (s *FileLabelStore) labelPath(name string) string { return filepath.Join(s.root, name+".label") }
func (s *FileLabelStore) lockPath(name string) string  { return filepath.Join(s.root, name+".label.lock") }

func formatLabel(l Label) string {
	return fmt.Sprintf("%s %d\n", l.Layer.String(), l.Version)
}

func parseLabel(name string, data []byte) (Label, error) {
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return Label{}, newCorruptionError(name+".label", "expected 2 whitespace-separated fields")
	}
	var layer LayerID
	if fields[0] != NilLayerID.String() {
		var err error
		layer, err = ParseLayerID(fields[0])
		if err != nil {
			return Label{}, newCorruptionError(name+".label", "bad layer id: "+err.Error())
		}
	}
	version, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Label{}, newCorruptionError(name+".label", "bad version: "+err.Error())
	}
	return Label{Name: name, Layer: layer, Version: version}, nil
}

func (s *FileLabelStore) readLabel(name string) (Label, bool, error) {
	data, err := os.ReadFile(s.labelPath(name))
	if os.IsNotExist(err) {
		return Label{}, false, nil
	}
	if err != nil {
		return Label{}, false, newIoError("read label", err)
	}
	l, err := parseLabel(name, data)
	if err != nil {
		s.log.Error("label file corrupted", zap.String("label", name), zap.Error(err))
		return Label{}, false, err
	}
	return l, true, nil
}

// writeLabel durably persists l: write to a temp file in the same
// directory, fsync, then rename over the permanent path so readers
// never observe a partial write.
func (s *FileLabelStore) writeLabel(l Label) error {
	tmp := s.labelPath(l.Name) + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return newIoError("create temp label file", err)
	}
	if _, err := f.WriteString(formatLabel(l)); err != nil {
		f.Close()
		return newIoError("write temp label file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return newIoError("fsync temp label file", err)
	}
	if err := f.Close(); err != nil {
		return newIoError("close temp label file", err)
	}
	if err := os.Rename(tmp, s.labelPath(l.Name)); err != nil {
		return newIoError("rename label file", err)
	}
	return nil
}

func (s *FileLabelStore) ListLabels(ctx context.Context) ([]Label, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, newIoError("readdir labels", err)
	}
	var out []Label
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".label")
		if !ok {
			continue
		}
		l, ok, err := s.readLabel(name)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *FileLabelStore) CreateLabel(ctx context.Context, name string) (Label, error) {
	fl := flock.New(s.lockPath(name))
	if err := fl.Lock(); err != nil {
		return Label{}, newIoError("lock label", err)
	}
	defer fl.Unlock()

	if _, ok, err := s.readLabel(name); err != nil {
		return Label{}, err
	} else if ok {
		return Label{}, fmt.Errorf("stratum: label %q: %w", name, ErrAlreadyExists)
	}

	l := Label{Name: name}
	if err := s.writeLabel(l); err != nil {
		return Label{}, err
	}
	s.log.Debug("label created", zap.String("label", name))
	return l, nil
}

func (s *FileLabelStore) GetLabel(ctx context.Context, name string) (Label, bool, error) {
	fl := flock.New(s.lockPath(name))
	if err := fl.RLock(); err != nil {
		return Label{}, false, newIoError("rlock label", err)
	}
	defer fl.Unlock()
	return s.readLabel(name)
}

func (s *FileLabelStore) SetLabel(ctx context.Context, expected Label, newLayer LayerID) (Label, error) {
	fl := flock.New(s.lockPath(expected.Name))
	if err := fl.Lock(); err != nil {
		return Label{}, newIoError("lock label", err)
	}
	defer fl.Unlock()

	current, ok, err := s.readLabel(expected.Name)
	if err != nil {
		return Label{}, err
	}
	if !ok || current.Version != expected.Version {
		s.log.Warn("label CAS failed", zap.String("label", expected.Name), zap.Uint64("expected_version", expected.Version))
		return Label{}, ErrCasFailed
	}
	next := Label{Name: expected.Name, Layer: newLayer, Version: current.Version + 1}
	if err := s.writeLabel(next); err != nil {
		return Label{}, err
	}
	s.log.Debug("label updated", zap.String("label", expected.Name), zap.String("layer", newLayer.String()), zap.Uint64("version", next.Version))
	return next, nil
}

func (s *FileLabelStore) ClearLabel(ctx context.Context, expected Label) (Label, error) {
	return s.SetLabel(ctx, expected, NilLayerID)
}

func (s *FileLabelStore) DeleteLabel(ctx context.Context, name string) error {
	fl := flock.New(s.lockPath(name))
	if err := fl.Lock(); err != nil {
		return newIoError("lock label", err)
	}
	defer fl.Unlock()

	if err := os.Remove(s.labelPath(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("stratum: label %q: %w", name, ErrNotFound)
		}
		return newIoError("remove label", err)
	}
	os.Remove(s.lockPath(name)) // best-effort; a stale empty lock file is harmless
	s.log.Debug("label deleted", zap.String("label", name))
	return nil
}
