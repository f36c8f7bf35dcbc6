// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// MemoryLabelStore is an in-process LabelStore, grounded directly on
// original_source's MemoryLabelStore (a mutex/lock-guarded
// map[string]Label), generalized from futures-polled locking to a
// plain sync.Mutex.
type MemoryLabelStore struct {
	log *zap.Logger

	mu     sync.Mutex
	labels map[string]Label
}

// NewMemoryLabelStore returns an empty in-memory label store. log may
// be nil.
func NewMemoryLabelStore(log *zap.Logger) *MemoryLabelStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryLabelStore{log: log, labels: make(map[string]Label)}
}

func (s *MemoryLabelStore) ListLabels(ctx context.Context) ([]Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Label, 0, len(s.labels))
	for _, l := range s.labels {
		out = append(out, l)
	}
	return out, nil
}

func (s *MemoryLabelStore) CreateLabel(ctx context.Context, name string) (Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.labels[name]; ok {
		return Label{}, fmt.Errorf("stratum: label %q: %w", name, ErrAlreadyExists)
	}
	l := Label{Name: name}
	s.labels[name] = l
	s.log.Debug("label created", zap.String("label", name))
	return l, nil
}

func (s *MemoryLabelStore) GetLabel(ctx context.Context, name string) (Label, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.labels[name]
	return l, ok, nil
}

func (s *MemoryLabelStore) SetLabel(ctx context.Context, expected Label, newLayer LayerID) (Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.labels[expected.Name]
	if !ok || current.Version != expected.Version {
		s.log.Warn("label CAS failed", zap.String("label", expected.Name), zap.Uint64("expected_version", expected.Version))
		return Label{}, ErrCasFailed
	}
	next := Label{Name: expected.Name, Layer: newLayer, Version: current.Version + 1}
	s.labels[expected.Name] = next
	s.log.Debug("label updated", zap.String("label", expected.Name), zap.String("layer", newLayer.String()), zap.Uint64("version", next.Version))
	return next, nil
}

func (s *MemoryLabelStore) ClearLabel(ctx context.Context, expected Label) (Label, error) {
	return s.SetLabel(ctx, expected, NilLayerID)
}

func (s *MemoryLabelStore) DeleteLabel(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.labels[name]; !ok {
		return fmt.Errorf("stratum: label %q: %w", name, ErrNotFound)
	}
	delete(s.labels, name)
	s.log.Debug("label deleted", zap.String("label", name))
	return nil
}
