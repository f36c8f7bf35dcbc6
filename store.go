// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/stratumdb/stratum/internal/dict"
	"go.uber.org/zap"
)

// Store is the facade (§4.10) owning a layer backend and a label
// store, with a process-wide weak layer cache in front of both.
// Grounded on the teacher's Table[V] as "the one object users hold":
// Table wraps root4/root6 tries behind create/insert/delete-shaped
// methods the same way Store wraps layer construction and named-graph
// CAS behind create/open/delete.
type Store struct {
	log        *zap.Logger
	backend    Backend
	labelStore LabelStore
	cache      *layerCache
}

// NewStore builds a Store from options. With no WithBackend/
// WithLabelStore option, both default to in-memory implementations.
func NewStore(opts ...Option) *Store {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.backend == nil {
		cfg.backend = NewMemoryBackend(cfg.log)
	}
	if cfg.labelStore == nil {
		cfg.labelStore = NewMemoryLabelStore(cfg.log)
	}
	return &Store{log: cfg.log, backend: cfg.backend, labelStore: cfg.labelStore, cache: cfg.cache}
}

// GetLayer loads a layer by id, consulting the cache first. Parent
// layers are loaded (and cached) recursively as needed.
func (s *Store) GetLayer(ctx context.Context, id LayerID) (*Layer, error) {
	if l, ok := s.cache.Get(id); ok {
		s.log.Debug("layer cache hit", zap.String("layer", id.String()))
		return l, nil
	}
	l, err := LoadLayer(ctx, s.backend, id, func(parentID LayerID) (*Layer, error) {
		return s.GetLayer(ctx, parentID)
	})
	if err != nil {
		var corrupt *CorruptionError
		if errors.As(err, &corrupt) {
			s.log.Error("layer load failed: corruption detected", zap.String("layer", id.String()), zap.Error(err))
		} else {
			s.log.Debug("layer load failed", zap.String("layer", id.String()), zap.Error(err))
		}
		return nil, err
	}
	s.log.Debug("layer loaded", zap.String("layer", id.String()), zap.Stringer("kind", l.Kind()))
	return s.cache.Put(id, l), nil
}

// ReleaseLayer releases this Store's hold on a layer obtained from
// GetLayer/CreateBaseLayer/CreateChildLayer, letting the cache evict it
// once nothing else references it.
func (s *Store) ReleaseLayer(id LayerID) { s.cache.Release(id) }

// CreateBaseLayer builds and persists a new base layer (no parent)
// from a flat list of resolved additions.
func (s *Store) CreateBaseLayer(ctx context.Context, additions []ResolvedTriple) (*Layer, error) {
	return s.buildAndPersist(ctx, nil, additions, nil)
}

// CreateChildLayer builds and persists a new layer stacked on parent,
// with the given additions and removals.
func (s *Store) CreateChildLayer(ctx context.Context, parent *Layer, additions, removals []ResolvedTriple) (*Layer, error) {
	if parent == nil {
		return nil, fmt.Errorf("stratum: CreateChildLayer requires a non-nil parent: %w", ErrInvariantViolation)
	}
	return s.buildAndPersist(ctx, parent, additions, removals)
}

func (s *Store) buildAndPersist(ctx context.Context, parent *Layer, additions, removals []ResolvedTriple) (*Layer, error) {
	b := newBuilder(parent)
	stageNewEntries(b, parent, additions, removals)
	b.CloseDictionaries()

	for _, t := range sortedResolved(b, additions, false) {
		b.AddTriple(t.S, t.P, t.O)
	}
	if parent != nil {
		for _, t := range sortedResolved(b, removals, true) {
			b.RemoveTriple(t.S, t.P, t.O)
		}
	}

	id, err := s.backend.CreateDirectory(ctx)
	if err != nil {
		return nil, err
	}
	l, err := b.Finalize(id)
	if err != nil {
		return nil, err
	}
	if err := PersistLayer(ctx, s.backend, id, l); err != nil {
		return nil, err
	}
	if err := s.backend.FinalizeDirectory(ctx, id); err != nil {
		return nil, err
	}
	s.log.Info("layer created",
		zap.String("layer", id.String()),
		zap.Stringer("kind", l.Kind()),
		zap.Int("additions", len(additions)),
		zap.Int("removals", len(removals)),
	)
	return s.cache.Put(id, l), nil
}

// objectKey names a value's slot in the shared node/value id space:
// either a node name or a (datatype, raw bytes) typed literal.
type objectKey struct {
	isNode bool
	node   string
	dt     dict.Datatype
	raw    string
}

func keyOfObject(v Value) objectKey {
	if v.IsNode {
		return objectKey{isNode: true, node: v.Node}
	}
	return objectKey{dt: v.Datatype, raw: string(v.Raw)}
}

// stageNewEntries registers every node/predicate/value referenced by
// additions (and, best-effort, removals) that isn't already resolvable
// in the parent chain, in the strictly ascending order AddNode/
// AddPredicate/AddValue require.
func stageNewEntries(b *Builder, parent *Layer, additions, removals []ResolvedTriple) {
	nodeSet := map[string]bool{}
	predSet := map[string]bool{}
	valSet := map[objectKey]bool{}

	collect := func(ts []ResolvedTriple) {
		for _, t := range ts {
			nodeSet[t.Subject] = true
			predSet[t.Predicate] = true
			if t.Object.IsNode {
				nodeSet[t.Object.Node] = true
			} else {
				valSet[keyOfObject(t.Object)] = true
			}
		}
	}
	collect(additions)
	collect(removals)

	nodes := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		if parent == nil {
			nodes = append(nodes, n)
			continue
		}
		if _, ok := parent.NodeID(n); !ok {
			nodes = append(nodes, n)
		}
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		b.AddNode(n)
	}

	preds := make([]string, 0, len(predSet))
	for p := range predSet {
		if parent == nil {
			preds = append(preds, p)
			continue
		}
		if _, ok := parent.PredicateID(p); !ok {
			preds = append(preds, p)
		}
	}
	slices.Sort(preds)
	for _, p := range preds {
		b.AddPredicate(p)
	}

	vals := make([]objectKey, 0, len(valSet))
	for k := range valSet {
		if parent == nil {
			vals = append(vals, k)
			continue
		}
		if _, ok := parent.ValueID(k.dt, []byte(k.raw)); !ok {
			vals = append(vals, k)
		}
	}
	slices.SortFunc(vals, func(a, c objectKey) int {
		if a.dt != c.dt {
			return int(a.dt) - int(c.dt)
		}
		if a.raw < c.raw {
			return -1
		}
		if a.raw > c.raw {
			return 1
		}
		return 0
	})
	for _, v := range vals {
		b.AddValue(v.dt, []byte(v.raw))
	}
}

// sortedResolved resolves each ResolvedTriple to global ids via b and
// returns them sorted in the (s,p,o) order AddTriple/RemoveTriple
// require. forRemoval entries that fail to resolve (referencing an
// entity that exists nowhere in the chain) are dropped rather than
// erroring: removing a fact that was never there is a no-op.
func sortedResolved(b *Builder, ts []ResolvedTriple, forRemoval bool) []Triple {
	out := make([]Triple, 0, len(ts))
	for _, t := range ts {
		s, ok := b.ResolveNode(t.Subject)
		if !ok {
			if forRemoval {
				continue
			}
			panic(fmt.Sprintf("stratum: unresolved subject %q", t.Subject))
		}
		p, ok := b.ResolvePredicate(t.Predicate)
		if !ok {
			if forRemoval {
				continue
			}
			panic(fmt.Sprintf("stratum: unresolved predicate %q", t.Predicate))
		}
		var o uint64
		if t.Object.IsNode {
			o, ok = b.ResolveNode(t.Object.Node)
		} else {
			o, ok = b.ResolveValue(t.Object.Datatype, t.Object.Raw)
		}
		if !ok {
			if forRemoval {
				continue
			}
			panic("stratum: unresolved object")
		}
		out = append(out, Triple{S: s, P: p, O: o})
	}
	slices.SortFunc(out, func(a, c Triple) int {
		switch {
		case a.S != c.S:
			return int(a.S) - int(c.S)
		case a.P != c.P:
			return int(a.P) - int(c.P)
		default:
			return int(a.O) - int(c.O)
		}
	})
	return out
}

// ExportLayers serializes the given layers (and, transitively, nothing
// else — callers must list every ancestor they want included) into a
// pack.
func (s *Store) ExportLayers(ctx context.Context, ids []LayerID) ([]byte, error) {
	return ExportLayers(ctx, s.backend, ids)
}

// ImportLayers reconstructs layers from a pack into this store's
// backend.
func (s *Store) ImportLayers(ctx context.Context, pack []byte, ids []LayerID) error {
	return ImportLayers(ctx, s.backend, pack, ids)
}

// NamedGraph binds a label name to this store, per §6.5.
type NamedGraph struct {
	store *Store
	name  string
}

// Create creates a new named graph with no head layer. Fails with
// ErrAlreadyExists if name is already taken.
func (s *Store) Create(ctx context.Context, name string) (*NamedGraph, error) {
	if _, err := s.labelStore.CreateLabel(ctx, name); err != nil {
		return nil, err
	}
	s.log.Info("named graph created", zap.String("graph", name))
	return &NamedGraph{store: s, name: name}, nil
}

// Open returns a handle to an existing named graph, or ok=false if
// name is unknown.
func (s *Store) Open(ctx context.Context, name string) (graph *NamedGraph, ok bool, err error) {
	if _, ok, err := s.labelStore.GetLabel(ctx, name); err != nil || !ok {
		return nil, ok, err
	}
	return &NamedGraph{store: s, name: name}, true, nil
}

// Delete removes a named graph's label. The layers it pointed at are
// not deleted (layer lifecycle is independent of label lifecycle,
// §3.6).
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.labelStore.DeleteLabel(ctx, name)
}

func (g *NamedGraph) currentLabel(ctx context.Context) (Label, error) {
	l, ok, err := g.store.labelStore.GetLabel(ctx, g.name)
	if err != nil {
		return Label{}, err
	}
	if !ok {
		return Label{}, fmt.Errorf("stratum: named graph %q: %w", g.name, ErrNotFound)
	}
	return l, nil
}

// Head loads and returns the graph's current head layer, or ok=false
// if the graph has no head yet.
func (g *NamedGraph) Head(ctx context.Context) (layer *Layer, ok bool, err error) {
	l, err := g.currentLabel(ctx)
	if err != nil {
		return nil, false, err
	}
	if l.Layer.IsZero() {
		return nil, false, nil
	}
	layer, err = g.store.GetLayer(ctx, l.Layer)
	return layer, err == nil, err
}

// SetHead compare-and-sets the graph's head to newHead, requiring the
// current head (if any) to be an ancestor of newHead — enforcing
// fast-forward-only updates. Returns ErrCasFailed (bare) on a label
// version race, or ErrInvariantViolation if newHead doesn't descend
// from the current head.
func (g *NamedGraph) SetHead(ctx context.Context, newHead *Layer) error {
	current, err := g.currentLabel(ctx)
	if err != nil {
		return err
	}
	if !current.Layer.IsZero() {
		curLayer, err := g.store.GetLayer(ctx, current.Layer)
		if err != nil {
			return err
		}
		if !curLayer.IsAncestorOf(newHead) {
			g.store.log.Warn("named graph SetHead rejected: not a fast-forward",
				zap.String("graph", g.name),
				zap.String("current_head", current.Layer.String()),
				zap.String("new_head", newHead.ID().String()),
			)
			return fmt.Errorf("stratum: named graph %q: new head does not descend from current head: %w", g.name, ErrInvariantViolation)
		}
	}
	_, err = g.store.labelStore.SetLabel(ctx, current, newHead.ID())
	return err
}

// ForceSetHead compare-and-sets the graph's head to newHead, bypassing
// the ancestor-of check (but still enforcing the label's version CAS).
func (g *NamedGraph) ForceSetHead(ctx context.Context, newHead *Layer) error {
	current, err := g.currentLabel(ctx)
	if err != nil {
		return err
	}
	_, err = g.store.labelStore.SetLabel(ctx, current, newHead.ID())
	return err
}

// ForceSetHeadVersion is ForceSetHead with an explicitly supplied
// expected version, for callers that already hold a Label from an
// earlier read and want to CAS against that exact version rather than
// re-fetching it.
func (g *NamedGraph) ForceSetHeadVersion(ctx context.Context, newHead *Layer, version uint64) error {
	current, err := g.currentLabel(ctx)
	if err != nil {
		return err
	}
	current.Version = version
	_, err = g.store.labelStore.SetLabel(ctx, current, newHead.ID())
	return err
}

// Delete removes this named graph's label.
func (g *NamedGraph) Delete(ctx context.Context) error {
	return g.store.labelStore.DeleteLabel(ctx, g.name)
}
