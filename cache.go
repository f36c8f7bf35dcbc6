// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// layerCache is the process-wide weak-reference cache of §5's
// "Caching" paragraph: it lets multiple open named graphs share one
// in-memory *Layer for the same id, while letting the layer be
// collected once every graph handle holding it is gone. Go has no
// weak pointers to lean on directly, so this approximates the
// contract with reference counting instead: Get/Release bracket every
// checkout, and the entry is dropped from the map the moment its count
// reaches zero, rather than leaving collection to a GC finalizer.
//
// Grounded on the teacher's pool.go: same atomic live/total bookkeeping
// idiom (sync.Pool wrapped with atomic counters), generalized from a
// free-list of reusable *node[V] to a lookup cache of immutable
// *Layer, keyed by its 20-byte id rather than pooled by type. Cache
// keys are hashed with xxhash (the id is already near-random, so this
// mainly buys a fixed-size, comparable bucket key without copying the
// full 20 bytes into the hot path).
type layerCache struct {
	mu      sync.Mutex
	entries map[uint64]*cacheEntry

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	id       LayerID
	layer    *Layer
	refCount int
}

func newLayerCache() *layerCache {
	return &layerCache{entries: make(map[uint64]*cacheEntry)}
}

func cacheKey(id LayerID) uint64 {
	return xxhash.Sum64(id[:])
}

// Get returns the cached layer for id if present, bumping its
// refcount and returning (layer, true). The caller must Release
// exactly once per successful Get.
func (c *layerCache) Get(id LayerID) (*Layer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(id)]
	if !ok || e.id != id {
		c.misses.Add(1)
		return nil, false
	}
	e.refCount++
	c.hits.Add(1)
	return e.layer, true
}

// Put inserts l under id with an initial refcount of 1, as if the
// caller had just done a Get. If an entry for id already exists (a
// race between two loaders), the existing entry wins and its refcount
// is bumped instead, so only one *Layer per id is ever live.
func (c *layerCache) Put(id LayerID, l *Layer) *Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := cacheKey(id)
	if e, ok := c.entries[k]; ok && e.id == id {
		e.refCount++
		return e.layer
	}
	c.entries[k] = &cacheEntry{id: id, layer: l, refCount: 1}
	return l
}

// Release drops one reference to id's cached layer, evicting it once
// the count reaches zero.
func (c *layerCache) Release(id LayerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := cacheKey(id)
	e, ok := c.entries[k]
	if !ok || e.id != id {
		return
	}
	e.refCount--
	if e.refCount <= 0 {
		delete(c.entries, k)
	}
}

// Stats reports cache hit/miss counters and the number of live
// entries, for diagnostics.
func (c *layerCache) Stats() (hits, misses int64, live int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits.Load(), c.misses.Load(), len(c.entries)
}
