// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import "go.uber.org/zap"

// Config holds the Store facade's construction-time settings, applied
// through functional Options in the manner of other_examples' object
// store constructor (log *zap.Logger field, nil defaulting to
// zap.NewNop()).
type Config struct {
	log *zap.Logger

	// labelStore and backend are swappable storage implementations
	// (label_memory.go/label_file.go, storage_memory.go/storage_file.go).
	// Nil means "in-memory", the common case for tests.
	labelStore LabelStore
	backend    Backend

	// cache holds the process-wide weak layer cache (cache.go). A
	// caller rarely needs to override it; WithCache exists mainly for
	// tests that want an isolated cache instance.
	cache *layerCache
}

// Option configures a Store at construction time.
type Option func(*Config)

// processLayerCache is the layer cache every Store shares unless
// WithCache gives it its own.
var processLayerCache = newLayerCache()

func defaultConfig() *Config {
	return &Config{
		log:   zap.NewNop(),
		cache: processLayerCache,
	}
}

// WithLogger sets the zap logger used for store diagnostics. A nil
// logger is replaced with zap.NewNop().
func WithLogger(log *zap.Logger) Option {
	return func(c *Config) {
		if log == nil {
			log = zap.NewNop()
		}
		c.log = log
	}
}

// WithLabelStore overrides the label store backing named graphs.
func WithLabelStore(s LabelStore) Option {
	return func(c *Config) { c.labelStore = s }
}

// WithBackend overrides the layer storage backend.
func WithBackend(b Backend) Option {
	return func(c *Config) { c.backend = b }
}

// WithCache overrides the process-wide weak layer cache. Mainly useful
// in tests that want cache isolation between Store instances.
func WithCache() Option {
	return func(c *Config) { c.cache = newLayerCache() }
}
