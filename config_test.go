// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultConfigHasNopLoggerAndCache(t *testing.T) {
	c := defaultConfig()
	require.NotNil(t, c.log)
	require.NotNil(t, c.cache)
	require.Nil(t, c.backend)
	require.Nil(t, c.labelStore)
}

func TestWithLoggerNilFallsBackToNop(t *testing.T) {
	c := defaultConfig()
	WithLogger(nil)(c)
	require.NotNil(t, c.log)
}

func TestWithBackendAndLabelStoreOverride(t *testing.T) {
	c := defaultConfig()
	b := NewMemoryBackend(nil)
	ls := NewMemoryLabelStore(nil)
	WithBackend(b)(c)
	WithLabelStore(ls)(c)
	require.Same(t, b, c.backend)
	require.Same(t, ls, c.labelStore)
}

func TestWithCacheGivesFreshInstance(t *testing.T) {
	c := defaultConfig()
	original := c.cache
	WithCache()(c)
	require.NotSame(t, original, c.cache)
}

func TestNewStoreDefaultsToInMemory(t *testing.T) {
	s := NewStore(WithLogger(zap.NewNop()))
	require.NotNil(t, s.backend)
	require.NotNil(t, s.labelStore)
}
