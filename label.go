// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import "context"

// Label binds a name to the layer a named graph currently points at,
// versioned for compare-and-set (§4.9). Grounded on
// original_source/src/storage/label.rs's Label{name, layer, version}
// shape; the Rust [u32;5] layer id is the same 20 bytes as LayerID.
type Label struct {
	Name    string
	Layer   LayerID // NilLayerID means "no layer yet"
	Version uint64
}

// LabelStore is the versioned CAS label contract (§4.9, §6.3).
// Implementations: label_memory.go and label_file.go.
type LabelStore interface {
	// ListLabels enumerates every label.
	ListLabels(ctx context.Context) ([]Label, error)

	// CreateLabel creates (name, NilLayerID, 0). Fails with
	// ErrAlreadyExists if name is already taken.
	CreateLabel(ctx context.Context, name string) (Label, error)

	// GetLabel returns the current label, or ok=false if name is
	// unknown.
	GetLabel(ctx context.Context, name string) (label Label, ok bool, err error)

	// SetLabel compare-and-sets expected to point at newLayer,
	// succeeding only if the stored version still matches
	// expected.Version, and returning the new (version+1) label.
	// Returns ErrCasFailed (bare, not wrapped) on mismatch.
	SetLabel(ctx context.Context, expected Label, newLayer LayerID) (Label, error)

	// ClearLabel compare-and-sets expected back to NilLayerID, same
	// CAS contract as SetLabel.
	ClearLabel(ctx context.Context, expected Label) (Label, error)

	// DeleteLabel removes a label outright (no CAS: deletion is not a
	// pointer update).
	DeleteLabel(ctx context.Context, name string) error
}
