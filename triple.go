// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package stratum

import "github.com/stratumdb/stratum/internal/dict"

// Triple is a fully-resolved (subject, predicate, object) triple in
// global id space: S and O share one id space (nodes and values both
// live there), P has its own.
type Triple struct {
	S, P, O uint64
}

// Less reports whether t sorts strictly before o in (s, p, o) order,
// the ascending order every adjacency list and stack iterator relies
// on.
func (t Triple) Less(o Triple) bool {
	if t.S != o.S {
		return t.S < o.S
	}
	if t.P != o.P {
		return t.P < o.P
	}
	return t.O < o.O
}

// ResolvedTriple is a Triple with its ids resolved back to node names,
// predicate names, and typed values.
type ResolvedTriple struct {
	Subject   string
	Predicate string
	Object    Value
}

// Value is a resolved object: either a node reference (IsNode true) or
// a typed literal.
type Value struct {
	IsNode   bool
	Node     string
	Datatype dict.Datatype
	Raw      []byte
}
