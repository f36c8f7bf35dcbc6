// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package stratum provides an append-only, layered RDF-style triple
// store.
//
// Facts accumulate as immutable layers stacked on top of one another:
// a base layer holds an initial bulk of triples, and child layers
// record additions and removals relative to their parent without
// rewriting it. Layers are addressed by content-derived id and are
// safe to share across stores; named graphs bind a mutable, CAS-
// guarded label to a layer id so callers can advance a graph's head
// without losing the ability to time-travel to any earlier layer.
//
// Internally each layer's nodes, predicates, and typed values are
// held in front-coded dictionaries, and its triples in succinct
// adjacency lists plus a wavelet tree over predicates, so a fully
// materialized layer chain is queried without ever rebuilding a flat
// triple table.
package stratum
