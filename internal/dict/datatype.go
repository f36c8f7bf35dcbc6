// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package dict implements the two string/value dictionary flavors a
// layer's dictionaries section is built from: a plain front-coded
// string dictionary (node and predicate names), and a typed value
// dictionary that additionally tags each entry with a datatype and
// orders entries type-segment by type-segment so that, within a
// segment, the lexical byte encoding sorts the same as the decoded
// value.
package dict

import "fmt"

// Datatype identifies the Go/XSD-ish type a typed dictionary entry was
// encoded from. The numbering matches the byte tag written to disk and
// must not be reordered.
type Datatype uint8

const (
	DatatypeString Datatype = iota
	DatatypeUInt32
	DatatypeInt32
	DatatypeFloat32
	DatatypeUInt64
	DatatypeInt64
	DatatypeFloat64
	DatatypeDecimal
	DatatypeBigInt
)

func (d Datatype) String() string {
	switch d {
	case DatatypeString:
		return "String"
	case DatatypeUInt32:
		return "UInt32"
	case DatatypeInt32:
		return "Int32"
	case DatatypeFloat32:
		return "Float32"
	case DatatypeUInt64:
		return "UInt64"
	case DatatypeInt64:
		return "Int64"
	case DatatypeFloat64:
		return "Float64"
	case DatatypeDecimal:
		return "Decimal"
	case DatatypeBigInt:
		return "BigInt"
	default:
		return fmt.Sprintf("Datatype(%d)", uint8(d))
	}
}

// RecordSize returns the fixed encoded byte width for datatypes that
// have one, and ok=false for variable-length datatypes (String,
// Decimal, BigInt), which carry their own length prefix instead.
func (d Datatype) RecordSize() (size int, ok bool) {
	switch d {
	case DatatypeUInt32, DatatypeInt32, DatatypeFloat32:
		return 4, true
	case DatatypeUInt64, DatatypeInt64, DatatypeFloat64:
		return 8, true
	default:
		return 0, false
	}
}

// NumDatatypes is the number of datatype tags, used to size the
// type-segment table in a TypedDict.
const NumDatatypes = int(DatatypeBigInt) + 1
