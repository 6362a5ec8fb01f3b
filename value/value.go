// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

// Package value implements the tagged-union data model shared by the
// loader, the execution engine, and the native function modules.
//
// Value is a closed sum type: Empty, Number, Text, Boolean, Date, Array,
// Hash, Iterator, FunctionRef. It is implemented as a single struct with
// a Kind discriminator rather than an interface hierarchy, following the
// same "flat struct, switch on a small enum" idiom bytecode engines
// commonly use for opcode dispatch tables.
package value

import (
	"fmt"
	"time"
)

// Kind discriminates the variant held by a Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindNumber
	KindText
	KindBoolean
	KindDate
	KindArray
	KindHash
	KindIterator
	KindFunctionRef
)

var kindNames = [...]string{
	KindEmpty:       "empty",
	KindNumber:      "number",
	KindText:        "text",
	KindBoolean:     "boolean",
	KindDate:        "date",
	KindArray:       "array",
	KindHash:        "hash",
	KindIterator:    "iterator",
	KindFunctionRef: "function_ref",
}

// String returns the lower-case variant name, used in error messages.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is the tagged-union runtime value. The zero Value is Empty.
type Value struct {
	kind Kind

	num     float64
	str     string
	boolean bool
	date    time.Time

	arr  *Array
	hash *Hash
	iter *Iterator
	fn   *FunctionRef
}

// Empty returns the Empty value (the zero value of Value is already Empty,
// this constructor exists for readability at call sites).
func Empty() Value { return Value{kind: KindEmpty} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Boolean wraps a bool.
func Boolean(b bool) Value { return Value{kind: KindBoolean, boolean: b} }

// Date wraps a timestamp.
func Date(t time.Time) Value { return Value{kind: KindDate, date: t} }

// NewArray wraps an *Array. A nil Array is treated as a fresh empty array.
func NewArray(a *Array) Value {
	if a == nil {
		a = &Array{}
	}
	return Value{kind: KindArray, arr: a}
}

// NewHash wraps a *Hash. A nil Hash is treated as a fresh empty hash.
func NewHash(h *Hash) Value {
	if h == nil {
		h = NewHashValue()
	}
	return Value{kind: KindHash, hash: h}
}

// NewIterator wraps an *Iterator.
func NewIterator(it *Iterator) Value {
	return Value{kind: KindIterator, iter: it}
}

// NewFunctionRef wraps a *FunctionRef.
func NewFunctionRef(fn *FunctionRef) Value {
	return Value{kind: KindFunctionRef, fn: fn}
}

// Kind reports which variant is held.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether v is the Empty variant.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// AsNumber returns the wrapped float64 and whether v is a Number.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsText returns the wrapped string and whether v is Text.
func (v Value) AsText() (string, bool) { return v.str, v.kind == KindText }

// AsBoolean returns the wrapped bool and whether v is a Boolean.
func (v Value) AsBoolean() (bool, bool) { return v.boolean, v.kind == KindBoolean }

// AsDate returns the wrapped timestamp and whether v is a Date.
func (v Value) AsDate() (time.Time, bool) { return v.date, v.kind == KindDate }

// AsArray returns the wrapped *Array and whether v is an Array.
func (v Value) AsArray() (*Array, bool) { return v.arr, v.kind == KindArray }

// AsHash returns the wrapped *Hash and whether v is a Hash.
func (v Value) AsHash() (*Hash, bool) { return v.hash, v.kind == KindHash }

// AsIterator returns the wrapped *Iterator and whether v is an Iterator.
func (v Value) AsIterator() (*Iterator, bool) { return v.iter, v.kind == KindIterator }

// AsFunctionRef returns the wrapped *FunctionRef and whether v is a FunctionRef.
func (v Value) AsFunctionRef() (*FunctionRef, bool) { return v.fn, v.kind == KindFunctionRef }

// MustNumber panics if v is not a Number; used by opcode handlers that have
// already type-checked via a preceding guard.
func (v Value) MustNumber() float64 {
	if v.kind != KindNumber {
		panic(fmt.Sprintf("value: expected number, got %s", v.kind))
	}
	return v.num
}

// MustText panics if v is not Text.
func (v Value) MustText() string {
	if v.kind != KindText {
		panic(fmt.Sprintf("value: expected text, got %s", v.kind))
	}
	return v.str
}

// FunctionRef is a bound reference to a user-defined function: the
// instruction address to jump to, an optional receiver bound as argument
// zero, and an optional closure frame for load.outer/store.outer.
//
// Closure is typed as `any` (rather than a concrete frame type) so that
// this leaf package never depends on the frame/context package; the
// execution engine type-asserts it back to its concrete frame type.
type FunctionRef struct {
	Address int32
	Bound   Value
	Closure any
}

// Equal implements the strict Value equality rule: scalars compare by
// bitwise value, arrays/hashes by reference identity, function refs by
// address, and mismatched variants are never equal under this operator
// (this is distinct from compareDataItems' legacy cross-variant behavior,
// see vm/compare.go).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindEmpty:
		return true
	case KindNumber:
		return v.num == other.num
	case KindText:
		return v.str == other.str
	case KindBoolean:
		return v.boolean == other.boolean
	case KindDate:
		return v.date.Equal(other.date)
	case KindArray:
		return v.arr == other.arr
	case KindHash:
		return v.hash == other.hash
	case KindIterator:
		return v.iter == other.iter
	case KindFunctionRef:
		return v.fn != nil && other.fn != nil && v.fn.Address == other.fn.Address
	default:
		return false
	}
}

// String renders v for diagnostics, emit/stringify, and frame dumps.
func (v Value) String() string {
	switch v.kind {
	case KindEmpty:
		return ""
	case KindNumber:
		return formatNumber(v.num)
	case KindText:
		return v.str
	case KindBoolean:
		if v.boolean {
			return "true"
		}
		return "false"
	case KindDate:
		return v.date.Format(time.RFC3339)
	case KindArray:
		return v.arr.String()
	case KindHash:
		return v.hash.String()
	case KindIterator:
		return "<iterator>"
	case KindFunctionRef:
		return fmt.Sprintf("<function@%d>", v.fn.Address)
	default:
		return "<unknown>"
	}
}

// formatNumber mimics a dynamically-typed scripting language's number
// stringification: integral values print without a trailing ".0".
func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
