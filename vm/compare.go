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

package vm

import (
	"strings"

	"github.com/oinkcat/sl-evaluator/value"
)

// compareResult is the three-way-plus-undefined outcome of comparing two
// Values. Comparisons across incompatible variants are defined to report
// Equal rather than erroring — the legacy behavior the original engine
// also exhibits.
type compareResult int

const (
	cmpLess compareResult = iota
	cmpEqual
	cmpGreater
	cmpUndefined
)

// compareValues orders a and b. Numbers compare numerically, text
// lexically, dates chronologically, and booleans false<true. Empty
// compares Undefined against anything except another Empty. Comparing
// across two different non-Empty kinds is defined as cmpEqual: neither
// "less" nor "greater" is meaningful, and the legacy engine this preserves
// returns Equal rather than erroring, matching the ordering semantics
// scripts were written against.
func compareValues(a, b value.Value) compareResult {
	if a.Kind() == value.KindEmpty || b.Kind() == value.KindEmpty {
		if a.Kind() == b.Kind() {
			return cmpEqual
		}
		return cmpUndefined
	}
	if a.Kind() != b.Kind() {
		return cmpEqual
	}
	switch a.Kind() {
	case value.KindNumber:
		an, _ := a.AsNumber()
		bn, _ := b.AsNumber()
		switch {
		case an < bn:
			return cmpLess
		case an > bn:
			return cmpGreater
		default:
			return cmpEqual
		}
	case value.KindText:
		as, _ := a.AsText()
		bs, _ := b.AsText()
		switch strings.Compare(as, bs) {
		case -1:
			return cmpLess
		case 1:
			return cmpGreater
		default:
			return cmpEqual
		}
	case value.KindBoolean:
		ab, _ := a.AsBoolean()
		bb, _ := b.AsBoolean()
		if ab == bb {
			return cmpEqual
		}
		if !ab && bb {
			return cmpLess
		}
		return cmpGreater
	case value.KindDate:
		ad, _ := a.AsDate()
		bd, _ := b.AsDate()
		switch {
		case ad.Before(bd):
			return cmpLess
		case ad.After(bd):
			return cmpGreater
		default:
			return cmpEqual
		}
	default:
		if a.Equal(b) {
			return cmpEqual
		}
		return cmpUndefined
	}
}

// jumpToCompareOp normalizes a conditional-jump opcode to its matching
// comparison opcode, so the predicate logic lives in one place (used by
// both `eq/ne/lt/gt/le/ge` and the `jmp{cmp}` family).
var jumpToCompareOp = map[Opcode]Opcode{
	OpJmpEq: OpEq, OpJmpNe: OpNe, OpJmpLt: OpLt,
	OpJmpGt: OpGt, OpJmpLe: OpLe, OpJmpGe: OpGe,
}

// satisfies reports whether cmp satisfies the predicate of comparison
// opcode op (one of eq/ne/lt/gt/le/ge). An cmpUndefined result (Empty
// against a non-Empty operand) satisfies neither strict direction nor
// equality;  it is "treated as not matching" for every
// predicate except `ne`.
func satisfies(op Opcode, cmp compareResult) bool {
	switch op {
	case OpEq:
		return cmp == cmpEqual
	case OpNe:
		return cmp != cmpEqual
	case OpLt:
		return cmp == cmpLess
	case OpGt:
		return cmp == cmpGreater
	case OpLe:
		return cmp == cmpLess || cmp == cmpEqual
	case OpGe:
		return cmp == cmpGreater || cmp == cmpEqual
	default:
		return false
	}
}

// asBoolean implements `pop_as_boolean` (spec §4.3): Empty is always
// false; Number is truthy if positive (a negative number is false); Text
// is truthy if non-empty; Boolean passes through; Date is truthy if it
// names a point past year/month/day 1; Array/Hash are truthy if
// non-empty; Iterator is truthy if it has a next element; FunctionRef is
// always truthy.
func asBoolean(v value.Value) bool {
	switch v.Kind() {
	case value.KindBoolean:
		b, _ := v.AsBoolean()
		return b
	case value.KindNumber:
		n, _ := v.AsNumber()
		return n > 0
	case value.KindText:
		s, _ := v.AsText()
		return s != ""
	case value.KindEmpty:
		return false
	case value.KindDate:
		t, _ := v.AsDate()
		return t.Year() > 1 || t.Month() > 1 || t.Day() > 1
	case value.KindArray:
		arr, _ := v.AsArray()
		return arr.Len() > 0
	case value.KindHash:
		h, _ := v.AsHash()
		return h.Len() > 0
	case value.KindIterator:
		it, _ := v.AsIterator()
		return it.HasNext()
	default:
		return true
	}
}
