package value

import "strings"

// Array is the mutable, ordered sequence backing the Array variant.
// It is always handled through a pointer so that Value equality for
// arrays uses Go pointer identity: reference-type comparison, not a
// deep structural one.
type Array struct {
	Items []Value
}

// NewArrayValues builds an *Array from a slice of items, preserving order.
func NewArrayValues(items []Value) *Array {
	return &Array{Items: items}
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Items) }

// Get returns the element at idx and whether idx was in range.
func (a *Array) Get(idx int) (Value, bool) {
	if idx < 0 || idx >= len(a.Items) {
		return Empty(), false
	}
	return a.Items[idx], true
}

// Set writes v at idx, growing the array with Empty padding if idx is one
// past the end or beyond (mirrors the permissive append-on-write behavior
// common to dynamically sized scripting-language arrays).
func (a *Array) Set(idx int, v Value) bool {
	if idx < 0 {
		return false
	}
	for idx >= len(a.Items) {
		a.Items = append(a.Items, Empty())
	}
	a.Items[idx] = v
	return true
}

// Append adds v to the end of the array (used by the $builtin Add function).
func (a *Array) Append(v Value) {
	a.Items = append(a.Items, v)
}

// Delete removes the element at idx, shifting subsequent elements down.
// Reports whether idx was in range.
func (a *Array) Delete(idx int) bool {
	if idx < 0 || idx >= len(a.Items) {
		return false
	}
	a.Items = append(a.Items[:idx], a.Items[idx+1:]...)
	return true
}

// Clone returns a new *Array with a copy of the item slice (used by Slice,
// which must not alias the source array).
func (a *Array) Clone() *Array {
	items := make([]Value, len(a.Items))
	copy(items, a.Items)
	return &Array{Items: items}
}

// String renders the array as a bracketed, comma-separated list.
func (a *Array) String() string {
	parts := make([]string, len(a.Items))
	for i, it := range a.Items {
		parts[i] = it.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
