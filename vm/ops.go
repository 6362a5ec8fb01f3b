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
	"fmt"
	"math"

	"github.com/oinkcat/sl-evaluator/value"
)

// execMkArray pops n items and pushes them as an Array, restoring source
// push order (the stack yields them back to front).
func execMkArray(f *Frame, n int) error {
	items := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := f.Pop()
		if err != nil {
			return err
		}
		items[i] = v
	}
	f.Push(value.NewArray(value.NewArrayValues(items)))
	return nil
}

// execMkHash pops n (key,value) pairs — pushed as key1 value1 key2 value2
// …, so popped back as valueN keyN … value1 key1 — and pushes them as a
// Hash, preserving source order.
func execMkHash(f *Frame, n int) error {
	type pair struct {
		key string
		val value.Value
	}
	pairs := make([]pair, n)
	for i := n - 1; i >= 0; i-- {
		v, err := f.Pop()
		if err != nil {
			return err
		}
		k, err := f.Pop()
		if err != nil {
			return err
		}
		key, ok := k.AsText()
		if !ok {
			return fmt.Errorf("%w: hash key must be text, got %s", ErrTypeMismatch, k.Kind())
		}
		pairs[i] = pair{key, v}
	}
	h := value.NewHashValue()
	for _, p := range pairs {
		h.Set(p.key, p.val)
	}
	f.Push(value.NewHash(h))
	return nil
}

// execBindRefs rewrites every FunctionRef value in the hash on top of the
// stack (without popping it) so its Bound receiver is the hash itself —
// the method-call binding step used when a hash literal's fields are bound
// as methods.
func execBindRefs(f *Frame) error {
	top, err := f.Peek()
	if err != nil {
		return err
	}
	h, ok := top.AsHash()
	if !ok {
		return fmt.Errorf("%w: bind_refs requires a hash, got %s", ErrTypeMismatch, top.Kind())
	}

	type rebind struct {
		key string
		fn  *value.FunctionRef
	}
	var rebinds []rebind
	h.Each(func(key string, v value.Value) {
		if fn, ok := v.AsFunctionRef(); ok {
			rebinds = append(rebinds, rebind{key, fn})
		}
	})
	for _, r := range rebinds {
		h.Set(r.key, value.NewFunctionRef(&value.FunctionRef{Address: r.fn.Address, Bound: top}))
	}
	return nil
}

// execGet implements `get`/`get.index`: pop (unless idx is immediate) the
// index, pop the container, and push the looked-up element.
func execGet(f *Frame, idx value.Value, immediate bool) error {
	if !immediate {
		var err error
		idx, err = f.Pop()
		if err != nil {
			return err
		}
	}
	container, err := f.Pop()
	if err != nil {
		return err
	}
	v, err := indexInto(container, idx)
	if err != nil {
		return err
	}
	f.Push(v)
	return nil
}

// execSet implements `set`/`set.index`: pop the value, pop (unless idx is
// immediate) the index, pop the container, and write the element back in
// place (arrays and hashes are reference types, so no push-back is
// needed).
func execSet(f *Frame, idx value.Value, immediate bool) error {
	v, err := f.Pop()
	if err != nil {
		return err
	}
	if !immediate {
		idx, err = f.Pop()
		if err != nil {
			return err
		}
	}
	container, err := f.Pop()
	if err != nil {
		return err
	}
	return setInto(container, idx, v)
}

func indexInto(container, idx value.Value) (value.Value, error) {
	switch container.Kind() {
	case value.KindArray:
		arr, _ := container.AsArray()
		n, ok := idx.AsNumber()
		if !ok {
			return value.Empty(), fmt.Errorf("%w: array index must be a number, got %s", ErrTypeMismatch, idx.Kind())
		}
		v, ok := arr.Get(int(n))
		if !ok {
			return value.Empty(), fmt.Errorf("%w: array index %d out of range (len %d)", ErrTypeMismatch, int(n), arr.Len())
		}
		return v, nil
	case value.KindHash:
		h, _ := container.AsHash()
		key, ok := idx.AsText()
		if !ok {
			return value.Empty(), fmt.Errorf("%w: hash key must be text, got %s", ErrTypeMismatch, idx.Kind())
		}
		v, _ := h.Get(key)
		return v, nil
	default:
		return value.Empty(), fmt.Errorf("%w: cannot index into %s", ErrTypeMismatch, container.Kind())
	}
}

func setInto(container, idx, v value.Value) error {
	switch container.Kind() {
	case value.KindArray:
		arr, _ := container.AsArray()
		n, ok := idx.AsNumber()
		if !ok {
			return fmt.Errorf("%w: array index must be a number, got %s", ErrTypeMismatch, idx.Kind())
		}
		if !arr.Set(int(n), v) {
			return fmt.Errorf("%w: array index %d out of range", ErrTypeMismatch, int(n))
		}
		return nil
	case value.KindHash:
		h, _ := container.AsHash()
		key, ok := idx.AsText()
		if !ok {
			return fmt.Errorf("%w: hash key must be text, got %s", ErrTypeMismatch, idx.Kind())
		}
		h.Set(key, v)
		return nil
	default:
		return fmt.Errorf("%w: cannot index into %s", ErrTypeMismatch, container.Kind())
	}
}

// execSetOp implements `set.op name`: pop index, array, value, compute
// array[index] <op> value numerically, and write the result back.
func execSetOp(f *Frame, opName string) error {
	idx, err := f.Pop()
	if err != nil {
		return err
	}
	container, err := f.Pop()
	if err != nil {
		return err
	}
	operand, err := f.Pop()
	if err != nil {
		return err
	}

	arr, ok := container.AsArray()
	if !ok {
		return fmt.Errorf("%w: set.op requires an array, got %s", ErrTypeMismatch, container.Kind())
	}
	n, ok := idx.AsNumber()
	if !ok {
		return fmt.Errorf("%w: set.op index must be a number, got %s", ErrTypeMismatch, idx.Kind())
	}
	cur, ok := arr.Get(int(n))
	if !ok {
		return fmt.Errorf("%w: array index %d out of range", ErrTypeMismatch, int(n))
	}
	curN, ok := cur.AsNumber()
	if !ok {
		return fmt.Errorf("%w: set.op element must be numeric, got %s", ErrTypeMismatch, cur.Kind())
	}
	opN, ok := operand.AsNumber()
	if !ok {
		return fmt.Errorf("%w: set.op operand must be numeric, got %s", ErrTypeMismatch, operand.Kind())
	}

	result, err := applyMathName(opName, curN, opN)
	if err != nil {
		return err
	}
	arr.Set(int(n), value.Number(result))
	return nil
}

func applyMathName(name string, a, b float64) (float64, error) {
	switch name {
	case "add":
		return a + b, nil
	case "sub":
		return a - b, nil
	case "mul":
		return a * b, nil
	case "div":
		return a / b, nil
	case "mod":
		return math.Mod(a, b), nil
	default:
		return 0, fmt.Errorf("%w: unknown set.op operator %q", ErrTypeMismatch, name)
	}
}

// binaryNumeric pops b then a (so a was pushed first) and pushes
// op(a, b).
func binaryNumeric(f *Frame, op func(a, b float64) float64) error {
	b, err := f.Pop()
	if err != nil {
		return err
	}
	a, err := f.Pop()
	if err != nil {
		return err
	}
	an, ok := a.AsNumber()
	if !ok {
		return fmt.Errorf("%w: expected number, got %s", ErrTypeMismatch, a.Kind())
	}
	bn, ok := b.AsNumber()
	if !ok {
		return fmt.Errorf("%w: expected number, got %s", ErrTypeMismatch, b.Kind())
	}
	f.Push(value.Number(op(an, bn)))
	return nil
}

func binaryLogic(f *Frame, op func(a, b bool) bool) error {
	b, err := f.Pop()
	if err != nil {
		return err
	}
	a, err := f.Pop()
	if err != nil {
		return err
	}
	f.Push(value.Boolean(op(asBoolean(a), asBoolean(b))))
	return nil
}

// execConcat implements `concat`: pop the second operand, then the
// first, and push their stringified concatenation in source order.
func execConcat(f *Frame) error {
	second, err := f.Pop()
	if err != nil {
		return err
	}
	first, err := f.Pop()
	if err != nil {
		return err
	}
	f.Push(value.Text(first.String() + second.String()))
	return nil
}

// execFormat implements the `format` opcode, a reserved mnemonic: it
// mirrors the $builtin Format native's literal, undocumented placeholder
// output rather than performing real interpolation.
func execFormat(f *Frame) error {
	params, err := f.Pop()
	if err != nil {
		return err
	}
	name, err := f.Pop()
	if err != nil {
		return err
	}
	f.Push(value.Text("!== FORMAT: " + name.String() + " " + params.String() + " ==!"))
	return nil
}

// execCompareOp implements `eq/ne/lt/gt/le/ge`: pop b then a, compare,
// and push the Boolean predicate result.
func execCompareOp(c *Context, f *Frame, op Opcode) error {
	b, err := f.Pop()
	if err != nil {
		return err
	}
	a, err := f.Pop()
	if err != nil {
		return err
	}
	cmp := compareValues(a, b)
	c.lastCompare = cmp
	f.Push(value.Boolean(satisfies(op, cmp)))
	return nil
}

// execConditionalJump implements `jmp{eq,ne,lt,gt,le,ge}`: pop (op2, op1),
// compare, and jump iff the predicate holds.
func execConditionalJump(c *Context, f *Frame, ins Instruction) error {
	op2, err := f.Pop()
	if err != nil {
		return err
	}
	op1, err := f.Pop()
	if err != nil {
		return err
	}
	cmp := compareValues(op1, op2)
	c.lastCompare = cmp
	if satisfies(jumpToCompareOp[ins.Op], cmp) {
		c.ip = int(ins.Target)
		c.jumped = true
	}
	return nil
}
