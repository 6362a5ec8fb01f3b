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

// Package vm implements the execution engine: the Frame and Context
// runtime types, the opcode table, and the dispatch loop that threads
// frame chains, the instruction pointer, suspension, and event delivery
// through a Run.
//
// Frame is adapted from the register-VM's Memory type (lang/vm/memory.go in
// the ProbeChain-go-probe source tree): every register access is bounds
// checked against the frame's fixed size and reported as an error rather
// than trusted or silently truncated, the same discipline Memory applied
// to heap addresses. The allocation-tracking map machinery Memory used
// for variable-sized heap regions has no counterpart here since a Frame's
// register file has a single fixed size decided at call time.
package vm

import (
	"errors"
	"fmt"

	"github.com/oinkcat/sl-evaluator/value"
)

// ErrRegisterOutOfRange is returned when a register index falls outside a
// frame's allocated size — normally caught at load time, this surfaces it
// at runtime instead for a corrupted or hand-built Program.
var ErrRegisterOutOfRange = errors.New("vmctx: register index out of range")

// ErrStackUnderflow is returned when Pop is called on an empty operand stack.
var ErrStackUnderflow = errors.New("vmctx: operand stack underflow")

// Frame is a per-call activation record: a fixed-size register file, a
// LIFO operand stack, an optional caller link, and an optional closure
// link captured when a FunctionRef was bound.
type Frame struct {
	registers []value.Value
	stack     []value.Value

	caller  *Frame
	closure *Frame

	// isReferenced marks a frame entered via a nested re-entrant call
	// triggered from native code (see Context.ExecuteFunctionRef).
	isReferenced bool
}

// NewFrame allocates a Frame with size registers (all Empty), the given
// caller link, and the given closure link (nil for a plain call).
func NewFrame(size int, caller, closure *Frame) *Frame {
	return &Frame{
		registers: make([]value.Value, size),
		caller:    caller,
		closure:   closure,
	}
}

// Size returns the number of registers in the frame.
func (f *Frame) Size() int { return len(f.registers) }

// IsGlobal reports whether f has no caller (the root/global frame).
func (f *Frame) IsGlobal() bool { return f.caller == nil }

// Caller returns the frame that invoked f, or nil if f is global.
func (f *Frame) Caller() *Frame { return f.caller }

// Closure returns the captured closure frame, or nil.
func (f *Frame) Closure() *Frame { return f.closure }

// Global walks the caller chain to the root frame.
func (f *Frame) Global() *Frame {
	cur := f
	for cur.caller != nil {
		cur = cur.caller
	}
	return cur
}

// IsReferenced reports whether f was entered as a nested re-entrant call.
func (f *Frame) IsReferenced() bool { return f.isReferenced }

// SetReferenced marks f as a nested re-entrant call frame.
func (f *Frame) SetReferenced(v bool) { f.isReferenced = v }

// Register reads register idx.
func (f *Frame) Register(idx int32) (value.Value, error) {
	if idx < 0 || int(idx) >= len(f.registers) {
		return value.Empty(), fmt.Errorf("%w: %d (frame size %d)", ErrRegisterOutOfRange, idx, len(f.registers))
	}
	return f.registers[idx], nil
}

// SetRegister writes v to register idx.
func (f *Frame) SetRegister(idx int32, v value.Value) error {
	if idx < 0 || int(idx) >= len(f.registers) {
		return fmt.Errorf("%w: %d (frame size %d)", ErrRegisterOutOfRange, idx, len(f.registers))
	}
	f.registers[idx] = v
	return nil
}

// Reset sets register idx back to Empty (the `reset N` opcode).
func (f *Frame) Reset(idx int32) error {
	return f.SetRegister(idx, value.Empty())
}

// Push pushes v onto the operand stack.
func (f *Frame) Push(v value.Value) {
	f.stack = append(f.stack, v)
}

// PushBottom inserts v at the bottom of the operand stack. Used when
// binding a FunctionRef's receiver so it lands in register 0 once the
// callee's parameter-popping loop runs.
func (f *Frame) PushBottom(v value.Value) {
	f.stack = append(f.stack, value.Empty())
	copy(f.stack[1:], f.stack[:len(f.stack)-1])
	f.stack[0] = v
}

// Pop removes and returns the top of the operand stack.
func (f *Frame) Pop() (value.Value, error) {
	if len(f.stack) == 0 {
		return value.Empty(), ErrStackUnderflow
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

// Peek returns the top of the operand stack without removing it.
func (f *Frame) Peek() (value.Value, error) {
	if len(f.stack) == 0 {
		return value.Empty(), ErrStackUnderflow
	}
	return f.stack[len(f.stack)-1], nil
}

// Dup duplicates the top of the operand stack.
func (f *Frame) Dup() error {
	v, err := f.Peek()
	if err != nil {
		return err
	}
	f.Push(v)
	return nil
}

// StackLen reports the current operand stack depth.
func (f *Frame) StackLen() int { return len(f.stack) }

// StackSnapshot returns a copy of the operand stack, bottom first, for
// frame-dump diagnostics. The caller must not mutate the result's Values'
// underlying containers, but the slice itself is an independent copy.
func (f *Frame) StackSnapshot() []value.Value {
	out := make([]value.Value, len(f.stack))
	copy(out, f.stack)
	return out
}

// RegisterSnapshot returns a copy of the register file for frame-dump
// diagnostics.
func (f *Frame) RegisterSnapshot() []value.Value {
	out := make([]value.Value, len(f.registers))
	copy(out, f.registers)
	return out
}
