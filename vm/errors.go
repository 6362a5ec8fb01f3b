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
	"errors"
	"fmt"

	"github.com/oinkcat/sl-evaluator/value"
)

// Sentinel errors identifying the runtime-failure categories the dispatch
// loop can raise. executeInstruction wraps these with %w so callers can errors.Is
// against the category while RuntimeError carries the execution-site detail.
var (
	ErrEmptyStack          = errors.New("vm: return-address stack is empty")
	ErrTypeMismatch        = errors.New("vm: operand type mismatch")
	ErrUnknownShared       = errors.New("vm: unknown shared variable")
	ErrInvalidIteratorTarget = errors.New("vm: value is not iterable")
	ErrInvalidDateUnit     = errors.New("vm: unrecognized date difference unit")
	ErrUnknownNative       = errors.New("vm: unknown native function")
	ErrUnsupportedOpcode   = errors.New("vm: unsupported opcode")
	ErrNotCallable         = errors.New("vm: value is not callable")
	ErrCallDepthExceeded   = errors.New("vm: maximum call depth exceeded")
)

// RuntimeError reports a failure raised while executing a single
// instruction, with enough context  to reconstruct what the
// script was doing: the faulting instruction's index and textual
// disassembly, the wrapped cause, the source-mapped module/line if
// present, and a snapshot of the active frame chain.
type RuntimeError struct {
	Index      int
	OpcodeRepr string
	Err        error

	SourceModule string
	SourceLine   int

	Frames []FrameDump
}

// FrameDump snapshots one frame of the call chain at the moment a
// RuntimeError was raised, innermost first.
type FrameDump struct {
	Registers []value.Value
	Stack     []value.Value
	IsGlobal  bool
	IsClosure bool
}

func (e *RuntimeError) Error() string {
	if e.SourceModule != "" {
		return fmt.Sprintf("vm: runtime error at #%d %s (%s:%d): %v",
			e.Index, e.OpcodeRepr, e.SourceModule, e.SourceLine, e.Err)
	}
	return fmt.Sprintf("vm: runtime error at #%d %s: %v", e.Index, e.OpcodeRepr, e.Err)
}

// Unwrap exposes the wrapped sentinel for errors.Is/errors.As.
func (e *RuntimeError) Unwrap() error { return e.Err }

// FrameDump renders the captured frame chain as a multi-line string,
// most useful when logged at error level by a host embedding the engine.
func (e *RuntimeError) FrameDump() string {
	out := ""
	for i, fr := range e.Frames {
		kind := "call"
		if fr.IsGlobal {
			kind = "global"
		} else if fr.IsClosure {
			kind = "closure"
		}
		out += fmt.Sprintf("#%d [%s] registers=%v stack=%v\n", i, kind, fr.Registers, fr.Stack)
	}
	return out
}

func newRuntimeError(c *Context, ins Instruction, cause error) *RuntimeError {
	re := &RuntimeError{
		Index:      c.ip,
		OpcodeRepr: ins.String(),
		Err:        cause,
	}
	if loc, ok := c.program.SourceMap[c.ip]; ok {
		re.SourceModule = loc.Module
		re.SourceLine = loc.Line
	}
	for f := c.current; f != nil; f = f.Caller() {
		re.Frames = append(re.Frames, FrameDump{
			Registers: f.RegisterSnapshot(),
			Stack:     f.StackSnapshot(),
			IsGlobal:  f.IsGlobal(),
			IsClosure: f.Closure() != nil,
		})
	}
	return re
}
