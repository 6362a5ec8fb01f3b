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

package loader

import (
	"fmt"

	"github.com/oinkcat/sl-evaluator/vm"
)

// VerifyError describes a linked-program invariant violation found by
// static inspection rather than by executing the program.
type VerifyError struct {
	Index   int
	Message string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify error at instruction %d: %s", e.Index, e.Message)
}

// Verify checks a linked program against the invariants the loader is
// expected to establish:
//
//	I1 - every Store target fits within its owning function's declared
//	     frame size
//	I2 - every jump/call/mk_ref.udf target resolves to a valid
//	     instruction or function address
//	I3 - the entry function key (-1) is present
//	I4 - the entry function's frame size is at least the shared-variable
//	     count (it may be larger when the entry body also stores into
//	     registers beyond the shared-variable range)
//	I5 - load.data indices stay within the data segment
//
// Load already performs the work needed to build a program satisfying
// these; Verify exists to catch a hand-assembled or externally
// generated *vm.Program that bypassed Load.
func Verify(p *vm.Program) []VerifyError {
	var errs []VerifyError

	entry, hasEntry := p.Functions[vm.EntryFunctionKey]
	if !hasEntry {
		errs = append(errs, VerifyError{Index: -1, Message: "missing entry function (-1)"})
	} else if entry.FrameSize < int32(len(p.SharedVarNames)) {
		// I4 fixes frame_size(-1) at exactly |shared_var_names| for the
		// globals sub-range StoreGlobal/LoadGlobal address; a plain `store`
		// directly in the entry body (I1) may grow the same underlying
		// frame past that floor to hold entry-local values, so only a
		// deficit - not a surplus - is a violation.
		errs = append(errs, VerifyError{
			Index:   -1,
			Message: fmt.Sprintf("entry frame size %d is smaller than shared variable count %d", entry.FrameSize, len(p.SharedVarNames)),
		})
	}

	owner := functionOwnerTable(p, len(p.Instructions))

	for i, ins := range p.Instructions {
		switch ins.Op {
		case vm.OpStore:
			// I1 only binds a plain Store to its own function's frame;
			// store.outer addresses a register L closure levels out, whose
			// frame isn't resolvable by static address range (the closure
			// chain is a runtime binding, not a lexical one), so it isn't
			// checked here.
			if fn, ok := owner[i]; ok && ins.Reg >= fn.FrameSize {
				errs = append(errs, VerifyError{Index: i, Message: fmt.Sprintf("register %d exceeds frame size %d", ins.Reg, fn.FrameSize)})
			}
		case vm.OpJmp, vm.OpJmpEq, vm.OpJmpNe, vm.OpJmpLt, vm.OpJmpGt, vm.OpJmpLe, vm.OpJmpGe:
			if int(ins.Target) < 0 || int(ins.Target) >= len(p.Instructions) {
				errs = append(errs, VerifyError{Index: i, Message: fmt.Sprintf("jump target %d out of range", ins.Target)})
			}
		case vm.OpCallUDF, vm.OpMkRefUDF:
			if _, ok := p.Functions[ins.Target]; !ok {
				errs = append(errs, VerifyError{Index: i, Message: fmt.Sprintf("call target %d is not a declared function", ins.Target)})
			}
		case vm.OpLoadData:
			if int(ins.DataIndex) < 0 || int(ins.DataIndex) >= len(p.Data) {
				errs = append(errs, VerifyError{Index: i, Message: fmt.Sprintf("data index %d out of range", ins.DataIndex)})
			}
		}
	}

	return errs
}

// functionOwnerTable maps each instruction index to the FunctionInfo of
// the function whose body contains it, by walking functions in address
// order and assigning each the instruction range up to the next
// function's address (or the end of the program).
func functionOwnerTable(p *vm.Program, n int) map[int]vm.FunctionInfo {
	addrs := make([]int32, 0, len(p.Functions))
	byAddr := make(map[int32]vm.FunctionInfo, len(p.Functions))
	for _, fn := range p.Functions {
		addrs = append(addrs, fn.Address)
		byAddr[fn.Address] = fn
	}
	for i := 0; i < len(addrs); i++ {
		for j := i + 1; j < len(addrs); j++ {
			if addrs[j] < addrs[i] {
				addrs[i], addrs[j] = addrs[j], addrs[i]
			}
		}
	}

	owner := make(map[int]vm.FunctionInfo, n)
	for idx, addr := range addrs {
		end := n
		if idx+1 < len(addrs) {
			end = int(addrs[idx+1])
		}
		fn := byAddr[addr]
		for i := int(addr); i < end; i++ {
			owner[i] = fn
		}
	}
	return owner
}
