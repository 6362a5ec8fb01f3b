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
	"strconv"

	"github.com/oinkcat/sl-evaluator/value"
)

// NativeFunc is a native function resolved via the module registry. It
// receives the running Context and communicates with the script through
// the Context's stack/frame API (pop arguments, push a result).
type NativeFunc func(ctx *Context) error

// FunctionInfo describes one callable entry point: its instruction
// address, how many parameters it takes, and how many registers its frame
// needs. Key -1 is always the implicit global/"main" entry point.
type FunctionInfo struct {
	Address     int32
	ParamsCount int32
	FrameSize   int32
}

// EntryFunctionKey is the reserved function-table key for the implicit
// global/"main" entry point.
const EntryFunctionKey int32 = -1

// SourceLoc is one source_map entry: the originating module name and line
// for an instruction, captured from a trailing "; #module(line)" comment.
type SourceLoc struct {
	Module string
	Line   int
}

// Instruction is one decoded opcode plus whichever operand fields it uses.
// Only the fields relevant to Op are meaningful; this flat-struct shape
// (rather than one struct type per opcode) follows the same "single
// struct, switch dispatch" idiom bytecode engines commonly use for its 4-byte
// [op][a][b][c] encoding, just decoded once at load time instead of
// re-parsed from bytes on every Step.
type Instruction struct {
	Op Opcode

	// Reg is the primary register operand (load/store/reset and their
	// .global/.outer forms).
	Reg int32
	// OuterLevel is the closure level for load.outer/store.outer (the L in
	// "L:N").
	OuterLevel int32

	// Target is a resolved instruction index: a jump/call target, or a
	// mk_ref.udf function address, after label linking.
	Target int32

	// Str carries a string literal (`load "..."`), an index key
	// (get.index/set.index/emit.named), or a math-op name (set.op).
	Str string
	// HasStr reports whether Str is meaningful for this instruction.
	HasStr bool

	// Num carries a numeric literal (`load 3.5`) or numeric index
	// (get.index/set.index).
	Num float64
	// HasNum reports whether Num is meaningful for this instruction.
	HasNum bool

	// Count is the N operand for mk_array/mk_hash (element/pair count).
	Count int32

	// Module/Name identify a module-qualified selector for load.const and
	// call.native ("[mod:]name"); Native/Const hold the value resolved
	// from the module registry at load time.
	Module string
	Name   string
	Native NativeFunc
	Const  value.Value
	HasConst bool

	// DataIndex is the constant-data-array index for load.const/load.data.
	DataIndex int32
}

// String renders a human-readable disassembly line for this instruction,
// used by source-mapped RuntimeError messages and by loader.Disassemble.
func (ins Instruction) String() string {
	switch ins.Op {
	case OpLoad:
		if ins.HasStr {
			return "load \"" + ins.Str + "\""
		}
		if ins.HasNum {
			return "load " + formatFloat(ins.Num)
		}
		return "load #" + itoa32(ins.Reg)
	case OpLoadGlobal, OpStoreGlobal, OpReset, OpStore:
		return ins.Op.String() + " " + itoa32(ins.Reg)
	case OpLoadOuter, OpStoreOuter:
		return ins.Op.String() + " " + itoa32(ins.OuterLevel) + ":" + itoa32(ins.Reg)
	case OpLoadData, OpMkArray, OpMkHash:
		if ins.Op == OpLoadData {
			return ins.Op.String() + " " + itoa32(ins.DataIndex)
		}
		return ins.Op.String() + " " + itoa32(ins.Count)
	case OpLoadConst:
		if ins.HasStr {
			return "load.const " + ins.Module + ":" + ins.Name
		}
		return "load.const " + itoa32(ins.DataIndex)
	case OpMkRefUDF, OpCallUDF, OpJmp, OpJmpEq, OpJmpNe, OpJmpLt, OpJmpGt, OpJmpLe, OpJmpGe:
		return ins.Op.String() + " @" + itoa32(ins.Target)
	case OpCallNative:
		return "call.native " + ins.Module + ":" + ins.Name
	case OpGetIndex, OpSetIndex:
		if ins.HasStr {
			return ins.Op.String() + " \"" + ins.Str + "\""
		}
		return ins.Op.String() + " " + formatFloat(ins.Num)
	case OpSetOp:
		return "set.op " + ins.Str
	case OpEmitNamed:
		return "emit.named \"" + ins.Str + "\""
	default:
		return ins.Op.String()
	}
}

// Program is the immutable loader output: the global register layout,
// embedded constant data arrays, the function table, the linked
// instruction stream, and the source map.
type Program struct {
	SharedVarNames []string
	Data           []value.Value
	Functions      map[int32]FunctionInfo
	Instructions   []Instruction
	SourceMap      map[int]SourceLoc
}

// EntryFrameSize returns the register count of the global frame: the
// entry function's declared FrameSize, which per I4 is at least
// len(SharedVarNames) but may be larger when the entry body also stores
// into registers beyond the shared-variable range.
func (p *Program) EntryFrameSize() int32 {
	if fn, ok := p.Functions[EntryFunctionKey]; ok {
		return fn.FrameSize
	}
	return int32(len(p.SharedVarNames))
}

// SharedIndex returns the register index for a shared/global variable
// name, and whether it exists.
func (p *Program) SharedIndex(name string) (int32, bool) {
	for i, n := range p.SharedVarNames {
		if n == name {
			return int32(i), true
		}
	}
	return 0, false
}

func itoa32(n int32) string {
	return strconv.FormatInt(int64(n), 10)
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
