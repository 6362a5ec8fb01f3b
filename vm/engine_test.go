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
	"testing"

	"github.com/oinkcat/sl-evaluator/value"
)

// progBuilder assembles a Program by hand, standing in for what a text-
// format loader would otherwise produce; the vm package cannot import
// loader (loader imports vm), so engine tests build the linked form
// directly.
type progBuilder struct {
	p *Program
}

func newProgram(sharedVars []string) *progBuilder {
	return &progBuilder{p: &Program{
		SharedVarNames: sharedVars,
		Functions:      map[int32]FunctionInfo{},
		SourceMap:      map[int]SourceLoc{},
	}}
}

func (b *progBuilder) entry(frameSize int32, ins ...Instruction) *progBuilder {
	b.p.Functions[EntryFunctionKey] = FunctionInfo{
		Address:   int32(len(b.p.Instructions)),
		FrameSize: frameSize,
	}
	b.p.Instructions = append(b.p.Instructions, ins...)
	return b
}

func (b *progBuilder) function(key int32, params, frameSize int32, ins ...Instruction) *progBuilder {
	b.p.Functions[key] = FunctionInfo{
		Address:     int32(len(b.p.Instructions)),
		ParamsCount: params,
		FrameSize:   frameSize,
	}
	b.p.Instructions = append(b.p.Instructions, ins...)
	return b
}

func (b *progBuilder) build() *Program { return b.p }

func runNew(t *testing.T, p *Program, opts ...Option) *Context {
	t.Helper()
	ctx := NewContext(p, opts...)
	if err := NewVM(ctx).Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return ctx
}

func TestArithmeticAndEmit(t *testing.T) {
	p := newProgram(nil).entry(0,
		Instruction{Op: OpLoad, HasNum: true, Num: 2},
		Instruction{Op: OpLoad, HasNum: true, Num: 3},
		Instruction{Op: OpAdd},
		Instruction{Op: OpEmit},
		Instruction{Op: OpRet},
	).build()

	ctx := runNew(t, p)
	if got := ctx.TextResults(); got != "5" {
		t.Fatalf("expected emitted text %q, got %q", "5", got)
	}
}

func TestConditionalJump(t *testing.T) {
	// if 1 < 2: emit "yes" else emit "no"
	p := newProgram(nil).entry(0,
		Instruction{Op: OpLoad, HasNum: true, Num: 1},    // 0
		Instruction{Op: OpLoad, HasNum: true, Num: 2},    // 1
		Instruction{Op: OpJmpLt, Target: 5},              // 2: pops (1,2), jumps to 5 since 1<2
		Instruction{Op: OpLoad, HasStr: true, Str: "no"}, // 3
		Instruction{Op: OpJmp, Target: 6},                // 4
		Instruction{Op: OpLoad, HasStr: true, Str: "yes"}, // 5
		Instruction{Op: OpEmit},                          // 6
		Instruction{Op: OpRet},                            // 7
	).build()

	ctx := runNew(t, p)
	if got := ctx.TextResults(); got != "yes" {
		t.Fatalf("expected %q, got %q", "yes", got)
	}
}

func TestFunctionCallWithParams(t *testing.T) {
	// double(x) = x * 2; entry calls double(21), emits result
	b := newProgram(nil)
	b.function(0, 1, 1,
		Instruction{Op: OpLoad, Reg: 0},
		Instruction{Op: OpLoad, HasNum: true, Num: 2},
		Instruction{Op: OpMul},
		Instruction{Op: OpRet},
	)
	b.entry(0,
		Instruction{Op: OpLoad, HasNum: true, Num: 21},
		Instruction{Op: OpCallUDF, Target: 0},
		Instruction{Op: OpEmit},
		Instruction{Op: OpRet},
	)

	ctx := runNew(t, b.build())
	if got := ctx.TextResults(); got != "42" {
		t.Fatalf("expected %q, got %q", "42", got)
	}
}

func TestHashFieldInvoke(t *testing.T) {
	// square(x) = x * x, stored unbound (no bind_refs) in a hash's "apply"
	// field, read back and invoked with 9.
	b := newProgram(nil)
	b.function(0, 1, 1,
		Instruction{Op: OpLoad, Reg: 0},
		Instruction{Op: OpLoad, Reg: 0},
		Instruction{Op: OpMul},
		Instruction{Op: OpRet},
	)
	b.entry(1,
		Instruction{Op: OpMkHash, Count: 0},
		Instruction{Op: OpDup},
		Instruction{Op: OpMkRefUDF, Target: 0},
		Instruction{Op: OpSetIndex, HasStr: true, Str: "apply"},
		Instruction{Op: OpGetIndex, HasStr: true, Str: "apply"},
		Instruction{Op: OpStore, Reg: 0},
		Instruction{Op: OpLoad, HasNum: true, Num: 9},
		Instruction{Op: OpLoad, Reg: 0},
		Instruction{Op: OpInvoke},
		Instruction{Op: OpEmit},
		Instruction{Op: OpRet},
	)

	ctx := runNew(t, b.build())
	if got := ctx.TextResults(); got != "81" {
		t.Fatalf("expected %q, got %q", "81", got)
	}
}

func TestSharedVariableAccess(t *testing.T) {
	b := newProgram([]string{"counter"})
	b.entry(1,
		Instruction{Op: OpLoadGlobal, Reg: 0},
		Instruction{Op: OpLoad, HasNum: true, Num: 1},
		Instruction{Op: OpAdd},
		Instruction{Op: OpStoreGlobal, Reg: 0},
		Instruction{Op: OpRet},
	)

	ctx := NewContext(b.build())
	ctx.SetShared("counter", value.Number(41))
	if err := NewVM(ctx).Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	got, ok := ctx.Shared("counter")
	if !ok {
		t.Fatal("expected counter to be declared")
	}
	if n, _ := got.AsNumber(); n != 42 {
		t.Fatalf("expected counter=42, got %v", n)
	}
}

func TestExternalEventHandler(t *testing.T) {
	// handler(payload) stores payload*10 into shared "last"
	b := newProgram([]string{"last"})
	b.function(0, 1, 1,
		Instruction{Op: OpLoad, Reg: 0},
		Instruction{Op: OpLoad, HasNum: true, Num: 10},
		Instruction{Op: OpMul},
		Instruction{Op: OpStoreGlobal, Reg: 0},
		Instruction{Op: OpRet},
	)
	b.entry(1, Instruction{Op: OpRet})

	ctx := NewContext(b.build())
	ctx.SetEventHandler("tick", value.NewFunctionRef(&value.FunctionRef{Address: 0}))
	if err := NewVM(ctx).Run(); err != nil {
		t.Fatalf("initial run failed: %v", err)
	}
	if _, err := ctx.RaiseEvent("tick", value.Number(4)); err != nil {
		t.Fatalf("raise event failed: %v", err)
	}
	got, _ := ctx.Shared("last")
	if n, _ := got.AsNumber(); n != 40 {
		t.Fatalf("expected last=40, got %v", n)
	}
}

func TestRuntimeErrorReportsFrameDump(t *testing.T) {
	p := newProgram(nil).entry(0,
		Instruction{Op: OpLoad, HasNum: true, Num: 1},
		Instruction{Op: OpAdd}, // stack underflow: only one operand pushed
		Instruction{Op: OpRet},
	).build()

	ctx := NewContext(p)
	err := NewVM(ctx).Run()
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %T", err)
	}
	if re.FrameDump() == "" {
		t.Fatal("expected a non-empty frame dump")
	}
}

func TestCallDepthExceeded(t *testing.T) {
	b := newProgram(nil)
	b.function(0, 0, 0,
		Instruction{Op: OpCallUDF, Target: 0},
		Instruction{Op: OpRet},
	)
	b.entry(0,
		Instruction{Op: OpCallUDF, Target: 0},
		Instruction{Op: OpRet},
	)

	ctx := NewContext(b.build(), WithMaxCallDepth(8))
	err := NewVM(ctx).Run()
	if !errors.Is(err, ErrCallDepthExceeded) {
		t.Fatalf("expected ErrCallDepthExceeded, got %v", err)
	}
}
