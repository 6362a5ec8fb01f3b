// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package loader

import (
	"strings"
	"testing"

	"github.com/oinkcat/sl-evaluator/module"
	"github.com/oinkcat/sl-evaluator/vm"
)

func mustLoad(t *testing.T, text string) *vm.Program {
	t.Helper()
	p, err := Load(strings.NewReader(text), module.NewRegistry())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return p
}

func TestLoadMinimalEntry(t *testing.T) {
	p := mustLoad(t, `
.shared
x
y
.defs
.entry
load 1
store 0
ret
`)

	if len(p.SharedVarNames) != 2 {
		t.Fatalf("expected 2 shared vars, got %d", len(p.SharedVarNames))
	}
	entry, ok := p.Functions[vm.EntryFunctionKey]
	if !ok {
		t.Fatal("expected entry function")
	}
	if entry.FrameSize != 2 {
		t.Errorf("expected entry frame size 2, got %d", entry.FrameSize)
	}
	if len(p.Instructions) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(p.Instructions))
	}
	if p.Instructions[0].Op != vm.OpLoad || !p.Instructions[0].HasNum || p.Instructions[0].Num != 1 {
		t.Errorf("unexpected first instruction: %#v", p.Instructions[0])
	}
}

func TestLoadForwardFunctionReference(t *testing.T) {
	p := mustLoad(t, `
.shared
.defs
main.0:
load #0
call.udf double
ret
double.1:
load #0
load #0
add
ret
.entry
load 21
call.udf main
ret
`)

	if _, ok := p.Functions[0]; !ok {
		t.Fatal("expected function at address 0")
	}

	var sawCallToDouble, sawCallToMain bool
	for _, ins := range p.Instructions {
		if ins.Op != vm.OpCallUDF {
			continue
		}
		if fn, ok := p.Functions[ins.Target]; ok && fn.ParamsCount == 1 && fn.Address != 0 {
			sawCallToDouble = true
		}
		if fn, ok := p.Functions[ins.Target]; ok && fn.Address == 0 {
			sawCallToMain = true
		}
	}
	if !sawCallToDouble {
		t.Error("expected a resolved call.udf to double")
	}
	if !sawCallToMain {
		t.Error("expected a resolved call.udf to main")
	}
}

func TestLoadUnresolvedLabelFails(t *testing.T) {
	_, err := Load(strings.NewReader(`
.shared
.defs
.entry
jmp nowhere
ret
`), module.NewRegistry())
	if err == nil {
		t.Fatal("expected an unresolved-label error")
	}
	if _, ok := err.(*LoadError); !ok {
		t.Fatalf("expected *LoadError, got %T", err)
	}
}

func TestLoadUnknownNativeFails(t *testing.T) {
	_, err := Load(strings.NewReader(`
.shared
.defs
.entry
call.native bogus:NoSuchFunc
ret
`), module.NewRegistry())
	if err == nil {
		t.Fatal("expected an unresolved-native error")
	}
}

func TestLoadResolvesBuiltinConst(t *testing.T) {
	p := mustLoad(t, `
.shared
.defs
.entry
load.const math:PI
ret
`)
	ins := p.Instructions[0]
	if !ins.HasConst {
		t.Fatal("expected load.const to resolve to a constant")
	}
	n, ok := ins.Const.AsNumber()
	if !ok || n < 3.14 || n > 3.15 {
		t.Errorf("expected PI, got %v", ins.Const)
	}
}

func TestLoadDataSection(t *testing.T) {
	p := mustLoad(t, `
.shared
.data
1 2 3
"hello" "world"
.defs
.entry
load.data 0
ret
`)
	if len(p.Data) != 2 {
		t.Fatalf("expected 2 data entries, got %d", len(p.Data))
	}
	arr0, ok := p.Data[0].AsArray()
	if !ok || arr0.Len() != 3 {
		t.Fatalf("expected first data entry to be a 3-element array, got %#v", p.Data[0])
	}
	arr1, ok := p.Data[1].AsArray()
	if !ok || arr1.Len() != 2 {
		t.Fatalf("expected second data entry to be a 2-element array, got %#v", p.Data[1])
	}
}

func TestVerifyCatchesOutOfRangeJump(t *testing.T) {
	p := mustLoad(t, `
.shared
.defs
.entry
ret
`)
	p.Instructions[0].Op = vm.OpJmp
	p.Instructions[0].Target = 99

	errs := Verify(p)
	if len(errs) == 0 {
		t.Fatal("expected Verify to flag an out-of-range jump target")
	}
}
