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

// maxCallDepth bounds the in-flight frame chain as a defensive guard
// against runaway recursion in a loaded program overflowing the Go call
// stack but turns a runaway recursive script into a RuntimeError instead
// of a process crash.
const maxCallDepth = 4096

// VM is the host-facing API surface: it drives a Context's dispatch loop
// and exposes the shared-variable, event, and result accessors a host
// embeds against.
type VM struct {
	ctx *Context
}

// NewVM wires a Context to the host-facing API surface.
func NewVM(ctx *Context) *VM {
	return &VM{ctx: ctx}
}

// Context returns the underlying running Context.
func (m *VM) Context() *Context { return m.ctx }

// Shared reads a named shared/global variable.
func (m *VM) Shared(name string) (value.Value, bool) { return m.ctx.Shared(name) }

// SetShared writes a named shared/global variable; false if undeclared.
func (m *VM) SetShared(name string, v value.Value) bool { return m.ctx.SetShared(name, v) }

// MustShared reads a named shared/global variable, panicking if undeclared.
func (m *VM) MustShared(name string) value.Value { return m.ctx.MustShared(name) }

// TextResults returns the accumulated "default" text output context.
func (m *VM) TextResults() string { return m.ctx.TextResults() }

// NamedTextResults returns every named text output context.
func (m *VM) NamedTextResults() map[string]string { return m.ctx.NamedTextResults() }

// TextOutputs returns the ordered list of strings emitted into the named
// text output context (spec §6's `vm.text_results` shape).
func (m *VM) TextOutputs(name string) []string { return m.ctx.TextOutputs(name) }

// AllTextOutputs returns every named text output context as its ordered
// list of emitted strings.
func (m *VM) AllTextOutputs() map[string][]string { return m.ctx.AllTextOutputs() }

// NamedResults returns the named-result dictionary accumulated by the
// emit.named opcode and by native functions calling SetResult.
func (m *VM) NamedResults() map[string]value.Value { return m.ctx.Results() }

// RaiseEvent delivers an external event to the running Context's
// registered handler, re-entering the dispatch loop for its duration.
func (m *VM) RaiseEvent(name string, payload value.Value) (value.Value, error) {
	return m.ctx.RaiseEvent(name, payload)
}

// Run executes instructions until natural end, suspension, or a runtime
// error.
func (m *VM) Run() error {
	c := m.ctx
	if !c.running && !c.suspended {
		c.running = true
		c.ip = c.program.functionEntryAddress()
	}
	return runLoop(c)
}

// Step executes exactly one instruction, honoring the jumped sentinel so
// a conditional jump doesn't also advance the instruction pointer.
// Exported so a host can single-step for diagnostics.
func (m *VM) Step() error {
	return stepOnce(m.ctx)
}

// runLoop drives the dispatch loop until the Context stops running,
// either because it reached the last instruction, a native function
// suspended it, or a runtime error occurred. It is a free function
// (rather than a VM method) so Context.RaiseEvent and
// Context.ExecuteFunctionRef can re-enter dispatch directly, without a
// dependency back on the VM wrapper.
func runLoop(c *Context) error {
	for c.running && c.ip < len(c.program.Instructions) {
		if err := stepOnce(c); err != nil {
			c.running = false
			return err
		}
	}
	if !c.running && !c.suspended {
		c.logger().Debug("vm ended")
		c.emitEvent(EventEnded, "", value.Empty())
	}
	return nil
}

func stepOnce(c *Context) error {
	ins := c.program.Instructions[c.ip]
	c.jumped = false

	if c.traceOpcodes {
		c.logger().Trace("dispatch", "ip", c.ip, "op", ins.String())
	}

	if err := executeInstruction(c, ins); err != nil {
		var re *RuntimeError
		if existing, ok := err.(*RuntimeError); ok {
			re = existing
		} else {
			re = newRuntimeError(c, ins, err)
		}
		c.logger().Error("uncaught runtime fault", "err", re.Error(), "frames", re.FrameDump())
		return re
	}

	if !c.jumped && ins.Op != OpRet {
		c.ip++
	}
	return nil
}

// functionEntryAddress resolves the entry instruction index from the
// reserved EntryFunctionKey table entry.
func (p *Program) functionEntryAddress() int {
	if fn, ok := p.Functions[EntryFunctionKey]; ok {
		return int(fn.Address)
	}
	return 0
}

func executeInstruction(c *Context, ins Instruction) error {
	f := c.current

	switch ins.Op {
	case OpLoad:
		switch {
		case ins.HasStr:
			f.Push(value.Text(ins.Str))
		case ins.HasNum:
			f.Push(value.Number(ins.Num))
		default:
			v, err := f.Register(ins.Reg)
			if err != nil {
				return err
			}
			f.Push(v)
		}
		return nil

	case OpLoadGlobal:
		v, err := c.globals.Register(ins.Reg)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownShared, err)
		}
		f.Push(v)
		return nil

	case OpLoadOuter:
		outer, err := walkClosure(f, ins.OuterLevel)
		if err != nil {
			return err
		}
		v, err := outer.Register(ins.Reg)
		if err != nil {
			return err
		}
		f.Push(v)
		return nil

	case OpLoadConst:
		if ins.HasConst {
			f.Push(ins.Const)
			return nil
		}
		return pushData(c, f, ins.DataIndex)

	case OpLoadData:
		return pushData(c, f, ins.DataIndex)

	case OpDup:
		return f.Dup()

	case OpUnload:
		_, err := f.Pop()
		return err

	case OpStore:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		return f.SetRegister(ins.Reg, v)

	case OpStoreGlobal:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		if err := c.globals.SetRegister(ins.Reg, v); err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownShared, err)
		}
		return nil

	case OpStoreOuter:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		outer, err := walkClosure(f, ins.OuterLevel)
		if err != nil {
			return err
		}
		return outer.SetRegister(ins.Reg, v)

	case OpReset:
		return f.Reset(ins.Reg)

	case OpMkArray:
		return execMkArray(f, int(ins.Count))

	case OpMkHash:
		return execMkHash(f, int(ins.Count))

	case OpMkRefUDF:
		f.Push(value.NewFunctionRef(&value.FunctionRef{Address: ins.Target}))
		return nil

	case OpBindRefs:
		return execBindRefs(f)

	case OpGet:
		return execGet(f, value.Empty(), false)

	case OpSet:
		return execSet(f, value.Empty(), false)

	case OpGetIndex:
		return execGet(f, indexOperand(ins), true)

	case OpSetIndex:
		return execSet(f, indexOperand(ins), true)

	case OpSetOp:
		return execSetOp(f, ins.Str)

	case OpAdd:
		return binaryNumeric(f, func(a, b float64) float64 { return a + b })
	case OpSub:
		return binaryNumeric(f, func(a, b float64) float64 { return a - b })
	case OpMul:
		return binaryNumeric(f, func(a, b float64) float64 { return a * b })
	case OpDiv:
		// Division by zero surfaces as IEEE inf/NaN, not a RuntimeError
		// : Go's float64 division already has this behavior.
		return binaryNumeric(f, func(a, b float64) float64 { return a / b })
	case OpMod:
		return binaryNumeric(f, func(a, b float64) float64 { return math.Mod(a, b) })

	case OpConcat:
		return execConcat(f)

	case OpFormat:
		return execFormat(f)

	case OpEq, OpNe, OpLt, OpGt, OpLe, OpGe:
		return execCompareOp(c, f, ins.Op)

	case OpOr:
		return binaryLogic(f, func(a, b bool) bool { return a || b })
	case OpAnd:
		return binaryLogic(f, func(a, b bool) bool { return a && b })
	case OpXor:
		return binaryLogic(f, func(a, b bool) bool { return a != b })
	case OpNot:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		f.Push(value.Boolean(!asBoolean(v)))
		return nil

	case OpJmp:
		c.ip = int(ins.Target)
		c.jumped = true
		return nil

	case OpJmpEq, OpJmpNe, OpJmpLt, OpJmpGt, OpJmpLe, OpJmpGe:
		return execConditionalJump(c, f, ins)

	case OpEmit:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		c.Emit(c.activeTextContextOrDefault(), v.String())
		return nil

	case OpEmitNamed:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		c.SetResult(ins.Str, v)
		return nil

	case OpCallNative:
		if ins.Native == nil {
			return fmt.Errorf("%w: %s:%s", ErrUnknownNative, ins.Module, ins.Name)
		}
		return ins.Native(c)

	case OpCallUDF:
		return execCall(c, ins.Target, value.Empty(), nil)

	case OpInvoke:
		return execInvoke(c)

	case OpRet:
		return execReturn(c)
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedOpcode, ins.Op)
}

func pushData(c *Context, f *Frame, idx int32) error {
	if idx < 0 || int(idx) >= len(c.program.Data) {
		return fmt.Errorf("%w: data index %d out of range", ErrTypeMismatch, idx)
	}
	f.Push(c.program.Data[idx])
	return nil
}

// walkClosure resolves f's bound closure frame, then walks its caller
// chain level more times ("closure→caller→…", per load.outer/
// store.outer's level:register operand). Level 0 names the closure frame
// itself; level 1 its caller, and so on — not the closure's own closure,
// which would walk into an unrelated lexical scope instead of the
// dynamic caller chain the closure frame sits in.
func walkClosure(f *Frame, level int32) (*Frame, error) {
	cur := f.Closure()
	if cur == nil {
		return nil, fmt.Errorf("%w: no closure frame bound", ErrTypeMismatch)
	}
	for i := int32(0); i < level; i++ {
		cur = cur.Caller()
		if cur == nil {
			return nil, fmt.Errorf("%w: closure level %d exceeds chain depth", ErrTypeMismatch, level)
		}
	}
	return cur, nil
}

func indexOperand(ins Instruction) value.Value {
	if ins.HasStr {
		return value.Text(ins.Str)
	}
	return value.Number(ins.Num)
}

// activeTextContextOrDefault returns the text output context `emit`
// currently targets, defaulting to "default".
func (c *Context) activeTextContextOrDefault() string {
	if c.activeTextContext == "" {
		return defaultTextContext
	}
	return c.activeTextContext
}
