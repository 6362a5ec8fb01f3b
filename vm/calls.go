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

	"github.com/oinkcat/sl-evaluator/value"
)

// execCall implements the call-setup shared by `call.udf` and `invoke`
// : look up target's FunctionInfo, allocate a child frame,
// optionally bind a receiver at the bottom of the parameter window, pop
// params_count values into registers params_count-1…0, push the return
// address, and jump.
func execCall(c *Context, target int32, bound value.Value, closure *Frame) error {
	info, ok := c.program.Functions[target]
	if !ok {
		return fmt.Errorf("%w: no function defined at address %d", ErrNotCallable, target)
	}
	if c.callDepth >= c.effectiveMaxCallDepth() {
		return ErrCallDepthExceeded
	}

	caller := c.current
	child := NewFrame(int(info.FrameSize), caller, closure)

	src := caller
	if !bound.IsEmpty() && info.ParamsCount > 0 {
		// Move the explicit arguments onto the child's stack and slide the
		// receiver beneath them, so it becomes argument 0 regardless of what
		// else sits below the arguments on the caller's stack.
		for i := int32(1); i < info.ParamsCount; i++ {
			v, err := caller.Pop()
			if err != nil {
				return err
			}
			child.PushBottom(v)
		}
		child.PushBottom(bound)
		src = child
	}
	for i := info.ParamsCount - 1; i >= 0; i-- {
		v, err := src.Pop()
		if err != nil {
			return err
		}
		if err := child.SetRegister(i, v); err != nil {
			return err
		}
	}

	c.retAddrs = append(c.retAddrs, c.ip+1)
	c.current = child
	c.callDepth++
	c.ip = int(target)
	c.jumped = true
	return nil
}

// execInvoke implements `invoke`: pop a FunctionRef and perform the call
// setup above, binding its receiver and closure.
func execInvoke(c *Context) error {
	top, err := c.current.Pop()
	if err != nil {
		return err
	}
	fn, ok := top.AsFunctionRef()
	if !ok {
		return fmt.Errorf("%w: invoke requires a function ref, got %s", ErrNotCallable, top.Kind())
	}
	return callFunctionRef(c, fn)
}

// callFunctionRef performs the call-setup for a FunctionRef whose
// arguments are already sitting on the current frame's stack (used by
// event-handler dispatch and native re-entrant calls), rather than one
// popped as the invoke target itself.
func callFunctionRef(c *Context, fn *value.FunctionRef) error {
	if fn == nil {
		return fmt.Errorf("%w: nil function reference", ErrNotCallable)
	}
	var closure *Frame
	if fn.Closure != nil {
		closure, _ = fn.Closure.(*Frame)
	}
	return execCall(c, fn.Address, fn.Bound, closure)
}

// execReturn implements `ret` : pop the callee's single
// result if present, push it on the caller's stack, pop the return
// address, restore the caller frame, and resolve the frame's special
// roles — a nested re-entrant call breaks only its own dispatch loop, and
// the installed event-handler frame re-suspends unless the event being
// handled is the terminal "exit" event.
func execReturn(c *Context) error {
	f := c.current

	var result value.Value
	hasResult := false
	if f.StackLen() > 0 {
		v, err := f.Pop()
		if err != nil {
			return err
		}
		result, hasResult = v, true
	}

	caller := f.Caller()
	if caller == nil {
		c.running = false
		return nil
	}
	if hasResult {
		caller.Push(result)
	}
	if len(c.retAddrs) == 0 {
		return ErrEmptyStack
	}
	addr := c.retAddrs[len(c.retAddrs)-1]
	c.retAddrs = c.retAddrs[:len(c.retAddrs)-1]
	c.callDepth--

	isReferenced := f.IsReferenced()
	isHandler := f == c.handlerFrame

	c.current = caller
	c.ip = addr

	if isReferenced {
		c.running = false
		return nil
	}
	if isHandler {
		c.handlerFrame = nil
		if c.pendingEventName == eventEnd {
			c.running = true
			c.suspended = false
		} else {
			c.running = false
			c.suspended = true
			c.emitEvent(EventSuspended, "", value.Empty())
		}
		c.pendingEventName = ""
	}
	return nil
}
