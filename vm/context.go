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
	"github.com/oinkcat/sl-evaluator/internal/log"
	"github.com/oinkcat/sl-evaluator/value"
)

// defaultTextContext is the name of the text-output context that always
// exists, even if the script never names one explicitly.
const defaultTextContext = "default"

// EventKind identifies one of the lifecycle events a Context reports to
// its registered Listener: suspend/resume/end, external events, and
// nested-execution requests triggered from native code.
type EventKind int

const (
	EventSuspended EventKind = iota
	EventResumed
	EventEnded
	EventExternal
	EventNestedExecRequested
)

// Listener receives Context lifecycle notifications. Handlers installed by
// module/events.go's SetHandler/MapHandlers are not listeners: they are
// stored on the Context and run as script calls by RaiseEvent, which also
// notifies listeners with EventExternal.
type Listener func(kind EventKind, name string, payload value.Value)

// Context is the single running script instance: the
// function table, program data, frame chain, instruction cursor, named
// text-output buffers, and the event-listener registry. One Context
// corresponds to exactly one in-flight evaluation; re-entrant native calls
// push additional "referenced" frames onto the same Context rather than
// creating a second one.
type Context struct {
	program *Program

	ip      int
	running bool
	jumped  bool

	current *Frame
	globals *Frame

	// retAddrs is the return-address stack: one entry pushed per call.udf,
	// popped by ret.
	retAddrs []int

	// input holds host-supplied named input values, read back through
	// Context.Input.
	input map[string]value.Value

	// shared mirrors the global frame's named slots by name for O(1)
	// Context.Shared/SetShared access without a linear SharedIndex scan.
	shared map[string]int32

	// textOutputs accumulates "emit" output, keyed by context name;
	// "default" always exists.
	textOutputs map[string][]string

	// results is the named result dictionary, filled by the emit.named
	// opcode and by native code through SetResult.
	results map[string]value.Value

	listeners []Listener

	// suspended is set while a suspend/resume cycle  is pending:
	// Run returns control to the host without marking the Context ended.
	suspended bool

	// activeTextContext is the output context `emit` currently appends to,
	// switched by the $builtin Context(name) native.
	activeTextContext string

	// handlerFrame marks the frame of an installed event handler so ret
	// can tell a handler return from an ordinary one.
	handlerFrame *Frame

	// lastCompare holds the most recent comparison outcome.
	lastCompare compareResult

	// callDepth counts in-flight (non-global) frames, guarding against
	// runaway recursion exhausting the Go call stack.
	callDepth int

	// eventHandlers maps an external event name to the FunctionRef
	// installed via the events module's SetHandler/MapHandlers natives.
	eventHandlers map[string]value.Value

	// pendingEventName is the name of the external event currently being
	// dispatched to a handler frame, consulted by ret to decide whether
	// finishing the handler resumes (terminal "exit") or re-suspends.
	pendingEventName string

	// maxCallDepth overrides the package default (see Options/WithMaxCallDepth)
	// when non-zero.
	maxCallDepth int

	// log receives Debug-level suspend/resume/ended transitions, Error-level
	// uncaught faults with a frame dump, and (when traceOpcodes is set)
	// Trace-level per-instruction dispatch records.
	log          log.Logger
	traceOpcodes bool
}

// Option configures a Context at construction time: a functional-options
// constructor so host code is not forced to hand-build zero-value structs.
type Option func(*Context)

// WithLogger attaches a Logger the Context will use for lifecycle and
// fault reporting; the default is a silent logger.
func WithLogger(l log.Logger) Option {
	return func(c *Context) { c.log = l }
}

// WithMaxCallDepth overrides the default 4096-frame call-depth guard.
func WithMaxCallDepth(depth int) Option {
	return func(c *Context) { c.maxCallDepth = depth }
}

// WithOpcodeTracing logs every dispatched instruction at Trace level.
func WithOpcodeTracing(enabled bool) Option {
	return func(c *Context) { c.traceOpcodes = enabled }
}

func (c *Context) effectiveMaxCallDepth() int {
	if c.maxCallDepth > 0 {
		return c.maxCallDepth
	}
	return maxCallDepth
}

func (c *Context) logger() log.Logger {
	if c.log != nil {
		return c.log
	}
	return discardLogger
}

var discardLogger = newDiscardLogger()

func newDiscardLogger() log.Logger {
	l := log.New()
	l.SetHandler(log.DiscardHandler())
	return l
}

// eventEnd is the terminal event name that resumes execution at the
// original suspension point instead of re-suspending (the events module's
// End="exit" constant).
const eventEnd = "exit"

// NewContext builds a running instance bound to program, with an empty
// global frame sized to program.EntryFrameSize() (at least
// len(program.SharedVarNames), possibly more) and a "default" text output
// context pre-created.
func NewContext(program *Program, opts ...Option) *Context {
	globals := NewFrame(int(program.EntryFrameSize()), nil, nil)
	shared := make(map[string]int32, len(program.SharedVarNames))
	for _, name := range program.SharedVarNames {
		idx, _ := program.SharedIndex(name)
		shared[name] = idx
	}
	c := &Context{
		program:     program,
		current:     globals,
		globals:     globals,
		input:       make(map[string]value.Value),
		shared:      shared,
		textOutputs: map[string][]string{defaultTextContext: nil},
		results:     make(map[string]value.Value),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Program returns the linked program this Context is executing.
func (c *Context) Program() *Program { return c.program }

// Frame returns the currently active call frame.
func (c *Context) Frame() *Frame { return c.current }

// IP returns the instruction pointer (index into program.Instructions).
func (c *Context) IP() int { return c.ip }

// IsRunning reports whether Run has started and not yet reached `ret` on
// the global frame.
func (c *Context) IsRunning() bool { return c.running }

// AddListener registers l to receive lifecycle events.
func (c *Context) AddListener(l Listener) {
	c.listeners = append(c.listeners, l)
}

func (c *Context) emitEvent(kind EventKind, name string, payload value.Value) {
	for _, l := range c.listeners {
		l(kind, name, payload)
	}
}

// SetInput stores a host-supplied named input value, read back by Input.
func (c *Context) SetInput(name string, v value.Value) {
	c.input[name] = v
}

// Input retrieves a host-supplied named input value.
func (c *Context) Input(name string) (value.Value, bool) {
	v, ok := c.input[name]
	return v, ok
}

// Shared reads a named shared/global variable out of the global frame.
func (c *Context) Shared(name string) (value.Value, bool) {
	idx, ok := c.shared[name]
	if !ok {
		return value.Empty(), false
	}
	v, _ := c.globals.Register(idx)
	return v, true
}

// SetShared writes a named shared/global variable into the global frame.
// Reports false if name was never declared in a `.shared` section.
func (c *Context) SetShared(name string, v value.Value) bool {
	idx, ok := c.shared[name]
	if !ok {
		return false
	}
	_ = c.globals.SetRegister(idx, v)
	return true
}

// MustShared is Shared but panics if name is undeclared; intended for
// native-module code that already validated the name against the program.
func (c *Context) MustShared(name string) value.Value {
	v, ok := c.Shared(name)
	if !ok {
		panic("vm: unknown shared variable " + name)
	}
	return v
}

// Emit appends text to the named output context, creating it if absent.
func (c *Context) Emit(contextName, text string) {
	c.textOutputs[contextName] = append(c.textOutputs[contextName], text)
}

// TextResults returns the accumulated text for the default output context,
// concatenated with no separator. For the ordered-list shape the host API
// (spec §6, `vm.text_results`) actually describes, see TextOutputs.
func (c *Context) TextResults() string {
	return joinStrings(c.textOutputs[defaultTextContext])
}

// NamedTextResults returns the accumulated, concatenated text for every
// named output context, including "default". See AllTextOutputs for the
// per-context ordered list of individual emits.
func (c *Context) NamedTextResults() map[string]string {
	out := make(map[string]string, len(c.textOutputs))
	for name, parts := range c.textOutputs {
		out[name] = joinStrings(parts)
	}
	return out
}

// TextOutputs returns a copy of the ordered list of strings emitted into
// the named text output context (nil if the context does not exist) —
// the shape spec §6 describes for `vm.text_results`.
func (c *Context) TextOutputs(name string) []string {
	parts := c.textOutputs[name]
	if parts == nil {
		return nil
	}
	out := make([]string, len(parts))
	copy(out, parts)
	return out
}

// AllTextOutputs returns a copy of every named text output context as its
// ordered list of emitted strings, matching spec §6's
// `map context_name→ordered list<string>` host-facing shape.
func (c *Context) AllTextOutputs() map[string][]string {
	out := make(map[string][]string, len(c.textOutputs))
	for name, parts := range c.textOutputs {
		cp := make([]string, len(parts))
		copy(cp, parts)
		out[name] = cp
	}
	return out
}

// SetResult records a named final result, overwriting any prior value
// under the same name.
func (c *Context) SetResult(name string, v value.Value) {
	c.results[name] = v
}

// Results returns the named-result dictionary accumulated during the run.
func (c *Context) Results() map[string]value.Value {
	out := make(map[string]value.Value, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// SetActiveTextContext switches the output context `emit` appends to,
// creating it if it does not already exist (the $builtin Context native).
func (c *Context) SetActiveTextContext(name string) {
	c.activeTextContext = name
	if _, ok := c.textOutputs[name]; !ok {
		c.textOutputs[name] = nil
	}
}

// Suspend halts the dispatch loop after the current instruction, per
// : only a native function may suspend the VM. Since the
// dispatch loop still advances `i` once the native call returns, the
// instruction pointer is already correctly positioned at the next
// instruction by the time Run next resumes.
func (c *Context) Suspend() {
	c.running = false
	c.suspended = true
	c.logger().Debug("vm suspended", "ip", c.ip)
	c.emitEvent(EventSuspended, "", value.Empty())
}

// IsSuspended reports whether the Context is parked in a suspend/resume
// cycle rather than ended.
func (c *Context) IsSuspended() bool { return c.suspended }

// SetEventHandler installs fn (expected to be a FunctionRef) as the
// handler for external event name, per the events module's SetHandler.
func (c *Context) SetEventHandler(name string, fn value.Value) {
	if c.eventHandlers == nil {
		c.eventHandlers = make(map[string]value.Value)
	}
	c.eventHandlers[name] = fn
}

// EventHandler looks up the FunctionRef installed for an external event
// name, if any.
func (c *Context) EventHandler(name string) (value.Value, bool) {
	v, ok := c.eventHandlers[name]
	return v, ok
}

// RaiseEvent delivers an external event to the VM. If a handler is
// registered for name, it is invoked as an ordinary call with payload as
// its sole argument; on the handler's `ret`, the VM re-suspends unless
// name is the terminal "exit" event, in which case it resumes at the
// original suspension point instead. Returns the top of the active
// frame's stack as a convenience result, if present.
func (c *Context) RaiseEvent(name string, payload value.Value) (value.Value, error) {
	c.emitEvent(EventExternal, name, payload)

	if handler, ok := c.EventHandler(name); ok {
		fn, _ := handler.AsFunctionRef()
		c.pendingEventName = name
		c.current.Push(payload)
		// execCall pushes ip+1 as the return address; step back one so the
		// handler's ret lands on the suspension point itself.
		c.ip--
		if err := callFunctionRef(c, fn); err != nil {
			c.ip++
			return value.Empty(), err
		}
		c.handlerFrame = c.current
		c.running = true
		if err := runLoop(c); err != nil {
			return value.Empty(), err
		}
	} else if name == eventEnd {
		c.running = true
		c.suspended = false
		c.logger().Debug("vm resumed", "event", name, "ip", c.ip)
		c.emitEvent(EventResumed, name, payload)
		if err := runLoop(c); err != nil {
			return value.Empty(), err
		}
	}

	if c.current != nil {
		if top, err := c.current.Peek(); err == nil {
			return top, nil
		}
	}
	return value.Empty(), nil
}

// ExecuteFunctionRef re-enters the dispatch loop to run a script callback
// from native code, used by SortWith-style helpers. args are pushed in
// order before the call; the callback's single return value (per the
// `ret` convention) is returned to the caller.
func (c *Context) ExecuteFunctionRef(fn *value.FunctionRef, args ...value.Value) (value.Value, error) {
	caller := c.current
	for _, a := range args {
		caller.Push(a)
	}
	// execCall pushes ip+1 as the return address; step back one so that,
	// after the callback returns, the dispatch loop's post-increment for
	// the native call lands on the instruction that follows it.
	c.ip--
	if err := callFunctionRef(c, fn); err != nil {
		c.ip++
		return value.Empty(), err
	}
	base := caller.StackLen()
	c.current.SetReferenced(true)
	c.emitEvent(EventNestedExecRequested, "", value.Empty())

	wasRunning := c.running
	c.running = true
	if err := runLoop(c); err != nil {
		return value.Empty(), err
	}
	c.running = wasRunning

	if caller.StackLen() > base {
		return caller.Pop()
	}
	return value.Empty(), nil
}

func joinStrings(parts []string) string {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	buf := make([]byte, 0, total)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return string(buf)
}
