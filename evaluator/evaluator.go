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

// Package evaluator is the host-facing front door: it strings together
// text-format loading, static verification, and dispatch into the single
// call a host actually wants to make, and gives every failure along that
// path one error type tagged with the phase it came from.
package evaluator

import (
	"fmt"
	"io"

	"github.com/oinkcat/sl-evaluator/internal/log"
	"github.com/oinkcat/sl-evaluator/loader"
	"github.com/oinkcat/sl-evaluator/module"
	"github.com/oinkcat/sl-evaluator/vm"
	"github.com/oinkcat/sl-evaluator/vmconfig"
)

// Phase identifies which stage of Engine.Execute produced an error.
type Phase int

const (
	PhaseLoad Phase = iota
	PhaseVerify
	PhaseRuntime
)

func (p Phase) String() string {
	switch p {
	case PhaseLoad:
		return "load"
	case PhaseVerify:
		return "verify"
	case PhaseRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Error wraps a failure from any Engine stage with the phase it occurred
// in, so a host can branch on Phase without type-switching between
// *loader.LoadError, []loader.VerifyError and *vm.RuntimeError.
type Error struct {
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("evaluator: %s: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Engine bundles everything a host needs to repeatedly load and run
// program text against the same native-module registry and config: the
// registry is built once (it is immutable after construction) and reused
// across every Load call.
type Engine struct {
	registry *module.Registry
	cfg      vmconfig.Config
	logger   log.Logger
}

// New builds an Engine from cfg, constructing a module.Registry with only
// the modules cfg.Modules enables.
func New(cfg vmconfig.Config) *Engine {
	return &Engine{
		registry: module.NewRegistryWithModules(cfg.Modules),
		cfg:      cfg,
		logger:   log.New("component", "evaluator"),
	}
}

// NewDefault builds an Engine with vmconfig.Default(): all three built-in
// modules registered, a 4096 call-depth guard, opcode tracing off.
func NewDefault() *Engine {
	return New(vmconfig.Default())
}

// Load reads program text from r and produces a linked, statically
// verified *vm.Program. A *loader.LoadError is wrapped as PhaseLoad; a
// non-empty loader.Verify result is wrapped as PhaseVerify.
func (e *Engine) Load(r io.Reader) (*vm.Program, error) {
	program, err := loader.Load(r, e.registry)
	if err != nil {
		return nil, &Error{Phase: PhaseLoad, Err: err}
	}
	if errs := loader.Verify(program); len(errs) > 0 {
		return nil, &Error{Phase: PhaseVerify, Err: verifyErrors(errs)}
	}
	return program, nil
}

// verifyErrors collapses a []loader.VerifyError into a single error
// value, joining each entry's message onto its own line.
type verifyErrors []loader.VerifyError

func (v verifyErrors) Error() string {
	msg := fmt.Sprintf("%d invariant violation(s):", len(v))
	for _, e := range v {
		msg += "\n  " + e.Error()
	}
	return msg
}

// NewVM constructs a *vm.VM ready to Run against program, wiring the
// Engine's configured max call depth, logger, and opcode-tracing flag.
func (e *Engine) NewVM(program *vm.Program) *vm.VM {
	ctx := vm.NewContext(program,
		vm.WithLogger(e.logger),
		vm.WithMaxCallDepth(e.cfg.VM.MaxCallDepth),
		vm.WithOpcodeTracing(e.cfg.VM.TraceOpcodes),
	)
	if e.cfg.VM.DefaultContext != "" {
		ctx.SetActiveTextContext(e.cfg.VM.DefaultContext)
	}
	return vm.NewVM(ctx)
}

// Execute loads program text from r, verifies it, builds a *vm.VM, and
// runs it to completion (natural end or suspend). Any runtime fault is
// wrapped as PhaseRuntime. The returned *vm.VM remains valid for
// inspecting text/named results and shared globals; on any error,
// including a PhaseRuntime one, no VM is returned.
func (e *Engine) Execute(r io.Reader) (*vm.VM, error) {
	program, err := e.Load(r)
	if err != nil {
		return nil, err
	}
	m := e.NewVM(program)
	if err := m.Run(); err != nil {
		return nil, &Error{Phase: PhaseRuntime, Err: err}
	}
	return m, nil
}
