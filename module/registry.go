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

// Package module implements the native-module registry: a table of named
// bundles, each exposing constants and callable functions that
// `load.const`/`call.native` resolve against at load time. Each Registry
// holds its own module set, built eagerly when the Registry is
// constructed; there is no process-wide shared instance.
package module

import (
	"fmt"

	"github.com/oinkcat/sl-evaluator/internal/log"
	"github.com/oinkcat/sl-evaluator/value"
	"github.com/oinkcat/sl-evaluator/vm"
	"github.com/oinkcat/sl-evaluator/vmconfig"
)

// defaultModuleName is what an empty module selector in the program text
// resolves to.
const defaultModuleName = "$builtin"

// funcEntry is a function entry: its declared arity (informational only;
// nothing checks or reads it) and the native implementation.
type funcEntry struct {
	arity int
	impl  vm.NativeFunc
}

// moduleEntry is a named bundle of constants and functions.
type moduleEntry struct {
	constants map[string]value.Value
	functions map[string]funcEntry
}

func newModule() *moduleEntry {
	return &moduleEntry{
		constants: make(map[string]value.Value),
		functions: make(map[string]funcEntry),
	}
}

func (m *moduleEntry) constant(name string, v value.Value) {
	m.constants[name] = v
}

func (m *moduleEntry) function(name string, arity int, fn vm.NativeFunc) {
	m.functions[name] = funcEntry{arity: arity, impl: fn}
}

// Registry resolves (module, name) pairs against the set of built-in
// modules.
type Registry struct {
	modules map[string]*moduleEntry
}

// NewRegistry builds a Registry pre-populated with the three built-in
// modules: $builtin, math, events.
func NewRegistry() *Registry {
	return NewRegistryWithModules(vmconfig.Default().Modules)
}

// NewRegistryWithModules builds a Registry containing only the modules
// enabled in cfg, per vmconfig's [Modules] section.
func NewRegistryWithModules(cfg vmconfig.ModulesSection) *Registry {
	r := &Registry{modules: make(map[string]*moduleEntry, 3)}
	logger := log.New("component", "module-registry")
	if cfg.Builtin {
		r.modules[defaultModuleName] = newBuiltinModule()
		logger.Debug("module initialized", "name", defaultModuleName)
	}
	if cfg.Math {
		r.modules["math"] = newMathModule()
		logger.Debug("module initialized", "name", "math")
	}
	if cfg.Events {
		r.modules["events"] = newEventsModule()
		logger.Debug("module initialized", "name", "events")
	}
	return r
}

// ResolveFunc looks up a callable by (module, name); an empty module
// selects $builtin. The second return reports whether both the module
// and the function within it were found.
func (r *Registry) ResolveFunc(moduleName, name string) (vm.NativeFunc, bool) {
	m, ok := r.module(moduleName)
	if !ok {
		return nil, false
	}
	fn, ok := m.functions[name]
	if !ok {
		return nil, false
	}
	return fn.impl, true
}

// ResolveConst looks up a constant by (module, name); an empty module
// selects $builtin.
func (r *Registry) ResolveConst(moduleName, name string) (value.Value, bool) {
	m, ok := r.module(moduleName)
	if !ok {
		return value.Empty(), false
	}
	v, ok := m.constants[name]
	return v, ok
}

func (r *Registry) module(name string) (*moduleEntry, bool) {
	if name == "" {
		name = defaultModuleName
	}
	m, ok := r.modules[name]
	return m, ok
}

// ErrUnresolved reports a load-time (module, name) resolution miss: a
// lookup miss on either axis is a load-time error.
func ErrUnresolved(moduleName, name string) error {
	if moduleName == "" {
		moduleName = defaultModuleName
	}
	return fmt.Errorf("module: %s:%s is not defined", moduleName, name)
}
