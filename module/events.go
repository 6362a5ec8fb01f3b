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

package module

import (
	"fmt"

	"github.com/oinkcat/sl-evaluator/value"
	"github.com/oinkcat/sl-evaluator/vm"
)

// newEventsModule constructs the `events` module: installs external-event
// handlers on the running Context and drives the suspend-on-loop-start
// convention. The handler table itself lives on Context, not here —
// native functions hold no mutable per-module state of their own.
func newEventsModule() *moduleEntry {
	m := newModule()

	m.constant("Start", value.Text("start"))
	m.constant("End", value.Text("exit"))

	m.function("SetHandler", 2, eventsSetHandler)
	m.function("MapHandlers", 1, eventsMapHandlers)
	m.function("StartLoop", 0, eventsStartLoop)
	m.function("ExitLoop", 0, eventsExitLoop)

	return m
}

func eventsSetHandler(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 2)
	if err != nil {
		return err
	}
	name, ok := args[0].AsText()
	if !ok {
		return fmt.Errorf("module: SetHandler: expected text name, got %s", args[0].Kind())
	}
	if _, ok := args[1].AsFunctionRef(); !ok {
		return fmt.Errorf("module: SetHandler: expected function ref, got %s", args[1].Kind())
	}
	ctx.SetEventHandler(name, args[1])
	return nil
}

func eventsMapHandlers(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 1)
	if err != nil {
		return err
	}
	h, ok := args[0].AsHash()
	if !ok {
		return fmt.Errorf("module: MapHandlers: expected hash, got %s", args[0].Kind())
	}
	var setErr error
	h.Each(func(key string, v value.Value) {
		if setErr != nil {
			return
		}
		if _, ok := v.AsFunctionRef(); !ok {
			setErr = fmt.Errorf("module: MapHandlers: handler %q is not a function ref", key)
			return
		}
		ctx.SetEventHandler(key, v)
	})
	return setErr
}

// eventsStartLoop installs the dispatcher (a no-op in this implementation
// since handlers are already attached directly via Context.SetEventHandler)
// and suspends the running Context.
func eventsStartLoop(ctx *vm.Context) error {
	ctx.Suspend()
	return nil
}

// eventsExitLoop has no effect; this is legacy behavior preserved
// deliberately rather than redesigned.
func eventsExitLoop(ctx *vm.Context) error {
	return nil
}
