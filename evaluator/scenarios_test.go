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

// scenarios_test.go runs the text-format end-to-end scenarios from the
// end-to-end scenario list verbatim (program text → expected text_results),
// exercising Engine.Execute rather than hand-built *vm.Program values the
// way engine_test.go's package-internal tests do.
package evaluator_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oinkcat/sl-evaluator/evaluator"
	"github.com/oinkcat/sl-evaluator/value"
)

func TestScenarioArithmeticAndEmit(t *testing.T) {
	eng := evaluator.NewDefault()
	m, err := eng.Execute(strings.NewReader(`
.shared
.defs
.entry
load 3
load 4
add
emit
ret
`))
	require.NoError(t, err)
	require.Equal(t, []string{"7"}, m.TextOutputs("default"))
}

func TestScenarioConditionalJump(t *testing.T) {
	eng := evaluator.NewDefault()
	m, err := eng.Execute(strings.NewReader(`
.shared
.defs
.entry
load 1
load 2
jmplt then
load "no"
emit
jmp end
then:
load "yes"
emit
end:
ret
`))
	require.NoError(t, err)
	require.Equal(t, []string{"yes"}, m.TextOutputs("default"))
}

func TestScenarioFunctionCallWithParams(t *testing.T) {
	eng := evaluator.NewDefault()
	m, err := eng.Execute(strings.NewReader(`
.shared
.defs
sum.2:
load #0
load #1
add
ret
.entry
load 10
load 32
call.udf sum
emit
ret
`))
	require.NoError(t, err)
	require.Equal(t, []string{"42"}, m.TextOutputs("default"))
}

func TestScenarioHashBindAndInvoke(t *testing.T) {
	eng := evaluator.NewDefault()
	m, err := eng.Execute(strings.NewReader(`
.shared
.defs
greet.1:
load "hello "
load #0
get.index "name"
concat
ret
.entry
load "name"
load "world"
load "greet"
mk_ref.udf greet
mk_hash 2
bind_refs
store 0
load #0
get.index "greet"
invoke
emit
ret
`))
	require.NoError(t, err)
	require.Equal(t, []string{"hello world"}, m.TextOutputs("default"))
}

func TestScenarioIteratorOverRangeArray(t *testing.T) {
	eng := evaluator.NewDefault()
	m, err := eng.Execute(strings.NewReader(`
.shared
.defs
.entry
load 1
load 3
call.native RangeArray
call.native _iter_create$
store 0
loop:
load #0
call.native _iter_hasnext$
load.const false
jmpeq done
load #0
call.native _iter_next$
emit
jmp loop
done:
ret
`))
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "3"}, m.TextOutputs("default"))
}

func TestScenarioExternalEvent(t *testing.T) {
	eng := evaluator.NewDefault()
	program, err := eng.Load(strings.NewReader(`
.shared
.defs
tick.1:
load #0
emit
ret
.entry
load "tick"
mk_ref.udf tick
call.native events:SetHandler
call.native events:StartLoop
ret
`))
	require.NoError(t, err)

	m := eng.NewVM(program)
	require.NoError(t, m.Run())
	require.True(t, m.Context().IsSuspended())

	_, err = m.RaiseEvent("tick", value.Number(5))
	require.NoError(t, err)
	require.Equal(t, []string{"5"}, m.TextOutputs("default"))
}
