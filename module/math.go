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
	"math"
	"math/rand"

	"github.com/oinkcat/sl-evaluator/value"
	"github.com/oinkcat/sl-evaluator/vm"
)

// newMathModule constructs the `math` module: PI/E constants and a
// handful of single/double-argument numeric functions, delegating
// directly to the standard library.
func newMathModule() *moduleEntry {
	m := newModule()

	m.constant("PI", value.Number(math.Pi))
	m.constant("E", value.Number(math.E))

	m.function("Abs", 1, mathUnary(math.Abs))
	m.function("Int", 1, mathUnary(math.Floor))
	m.function("Fract", 1, mathUnary(func(x float64) float64 { _, f := math.Modf(x); return f }))
	m.function("Sqrt", 1, mathUnary(math.Sqrt))
	m.function("Pow", 2, mathBinary(math.Pow))
	m.function("Sin", 1, mathUnary(math.Sin))
	m.function("Cos", 1, mathUnary(math.Cos))
	m.function("Tan", 1, mathUnary(math.Tan))
	m.function("Rand", 0, mathRand)
	m.function("Round", 2, mathRound)

	return m
}

func mathUnary(op func(float64) float64) vm.NativeFunc {
	return func(ctx *vm.Context) error {
		args, err := popN(ctx.Frame(), 1)
		if err != nil {
			return err
		}
		n, ok := args[0].AsNumber()
		if !ok {
			return fmt.Errorf("module: math: expected number, got %s", args[0].Kind())
		}
		ctx.Frame().Push(value.Number(op(n)))
		return nil
	}
}

func mathBinary(op func(a, b float64) float64) vm.NativeFunc {
	return func(ctx *vm.Context) error {
		args, err := popN(ctx.Frame(), 2)
		if err != nil {
			return err
		}
		a, ok := args[0].AsNumber()
		if !ok {
			return fmt.Errorf("module: math: expected number, got %s", args[0].Kind())
		}
		b, ok := args[1].AsNumber()
		if !ok {
			return fmt.Errorf("module: math: expected number, got %s", args[1].Kind())
		}
		ctx.Frame().Push(value.Number(op(a, b)))
		return nil
	}
}

func mathRand(ctx *vm.Context) error {
	ctx.Frame().Push(value.Number(rand.Float64()))
	return nil
}

func mathRound(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 2)
	if err != nil {
		return err
	}
	n, ok := args[0].AsNumber()
	if !ok {
		return fmt.Errorf("module: Round: expected number, got %s", args[0].Kind())
	}
	digits, ok := args[1].AsNumber()
	if !ok {
		return fmt.Errorf("module: Round: expected digit count, got %s", args[1].Kind())
	}
	scale := math.Pow(10, digits)
	ctx.Frame().Push(value.Number(math.Round(n*scale) / scale))
	return nil
}
