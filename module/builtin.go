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
	"strconv"
	"time"

	"github.com/oinkcat/sl-evaluator/value"
	"github.com/oinkcat/sl-evaluator/vm"
)

// newBuiltinModule constructs the `$builtin` module: generic
// conversions, array/hash helpers, iteration, and text-output context
// switching.
func newBuiltinModule() *moduleEntry {
	m := newModule()

	m.constant("null", value.Empty())
	m.constant("true", value.Boolean(true))
	m.constant("false", value.Boolean(false))

	m.function("ToNumber", 1, builtinToNumber)
	m.function("ToDate", 1, builtinToDate)
	m.function("Defined", 1, builtinDefined)
	m.function("Type", 1, builtinType)
	m.function("DateNow", 0, builtinDateNow)
	m.function("DateDiff", 3, builtinDateDiff)
	m.function("Length", 1, builtinLength)
	m.function("Add", 2, builtinAdd)
	m.function("Find", 2, builtinFind)
	m.function("Delete", 2, builtinDelete)
	m.function("RangeArray", 2, builtinRangeArray)
	m.function("Flatten", 1, builtinFlatten)
	m.function("SortWith", 2, builtinSortWith)
	m.function("Slice", 3, builtinSlice)
	m.function("_iter_create$", 1, builtinIterCreate)
	m.function("_iter_hasnext$", 1, builtinIterHasNext)
	m.function("_iter_next$", 1, builtinIterNext)
	m.function("Format", 2, builtinFormat)
	m.function("Context", 1, builtinContext)

	return m
}

// popN pops n values off the frame's stack and returns them in source
// (push) order, leftmost/first-pushed argument first.
func popN(f *vm.Frame, n int) ([]value.Value, error) {
	out := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := f.Pop()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func builtinToNumber(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 1)
	if err != nil {
		return err
	}
	var n float64
	switch args[0].Kind() {
	case value.KindNumber:
		n, _ = args[0].AsNumber()
	case value.KindText:
		s, _ := args[0].AsText()
		n, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("module: ToNumber: %w", err)
		}
	case value.KindBoolean:
		b, _ := args[0].AsBoolean()
		if b {
			n = 1
		}
	default:
		return fmt.Errorf("module: ToNumber: cannot convert %s", args[0].Kind())
	}
	ctx.Frame().Push(value.Number(n))
	return nil
}

func builtinToDate(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 1)
	if err != nil {
		return err
	}
	var t time.Time
	switch args[0].Kind() {
	case value.KindDate:
		t, _ = args[0].AsDate()
	case value.KindNumber:
		n, _ := args[0].AsNumber()
		t = time.Unix(int64(n), 0).UTC()
	case value.KindText:
		s, _ := args[0].AsText()
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("module: ToDate: %w", err)
		}
	default:
		return fmt.Errorf("module: ToDate: cannot convert %s", args[0].Kind())
	}
	ctx.Frame().Push(value.Date(t))
	return nil
}

func builtinDefined(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 1)
	if err != nil {
		return err
	}
	ctx.Frame().Push(value.Boolean(!args[0].IsEmpty()))
	return nil
}

func builtinType(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 1)
	if err != nil {
		return err
	}
	ctx.Frame().Push(value.Text(args[0].Kind().String()))
	return nil
}

func builtinDateNow(ctx *vm.Context) error {
	ctx.Frame().Push(value.Date(time.Now().UTC()))
	return nil
}

func builtinDateDiff(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 3)
	if err != nil {
		return err
	}
	a, ok := args[0].AsDate()
	if !ok {
		return fmt.Errorf("module: DateDiff: expected date, got %s", args[0].Kind())
	}
	b, ok := args[1].AsDate()
	if !ok {
		return fmt.Errorf("module: DateDiff: expected date, got %s", args[1].Kind())
	}
	unit, ok := args[2].AsText()
	if !ok {
		return fmt.Errorf("module: DateDiff: expected unit text, got %s", args[2].Kind())
	}

	days := a.Sub(b).Hours() / 24
	var result float64
	switch unit {
	case "y":
		result = days / 365
	case "m":
		result = days / 30
	case "d":
		result = days
	default:
		return fmt.Errorf("%w: %q", vm.ErrInvalidDateUnit, unit)
	}
	ctx.Frame().Push(value.Number(result))
	return nil
}

func builtinLength(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 1)
	if err != nil {
		return err
	}
	var n int
	switch args[0].Kind() {
	case value.KindText:
		s, _ := args[0].AsText()
		n = len(s)
	case value.KindArray:
		arr, _ := args[0].AsArray()
		n = arr.Len()
	case value.KindHash:
		h, _ := args[0].AsHash()
		n = h.Len()
	default:
		return fmt.Errorf("module: Length: unsupported kind %s", args[0].Kind())
	}
	ctx.Frame().Push(value.Number(float64(n)))
	return nil
}

func builtinAdd(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 2)
	if err != nil {
		return err
	}
	arr, ok := args[0].AsArray()
	if !ok {
		return fmt.Errorf("module: Add: expected array, got %s", args[0].Kind())
	}
	arr.Append(args[1])
	ctx.Frame().Push(args[0])
	return nil
}

// builtinFind returns the matching element for an array (or Empty if not
// present) but a Boolean presence flag for a hash — the asymmetry is
// intentional and preserved from the legacy engine's own behavior.
func builtinFind(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 2)
	if err != nil {
		return err
	}
	switch args[0].Kind() {
	case value.KindArray:
		arr, _ := args[0].AsArray()
		for i := 0; i < arr.Len(); i++ {
			el, _ := arr.Get(i)
			if el.Equal(args[1]) {
				ctx.Frame().Push(el)
				return nil
			}
		}
		ctx.Frame().Push(value.Empty())
		return nil
	case value.KindHash:
		h, _ := args[0].AsHash()
		key, ok := args[1].AsText()
		if !ok {
			return fmt.Errorf("module: Find: hash key must be text, got %s", args[1].Kind())
		}
		_, found := h.Get(key)
		ctx.Frame().Push(value.Boolean(found))
		return nil
	default:
		return fmt.Errorf("module: Find: unsupported container kind %s", args[0].Kind())
	}
}

func builtinDelete(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 2)
	if err != nil {
		return err
	}
	switch args[0].Kind() {
	case value.KindArray:
		arr, _ := args[0].AsArray()
		n, ok := args[1].AsNumber()
		if !ok {
			return fmt.Errorf("module: Delete: array index must be a number, got %s", args[1].Kind())
		}
		ctx.Frame().Push(value.Boolean(arr.Delete(int(n))))
		return nil
	case value.KindHash:
		h, _ := args[0].AsHash()
		key, ok := args[1].AsText()
		if !ok {
			return fmt.Errorf("module: Delete: hash key must be text, got %s", args[1].Kind())
		}
		ctx.Frame().Push(value.Boolean(h.Delete(key)))
		return nil
	default:
		return fmt.Errorf("module: Delete: unsupported container kind %s", args[0].Kind())
	}
}

// builtinRangeArray builds an inclusive numeric range, auto-selecting a
// step of +1 or -1 depending on the endpoints' order.
func builtinRangeArray(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 2)
	if err != nil {
		return err
	}
	start, ok := args[0].AsNumber()
	if !ok {
		return fmt.Errorf("module: RangeArray: expected number, got %s", args[0].Kind())
	}
	end, ok := args[1].AsNumber()
	if !ok {
		return fmt.Errorf("module: RangeArray: expected number, got %s", args[1].Kind())
	}

	var items []value.Value
	if start <= end {
		for v := start; v <= end; v++ {
			items = append(items, value.Number(v))
		}
	} else {
		for v := start; v >= end; v-- {
			items = append(items, value.Number(v))
		}
	}
	ctx.Frame().Push(value.NewArray(value.NewArrayValues(items)))
	return nil
}

// builtinFlatten recursively flattens nested arrays into a single,
// top-level array.
func builtinFlatten(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 1)
	if err != nil {
		return err
	}
	arr, ok := args[0].AsArray()
	if !ok {
		return fmt.Errorf("module: Flatten: expected array, got %s", args[0].Kind())
	}
	var flat []value.Value
	flattenInto(arr, &flat)
	ctx.Frame().Push(value.NewArray(value.NewArrayValues(flat)))
	return nil
}

func flattenInto(arr *value.Array, out *[]value.Value) {
	for i := 0; i < arr.Len(); i++ {
		el, _ := arr.Get(i)
		if nested, ok := el.AsArray(); ok {
			flattenInto(nested, out)
		} else {
			*out = append(*out, el)
		}
	}
}

// builtinSortWith sorts an array in place using a script-provided
// comparator, re-entering the VM for each comparison. The
// comparator is called with (a, b) and expected to return a Number whose
// sign follows the usual convention: negative if a<b, zero if equal,
// positive if a>b.
func builtinSortWith(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 2)
	if err != nil {
		return err
	}
	arr, ok := args[0].AsArray()
	if !ok {
		return fmt.Errorf("module: SortWith: expected array, got %s", args[0].Kind())
	}
	fn, ok := args[1].AsFunctionRef()
	if !ok {
		return fmt.Errorf("module: SortWith: expected function ref, got %s", args[1].Kind())
	}

	var sortErr error
	items := arr.Items
	// Insertion sort: straightforward to express in terms of a re-entrant
	// two-argument comparator without a borrowed less-function adapter.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0; j-- {
			cmp, err := ctx.ExecuteFunctionRef(fn, items[j-1], items[j])
			if err != nil {
				sortErr = err
				break
			}
			n, _ := cmp.AsNumber()
			if n <= 0 {
				break
			}
			items[j-1], items[j] = items[j], items[j-1]
		}
		if sortErr != nil {
			break
		}
	}
	if sortErr != nil {
		return sortErr
	}
	ctx.Frame().Push(args[0])
	return nil
}

// builtinSlice extracts a substring/subarray; an Empty length means "to
// the end".
func builtinSlice(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 3)
	if err != nil {
		return err
	}
	start, ok := args[1].AsNumber()
	if !ok {
		return fmt.Errorf("module: Slice: start must be a number, got %s", args[1].Kind())
	}

	switch args[0].Kind() {
	case value.KindText:
		s, _ := args[0].AsText()
		end := len(s)
		if !args[2].IsEmpty() {
			n, ok := args[2].AsNumber()
			if !ok {
				return fmt.Errorf("module: Slice: length must be a number, got %s", args[2].Kind())
			}
			end = int(start) + int(n)
		}
		end = clamp(end, 0, len(s))
		from := clamp(int(start), 0, len(s))
		if from > end {
			from = end
		}
		ctx.Frame().Push(value.Text(s[from:end]))
		return nil
	case value.KindArray:
		arr, _ := args[0].AsArray()
		end := arr.Len()
		if !args[2].IsEmpty() {
			n, ok := args[2].AsNumber()
			if !ok {
				return fmt.Errorf("module: Slice: length must be a number, got %s", args[2].Kind())
			}
			end = int(start) + int(n)
		}
		end = clamp(end, 0, arr.Len())
		from := clamp(int(start), 0, arr.Len())
		if from > end {
			from = end
		}
		sliced := arr.Clone()
		sliced.Items = sliced.Items[from:end]
		ctx.Frame().Push(value.NewArray(sliced))
		return nil
	default:
		return fmt.Errorf("module: Slice: unsupported kind %s", args[0].Kind())
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func builtinIterCreate(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 1)
	if err != nil {
		return err
	}
	ctx.Frame().Push(value.NewIterator(value.NewIteratorState(args[0])))
	return nil
}

func builtinIterHasNext(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 1)
	if err != nil {
		return err
	}
	it, ok := args[0].AsIterator()
	if !ok {
		return fmt.Errorf("%w: %s", vm.ErrInvalidIteratorTarget, args[0].Kind())
	}
	ctx.Frame().Push(value.Boolean(it.HasNext()))
	return nil
}

func builtinIterNext(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 1)
	if err != nil {
		return err
	}
	it, ok := args[0].AsIterator()
	if !ok {
		return fmt.Errorf("%w: %s", vm.ErrInvalidIteratorTarget, args[0].Kind())
	}
	v, _ := it.Next()
	ctx.Frame().Push(v)
	return nil
}

// builtinFormat mirrors the `format` opcode's placeholder output: no
// real interpolation is implemented, matching the legacy engine this
// preserves.
func builtinFormat(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 2)
	if err != nil {
		return err
	}
	ctx.Frame().Push(value.Text(fmt.Sprintf("!== FORMAT: %s %s ==!", args[0].String(), args[1].String())))
	return nil
}

func builtinContext(ctx *vm.Context) error {
	args, err := popN(ctx.Frame(), 1)
	if err != nil {
		return err
	}
	name, ok := args[0].AsText()
	if !ok {
		return fmt.Errorf("module: Context: expected text, got %s", args[0].Kind())
	}
	ctx.SetActiveTextContext(name)
	return nil
}
