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

package loader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oinkcat/sl-evaluator/vm"
)

// Disassemble renders a human-readable listing of a linked Program: one
// line per instruction, prefixed with its index, and a leading block
// listing the function table in address order.
func Disassemble(p *vm.Program) string {
	var b strings.Builder

	keys := make([]int32, 0, len(p.Functions))
	for k := range p.Functions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	fmt.Fprintf(&b, "; %d shared variable(s): %v\n", len(p.SharedVarNames), p.SharedVarNames)
	for _, k := range keys {
		fn := p.Functions[k]
		fmt.Fprintf(&b, "; function %d: address=%d params=%d frame=%d\n", k, fn.Address, fn.ParamsCount, fn.FrameSize)
	}

	for i, ins := range p.Instructions {
		line := fmt.Sprintf("%4d: %s", i, ins.String())
		if loc, ok := p.SourceMap[i]; ok {
			line += fmt.Sprintf("  ; #%s(%d)", loc.Module, loc.Line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	return b.String()
}
