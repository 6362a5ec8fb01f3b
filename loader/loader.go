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

// Package loader translates the textual assembly format into a linked
// *vm.Program: it classifies lines, tracks the current directive-selected
// section, resolves label and function-name forward references in a
// deferred patch pass (the same labels-map-plus-patch-list idiom the
// teacher's IR-to-bytecode generator uses for branch targets), and wires
// load.const/call.native selectors against the native module registry.
package loader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/oinkcat/sl-evaluator/internal/log"
	"github.com/oinkcat/sl-evaluator/module"
	"github.com/oinkcat/sl-evaluator/value"
	"github.com/oinkcat/sl-evaluator/vm"
)

// LoadError wraps a loader-time failure with the source line it occurred
// on. No partial program is ever returned alongside a LoadError.
type LoadError struct {
	Line    int
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loader: line %d: %s", e.Line, e.Message)
}

func errAt(line int, format string, args ...any) *LoadError {
	return &LoadError{Line: line, Message: fmt.Sprintf(format, args...)}
}

// section identifies which directive-selected region of the file is
// currently being read: ".refs", ".shared", ".data", ".defs", ".entry".
type section int

const (
	sectionNone section = iota
	sectionRefs
	sectionShared
	sectionData
	sectionDefs
	sectionEntry
)

// patchKind distinguishes a plain jump-label reference from a named
// function reference, since the two resolve against different name
// tables.
type patchKind int

const (
	patchJumpLabel patchKind = iota
	patchFuncName
)

type patch struct {
	instrIndex int
	kind       patchKind
	name       string
	line       int
}

// Load parses UTF-8 program text from r and links it into an executable
// *vm.Program, resolving load.const/call.native selectors against
// registry.
func Load(r io.Reader, registry *module.Registry) (*vm.Program, error) {
	p := &parser{
		registry:           registry,
		labels:             make(map[string]int),
		funcAddrByName:     make(map[string]int32),
		functions:          make(map[int32]vm.FunctionInfo),
		sourceMap:          make(map[int]vm.SourceLoc),
		currentFunctionKey: vm.EntryFunctionKey,
		log:                log.New("component", "loader"),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := p.parseLine(lineNo, scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("loader: read error: %w", err)
	}

	if err := p.resolvePatches(); err != nil {
		return nil, err
	}
	if err := p.finalizeEntry(); err != nil {
		return nil, err
	}

	return &vm.Program{
		SharedVarNames: p.sharedVarNames,
		Data:           p.data,
		Functions:      p.functions,
		Instructions:   p.instructions,
		SourceMap:      p.sourceMap,
	}, nil
}

type parser struct {
	registry *module.Registry

	section section

	sharedVarNames []string
	data           []value.Value
	instructions   []vm.Instruction
	sourceMap      map[int]vm.SourceLoc

	labels         map[string]int   // plain jump label -> instruction index
	funcAddrByName map[string]int32 // function name -> address
	functions      map[int32]vm.FunctionInfo

	currentFunctionKey int32 // vm.EntryFunctionKey while outside a .defs body
	entryAddress       int
	sawEntry           bool

	patches []patch

	log log.Logger
}

func (p *parser) parseLine(lineNo int, raw string) error {
	code, srcRef := splitSourceRef(raw)
	trimmed := strings.TrimSpace(code)

	if srcRef != nil {
		p.sourceMap[len(p.instructions)] = *srcRef
	}

	if trimmed == "" || strings.HasPrefix(trimmed, ";") {
		return nil
	}

	if strings.HasPrefix(trimmed, ".") {
		return p.parseDirective(lineNo, trimmed)
	}

	if label, arity, isLabel := parseLabel(trimmed); isLabel {
		return p.parseLabelLine(lineNo, label, arity)
	}

	switch p.section {
	case sectionRefs:
		return nil
	case sectionShared:
		p.sharedVarNames = append(p.sharedVarNames, trimmed)
		return nil
	case sectionData:
		v, err := p.parseDataLine(lineNo, trimmed)
		if err != nil {
			return err
		}
		p.data = append(p.data, v)
		return nil
	case sectionDefs, sectionEntry:
		return p.parseInstruction(lineNo, trimmed)
	default:
		return errAt(lineNo, "instruction %q outside any section", trimmed)
	}
}

// parseDataLine parses one ".data" section line: a whitespace-separated
// run of quoted-string or decimal-number tokens, built into an Array
// value (a scalar line — a single token — yields a one-element array,
// matching how the rest of the assembly always addresses data entries
// by index regardless of their arity).
func (p *parser) parseDataLine(lineNo int, line string) (value.Value, error) {
	tokens, err := tokenizeDataLine(lineNo, line)
	if err != nil {
		return value.Empty(), err
	}
	items := make([]value.Value, len(tokens))
	for i, tok := range tokens {
		if strings.HasPrefix(tok, "\"") {
			s, err := parseQuotedArg(lineNo, tok)
			if err != nil {
				return value.Empty(), err
			}
			items[i] = value.Text(s)
			continue
		}
		n, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return value.Empty(), errAt(lineNo, "bad data token %q", tok)
		}
		items[i] = value.Number(n)
	}
	return value.NewArray(value.NewArrayValues(items)), nil
}

// tokenizeDataLine splits a .data line on whitespace that is not inside
// a quoted string, since a quoted token may itself contain spaces.
func tokenizeDataLine(lineNo int, line string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case (r == ' ' || r == '\t') && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuotes {
		return nil, errAt(lineNo, "unterminated quoted string in %q", line)
	}
	flush()
	return tokens, nil
}

// splitSourceRef strips a trailing "; #module(line)" source-map comment
// from an instruction line, per the assembly's disassembly annotation
// format (Disassemble mirrors it on the way back out).
func splitSourceRef(raw string) (string, *vm.SourceLoc) {
	idx := strings.Index(raw, "; #")
	if idx < 0 {
		return raw, nil
	}
	code := raw[:idx]
	rest := raw[idx+len("; #"):]
	open := strings.IndexByte(rest, '(')
	closeIdx := strings.IndexByte(rest, ')')
	if open < 0 || closeIdx < 0 || closeIdx < open {
		return code, nil
	}
	mod := rest[:open]
	lineStr := rest[open+1 : closeIdx]
	n, err := strconv.Atoi(lineStr)
	if err != nil {
		return code, nil
	}
	return code, &vm.SourceLoc{Module: mod, Line: n}
}

func (p *parser) parseDirective(lineNo int, line string) error {
	switch line {
	case ".refs":
		p.section = sectionRefs
		p.log.Warn("`.refs` section present but not resolved against any host registry; entries are skipped")
	case ".shared":
		p.section = sectionShared
	case ".data":
		p.section = sectionData
	case ".defs":
		p.section = sectionDefs
		p.currentFunctionKey = vm.EntryFunctionKey
	case ".entry":
		p.section = sectionEntry
		p.currentFunctionKey = vm.EntryFunctionKey
		p.entryAddress = len(p.instructions)
		p.sawEntry = true
	default:
		return errAt(lineNo, "unknown directive %q", line)
	}
	return nil
}

// parseLabel recognizes "name:" (plain jump label) and "name.N:" (function
// definition label, N its parameter count).
func parseLabel(line string) (name string, arity int32, ok bool) {
	if !strings.HasSuffix(line, ":") {
		return "", 0, false
	}
	body := line[:len(line)-1]
	if body == "" || strings.ContainsAny(body, " \t") {
		return "", 0, false
	}
	if dot := strings.LastIndexByte(body, '.'); dot >= 0 {
		if n, err := strconv.ParseInt(body[dot+1:], 10, 32); err == nil {
			return body[:dot], int32(n), true
		}
	}
	return body, -1, true
}

func (p *parser) parseLabelLine(lineNo int, name string, arity int32) error {
	switch p.section {
	case sectionShared:
		return errAt(lineNo, "label %q not allowed in .shared section", name)
	case sectionData:
		return errAt(lineNo, "label %q not allowed in .data section", name)
	}

	addr := int32(len(p.instructions))
	if arity < 0 {
		// Plain jump label.
		if _, dup := p.labels[name]; dup {
			return errAt(lineNo, "duplicate label %q", name)
		}
		p.labels[name] = len(p.instructions)
		p.log.Debug("resolved jump label", "name", name, "address", addr)
		return nil
	}

	// Function definition label: "name.N:".
	if _, dup := p.funcAddrByName[name]; dup {
		return errAt(lineNo, "duplicate function %q", name)
	}
	p.funcAddrByName[name] = addr
	p.functions[addr] = vm.FunctionInfo{
		Address:     addr,
		ParamsCount: arity,
		FrameSize:   arity,
	}
	p.currentFunctionKey = addr
	p.log.Debug("resolved function label", "name", name, "address", addr, "params", arity)
	return nil
}

func (p *parser) parseInstruction(lineNo int, line string) error {
	op, argRaw := splitOpArg(line)
	opcode, ok := vm.LookupOpcode(op)
	if !ok {
		return errAt(lineNo, "unknown opcode %q", op)
	}

	ins := vm.Instruction{Op: opcode}

	switch opcode {
	case vm.OpLoad:
		if err := parseLoadArg(lineNo, argRaw, &ins); err != nil {
			return err
		}
	case vm.OpLoadGlobal, vm.OpStore, vm.OpStoreGlobal, vm.OpReset:
		reg, err := parseRegisterArg(lineNo, argRaw)
		if err != nil {
			return err
		}
		ins.Reg = reg
		if opcode == vm.OpStore {
			p.growFrame(p.currentFunctionKey, reg+1)
		}
	case vm.OpLoadOuter, vm.OpStoreOuter:
		level, reg, err := parseLevelRegArg(lineNo, argRaw)
		if err != nil {
			return err
		}
		ins.OuterLevel = level
		ins.Reg = reg
	case vm.OpLoadConst:
		if err := p.parseLoadConstArg(lineNo, argRaw, &ins); err != nil {
			return err
		}
	case vm.OpLoadData:
		idx, err := parseIntArg(lineNo, argRaw)
		if err != nil {
			return err
		}
		ins.DataIndex = idx
	case vm.OpMkArray, vm.OpMkHash:
		n, err := parseIntArg(lineNo, argRaw)
		if err != nil {
			return err
		}
		ins.Count = n
	case vm.OpMkRefUDF:
		if argRaw == "" {
			return errAt(lineNo, "mk_ref.udf requires a function name")
		}
		ins.Str, ins.HasStr = argRaw, true
		p.patches = append(p.patches, patch{instrIndex: len(p.instructions), kind: patchFuncName, name: argRaw, line: lineNo})
	case vm.OpGetIndex, vm.OpSetIndex:
		if err := parseIndexArg(lineNo, argRaw, &ins); err != nil {
			return err
		}
	case vm.OpSetOp:
		if argRaw == "" {
			return errAt(lineNo, "set.op requires an operator name")
		}
		ins.Str, ins.HasStr = argRaw, true
	case vm.OpCallNative:
		if err := p.parseCallNativeArg(lineNo, argRaw, &ins); err != nil {
			return err
		}
	case vm.OpCallUDF:
		if argRaw == "" {
			return errAt(lineNo, "call.udf requires a function name")
		}
		p.patches = append(p.patches, patch{instrIndex: len(p.instructions), kind: patchFuncName, name: argRaw, line: lineNo})
	case vm.OpEmitNamed:
		name, err := parseQuotedArg(lineNo, argRaw)
		if err != nil {
			return err
		}
		ins.Str, ins.HasStr = name, true
	default:
		if isJumpOpcode(opcode) {
			if argRaw == "" {
				return errAt(lineNo, "%s requires a label", op)
			}
			p.patches = append(p.patches, patch{instrIndex: len(p.instructions), kind: patchJumpLabel, name: argRaw, line: lineNo})
		} else if argRaw != "" {
			return errAt(lineNo, "unexpected argument %q for %s", argRaw, op)
		}
	}

	p.instructions = append(p.instructions, ins)
	return nil
}

// splitOpArg splits an instruction line into its mnemonic and the
// remainder of the line (trimmed), which is always a single syntactic
// argument — possibly a quoted string containing internal spaces — so
// it is never tokenized any further than this one split.
func splitOpArg(line string) (op string, arg string) {
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx+1:])
}

func parseRegisterArg(lineNo int, arg string) (int32, error) {
	arg = strings.TrimPrefix(arg, "#")
	n, err := strconv.ParseInt(arg, 10, 32)
	if err != nil {
		return 0, errAt(lineNo, "expected register/int argument, got %q", arg)
	}
	return int32(n), nil
}

func parseIntArg(lineNo int, arg string) (int32, error) {
	n, err := strconv.ParseInt(arg, 10, 32)
	if err != nil {
		return 0, errAt(lineNo, "expected int argument, got %q", arg)
	}
	return int32(n), nil
}

func parseLevelRegArg(lineNo int, arg string) (level, reg int32, err error) {
	parts := strings.SplitN(arg, ":", 2)
	if len(parts) != 2 {
		return 0, 0, errAt(lineNo, "expected level:register argument, got %q", arg)
	}
	l, err1 := strconv.ParseInt(parts[0], 10, 32)
	r, err2 := strconv.ParseInt(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, errAt(lineNo, "expected level:register argument, got %q", arg)
	}
	return int32(l), int32(r), nil
}

func parseQuotedArg(lineNo int, arg string) (string, error) {
	if len(arg) < 2 || arg[0] != '"' || arg[len(arg)-1] != '"' {
		return "", errAt(lineNo, "expected quoted string argument, got %q", arg)
	}
	return arg[1 : len(arg)-1], nil
}

// parseLoadArg implements load's three-way tie-break: a leading '#'
// names a register, a leading '"' a string literal, anything else is
// attempted as a numeric literal.
func parseLoadArg(lineNo int, arg string, ins *vm.Instruction) error {
	switch {
	case strings.HasPrefix(arg, "#"):
		reg, err := parseRegisterArg(lineNo, arg)
		if err != nil {
			return err
		}
		ins.Reg = reg
	case strings.HasPrefix(arg, "\""):
		s, err := parseQuotedArg(lineNo, arg)
		if err != nil {
			return err
		}
		ins.Str, ins.HasStr = s, true
	default:
		n, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return errAt(lineNo, "load: expected register, string or number, got %q", arg)
		}
		ins.Num, ins.HasNum = n, true
	}
	return nil
}

// parseIndexArg implements get.index/set.index's argument: a quoted
// string key or a numeric index, matching indexOperand's field usage
// (Str/HasStr for a key, Num otherwise).
func parseIndexArg(lineNo int, arg string, ins *vm.Instruction) error {
	if strings.HasPrefix(arg, "\"") {
		s, err := parseQuotedArg(lineNo, arg)
		if err != nil {
			return err
		}
		ins.Str, ins.HasStr = s, true
		return nil
	}
	n, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return errAt(lineNo, "expected quoted key or numeric index, got %q", arg)
	}
	ins.Num = n
	return nil
}

// splitModuleName splits a "[mod:]name" selector on its last colon; a
// selector with no colon has an empty (default) module.
func splitModuleName(arg string) (mod, name string) {
	if idx := strings.LastIndexByte(arg, ':'); idx >= 0 {
		return arg[:idx], arg[idx+1:]
	}
	return "", arg
}

func (p *parser) parseLoadConstArg(lineNo int, arg string, ins *vm.Instruction) error {
	if n, err := strconv.ParseInt(arg, 10, 32); err == nil {
		ins.DataIndex = int32(n)
		return nil
	}
	mod, name := splitModuleName(arg)
	v, ok := p.registry.ResolveConst(mod, name)
	if !ok {
		return errAt(lineNo, "%s", module.ErrUnresolved(mod, name))
	}
	ins.Const, ins.HasConst = v, true
	ins.Module, ins.Name = mod, name
	ins.HasStr = true // disassembly discriminator: module-qualified vs. data-index form
	return nil
}

func (p *parser) parseCallNativeArg(lineNo int, arg string, ins *vm.Instruction) error {
	mod, name := splitModuleName(arg)
	fn, ok := p.registry.ResolveFunc(mod, name)
	if !ok {
		return errAt(lineNo, "%s", module.ErrUnresolved(mod, name))
	}
	ins.Native = fn
	ins.Module, ins.Name = mod, name
	return nil
}

func isJumpOpcode(op vm.Opcode) bool {
	switch op {
	case vm.OpJmp, vm.OpJmpEq, vm.OpJmpNe, vm.OpJmpLt, vm.OpJmpGt, vm.OpJmpLe, vm.OpJmpGe:
		return true
	default:
		return false
	}
}

func (p *parser) growFrame(key int32, minSize int32) {
	info := p.functions[key]
	if minSize > info.FrameSize {
		info.FrameSize = minSize
	}
	p.functions[key] = info
}

func (p *parser) resolvePatches() error {
	for _, pt := range p.patches {
		switch pt.kind {
		case patchJumpLabel:
			target, ok := p.labels[pt.name]
			if !ok {
				return errAt(pt.line, "unresolved label %q", pt.name)
			}
			p.instructions[pt.instrIndex].Target = int32(target)
		case patchFuncName:
			addr, ok := p.funcAddrByName[pt.name]
			if !ok {
				return errAt(pt.line, "unresolved function %q", pt.name)
			}
			p.instructions[pt.instrIndex].Target = addr
		}
	}
	return nil
}

func (p *parser) finalizeEntry() error {
	if !p.sawEntry {
		return &LoadError{Line: 0, Message: "missing .entry section"}
	}
	// The entry's frame is at least as large as the shared-variable table
	// (I4), but a plain `store r` directly in the entry body - with no
	// named shared variable backing register r - may already have grown
	// it further via growFrame during parsing; keep whichever is larger
	// instead of clobbering that growth.
	frameSize := int32(len(p.sharedVarNames))
	if existing, ok := p.functions[vm.EntryFunctionKey]; ok && existing.FrameSize > frameSize {
		frameSize = existing.FrameSize
	}
	p.functions[vm.EntryFunctionKey] = vm.FunctionInfo{
		Address:     int32(p.entryAddress),
		ParamsCount: 0,
		FrameSize:   frameSize,
	}
	return nil
}
