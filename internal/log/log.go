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

// Package log is a small leveled, structured logger for the VM and its
// surrounding tooling, built in the log15 idiom: a Logger carries a set
// of bound key/value context pairs, emits Records to a Handler, and the
// terminal Handler picks a colorized or plain format depending on
// whether its writer is attached to a TTY.
package log

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-stack/stack"
)

// Level is a logging severity, least-to-most verbose as the value grows.
type Level int

const (
	LvlCrit Level = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Level) String() string {
	switch l {
	case LvlCrit:
		return "crit"
	case LvlError:
		return "eror"
	case LvlWarn:
		return "warn"
	case LvlInfo:
		return "info"
	case LvlDebug:
		return "dbug"
	case LvlTrace:
		return "trce"
	default:
		return "unkn"
	}
}

// Record is one log event: its level, message, bound context, and the
// call site that produced it.
type Record struct {
	Time time.Time
	Lvl  Level
	Msg  string
	Ctx  []any
	Call stack.Call
}

// Handler writes a Record somewhere. Log returns an error only when the
// write itself failed; a handler never panics on a malformed Record.
type Handler interface {
	Log(r *Record) error
}

// Logger emits Records carrying a fixed set of bound context pairs.
type Logger interface {
	New(ctx ...any) Logger
	Crit(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Trace(msg string, ctx ...any)

	SetHandler(h Handler)
}

type logger struct {
	ctx []any
	h   *swapHandler
}

// swapHandler lets SetHandler replace the active handler without racing
// concurrent log calls.
type swapHandler struct {
	mu sync.RWMutex
	h  Handler
}

func (s *swapHandler) Log(r *Record) error {
	s.mu.RLock()
	h := s.h
	s.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h.Log(r)
}

func (s *swapHandler) set(h Handler) {
	s.mu.Lock()
	s.h = h
	s.mu.Unlock()
}

// root is the default logger returned by Root, pre-wired to a terminal
// handler on stderr .
var root = &logger{h: &swapHandler{h: defaultHandler()}}

func defaultHandler() Handler {
	if isTerminal(os.Stderr) {
		return StreamHandler(colorableStderr, TerminalFormat(true))
	}
	return StreamHandler(os.Stderr, TerminalFormat(false))
}

// Root returns the default package-level Logger.
func Root() Logger { return root }

// New returns a child of Root with ctx bound permanently to every record
// it emits.
func New(ctx ...any) Logger { return root.New(ctx...) }

func (l *logger) New(ctx ...any) Logger {
	child := make([]any, 0, len(l.ctx)+len(ctx))
	child = append(child, l.ctx...)
	child = append(child, ctx...)
	return &logger{ctx: child, h: &swapHandler{h: l.h}}
}

func (l *logger) SetHandler(h Handler) { l.h.set(h) }

func (l *logger) write(lvl Level, msg string, ctx []any) {
	all := make([]any, 0, len(l.ctx)+len(ctx))
	all = append(all, l.ctx...)
	all = append(all, ctx...)
	r := &Record{
		Time: time.Now(),
		Lvl:  lvl,
		Msg:  msg,
		Ctx:  all,
		Call: stack.Caller(2),
	}
	_ = l.h.Log(r)
}

func (l *logger) Crit(msg string, ctx ...any)  { l.write(LvlCrit, msg, ctx) }
func (l *logger) Error(msg string, ctx ...any) { l.write(LvlError, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...any)  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Info(msg string, ctx ...any)  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...any) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Trace(msg string, ctx ...any) { l.write(LvlTrace, msg, ctx) }

// FuncHandler turns a plain function into a Handler.
type FuncHandler func(r *Record) error

func (f FuncHandler) Log(r *Record) error { return f(r) }

// DiscardHandler drops every record; useful for tests that want a
// Logger but no output.
func DiscardHandler() Handler {
	return FuncHandler(func(*Record) error { return nil })
}

func fieldString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
