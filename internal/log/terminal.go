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

package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Format renders a Record as a single line of text.
type Format interface {
	Format(r *Record) []byte
}

type FormatFunc func(r *Record) []byte

func (f FormatFunc) Format(r *Record) []byte { return f(r) }

// color codes used by TerminalFormat when writing to a real terminal.
const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorCyan   = "\x1b[36m"
	colorGray   = "\x1b[90m"
)

func levelColor(l Level) string {
	switch l {
	case LvlCrit, LvlError:
		return colorRed
	case LvlWarn:
		return colorYellow
	case LvlDebug, LvlTrace:
		return colorGray
	default:
		return colorCyan
	}
}

// TerminalFormat renders level, message and context pairs on one line,
// colorized when color is true.
func TerminalFormat(color bool) Format {
	return FormatFunc(func(r *Record) []byte {
		var buf bytes.Buffer
		ts := r.Time.Format("15:04:05.000")

		if color {
			fmt.Fprintf(&buf, "%s %s%-5s%s %-40s", ts, levelColor(r.Lvl), r.Lvl, colorReset, r.Msg)
		} else {
			fmt.Fprintf(&buf, "%s %-5s %-40s", ts, r.Lvl, r.Msg)
		}

		for i := 0; i+1 < len(r.Ctx); i += 2 {
			k := fieldString(r.Ctx[i])
			v := fieldString(r.Ctx[i+1])
			if color {
				fmt.Fprintf(&buf, " %s%s%s=%s", colorGray, k, colorReset, v)
			} else {
				fmt.Fprintf(&buf, " %s=%s", k, v)
			}
		}

		if r.Call.Frame().Function != "" {
			fmt.Fprintf(&buf, " (%v)", r.Call)
		}

		buf.WriteByte('\n')
		return buf.Bytes()
	})
}

// LogfmtFormat renders key=value pairs with no color, suitable for
// piping to files or log aggregators.
func LogfmtFormat() Format {
	return FormatFunc(func(r *Record) []byte {
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "t=%s lvl=%s msg=%q", r.Time.Format(timeFormat), r.Lvl, r.Msg)
		for i := 0; i+1 < len(r.Ctx); i += 2 {
			fmt.Fprintf(&buf, " %s=%q", fieldString(r.Ctx[i]), fieldString(r.Ctx[i+1]))
		}
		buf.WriteByte('\n')
		return buf.Bytes()
	})
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// streamHandler serializes writes to w through fmt, since concurrent
// goroutines may log through the same root Logger.
type streamHandler struct {
	mu  sync.Mutex
	w   io.Writer
	fmt Format
}

func (h *streamHandler) Log(r *Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(h.fmt.Format(r))
	return err
}

// StreamHandler writes formatted Records to w.
func StreamHandler(w io.Writer, format Format) Handler {
	return &streamHandler{w: w, fmt: format}
}

// isTerminal reports whether f is attached to a terminal (including a
// Cygwin terminal).
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// colorableStderr is stderr wrapped for ANSI output on any platform.
var colorableStderr io.Writer = colorable.NewColorable(os.Stderr)
