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

// Package vmconfig is the TOML-backed configuration for CORE-level knobs
// that live outside a compiled Program: call-depth guards, the default
// text output context name, opcode tracing, and which native modules a
// host wants registered.
package vmconfig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"reflect"
	"unicode"

	"github.com/naoina/toml"

	"github.com/oinkcat/sl-evaluator/internal/log"
)

// VMSection holds the engine-level knobs.
type VMSection struct {
	MaxCallDepth   int
	DefaultContext string
	TraceOpcodes   bool
}

// ModulesSection toggles which built-in native modules get registered.
type ModulesSection struct {
	Builtin bool
	Math    bool
	Events  bool
}

// Config is the top-level TOML document shape.
type Config struct {
	VM      VMSection
	Modules ModulesSection
}

// Default returns the zero-config defaults, equivalent to an empty TOML
// document.
func Default() Config {
	return Config{
		VM: VMSection{
			MaxCallDepth:   4096,
			DefaultContext: "default",
			TraceOpcodes:   false,
		},
		Modules: ModulesSection{
			Builtin: true,
			Math:    true,
			Events:  true,
		},
	}
}

// deprecatedFields are TOML keys accepted for backward compatibility but
// no longer read; Load warns instead of failing on them.
var deprecatedFields = map[string]bool{}

// tomlSettings maps field names directly onto TOML keys and rejects
// unknown fields unless they are explicitly marked deprecated above.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		id := fmt.Sprintf("%s.%s", rt.String(), field)
		if deprecatedFields[id] {
			log.Root().Warn("config field is deprecated and has no effect", "name", id)
			return nil
		}
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see %s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field %q is not defined in %s%s", field, rt.String(), link)
	},
}

// Load parses a TOML document into a Config seeded with Default().
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	err := tomlSettings.NewDecoder(bufio.NewReader(r)).Decode(&cfg)
	var lineErr *toml.LineError
	if errors.As(err, &lineErr) {
		return cfg, fmt.Errorf("vmconfig: %w", err)
	}
	return cfg, err
}
