// Package symbols provides a symbol table for resolving VM code addresses to
// function names. Tables are loaded from YAML files produced from the
// script's debug information:
//
//	symbols:
//	  - address: 0x0008
//	    name: OnGameModeInit
//	    kind: public
package symbols

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/vmprof/internal/profiler"
	"github.com/coral-mesh/vmprof/internal/safe"
)

// Symbol describes one function.
type Symbol struct {
	Address uint64 `yaml:"address"`
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind,omitempty"`
}

type file struct {
	Symbols []Symbol `yaml:"symbols"`
}

type entry struct {
	name string
	kind profiler.Kind
}

// Table is an in-memory symbol table. It implements profiler.Resolver.
type Table struct {
	entries map[profiler.Address]entry
}

var _ profiler.Resolver = (*Table)(nil)

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[profiler.Address]entry)}
}

// Add registers a symbol, replacing any previous one at the same address.
func (t *Table) Add(address profiler.Address, name string, kind profiler.Kind) {
	t.entries[address] = entry{name: name, kind: kind}
}

// Resolve returns the name and kind registered at address.
func (t *Table) Resolve(address profiler.Address) (string, profiler.Kind, bool) {
	if t == nil {
		return "", profiler.KindNormal, false
	}
	e, ok := t.entries[address]
	return e.name, e.kind, ok
}

// Len returns the number of symbols.
func (t *Table) Len() int {
	return len(t.entries)
}

// Parse reads a YAML symbol file.
func Parse(r io.Reader) (*Table, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode symbols: %w", err)
	}

	t := NewTable()
	for i, s := range f.Symbols {
		if s.Name == "" {
			return nil, fmt.Errorf("symbol %d at 0x%X has no name", i, s.Address)
		}
		kind, err := profiler.ParseKind(s.Kind)
		if err != nil {
			return nil, fmt.Errorf("symbol %q: %w", s.Name, err)
		}
		t.Add(profiler.Address(s.Address), s.Name, kind)
	}
	return t, nil
}

// LoadFile reads a YAML symbol file from disk.
func LoadFile(path string) (*Table, error) {
	data, err := safe.ReadFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol file: %w", err)
	}

	t, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
