//  Copyright (c) 2023 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package base implements the base symbolic state: a stack binding variables to values, and a
// heap mapping abstract addresses to cells made of labeled edges and attributes. The heap is an
// arena keyed by address, so cyclic structures need no owning pointers, and every operation is
// persistent: it returns a new state sharing structure with the old one.
package base

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strings"

	"go.uber.org/biabduct/domain/addr"
	"go.uber.org/biabduct/domain/attribute"
	"go.uber.org/biabduct/domain/history"
	"go.uber.org/biabduct/domain/vars"
)

// State is a (stack, heap) pair. The zero value is the empty state.
type State struct {
	Stack Stack
	Heap  Heap
}

// Reachable returns the addresses reachable from the stack through heap edges, bound addresses
// included.
func (s State) Reachable() map[addr.Address]bool {
	var roots []addr.Address
	s.Stack.Range(func(_ vars.Var, val AddrHist) bool {
		roots = append(roots, val.Addr)
		return true
	})
	return s.Heap.ReachableFrom(roots...)
}

// ReachableFrom returns the addresses reachable from the given roots through heap edges.
func (h Heap) ReachableFrom(roots ...addr.Address) map[addr.Address]bool {
	seen := make(map[addr.Address]bool)
	todo := append([]addr.Address(nil), roots...)
	for len(todo) > 0 {
		a := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if seen[a] {
			continue
		}
		seen[a] = true
		c, _ := h.Find(a)
		c.Edges.Range(func(_ Access, target AddrHist) bool {
			if !seen[target.Addr] {
				todo = append(todo, target.Addr)
			}
			return true
		})
	}
	return seen
}

// Restrict returns the state whose heap keeps only the cells of the given addresses.
func (s State) Restrict(keep map[addr.Address]bool) State {
	heap := s.Heap
	s.Heap.Range(func(a addr.Address, _ Cell) bool {
		if !keep[a] {
			heap = heap.Remove(a)
		}
		return true
	})
	return State{Stack: s.Stack, Heap: heap}
}

// Binding is the flat form of one stack entry.
type Binding struct {
	Var  vars.Var
	Addr addr.Address
	Hist history.History
}

// Edge is the flat form of one heap edge.
type Edge struct {
	Access Access
	Addr   addr.Address
	Hist   history.History
}

// FlatCell is the flat form of one cell.
type FlatCell struct {
	Addr  addr.Address
	Edges []Edge
	Attrs []attribute.Attribute
}

// Flat is a plain, ordered rendition of a state: bindings in variable order, cells in address
// order, edges in access order. It is what gets serialized.
type Flat struct {
	Stack []Binding
	Heap  []FlatCell
}

// Flatten returns the flat form of the state.
func (s State) Flatten() Flat {
	var f Flat
	s.Stack.Range(func(v vars.Var, val AddrHist) bool {
		f.Stack = append(f.Stack, Binding{Var: v, Addr: val.Addr, Hist: val.Hist})
		return true
	})
	s.Heap.Range(func(a addr.Address, c Cell) bool {
		fc := FlatCell{Addr: a}
		if !c.Attrs.IsEmpty() {
			fc.Attrs = c.Attrs.All()
		}
		c.Edges.Range(func(acc Access, target AddrHist) bool {
			fc.Edges = append(fc.Edges, Edge{Access: acc, Addr: target.Addr, Hist: target.Hist})
			return true
		})
		f.Heap = append(f.Heap, fc)
		return true
	})
	return f
}

// State rebuilds the state from its flat form.
func (f Flat) State() State {
	var s State
	for _, b := range f.Stack {
		s.Stack = s.Stack.Add(b.Var, AddrHist{Addr: b.Addr, Hist: b.Hist})
	}
	for _, fc := range f.Heap {
		var c Cell
		for _, e := range fc.Edges {
			c.Edges = c.Edges.Set(e.Access, AddrHist{Addr: e.Addr, Hist: e.Hist})
		}
		c.Attrs = attribute.SetOf(fc.Attrs...)
		s.Heap = s.Heap.SetCell(fc.Addr, c)
	}
	return s
}

// GobEncode encodes the state through its flat form. Attribute variants must have been registered
// with attribute.GobRegister.
func (s State) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.Flatten()); err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode decodes a state encoded by GobEncode.
func (s *State) GobDecode(data []byte) error {
	var f Flat
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	*s = f.State()
	return nil
}

// String renders the state on several lines, bindings first.
func (s State) String() string {
	var b strings.Builder
	b.WriteString("stack:")
	s.Stack.Range(func(v vars.Var, val AddrHist) bool {
		fmt.Fprintf(&b, " %s=%s", v, val.Addr)
		return true
	})
	b.WriteString("\nheap:")
	s.Heap.Range(func(a addr.Address, c Cell) bool {
		var edges []string
		c.Edges.Range(func(acc Access, target AddrHist) bool {
			edges = append(edges, acc.String()+" -> "+target.Addr.String())
			return true
		})
		fmt.Fprintf(&b, "\n  %s: {%s}", a, strings.Join(edges, ", "))
		if !c.Attrs.IsEmpty() {
			b.WriteString(" " + c.Attrs.String())
		}
		return true
	})
	return b.String()
}
