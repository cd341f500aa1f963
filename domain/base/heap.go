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

package base

import (
	"fmt"

	"github.com/benbjohnson/immutable"
	"go.uber.org/biabduct/domain/addr"
	"go.uber.org/biabduct/domain/attribute"
)

// Edges is the persistent map of outgoing edges of a cell. The zero value has no edges.
type Edges struct {
	m *immutable.SortedMap[Access, AddrHist]
}

// Len returns the number of edges.
func (e Edges) Len() int {
	if e.m == nil {
		return 0
	}
	return e.m.Len()
}

// Get returns the target of the edge labeled acc.
func (e Edges) Get(acc Access) (AddrHist, bool) {
	if e.m == nil {
		return AddrHist{}, false
	}
	return e.m.Get(acc)
}

// Set returns the edges with acc pointing to target.
func (e Edges) Set(acc Access, target AddrHist) Edges {
	m := e.m
	if m == nil {
		m = immutable.NewSortedMap[Access, AddrHist](accessComparer{})
	}
	return Edges{m: m.Set(acc, target)}
}

// Delete returns the edges without the one labeled acc.
func (e Edges) Delete(acc Access) Edges {
	if _, ok := e.Get(acc); !ok {
		return e
	}
	return Edges{m: e.m.Delete(acc)}
}

// Range calls f on every edge in access order until f returns false.
func (e Edges) Range(f func(Access, AddrHist) bool) {
	if e.m == nil {
		return
	}
	for it := e.m.Iterator(); !it.Done(); {
		acc, target, _ := it.Next()
		if !f(acc, target) {
			return
		}
	}
}

// A Cell is what the heap knows about one address: its outgoing edges and its attributes.
type Cell struct {
	Edges Edges
	Attrs attribute.Set
}

// IsEmpty reports whether the cell carries no information, in which case it is equivalent to
// having no cell at all.
func (c Cell) IsEmpty() bool {
	return c.Edges.Len() == 0 && c.Attrs.IsEmpty()
}

// Heap maps addresses to cells. An address without a cell is unconstrained. The zero value is the
// empty heap; all operations are persistent.
type Heap struct {
	m *immutable.SortedMap[addr.Address, Cell]
}

// Len returns the number of cells.
func (h Heap) Len() int {
	if h.m == nil {
		return 0
	}
	return h.m.Len()
}

// Find returns the cell of a.
func (h Heap) Find(a addr.Address) (Cell, bool) {
	if h.m == nil {
		return Cell{}, false
	}
	return h.m.Get(a)
}

// IsRegistered reports whether a has a cell, possibly an empty one.
func (h Heap) IsRegistered(a addr.Address) bool {
	_, ok := h.Find(a)
	return ok
}

// SetCell returns the heap with the cell of a replaced by c.
func (h Heap) SetCell(a addr.Address, c Cell) Heap {
	m := h.m
	if m == nil {
		m = immutable.NewSortedMap[addr.Address, Cell](addr.Comparer{})
	}
	return Heap{m: m.Set(a, c)}
}

// Register returns the heap where a has a cell, adding an empty one if needed.
func (h Heap) Register(a addr.Address) Heap {
	if h.IsRegistered(a) {
		return h
	}
	return h.SetCell(a, Cell{})
}

// Remove returns the heap without the cell of a.
func (h Heap) Remove(a addr.Address) Heap {
	if !h.IsRegistered(a) {
		return h
	}
	return Heap{m: h.m.Delete(a)}
}

// FindEdge returns the target of the edge of a labeled acc.
func (h Heap) FindEdge(a addr.Address, acc Access) (AddrHist, bool) {
	c, ok := h.Find(a)
	if !ok {
		return AddrHist{}, false
	}
	return c.Edges.Get(acc)
}

// AddEdge returns the heap with the edge a --acc--> target, replacing any previous edge with the
// same label.
func (h Heap) AddEdge(a addr.Address, acc Access, target AddrHist) Heap {
	c, _ := h.Find(a)
	c.Edges = c.Edges.Set(acc, target)
	return h.SetCell(a, c)
}

// RemoveEdge returns the heap without the edge of a labeled acc.
func (h Heap) RemoveEdge(a addr.Address, acc Access) Heap {
	c, ok := h.Find(a)
	if !ok {
		return h
	}
	if _, ok := c.Edges.Get(acc); !ok {
		return h
	}
	c.Edges = c.Edges.Delete(acc)
	return h.SetCell(a, c)
}

// Attrs returns the attributes of a.
func (h Heap) Attrs(a addr.Address) attribute.Set {
	c, _ := h.Find(a)
	return c.Attrs
}

// AddAttribute returns the heap with attr attached to a. Adding an attribute of a kind a already
// carries is a no-op.
func (h Heap) AddAttribute(a addr.Address, attr attribute.Attribute) Heap {
	c, _ := h.Find(a)
	if c.Attrs.Has(attr.Kind()) {
		return h
	}
	c.Attrs = c.Attrs.Add(attr)
	return h.SetCell(a, c)
}

// EvalEdge returns the target of the edge of a labeled acc, creating a fresh target if there is
// no such edge yet.
func (h Heap) EvalEdge(gen *addr.Generator, a addr.Address, acc Access) (Heap, AddrHist) {
	if target, ok := h.FindEdge(a, acc); ok {
		return h, target
	}
	target := AddrHist{Addr: gen.Fresh()}
	return h.AddEdge(a, acc, target), target
}

// CheckValid returns an *InvalidAddressError if a carries an Invalid attribute.
func (h Heap) CheckValid(a addr.Address) error {
	if inv, ok := h.Attrs(a).Invalid(); ok {
		return &InvalidAddressError{Addr: a, Invalid: inv}
	}
	return nil
}

// Range calls f on every cell in address order until f returns false.
func (h Heap) Range(f func(addr.Address, Cell) bool) {
	if h.m == nil {
		return
	}
	for it := h.m.Iterator(); !it.Done(); {
		a, c, _ := it.Next()
		if !f(a, c) {
			return
		}
	}
}

// InvalidAddressError is returned by the validity gate when an address is known to be invalid.
type InvalidAddressError struct {
	Addr    addr.Address
	Invalid attribute.Invalid
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("address %s %s", e.Addr, e.Invalid.Cause)
}
