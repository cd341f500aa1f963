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
	"cmp"
	"fmt"

	"go.uber.org/biabduct/domain/addr"
	"go.uber.org/biabduct/domain/history"
)

// AccessKind enumerates the ways an edge leaves a cell.
type AccessKind uint8

const (
	// Dereference follows a pointer.
	Dereference AccessKind = iota
	// FieldAccess selects a named struct field (or a tuple component, or a closure binding).
	FieldAccess
	// ArrayAccess selects an element by a constant index expression.
	ArrayAccess
)

// An Access labels a heap edge. Accesses are comparable and totally ordered.
type Access struct {
	Kind AccessKind
	// Name is the field name for FieldAccess, the index expression for ArrayAccess.
	Name string
}

// Deref returns the dereference access.
func Deref() Access { return Access{Kind: Dereference} }

// Field returns the access to the named field.
func Field(name string) Access { return Access{Kind: FieldAccess, Name: name} }

// Index returns the access to the element at the given index expression.
func Index(expr string) Access { return Access{Kind: ArrayAccess, Name: expr} }

func (a Access) String() string {
	switch a.Kind {
	case Dereference:
		return "*"
	case FieldAccess:
		return "." + a.Name
	case ArrayAccess:
		return "[" + a.Name + "]"
	default:
		return fmt.Sprintf("Access(%d)", a.Kind)
	}
}

// CompareAccess orders accesses by kind, then name.
func CompareAccess(a, b Access) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

type accessComparer struct{}

func (accessComparer) Compare(a, b Access) int { return CompareAccess(a, b) }

// AddrHist is a value: an address together with the history that produced it.
type AddrHist struct {
	Addr addr.Address
	Hist history.History
}
