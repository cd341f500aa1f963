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

// Package vars defines the program variables that root the symbolic heap: registers and locals of
// the analyzed procedure, its formals, package-level globals, and the return slot.
package vars

import (
	"cmp"
	"strconv"
)

// Kind classifies a variable.
type Kind uint8

const (
	// Register is an SSA register (a temporary) of the analyzed procedure.
	Register Kind = iota
	// Local is a named local variable of the analyzed procedure.
	Local
	// Formal is a formal parameter (or a captured free variable) of the analyzed procedure.
	Formal
	// Global is a package-level variable.
	Global
	// Return is the slot receiving the procedure result.
	Return
)

// A Var names a root of the symbolic heap. Vars are comparable and totally ordered.
type Var struct {
	Kind Kind
	// Name is the register, local or global name (globals are package-qualified). Empty for
	// formals and the return slot.
	Name string
	// Index is the position of a formal, zero otherwise.
	Index int
}

// FormalVar returns the i-th formal parameter.
func FormalVar(i int) Var { return Var{Kind: Formal, Index: i} }

// GlobalVar returns the package-level variable with the given qualified name.
func GlobalVar(qualified string) Var { return Var{Kind: Global, Name: qualified} }

// ReturnVar returns the return slot.
func ReturnVar() Var { return Var{Kind: Return} }

// RegisterVar returns the register with the given name.
func RegisterVar(name string) Var { return Var{Kind: Register, Name: name} }

// LocalVar returns the local variable with the given name.
func LocalVar(name string) Var { return Var{Kind: Local, Name: name} }

// IsAbducible reports whether the caller can observe the variable, in which case reading it for
// the first time discovers part of the precondition.
func (v Var) IsAbducible() bool {
	return v.Kind == Formal || v.Kind == Global
}

// IsReturn reports whether v is the return slot.
func (v Var) IsReturn() bool { return v.Kind == Return }

func (v Var) String() string {
	switch v.Kind {
	case Formal:
		return "#arg" + strconv.Itoa(v.Index)
	case Global:
		return "&" + v.Name
	case Return:
		return "#ret"
	default:
		return v.Name
	}
}

// Compare orders variables by kind, then name, then index.
func Compare(a, b Var) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}

// Comparer implements immutable.Comparer for variables.
type Comparer struct{}

// Compare implements immutable.Comparer.
func (Comparer) Compare(a, b Var) int { return Compare(a, b) }
