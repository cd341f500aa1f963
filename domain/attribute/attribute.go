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

// Package attribute defines the facts attached to abstract addresses (validity, invalidation,
// allocation, writes, stack provenance, closures) and the set holding them.
package attribute

import (
	"cmp"
	"encoding/gob"
	"fmt"
	"go/token"

	"go.uber.org/biabduct/domain/history"
	"go.uber.org/biabduct/domain/vars"
)

// Kind identifies an attribute variant. A set holds at most one attribute of each kind.
type Kind uint8

// Attribute kinds, in their display order.
const (
	KindAddressOfStackVariable Kind = iota
	KindAllocated
	KindClosure
	KindInvalid
	KindMustBeValid
	KindWrittenTo
)

var _kindNames = [...]string{
	KindAddressOfStackVariable: "AddressOfStackVariable",
	KindAllocated:              "Allocated",
	KindClosure:                "Closure",
	KindInvalid:                "Invalid",
	KindMustBeValid:            "MustBeValid",
	KindWrittenTo:              "WrittenTo",
}

func (k Kind) String() string {
	if int(k) < len(_kindNames) {
		return _kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// An Attribute is one fact about an address. The set of implementations is closed.
type Attribute interface {
	// Kind returns the variant of the attribute.
	Kind() Kind
	// Equal compares the payloads of two attributes ignoring traces and histories.
	Equal(other Attribute) bool
	fmt.Stringer

	isAttribute()
}

// MustBeValid records that the procedure dereferences the address, so callers must pass a valid
// one. It only ever appears in preconditions.
type MustBeValid struct {
	Trace history.Trace
}

// Invalid records that the address has been invalidated (released, nil, out of scope) and must
// not be accessed anymore.
type Invalid struct {
	Cause Cause
	Trace history.Trace
}

// WrittenTo records that the procedure stored to the address.
type WrittenTo struct {
	Trace history.Trace
}

// AddressOfStackVariable records that the address is the slot of a local of the procedure. Such
// addresses never escape into summaries.
type AddressOfStackVariable struct {
	Var      vars.Var
	Location token.Position
	History  history.History
}

// Allocated records that the address was obtained from an allocator.
type Allocated struct {
	Allocator string
	Trace     history.Trace
}

// Closure records that the address holds a function value for the named procedure.
type Closure struct {
	Proc string
}

func (MustBeValid) Kind() Kind            { return KindMustBeValid }
func (Invalid) Kind() Kind                { return KindInvalid }
func (WrittenTo) Kind() Kind              { return KindWrittenTo }
func (AddressOfStackVariable) Kind() Kind { return KindAddressOfStackVariable }
func (Allocated) Kind() Kind              { return KindAllocated }
func (Closure) Kind() Kind                { return KindClosure }

func (MustBeValid) isAttribute()            {}
func (Invalid) isAttribute()                {}
func (WrittenTo) isAttribute()              {}
func (AddressOfStackVariable) isAttribute() {}
func (Allocated) isAttribute()              {}
func (Closure) isAttribute()                {}

// Equal implements Attribute.
func (a MustBeValid) Equal(other Attribute) bool {
	_, ok := other.(MustBeValid)
	return ok
}

// Equal implements Attribute.
func (a Invalid) Equal(other Attribute) bool {
	o, ok := other.(Invalid)
	return ok && a.Cause == o.Cause
}

// Equal implements Attribute.
func (a WrittenTo) Equal(other Attribute) bool {
	_, ok := other.(WrittenTo)
	return ok
}

// Equal implements Attribute.
func (a AddressOfStackVariable) Equal(other Attribute) bool {
	o, ok := other.(AddressOfStackVariable)
	return ok && a.Var == o.Var
}

// Equal implements Attribute.
func (a Allocated) Equal(other Attribute) bool {
	o, ok := other.(Allocated)
	return ok && a.Allocator == o.Allocator
}

// Equal implements Attribute.
func (a Closure) Equal(other Attribute) bool {
	o, ok := other.(Closure)
	return ok && a.Proc == o.Proc
}

func (a MustBeValid) String() string { return "MustBeValid(" + a.Trace.Innermost().Action + ")" }
func (a Invalid) String() string     { return "Invalid(" + a.Cause.String() + ")" }
func (a WrittenTo) String() string   { return "WrittenTo" }
func (a AddressOfStackVariable) String() string {
	return "AddressOfStackVariable(" + a.Var.String() + ")"
}
func (a Allocated) String() string { return "Allocated(" + a.Allocator + ")" }
func (a Closure) String() string   { return "Closure(" + a.Proc + ")" }

// CauseKind classifies why an address became invalid.
type CauseKind uint8

const (
	// ConstantNull is the nil value.
	ConstantNull CauseKind = iota
	// CFree is memory released with C `free`.
	CFree
	// PoolPut is an object handed back to a `sync.Pool`.
	PoolPut
	// Released is an object handed to a user-configured release function.
	Released
	// GoneOutOfScope is the slot of a local whose scope has ended.
	GoneOutOfScope
)

// A Cause describes an invalidation. Causes are comparable.
type Cause struct {
	Kind CauseKind
	// Name is the releasing function for PoolPut and Released, the variable for GoneOutOfScope.
	Name string
}

func (c Cause) String() string {
	switch c.Kind {
	case ConstantNull:
		return "is nil"
	case CFree:
		return "was freed by `free`"
	case PoolPut:
		return "was put back into a pool by `" + c.Name + "`"
	case Released:
		return "was released by `" + c.Name + "`"
	case GoneOutOfScope:
		return "points to `" + c.Name + "`, which has gone out of scope"
	default:
		return fmt.Sprintf("CauseKind(%d)", c.Kind)
	}
}

// CompareCause totally orders causes.
func CompareCause(a, b Cause) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

// GobRegister must be called in an `init` function before encoding or decoding any value holding
// attribute sets (summaries, facts, store records). Names are short and assigned in a fixed order,
// so the order below must never change.
func GobRegister() {
	var curr rune = 'a'
	nextStr := func() string {
		out := string(curr)
		curr++
		return out
	}

	gob.RegisterName(nextStr(), MustBeValid{})
	gob.RegisterName(nextStr(), Invalid{})
	gob.RegisterName(nextStr(), WrittenTo{})
	gob.RegisterName(nextStr(), AddressOfStackVariable{})
	gob.RegisterName(nextStr(), Allocated{})
	gob.RegisterName(nextStr(), Closure{})
}
