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

// Package abductive implements the abductive domain: a pair of base states where post is the
// ordinary forward state and pre is the precondition inferred so far. The precondition grows
// lazily: whenever the procedure reads a part of the heap reachable from a formal or a global for
// the first time, that part is recorded in pre, and whenever it requires an address to be valid,
// the requirement is recorded there too.
package abductive

import (
	"go.uber.org/biabduct/domain/addr"
	"go.uber.org/biabduct/domain/attribute"
	"go.uber.org/biabduct/domain/base"
	"go.uber.org/biabduct/domain/history"
	"go.uber.org/biabduct/domain/vars"
)

// Domain is one abductive state. It is a value: every operation returns a new domain and leaves
// the receiver untouched.
type Domain struct {
	Post base.State
	Pre  base.State
}

// Eval returns the value bound to v in post, binding a fresh address if v is unbound. The first
// time an abducible variable is evaluated, the same binding is recorded in pre together with an
// empty cell, so that later reads through it extend the precondition.
func (d Domain) Eval(gen *addr.Generator, v vars.Var) (Domain, base.AddrHist) {
	if val, ok := d.Post.Stack.Find(v); ok {
		return d, val
	}
	val := base.AddrHist{Addr: gen.Fresh()}
	d.Post.Stack = d.Post.Stack.Add(v, val)
	if v.IsAbducible() {
		if _, ok := d.Pre.Stack.Find(v); !ok {
			d.Pre.Stack = d.Pre.Stack.Add(v, val)
			d.Pre.Heap = d.Pre.Heap.Register(val.Addr)
		}
	}
	return d, val
}

// EvalEdge returns the target of the edge of a labeled acc in post, creating a fresh target if
// there is none. A fresh edge is also recorded in pre when a is part of the precondition
// footprint.
func (d Domain) EvalEdge(gen *addr.Generator, a addr.Address, acc base.Access) (Domain, base.AddrHist) {
	if target, ok := d.Post.Heap.FindEdge(a, acc); ok {
		return d, target
	}
	target := base.AddrHist{Addr: gen.Fresh()}
	d.Post.Heap = d.Post.Heap.AddEdge(a, acc, target)
	if d.Pre.Heap.IsRegistered(a) {
		if _, ok := d.Pre.Heap.FindEdge(a, acc); !ok {
			d.Pre.Heap = d.Pre.Heap.AddEdge(a, acc, target).Register(target.Addr)
		}
	}
	return d, target
}

// CheckValid is the validity gate. It fails with a *base.InvalidAddressError if a is invalid in
// post. Otherwise, if a is part of the precondition footprint, it records that callers must pass
// a valid address.
func (d Domain) CheckValid(trace history.Trace, a addr.Address) (Domain, error) {
	if err := d.Post.Heap.CheckValid(a); err != nil {
		return d, err
	}
	if d.Pre.Heap.IsRegistered(a) {
		d.Pre.Heap = d.Pre.Heap.AddAttribute(a, attribute.MustBeValid{Trace: trace})
	}
	return d, nil
}

// DiscardUnreachable drops the cells no root can reach. Pre keeps what its own stack reaches; post
// keeps what either stack reaches, so that the post cells of the precondition footprint survive.
func (d Domain) DiscardUnreachable() Domain {
	preReach := d.Pre.Reachable()
	postReach := d.Post.Reachable()
	for a := range preReach {
		postReach[a] = true
	}
	return Domain{Post: d.Post.Restrict(postReach), Pre: d.Pre.Restrict(preReach)}
}

// AddAttribute attaches attr to a in post.
func (d Domain) AddAttribute(a addr.Address, attr attribute.Attribute) Domain {
	d.Post.Heap = d.Post.Heap.AddAttribute(a, attr)
	return d
}

// Allocate records that a was obtained from the named allocator.
func (d Domain) Allocate(a addr.Address, allocator string, trace history.Trace) Domain {
	return d.AddAttribute(a, attribute.Allocated{Allocator: allocator, Trace: trace})
}

// Invalidate records that a must not be accessed anymore.
func (d Domain) Invalidate(a addr.Address, cause attribute.Cause, trace history.Trace) Domain {
	return d.AddAttribute(a, attribute.Invalid{Cause: cause, Trace: trace})
}

// Write sets the edge a --acc--> val in post and marks a as written to. Callers are expected to
// have checked the validity of a first.
func (d Domain) Write(a addr.Address, acc base.Access, val base.AddrHist, trace history.Trace) Domain {
	d.Post.Heap = d.Post.Heap.AddEdge(a, acc, val).AddAttribute(a, attribute.WrittenTo{Trace: trace})
	return d
}

// SetVar binds v to val in post.
func (d Domain) SetVar(v vars.Var, val base.AddrHist) Domain {
	d.Post.Stack = d.Post.Stack.Add(v, val)
	return d
}

// Nullness tells whether a is known to be nil, or known not to be. A value is nil if post holds
// the nil constant at a or pre assumes a is nil; it is not nil if it was allocated, was
// invalidated for another reason than being nil, or must be valid in pre.
func (d Domain) Nullness(a addr.Address) (isNil, nonNil bool) {
	post := d.Post.Heap.Attrs(a)
	if inv, ok := post.Invalid(); ok {
		return inv.Cause.Kind == attribute.ConstantNull, inv.Cause.Kind != attribute.ConstantNull
	}
	if d.AssumesNil(a) {
		return true, false
	}
	nonNil = post.Has(attribute.KindAllocated) ||
		post.Has(attribute.KindClosure) ||
		post.Has(attribute.KindAddressOfStackVariable) ||
		d.Pre.Heap.Attrs(a).Has(attribute.KindMustBeValid)
	return false, nonNil
}

// AssumeNil records in pre that callers pass nil at a. Addresses outside the precondition
// footprint are left alone.
func (d Domain) AssumeNil(a addr.Address, trace history.Trace) Domain {
	if d.Pre.Heap.IsRegistered(a) {
		d.Pre.Heap = d.Pre.Heap.AddAttribute(a, attribute.Invalid{
			Cause: attribute.Cause{Kind: attribute.ConstantNull},
			Trace: trace,
		})
	}
	return d
}

// AssumesNil reports whether pre assumes a is nil.
func (d Domain) AssumesNil(a addr.Address) bool {
	inv, ok := d.Pre.Heap.Attrs(a).Invalid()
	return ok && inv.Cause.Kind == attribute.ConstantNull
}

func (d Domain) String() string {
	return "PRE\n" + d.Pre.String() + "\nPOST\n" + d.Post.String()
}
