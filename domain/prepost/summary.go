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

// Package prepost turns abductive states into procedure summaries and applies summaries at call
// sites.
package prepost

import (
	"go.uber.org/biabduct/domain/abductive"
	"go.uber.org/biabduct/domain/addr"
	"go.uber.org/biabduct/domain/attribute"
	"go.uber.org/biabduct/domain/base"
	"go.uber.org/biabduct/domain/history"
	"go.uber.org/biabduct/domain/vars"
)

// A Summary is one frozen (precondition, postcondition) pair of a procedure: one feasible
// behavior of the procedure as seen from its callers. Summaries only mention formals, globals and
// the return slot, and hold no process-local resources, so they can be serialized.
type Summary struct {
	Pre  base.State
	Post base.State
}

// OfPost freezes the state reached at the exit of a procedure into a summary:
//  1. post bindings other than formals, globals and the return slot are dropped;
//  2. pre cells carrying neither edges nor attributes are dropped;
//  3. unreachable cells are discarded;
//  4. addresses of locals that escaped through post are marked invalid, so that callers using
//     them hit the validity gate.
func OfPost(d abductive.Domain) Summary {
	d.Post.Stack = d.Post.Stack.Filter(func(v vars.Var) bool { return v.IsAbducible() || v.IsReturn() })

	pre := d.Pre.Heap
	d.Pre.Heap.Range(func(a addr.Address, c base.Cell) bool {
		if c.IsEmpty() {
			pre = pre.Remove(a)
		}
		return true
	})
	d.Pre.Heap = pre

	d = d.DiscardUnreachable()

	post := d.Post.Heap
	d.Post.Heap.Range(func(a addr.Address, c base.Cell) bool {
		sv, ok := c.Attrs.Get(attribute.KindAddressOfStackVariable)
		if !ok {
			return true
		}
		local := sv.(attribute.AddressOfStackVariable)
		if local.Var.Kind == vars.Formal {
			return true
		}
		post = post.AddAttribute(a, attribute.Invalid{
			Cause: attribute.Cause{Kind: attribute.GoneOutOfScope, Name: local.Var.Name},
			Trace: history.Immediate("`"+local.Var.Name+"` declared", local.Location, local.History),
		})
		return true
	})
	d.Post.Heap = post

	return Summary{Pre: d.Pre, Post: d.Post}
}

// Domain returns the summary as an abductive state.
func (s Summary) Domain() abductive.Domain {
	return abductive.Domain{Pre: s.Pre, Post: s.Post}
}

// Equivalent reports whether both summaries describe the same behavior up to address renaming.
func (s Summary) Equivalent(other Summary) bool {
	return abductive.Equivalent(s.Domain(), other.Domain())
}

func (s Summary) String() string {
	return s.Domain().String()
}
