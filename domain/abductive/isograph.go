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

package abductive

import (
	"slices"

	"go.uber.org/biabduct/domain/addr"
	"go.uber.org/biabduct/domain/base"
	"go.uber.org/biabduct/domain/vars"
)

// Leq decides lhs <= rhs by looking for one address renaming that embeds rhs.pre into lhs.pre and,
// under the same renaming, lhs.post into rhs.post. A precondition that asks less of callers is
// greater. The walk starts from the stack roots and fails on the first missing variable, missing
// edge, attribute mismatch or renaming conflict. Cells without edges and attributes count as
// absent.
func Leq(lhs, rhs Domain) bool {
	ren := &renaming{
		r2l: make(map[addr.Address]addr.Address),
		l2r: make(map[addr.Address]addr.Address),
	}

	pre := &embedding{small: rhs.Pre, big: lhs.Pre, smallIsRHS: true, ren: ren, visited: make(map[addr.Address]bool)}
	if !pre.fromStack() {
		return false
	}

	// The post walk also starts from the precondition footprint, whose post cells may no longer be
	// reachable from the post stack.
	footprint := make([]addr.Address, 0, len(ren.l2r))
	for l := range ren.l2r {
		footprint = append(footprint, l)
	}
	slices.Sort(footprint)

	post := &embedding{small: lhs.Post, big: rhs.Post, smallIsRHS: false, ren: ren, visited: make(map[addr.Address]bool)}
	if !post.fromStack() {
		return false
	}
	for _, l := range footprint {
		if !post.visit(l, ren.l2r[l]) {
			return false
		}
	}
	return true
}

// Equivalent reports whether both domains are smaller than each other.
func Equivalent(a, b Domain) bool {
	return Leq(a, b) && Leq(b, a)
}

type renaming struct {
	r2l map[addr.Address]addr.Address
	l2r map[addr.Address]addr.Address
}

func (r *renaming) bind(ra, la addr.Address) bool {
	if mapped, ok := r.r2l[ra]; ok {
		return mapped == la
	}
	if mapped, ok := r.l2r[la]; ok {
		return mapped == ra
	}
	r.r2l[ra] = la
	r.l2r[la] = ra
	return true
}

type embedding struct {
	small, big base.State
	smallIsRHS bool
	ren        *renaming
	visited    map[addr.Address]bool
}

func (e *embedding) bind(s, b addr.Address) bool {
	if e.smallIsRHS {
		return e.ren.bind(s, b)
	}
	return e.ren.bind(b, s)
}

func (e *embedding) fromStack() bool {
	ok := true
	e.small.Stack.Range(func(v vars.Var, sv base.AddrHist) bool {
		bv, found := e.big.Stack.Find(v)
		ok = found && e.visit(sv.Addr, bv.Addr)
		return ok
	})
	return ok
}

func (e *embedding) visit(s, b addr.Address) bool {
	if !e.bind(s, b) {
		return false
	}
	if e.visited[s] {
		return true
	}
	e.visited[s] = true

	sc, _ := e.small.Heap.Find(s)
	bc, _ := e.big.Heap.Find(b)
	if !bc.Attrs.Contains(sc.Attrs) {
		return false
	}
	ok := true
	sc.Edges.Range(func(acc base.Access, st base.AddrHist) bool {
		bt, found := bc.Edges.Get(acc)
		ok = found && e.visit(st.Addr, bt.Addr)
		return ok
	})
	return ok
}
