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

package engine

import (
	"go/token"
	"strconv"

	"go.uber.org/biabduct/domain/abductive"
	"go.uber.org/biabduct/domain/base"
	"go.uber.org/biabduct/domain/prepost"
	"go.uber.org/biabduct/domain/vars"
	"golang.org/x/tools/go/ssa"
)

// branch routes the states to the successors of an `if`. When the condition compares a value with
// nil, a state is not sent to an edge its value contradicts.
func (f *frame) branch(b *ssa.BasicBlock, instr *ssa.If, states []abductive.Domain) []item {
	x, isEq, ok := nilComparison(instr.Cond)
	if !ok {
		return f.successors(b, states, true, true)
	}

	var out []item
	for _, s := range states {
		var val base.AddrHist
		s, val = f.value(s, x)
		isNil, nonNil := s.Nullness(val.Addr)
		// Successor 0 is taken when the condition holds.
		nilEdge, nonNilEdge := !nonNil, !isNil
		if isEq {
			out = append(out, f.successors(b, []abductive.Domain{s}, nilEdge, nonNilEdge)...)
		} else {
			out = append(out, f.successors(b, []abductive.Domain{s}, nonNilEdge, nilEdge)...)
		}
	}
	return out
}

// nilComparison matches `x == nil` and `x != nil`.
func nilComparison(cond ssa.Value) (x ssa.Value, isEq bool, ok bool) {
	binop, ok := cond.(*ssa.BinOp)
	if !ok || (binop.Op != token.EQL && binop.Op != token.NEQ) {
		return nil, false, false
	}
	isEq = binop.Op == token.EQL
	if isNilConst(binop.Y) {
		return binop.X, isEq, true
	}
	if isNilConst(binop.X) {
		return binop.Y, isEq, true
	}
	return nil, false, false
}

func isNilConst(v ssa.Value) bool {
	c, ok := v.(*ssa.Const)
	return ok && c.IsNil()
}

// ret binds the results to the return slot and freezes the state into a summary. Several results
// are returned as a tuple whose fields are the results in order.
func (f *frame) ret(instr *ssa.Return, d abductive.Domain) {
	switch len(instr.Results) {
	case 0:
	case 1:
		var val base.AddrHist
		d, val = f.value(d, instr.Results[0])
		d = f.bindReturn(d, val)
	default:
		tuple := base.AddrHist{Addr: f.gen.Fresh()}
		for i, r := range instr.Results {
			var val base.AddrHist
			d, val = f.value(d, r)
			d.Post.Heap = d.Post.Heap.AddEdge(tuple.Addr, base.Field(strconv.Itoa(i)), val)
		}
		d = f.bindReturn(d, tuple)
	}
	f.addSummary(prepost.OfPost(d))
}

func (f *frame) bindReturn(d abductive.Domain, val base.AddrHist) abductive.Domain {
	d, slot := d.Eval(f.gen, vars.ReturnVar())
	d.Post.Heap = d.Post.Heap.AddEdge(slot.Addr, base.Deref(), val)
	return d
}
