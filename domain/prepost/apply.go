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

package prepost

import (
	"errors"
	"fmt"
	"go/token"

	"go.uber.org/biabduct/diagnostic"
	"go.uber.org/biabduct/domain/abductive"
	"go.uber.org/biabduct/domain/addr"
	"go.uber.org/biabduct/domain/attribute"
	"go.uber.org/biabduct/domain/base"
	"go.uber.org/biabduct/domain/history"
	"go.uber.org/biabduct/domain/vars"
)

// Outcome tells whether a summary was applied at a call site.
type Outcome uint8

const (
	// Applied means the caller state was updated with the summary.
	Applied Outcome = iota
	// Skipped means the summary does not apply at this call site; the caller state is unchanged.
	Skipped
)

// SkipReason explains a Skipped outcome.
type SkipReason uint8

const (
	// NotSkipped is the reason of Applied results.
	NotSkipped SkipReason = iota
	// ArityMismatch means the call passes a different number of arguments than the callee has
	// formals.
	ArityMismatch
	// Aliasing means the precondition needs two distinct addresses where the caller has one, or
	// the other way around.
	Aliasing
	// NilMismatch means the precondition assumes nil where the caller has a non-nil value, or
	// requires a valid value where the caller assumes nil.
	NilMismatch
)

func (r SkipReason) String() string {
	switch r {
	case NotSkipped:
		return "not skipped"
	case ArityMismatch:
		return "arity mismatch"
	case Aliasing:
		return "aliasing"
	case NilMismatch:
		return "nil mismatch"
	default:
		return fmt.Sprintf("SkipReason(%d)", r)
	}
}

// Result is the outcome of applying one summary at one call site.
type Result struct {
	Outcome Outcome
	Reason  SkipReason
	// State is the updated caller state, or the unchanged one if the summary was skipped.
	State abductive.Domain
	// Return is the caller value of the callee result, valid when HasReturn is set.
	Return    base.AddrHist
	HasReturn bool
}

// errAliasing and errNilMismatch abandon the current summary. They never escape Apply.
var (
	errAliasing    = errors.New("summary requires unsupported aliasing")
	errNilMismatch = errors.New("summary contradicts the nullness of an argument")
)

// callState is the bookkeeping of one summary application. subst maps callee addresses to caller
// values and revSubst maps caller addresses back; both are kept bijective. visited is reset
// between the two passes.
type callState struct {
	gen    *addr.Generator
	callee string
	loc    token.Position
	sum    Summary

	astate   abductive.Domain
	subst    map[addr.Address]base.AddrHist
	revSubst map[addr.Address]addr.Address
	visited  map[addr.Address]bool
}

// Apply applies the summary of callee, called at loc with the given actuals, to the caller state.
// formals are the callee variables receiving the actuals, in order. If ret is non-nil, it is bound
// in the caller to the value the callee returns.
//
// The first pass materializes the callee precondition in the caller: it unifies callee addresses
// with caller addresses from the formals and globals outwards, checks the validity obligations and
// reads the required edges in the caller. The second pass copies the effects of the callee
// postcondition onto the caller.
//
// A failed validity obligation is reported as a *diagnostic.AccessToInvalidAddress error. A
// summary that cannot be matched against the call is reported as a Skipped result.
func Apply(
	gen *addr.Generator,
	callee string,
	loc token.Position,
	sum Summary,
	formals []vars.Var,
	actuals []base.AddrHist,
	ret *vars.Var,
	caller abductive.Domain,
) (Result, error) {
	if len(formals) != len(actuals) {
		return Result{Outcome: Skipped, Reason: ArityMismatch, State: caller}, nil
	}

	cs := &callState{
		gen:      gen,
		callee:   callee,
		loc:      loc,
		sum:      sum,
		astate:   caller,
		subst:    make(map[addr.Address]base.AddrHist),
		revSubst: make(map[addr.Address]addr.Address),
		visited:  make(map[addr.Address]bool),
	}

	err := cs.materializePre(formals, actuals)
	if errors.Is(err, errAliasing) {
		return Result{Outcome: Skipped, Reason: Aliasing, State: caller}, nil
	}
	if errors.Is(err, errNilMismatch) {
		return Result{Outcome: Skipped, Reason: NilMismatch, State: caller}, nil
	}
	if err != nil {
		return Result{}, err
	}

	cs.visited = make(map[addr.Address]bool)
	res, err := cs.applyPost(formals, ret)
	if errors.Is(err, errAliasing) {
		return Result{Outcome: Skipped, Reason: Aliasing, State: caller}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// visit records that the callee address corresponds to the caller value. It reports whether the
// callee address had already been visited in the current pass, and fails with errAliasing if the
// correspondence contradicts an earlier one.
func (cs *callState) visit(calleeAddr addr.Address, caller base.AddrHist) (bool, error) {
	if prev, ok := cs.revSubst[caller.Addr]; ok && prev != calleeAddr {
		return false, errAliasing
	}
	if prev, ok := cs.subst[calleeAddr]; ok && prev.Addr != caller.Addr {
		return false, errAliasing
	}
	if cs.visited[calleeAddr] {
		return true, nil
	}
	cs.visited[calleeAddr] = true
	if _, ok := cs.subst[calleeAddr]; !ok {
		cs.subst[calleeAddr] = caller
		cs.revSubst[caller.Addr] = calleeAddr
	}
	return false, nil
}

// formalValue returns the value of the formal at entry of the callee, that is the target of the
// formal slot in the precondition.
func (cs *callState) formalValue(formal vars.Var) (addr.Address, bool) {
	slot, ok := cs.sum.Pre.Stack.Find(formal)
	if !ok {
		return 0, false
	}
	val, ok := cs.sum.Pre.Heap.FindEdge(slot.Addr, base.Deref())
	if !ok {
		return 0, false
	}
	return val.Addr, true
}

func (cs *callState) viaCall(hist history.History, inner history.Trace) history.Trace {
	return history.ViaCall(cs.callee, cs.loc, hist, inner)
}

func (cs *callState) materializePre(formals []vars.Var, actuals []base.AddrHist) error {
	for i, formal := range formals {
		val, ok := cs.formalValue(formal)
		if !ok {
			continue
		}
		if err := cs.materializeFrom(val, actuals[i]); err != nil {
			return err
		}
	}

	var err error
	cs.sum.Pre.Stack.Range(func(v vars.Var, calleeSlot base.AddrHist) bool {
		if v.Kind != vars.Global {
			return true
		}
		var callerSlot base.AddrHist
		cs.astate, callerSlot = cs.astate.Eval(cs.gen, v)
		err = cs.materializeFrom(calleeSlot.Addr, callerSlot)
		return err == nil
	})
	return err
}

func (cs *callState) materializeFrom(calleeAddr addr.Address, caller base.AddrHist) error {
	visited, err := cs.visit(calleeAddr, caller)
	if err != nil || visited {
		return err
	}

	cell, _ := cs.sum.Pre.Heap.Find(calleeAddr)
	if inv, ok := cell.Attrs.Invalid(); ok && inv.Cause.Kind == attribute.ConstantNull {
		isNil, nonNil := cs.astate.Nullness(caller.Addr)
		if nonNil {
			return errNilMismatch
		}
		if !isNil {
			cs.astate = cs.astate.AssumeNil(caller.Addr, cs.viaCall(caller.Hist, inv.Trace))
		}
	}
	if attr, ok := cell.Attrs.Get(attribute.KindMustBeValid); ok {
		if cs.astate.AssumesNil(caller.Addr) {
			return errNilMismatch
		}
		access := cs.viaCall(caller.Hist, attr.(attribute.MustBeValid).Trace)
		var invErr *base.InvalidAddressError
		cs.astate, err = cs.astate.CheckValid(access, caller.Addr)
		if errors.As(err, &invErr) {
			return &diagnostic.AccessToInvalidAddress{InvalidatedBy: invErr.Invalid, AccessedBy: access}
		}
		if err != nil {
			return err
		}
	}

	cell.Edges.Range(func(acc base.Access, target base.AddrHist) bool {
		var callerTarget base.AddrHist
		cs.astate, callerTarget = cs.astate.EvalEdge(cs.gen, caller.Addr, acc)
		err = cs.materializeFrom(target.Addr, callerTarget)
		return err == nil
	})
	return err
}

func (cs *callState) applyPost(formals []vars.Var, ret *vars.Var) (Result, error) {
	for _, formal := range formals {
		val, ok := cs.formalValue(formal)
		if !ok {
			continue
		}
		caller, ok := cs.subst[val]
		if !ok {
			panic(fmt.Sprintf("applying summary of %s: formal %s value %s lost its substitution", cs.callee, formal, val))
		}
		if err := cs.applyPostFrom(val, caller); err != nil {
			return Result{}, err
		}
	}

	var err error
	cs.sum.Post.Stack.Range(func(v vars.Var, calleeSlot base.AddrHist) bool {
		if v.Kind != vars.Global {
			return true
		}
		var callerSlot base.AddrHist
		cs.astate, callerSlot = cs.astate.Eval(cs.gen, v)
		err = cs.applyPostFrom(calleeSlot.Addr, callerSlot)
		return err == nil
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Outcome: Applied}
	if slot, ok := cs.sum.Post.Stack.Find(vars.ReturnVar()); ok {
		if val, ok := cs.sum.Post.Heap.FindEdge(slot.Addr, base.Deref()); ok {
			callerRet := cs.substOrFresh(val)
			if err := cs.applyPostFrom(val.Addr, callerRet); err != nil {
				return Result{}, err
			}
			res.Return, res.HasReturn = callerRet, true
			if ret != nil {
				cs.astate = cs.astate.SetVar(*ret, callerRet)
			}
		}
	}

	cs.applyDetachedAttrs()

	res.State = cs.astate
	return res, nil
}

// substOrFresh returns the caller value of a callee value, or a fresh caller address recording the
// call in its history if the callee value has no counterpart yet.
func (cs *callState) substOrFresh(calleeVal base.AddrHist) base.AddrHist {
	if caller, ok := cs.subst[calleeVal.Addr]; ok {
		return caller
	}
	return base.AddrHist{
		Addr: cs.gen.Fresh(),
		Hist: calleeVal.Hist.Append(history.Event{Kind: history.Call, Location: cs.loc, Name: cs.callee}),
	}
}

func (cs *callState) applyPostFrom(calleeAddr addr.Address, caller base.AddrHist) error {
	visited, err := cs.visit(calleeAddr, caller)
	if err != nil || visited {
		return err
	}

	postCell, _ := cs.sum.Post.Heap.Find(calleeAddr)
	preCell, inPre := cs.sum.Pre.Heap.Find(calleeAddr)
	changed := !inPre || !unchanged(preCell, postCell)

	if changed {
		heap := cs.astate.Post.Heap
		// Edges of the precondition are superseded by the postcondition.
		preCell.Edges.Range(func(acc base.Access, _ base.AddrHist) bool {
			if _, ok := postCell.Edges.Get(acc); !ok {
				heap = heap.RemoveEdge(caller.Addr, acc)
			}
			return true
		})
		cs.astate.Post.Heap = heap
		cs.copyAttrs(postCell.Attrs, caller.Addr)
	}

	postCell.Edges.Range(func(acc base.Access, target base.AddrHist) bool {
		callerTarget := cs.substOrFresh(target)
		if changed {
			cs.astate.Post.Heap = cs.astate.Post.Heap.AddEdge(caller.Addr, acc, callerTarget)
		}
		err = cs.applyPostFrom(target.Addr, callerTarget)
		return err == nil
	})
	return err
}

// unchanged reports whether the callee left the cell as its precondition found it: same edge
// targets and, validity obligations and nil assumptions aside, the same attributes.
func unchanged(pre, post base.Cell) bool {
	if pre.Edges.Len() != post.Edges.Len() {
		return false
	}
	same := true
	pre.Edges.Range(func(acc base.Access, target base.AddrHist) bool {
		postTarget, ok := post.Edges.Get(acc)
		same = ok && postTarget.Addr == target.Addr
		return same
	})
	return same && post.Attrs.Equal(pre.Attrs.Remove(attribute.KindMustBeValid).Remove(attribute.KindInvalid))
}

// copyAttrs adds the translated callee attributes to the caller address. Validity obligations and
// stack provenance stay in the callee; invalidations are re-traced through the call.
func (cs *callState) copyAttrs(attrs attribute.Set, callerAddr addr.Address) {
	attrs.Range(func(a attribute.Attribute) bool {
		switch a := a.(type) {
		case attribute.MustBeValid, attribute.AddressOfStackVariable:
		case attribute.Invalid:
			a.Trace = cs.viaCall(nil, a.Trace)
			cs.astate = cs.astate.AddAttribute(callerAddr, a)
		default:
			cs.astate = cs.astate.AddAttribute(callerAddr, a)
		}
		return true
	})
}

// applyDetachedAttrs copies the attributes of callee post cells that no root reached during the
// second pass but that have a caller counterpart.
func (cs *callState) applyDetachedAttrs() {
	cs.sum.Post.Heap.Range(func(a addr.Address, c base.Cell) bool {
		if cs.visited[a] {
			return true
		}
		if caller, ok := cs.subst[a]; ok {
			cs.copyAttrs(c.Attrs, caller.Addr)
		}
		return true
	})
}
