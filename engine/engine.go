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

// Package engine is the front end of the analysis: it interprets the SSA form of one function in
// the abductive domain and computes the function's summaries. Blocks are processed with a worklist
// over sets of disjuncts; a disjunct reaching a block that is subsumed by one already seen there is
// dropped, and the disjunct limit and loop bound guarantee termination.
package engine

import (
	"go/token"
	"slices"

	log "github.com/sirupsen/logrus"
	"go.uber.org/biabduct/config"
	"go.uber.org/biabduct/diagnostic"
	"go.uber.org/biabduct/domain/abductive"
	"go.uber.org/biabduct/domain/addr"
	"go.uber.org/biabduct/domain/base"
	"go.uber.org/biabduct/domain/prepost"
	"golang.org/x/tools/go/ssa"
)

// Provider supplies the summaries of the callees of the function being analyzed.
type Provider interface {
	// Summaries returns the summaries of fn, and false if fn has not been analyzed.
	Summaries(fn *ssa.Function) ([]prepost.Summary, bool)
}

// Reporter receives the violations found while analyzing a function.
type Reporter func(pos token.Pos, err *diagnostic.AccessToInvalidAddress)

// Executor computes function summaries. An executor is meant to analyze the functions of one
// package, callees first, and is not safe for concurrent use.
type Executor struct {
	cfg      *config.Config
	provider Provider
	report   Reporter
	// closures maps the names recorded in Closure attributes back to the functions.
	closures map[string]*ssa.Function
}

// New returns an executor using the limits and models of cfg.
func New(cfg *config.Config, provider Provider, report Reporter) *Executor {
	return &Executor{
		cfg:      cfg,
		provider: provider,
		report:   report,
		closures: make(map[string]*ssa.Function),
	}
}

// Analyze computes the summaries of fn. A function without a body has none.
func (e *Executor) Analyze(fn *ssa.Function) []prepost.Summary {
	if len(fn.Blocks) == 0 {
		return nil
	}
	e.closures[fn.String()] = fn
	f := &frame{
		Executor: e,
		fn:       fn,
		fset:     fn.Prog.Fset,
		gen:      addr.NewGenerator(),
	}
	f.run()

	log.WithFields(log.Fields{
		"func":      fn.String(),
		"summaries": len(f.summaries),
	}).Debug("computed summaries")
	return f.summaries
}

// frame is the state of the analysis of one function.
type frame struct {
	*Executor
	fn   *ssa.Function
	fset *token.FileSet
	gen  *addr.Generator

	// pos is the last valid position seen in the block being executed.
	pos token.Pos

	summaries []prepost.Summary
}

// item is a disjunct waiting to enter a block through the pred-th incoming edge.
type item struct {
	block *ssa.BasicBlock
	pred  int
	state abductive.Domain
}

func (f *frame) run() {
	recorded := make(map[int][]abductive.Domain)
	visits := make(map[int]int)

	work := []item{{block: f.fn.Blocks[0], pred: -1}}
	for len(work) > 0 {
		it := work[0]
		work = work[1:]
		idx := it.block.Index

		if slices.ContainsFunc(recorded[idx], func(s abductive.Domain) bool { return abductive.Leq(it.state, s) }) {
			continue
		}
		if visits[idx] >= f.cfg.LoopBound {
			log.WithFields(log.Fields{"func": f.fn.String(), "block": idx}).Debug("loop bound reached")
			continue
		}
		if len(recorded[idx]) >= f.cfg.DisjunctLimit {
			log.WithFields(log.Fields{"func": f.fn.String(), "block": idx}).Debug("disjunct limit reached")
			continue
		}
		recorded[idx] = append(recorded[idx], it.state)
		visits[idx]++

		work = append(work, f.execBlock(it)...)
	}
}

func (f *frame) execBlock(it item) []item {
	b := it.block
	f.pos = token.NoPos
	states := []abductive.Domain{f.bindPhis(b, it.pred, it.state)}

	for _, instr := range b.Instrs {
		if p := instr.Pos(); p.IsValid() {
			f.pos = p
		}
		switch instr := instr.(type) {
		case *ssa.Phi:
			continue
		case *ssa.Jump:
			return f.successors(b, states, true, true)
		case *ssa.If:
			return f.branch(b, instr, states)
		case *ssa.Return:
			for _, s := range states {
				f.ret(instr, s)
			}
			return nil
		case *ssa.Panic:
			return nil
		}

		var next []abductive.Domain
		for _, s := range states {
			next = append(next, f.exec(instr, s)...)
		}
		states = f.limit(next)
		if len(states) == 0 {
			return nil
		}
	}
	return nil
}

// bindPhis binds the φ-nodes of b to their operands on the given incoming edge. All operands are
// read before any φ is bound.
func (f *frame) bindPhis(b *ssa.BasicBlock, pred int, d abductive.Domain) abductive.Domain {
	if pred < 0 {
		return d
	}
	type binding struct {
		phi *ssa.Phi
		val base.AddrHist
	}
	var bindings []binding
	for _, instr := range b.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		var val base.AddrHist
		d, val = f.value(d, phi.Edges[pred])
		bindings = append(bindings, binding{phi: phi, val: val})
	}
	for _, bd := range bindings {
		d = f.bind(d, bd.phi, bd.val)
	}
	return d
}

// successors sends every state to the selected successors of b.
func (f *frame) successors(b *ssa.BasicBlock, states []abductive.Domain, first, second bool) []item {
	var out []item
	for _, s := range states {
		s = s.DiscardUnreachable()
		for i, succ := range b.Succs {
			if (i == 0 && !first) || (i == 1 && !second) {
				continue
			}
			out = append(out, item{block: succ, pred: slices.Index(succ.Preds, b), state: s})
		}
	}
	return out
}

func (f *frame) limit(states []abductive.Domain) []abductive.Domain {
	if len(states) <= f.cfg.DisjunctLimit {
		return states
	}
	log.WithFields(log.Fields{"func": f.fn.String(), "dropped": len(states) - f.cfg.DisjunctLimit}).
		Debug("disjunct limit reached")
	return states[:f.cfg.DisjunctLimit]
}

func (f *frame) addSummary(sum prepost.Summary) {
	for _, s := range f.summaries {
		if s.Equivalent(sum) {
			return
		}
	}
	if len(f.summaries) >= f.cfg.SummaryLimit {
		log.WithField("func", f.fn.String()).Debug("summary limit reached")
		return
	}
	f.summaries = append(f.summaries, sum)
}

// position returns the position of the instruction being executed.
func (f *frame) position() token.Position {
	if f.pos.IsValid() {
		return f.fset.Position(f.pos)
	}
	return f.fset.Position(f.fn.Pos())
}

func (f *frame) reportPos() token.Pos {
	if f.pos.IsValid() {
		return f.pos
	}
	return f.fn.Pos()
}
