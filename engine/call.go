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
	"errors"
	"fmt"
	"go/types"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.uber.org/biabduct/config"
	"go.uber.org/biabduct/diagnostic"
	"go.uber.org/biabduct/domain/abductive"
	"go.uber.org/biabduct/domain/attribute"
	"go.uber.org/biabduct/domain/base"
	"go.uber.org/biabduct/domain/history"
	"go.uber.org/biabduct/domain/prepost"
	"go.uber.org/biabduct/domain/vars"
	"golang.org/x/tools/go/ssa"
)

// call executes a call. Modeled functions come first, then functions with summaries; anything
// else returns an unconstrained value.
func (f *frame) call(d abductive.Domain, instr *ssa.Call) []abductive.Domain {
	common := instr.Common()
	args := common.Args
	if common.IsInvoke() {
		args = append([]ssa.Value{common.Value}, args...)
	}
	actuals := make([]base.AddrHist, 0, len(args))
	for _, a := range args {
		var val base.AddrHist
		d, val = f.value(d, a)
		actuals = append(actuals, val)
	}

	if callee := common.StaticCallee(); callee != nil {
		if model, ok := f.releaseModel(callee); ok && model.Arg < len(actuals) {
			return f.release(d, instr, callee, model, actuals[model.Arg])
		}
		if mc, ok := common.Value.(*ssa.MakeClosure); ok {
			for _, b := range mc.Bindings {
				var val base.AddrHist
				d, val = f.value(d, b)
				actuals = append(actuals, val)
			}
		}
		if sums, ok := f.provider.Summaries(callee); ok {
			return f.applySummaries(d, instr, callee, sums, actuals)
		}
		return one(f.unknown(d, instr, callee.Name()))
	}

	if common.IsInvoke() {
		return one(f.unknown(d, instr, common.Method.Name()))
	}

	d, fv := f.value(d, common.Value)
	d, ok := f.check(d, "call of a function value", fv)
	if !ok {
		return nil
	}
	clo, ok := d.Post.Heap.Attrs(fv.Addr).Closure()
	if !ok {
		return one(f.unknown(d, instr, ""))
	}
	callee, ok := f.closures[clo.Proc]
	if !ok {
		return one(f.unknown(d, instr, ""))
	}
	for _, free := range callee.FreeVars {
		var val base.AddrHist
		d, val = d.EvalEdge(f.gen, fv.Addr, base.Field(free.Name()))
		actuals = append(actuals, val)
	}
	if sums, ok := f.provider.Summaries(callee); ok {
		return f.applySummaries(d, instr, callee, sums, actuals)
	}
	return one(f.unknown(d, instr, callee.Name()))
}

// applySummaries applies the summaries of callee to d. A violation found while applying one
// summary is only reported if no summary applies: otherwise it depends on a condition the summary
// does not record, such as the callee testing its argument against nil.
func (f *frame) applySummaries(
	d abductive.Domain,
	instr *ssa.Call,
	callee *ssa.Function,
	sums []prepost.Summary,
	actuals []base.AddrHist,
) []abductive.Domain {
	formals := make([]vars.Var, len(actuals))
	for i := range formals {
		formals[i] = vars.FormalVar(i)
	}
	ret := vars.RegisterVar(instr.Name())

	var (
		out       []abductive.Domain
		latent    []*diagnostic.AccessToInvalidAddress
		anyResult bool
	)
	for _, sum := range sums {
		res, err := prepost.Apply(f.gen, callee.Name(), f.position(), sum, formals, actuals, &ret, d)
		var access *diagnostic.AccessToInvalidAddress
		if errors.As(err, &access) {
			latent = append(latent, access)
			continue
		}
		if err != nil {
			panic(fmt.Sprintf("applying summary of %s in %s: %v", callee, f.fn, err))
		}
		if res.Outcome == prepost.Skipped {
			log.WithFields(log.Fields{"callee": callee.String(), "reason": res.Reason.String()}).
				Debug("summary skipped")
			continue
		}

		anyResult = true
		state := res.State
		if !res.HasReturn {
			state = f.unknown(state, instr, callee.Name())
		}
		out = append(out, state)
		if f.cfg.SummaryCombination == config.CombineFirst {
			break
		}
	}

	switch {
	case anyResult:
		if len(latent) > 0 {
			log.WithFields(log.Fields{"callee": callee.String(), "violations": len(latent)}).
				Debug("violations of some summaries not reported")
		}
		return out
	case len(latent) > 0:
		f.report(f.reportPos(), latent[0])
		return nil
	default:
		return one(f.unknown(d, instr, callee.Name()))
	}
}

// unknown binds the result of a call to an unconstrained value.
func (f *frame) unknown(d abductive.Domain, instr *ssa.Call, callee string) abductive.Domain {
	return f.bind(d, instr, base.AddrHist{
		Addr: f.gen.Fresh(),
		Hist: history.History{}.Append(history.Event{Kind: history.Call, Location: f.position(), Name: callee}),
	})
}

// releaseModel looks callee up in the release models, by full name first, then by bare name for
// package-level functions such as the ones cgo generates.
func (f *frame) releaseModel(callee *ssa.Function) (config.ReleaseModel, bool) {
	obj, ok := callee.Object().(*types.Func)
	if !ok {
		return config.ReleaseModel{}, false
	}
	if m, ok := f.cfg.Models.LookupRelease(obj.FullName()); ok {
		return m, true
	}
	if callee.Signature.Recv() == nil {
		return f.cfg.Models.LookupRelease(obj.Name())
	}
	return config.ReleaseModel{}, false
}

var _releaseActions = map[config.ReleaseKind]string{
	config.ReleaseFree:    "free",
	config.ReleasePoolPut: "put into a pool",
	config.ReleaseGeneric: "release",
}

var _releaseCauses = map[config.ReleaseKind]attribute.CauseKind{
	config.ReleaseFree:    attribute.CFree,
	config.ReleasePoolPut: attribute.PoolPut,
	config.ReleaseGeneric: attribute.Released,
}

// release executes a modeled release: the released value must be valid, and is invalid after the
// call. Releasing nil does nothing. A value of the precondition footprint that may be nil is
// split: one disjunct assumes callers pass nil, the other requires a valid value and releases it.
func (f *frame) release(
	d abductive.Domain,
	instr *ssa.Call,
	callee *ssa.Function,
	model config.ReleaseModel,
	val base.AddrHist,
) []abductive.Domain {
	loc := f.position()
	name := strings.TrimPrefix(callee.Name(), "_Cfunc_")

	var out []abductive.Domain
	isNil, nonNil := d.Nullness(val.Addr)
	switch {
	case isNil:
		return one(f.unknown(d, instr, name))
	case !nonNil && d.Pre.Heap.IsRegistered(val.Addr):
		assumed := d.AssumeNil(val.Addr, history.Immediate("released by `"+name+"` when nil", loc, val.Hist))
		out = append(out, f.unknown(assumed, instr, name))
	}

	d, ok := f.check(d, _releaseActions[model.Kind], val)
	if !ok {
		return out
	}
	d = d.Invalidate(val.Addr, attribute.Cause{Kind: _releaseCauses[model.Kind], Name: name},
		history.Immediate("released by `"+name+"`", loc, val.Hist))
	return append(out, f.unknown(d, instr, name))
}
