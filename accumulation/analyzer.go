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

// Package accumulation drives the analysis of one package: it analyzes the functions of the
// package callees first, applies the summaries of upstream packages at call sites, and returns the
// diagnostics for the top-level analyzer to report.
package accumulation

import (
	"errors"
	"fmt"
	"go/token"
	"reflect"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
	"go.uber.org/biabduct/config"
	"go.uber.org/biabduct/diagnostic"
	"go.uber.org/biabduct/domain/prepost"
	"go.uber.org/biabduct/engine"
	"go.uber.org/biabduct/store"
	"go.uber.org/biabduct/summary"
	"go.uber.org/biabduct/util/analysishelper"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"
	"golang.org/x/tools/go/ssa"
)

const _doc = "Compute the summaries of the functions of this package, callees first, reading the" +
	" summaries of upstream dependencies as Facts, and collect the invalid accesses found on the" +
	" way for a later analyzer to report"

// Analyzer computes the summaries of the package and the diagnostics that will become errors in
// the next Analyzer.
var Analyzer = &analysis.Analyzer{
	Name: config.AccumulationAnalyzerName,
	Doc:  _doc,
	Run:  run,
	FactTypes: []analysis.Fact{
		new(summary.FuncSummaries),
	},
	Requires:   []*analysis.Analyzer{config.Analyzer, buildssa.Analyzer, diagnostic.NoLintAnalyzer},
	ResultType: reflect.TypeOf(([]analysis.Diagnostic)(nil)),
}

// run is the primary driver function of the analysis.
//
// The functions of the package are grouped into strongly connected components of the call graph
// and analyzed callees first, so that a call to a local function finds its summaries already
// computed. Members of a recursive component are analyzed twice, the second time with the
// summaries of the first round. Calls to functions of upstream packages use the summaries they
// exported as facts, or, failing that, the ones recorded in the summary store.
//
// Lastly, the summaries of exported functions are exported as facts for downstream packages, and
// all summaries are written to the summary store if one is configured.
func run(pass *analysis.Pass) (result interface{}, _ error) {
	// As a last resort, we recover from a panic when running the analyzer, convert the panic to
	// a diagnostic and return.
	defer func() {
		if r := recover(); r != nil {
			// Deferred functions are executed after a result is generated, so here we modify the
			// return value `result` in-place.
			// Diagnostics with invalid positions (<= 0) will be silently suppressed, so here we use 1.
			d := analysis.Diagnostic{Pos: 1, Message: fmt.Sprintf("INTERNAL PANIC: %s\n%s", r, string(debug.Stack()))}
			if diagnostics, ok := result.([]analysis.Diagnostic); ok {
				result = append(diagnostics, d)
			} else {
				result = []analysis.Diagnostic{d}
			}
		}
	}()

	p := analysishelper.NewEnhancedPass(pass)
	conf := pass.ResultOf[config.Analyzer].(*config.Config)
	if !conf.IsPkgInScope(pass.Pkg) || p.HasPackageDirective(config.NoAnalysisString) {
		// Must return a typed nil since the driver is using reflection to retrieve the result.
		return ([]analysis.Diagnostic)(nil), nil
	}

	nolint := pass.ResultOf[diagnostic.NoLintAnalyzer].(*analysishelper.Result[[]diagnostic.Range])
	if nolint.Err != nil {
		return errorsToDiagnostics([]error{nolint.Err}), nil
	}

	var summaryStore *store.Store
	if conf.SummaryStore != "" {
		s, err := store.Shared(conf.SummaryStore)
		if err != nil {
			return errorsToDiagnostics([]error{err}), nil
		}
		summaryStore = s
	}

	ssaInput := pass.ResultOf[buildssa.Analyzer].(*buildssa.SSA)
	funcs := make([]*ssa.Function, 0, len(ssaInput.SrcFuncs))
	for _, fn := range ssaInput.SrcFuncs {
		if p.IsLocal(fn) {
			funcs = append(funcs, fn)
		}
	}

	diagEngine := diagnostic.NewEngine(pass, nolint.Res)
	prov := &provider{pass: pass, store: summaryStore, local: make(map[*ssa.Function][]prepost.Summary)}
	exec := engine.New(conf, prov, func(pos token.Pos, err *diagnostic.AccessToInvalidAddress) {
		diagEngine.Add(pos, err)
	})

	for _, scc := range newCallGraph(funcs).bottomUp() {
		rounds := 1
		if scc.recursive {
			rounds = 2
		}
		for i := 0; i < rounds; i++ {
			for _, fn := range scc.funcs {
				prov.local[fn] = exec.Analyze(fn)
			}
		}
	}

	var errs []error
	for _, fn := range funcs {
		sums := prov.local[fn]
		if obj, ok := p.FuncObject(fn); ok {
			// Note that we should _never_ export nil pointers due to gob encoding: "Nil pointers are
			// not permitted, as they have no value." Export skips empty summary lists.
			summary.Export(pass, obj, sums)
		}
		if summaryStore != nil && len(sums) > 0 {
			if err := summaryStore.Put(fn.String(), sums); err != nil {
				errs = append(errs, fmt.Errorf("store summaries of %s: %w", fn, err))
			}
		}
	}

	log.WithFields(log.Fields{
		"pkg":        pass.Pkg.Path(),
		"funcs":      len(funcs),
		"violations": diagEngine.Len(),
	}).Debug("analyzed package")

	diagnostics := diagEngine.Diagnostics()
	if len(errs) != 0 {
		diagnostics = append(diagnostics, errorsToDiagnostics([]error{errors.Join(errs...)})...)
	}
	return diagnostics, nil
}

// errorsToDiagnostics converts the internal errors to a slice of analysis.Diagnostic to be reported.
func errorsToDiagnostics(errs []error) []analysis.Diagnostic {
	diagnostics := make([]analysis.Diagnostic, len(errs))
	for i, err := range errs {
		// Diagnostics with invalid positions (<= 0) will be silently suppressed, so here we use 1.
		diagnostics[i] = analysis.Diagnostic{Pos: 1, Message: "INTERNAL ERROR: " + err.Error()}
	}
	return diagnostics
}
