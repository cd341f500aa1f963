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

// Package biabduct implements the top-level analyzer that simply retrieves the diagnostics from
// the accumulation analyzer and reports them.
package biabduct

import (
	"regexp"

	"github.com/fatih/color"
	"go.uber.org/biabduct/accumulation"
	"go.uber.org/biabduct/config"
	"go.uber.org/biabduct/util/analysishelper"
	"golang.org/x/tools/go/analysis"
)

const _doc = "Run the bi-abductive analysis on this package to report accesses to invalid addresses," +
	" such as objects handed back to a pool or nil pointers, found directly or through calls"

// Analyzer is the top-level instance of Analyzer - it coordinates the entire dataflow to report
// invalid accesses in this package. It is needed here for nogo to recognize the package.
var Analyzer = &analysis.Analyzer{
	Name:      config.AnalyzerName,
	Doc:       _doc,
	Run:       run,
	FactTypes: []analysis.Fact{},
	Requires:  []*analysis.Analyzer{config.Analyzer, accumulation.Analyzer},
}

func run(p *analysis.Pass) (interface{}, error) {
	pass := analysishelper.NewEnhancedPass(p)
	conf := pass.ResultOf[config.Analyzer].(*config.Config)
	deferredErrors := pass.ResultOf[accumulation.Analyzer].([]analysis.Diagnostic)
	for _, e := range deferredErrors {
		if conf.PrettyPrint {
			e.Message = prettyPrintErrorMessage(e.Message)
		}
		pass.Report(e)
	}

	return nil, nil
}

var (
	codeReferencePattern = regexp.MustCompile("\\`(.*?)\\`")
	positionPattern      = regexp.MustCompile(`at ([^\s()]+:\d+(:\d+)?)`)
	causePattern         = regexp.MustCompile(`(is nil|was freed|was put back into a pool|was released|has gone out of scope)`)
)

// The colors are forced on: the driver decides where the messages end up.
var (
	errorColor    = forced(color.FgRed)
	codeColor     = forced(color.FgHiMagenta)
	positionColor = forced(color.FgCyan)
	causeColor    = forced(color.Bold)
)

func forced(attr color.Attribute) *color.Color {
	c := color.New(attr)
	c.EnableColor()
	return c
}

// prettyPrintErrorMessage is used in error reporting to post process and pretty print the output with colors
func prettyPrintErrorMessage(msg string) string {
	msg = causePattern.ReplaceAllString(msg, causeColor.Sprint("${1}"))
	msg = codeReferencePattern.ReplaceAllString(msg, codeColor.Sprint("`${1}`"))
	msg = positionPattern.ReplaceAllString(msg, "at "+positionColor.Sprint("${1}"))
	return errorColor.Sprint("error: ") + msg
}
