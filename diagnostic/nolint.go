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

package diagnostic

import (
	"go/ast"
	"reflect"
	"strings"

	"go.uber.org/biabduct/config"
	"go.uber.org/biabduct/util/analysishelper"
	"go.uber.org/biabduct/util/tokenhelper"
	"golang.org/x/tools/go/analysis"
)

// NoLintAnalyzer collects the ranges covered by "//nolint:biabduct" comments in the package so
// that the engine can drop violations inside them.
var NoLintAnalyzer = &analysis.Analyzer{
	Name:       config.NoLintAnalyzerName,
	Doc:        "Read the nolint comments that suppress " + config.LinterName + " reports in this package.",
	Run:        analysishelper.WrapRun(runNoLint),
	ResultType: reflect.TypeOf((*analysishelper.Result[[]Range])(nil)),
}

// Range is a file name (relative to the working directory) with the first and last lines of a
// nolint scope.
type Range struct {
	Filename string
	From, To int
}

func runNoLint(pass *analysis.Pass) ([]Range, error) {
	var ranges []Range
	for _, f := range pass.Files {
		// CommentMap associates each comment with the largest enclosing node group, so a trailing
		// comment covers a whole multi-line statement.
		commentMap := ast.NewCommentMap(pass.Fset, f, f.Comments)
		for node, groups := range commentMap {
			for _, group := range groups {
				for _, comm := range group.List {
					if !nolintMentions(comm.Text, config.LinterName) {
						continue
					}
					from, to := pass.Fset.Position(node.Pos()), pass.Fset.Position(node.End())
					ranges = append(ranges, Range{Filename: tokenhelper.RelToCwd(from.Filename), From: from.Line, To: to.Line})
				}
			}
		}
	}
	return ranges, nil
}

// nolintMentions reports whether the comment is a nolint directive covering the named linter,
// either explicitly, through "all", or by naming no linter at all.
func nolintMentions(text, linter string) bool {
	text = strings.TrimLeft(text, "/ ")
	if !strings.HasPrefix(text, "nolint") {
		return false
	}

	// Strip explanations.
	text = strings.TrimSpace(strings.Split(text, "//")[0])

	parts := strings.SplitN(text, ":", 2)
	if len(parts) == 1 {
		return true
	}
	for _, name := range strings.Split(strings.TrimSpace(parts[1]), ",") {
		name = strings.TrimSpace(name)
		if strings.EqualFold(name, "all") || strings.EqualFold(name, linter) {
			return true
		}
	}
	return false
}
