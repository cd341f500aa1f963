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

// main package makes it possible to build the analyzer as a standalone code checker that can be
// independently invoked to check other packages.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/biabduct"
	"go.uber.org/biabduct/config"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/singlechecker"
)

// Analyzer is identical to the one in biabduct.go, except that it overrides the run function for
// extra filtering of errors, since the singlechecker does not support error suppression like other
// popular linter drivers.
var Analyzer = &analysis.Analyzer{
	Name:       biabduct.Analyzer.Name,
	Doc:        biabduct.Analyzer.Doc,
	Run:        run,
	FactTypes:  biabduct.Analyzer.FactTypes,
	ResultType: biabduct.Analyzer.ResultType,
	Requires:   biabduct.Analyzer.Requires,
}

var (
	// _includeErrorsInFiles is a driver flag for specifying the list of file prefixes to only report errors.
	_includeErrorsInFiles string
	// _excludeErrorsInFiles is a driver flag for specifying the list of file prefixes to not report errors.
	_excludeErrorsInFiles string
)

func run(pass *analysis.Pass) (interface{}, error) {
	// Summaries of dependencies are computed from their sources, so a violation can be found while
	// analyzing a package the user does not own (e.g., a vendored module). Drivers usually filter
	// those, but singlechecker does not, so we filter here.
	includes, err := parseFilePrefixes(_includeErrorsInFiles)
	if err != nil {
		return nil, fmt.Errorf("parse file prefixes for error inclusion: %w", err)
	}
	excludes, err := parseFilePrefixes(_excludeErrorsInFiles)
	if err != nil {
		return nil, fmt.Errorf("parse file prefixes for error exclusion: %w", err)
	}

	report := pass.Report
	pass.Report = func(d analysis.Diagnostic) {
		f := pass.Fset.File(d.Pos)
		if f == nil || keep(f.Name(), includes, excludes) {
			report(d)
		}
	}

	// Delegate the real analysis run to the original analyzer.
	return biabduct.Analyzer.Run(pass)
}

// keep decides whether errors in the named file are reported: exclusions take precedence over
// inclusions.
func keep(filename string, includes, excludes []string) bool {
	for _, e := range excludes {
		if strings.HasPrefix(filename, e) {
			return false
		}
	}
	for _, i := range includes {
		if strings.HasPrefix(filename, i) {
			return true
		}
	}
	return false
}

// parseFilePrefixes parses the comma-separated list of file prefixes, converts them to absolute
// file paths, and returns them as a slice.
func parseFilePrefixes(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}

	list := strings.Split(s, ",")
	for i := range list {
		p, err := filepath.Abs(strings.TrimSpace(list[i]))
		if err != nil {
			return nil, fmt.Errorf("convert %q to absolute path: %w", list[i], err)
		}
		list[i] = p
	}
	return list, nil
}

func main() {
	// For better UX, we lift the flags from config.Analyzer to the top level so that users can
	// specify them without having to specify the analyzer name ("biabduct_config"):
	//
	// `biabduct -loop-bound 20 -summary-store /tmp/summaries.db ./...`
	//
	// instead of
	//
	// `biabduct -biabduct_config.loop-bound 20 ./...`
	config.Analyzer.Flags.VisitAll(func(f *flag.Flag) { flag.Var(f.Value, f.Name, f.Usage) })

	// Add two more flags to the driver for error suppression since singlechecker does not support it.
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get working directory: %v\n", err)
		os.Exit(1)
	}
	flag.StringVar(&_includeErrorsInFiles, "include-errors-in-files", wd, "A comma-separated list of file prefixes to report errors, default is current working directory.")
	flag.StringVar(&_excludeErrorsInFiles, "exclude-errors-in-files", "", "A comma-separated list of file prefixes to exclude from error reporting. This takes precedence over include-errors-in-files.")

	singlechecker.Main(Analyzer)
}
