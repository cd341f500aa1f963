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

package config

// This file hosts non-user-configurable parameters.

// LinterName is the name of the linter, as used in nolint comments and the golangci-lint plugin.
const LinterName = "biabduct"

// Names of the analyzers making up the linter.
const (
	AnalyzerName             = LinterName
	ConfigAnalyzerName       = LinterName + "_config"
	AccumulationAnalyzerName = LinterName + "_accumulation_analyzer"
	NoLintAnalyzerName       = LinterName + "_nolint_analyzer"
)

// NoAnalysisString is the string that may be inserted into the docstring of a package to skip
// analyzing it altogether.
const NoAnalysisString = "<biabduct no analysis>"

const uberPkgPathPrefix = "go.uber.org"

// PkgPathPrefix is the package prefix of the linter itself.
const PkgPathPrefix = uberPkgPathPrefix + "/biabduct"

// Flag names of the config analyzer.
const (
	PrettyPrintFlag        = "pretty-print"
	IncludePkgsFlag        = "include-pkgs"
	ExcludePkgsFlag        = "exclude-pkgs"
	DisjunctLimitFlag      = "disjunct-limit"
	LoopBoundFlag          = "loop-bound"
	SummaryLimitFlag       = "summary-limit"
	SummaryCombinationFlag = "summary-combination"
	ModelsFileFlag         = "models-file"
	SummaryStoreFlag       = "summary-store"
	DebugFlag              = "debug"
)

// Defaults of the numeric limits.
const (
	DefaultDisjunctLimit = 20
	DefaultLoopBound     = 10
	DefaultSummaryLimit  = 8
)
