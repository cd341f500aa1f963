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

// Package config implements a configurator analyzer that parses the user-provided flags and makes
// them available to the other analyzers of the linter.
package config

import (
	"flag"
	"fmt"
	"go/types"
	"reflect"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/tools/go/analysis"
)

const _doc = "Parse the configurations of the bi-abductive analysis from flags and make them " +
	"available to the other analyzers."

// Combination is the policy for combining the results of applying several summaries of one callee
// at a call site.
type Combination string

const (
	// CombineAll keeps every applicable summary result as its own disjunct.
	CombineAll Combination = "all"
	// CombineFirst keeps only the result of the first applicable summary.
	CombineFirst Combination = "first"
)

// Config is the struct holding the parsed configurations.
type Config struct {
	// PrettyPrint colorizes the reported messages.
	PrettyPrint bool
	// IncludePkgs lists package path prefixes to analyze. Empty means every package.
	IncludePkgs []string
	// ExcludePkgs lists package path prefixes not to analyze. It takes precedence over IncludePkgs.
	ExcludePkgs []string
	// DisjunctLimit bounds the number of states kept per basic block.
	DisjunctLimit int
	// LoopBound bounds the number of times one basic block is processed.
	LoopBound int
	// SummaryLimit bounds the number of summaries kept per function.
	SummaryLimit int
	// SummaryCombination is the policy for combining results of several summaries at a call.
	// Under either policy a summary whose precondition the caller violates is not reported
	// as long as another summary of the same callee applies to that caller state. With
	// CombineFirst, summaries after the first applicable one are not tried at all.
	SummaryCombination Combination
	// ModelsFile is an optional YAML file adding release models.
	ModelsFile string
	// SummaryStore is an optional path of the database persisting summaries across runs.
	SummaryStore string
	// Debug enables debug logging.
	Debug bool
	// Models are the release models: the defaults plus the ones of ModelsFile.
	Models *Models
}

// IsPkgInScope returns true iff the package is in scope of the analysis.
func (c *Config) IsPkgInScope(pkg *types.Package) bool {
	if pkg == nil {
		return false
	}
	return c.isPkgPathInScope(pkg.Path())
}

func (c *Config) isPkgPathInScope(path string) bool {
	// The linter's own packages are never in scope.
	if path == PkgPathPrefix || strings.HasPrefix(path, PkgPathPrefix+"/") {
		return false
	}
	for _, exclude := range c.ExcludePkgs {
		if strings.HasPrefix(path, exclude) {
			return false
		}
	}
	if len(c.IncludePkgs) == 0 {
		return true
	}
	for _, include := range c.IncludePkgs {
		if strings.HasPrefix(path, include) {
			return true
		}
	}
	return false
}

// Analyzer is the config analyzer. Its only job is to parse the flags into a *Config result.
var Analyzer = &analysis.Analyzer{
	Name:       ConfigAnalyzerName,
	Doc:        _doc,
	Run:        run,
	Flags:      newFlagSet(),
	ResultType: reflect.TypeOf((*Config)(nil)),
}

func newFlagSet() flag.FlagSet {
	fs := flag.NewFlagSet(ConfigAnalyzerName, flag.ExitOnError)

	// The flags are read back through Analyzer.Flags in run, so the returned pointers are dropped.
	_ = fs.Bool(PrettyPrintFlag, true, "Pretty print the error messages")
	_ = fs.String(IncludePkgsFlag, "", "Comma-separated list of package path prefixes to analyze")
	_ = fs.String(ExcludePkgsFlag, "", "Comma-separated list of package path prefixes to exclude from analysis")
	_ = fs.Int(DisjunctLimitFlag, DefaultDisjunctLimit, "Maximum number of states kept per basic block")
	_ = fs.Int(LoopBoundFlag, DefaultLoopBound, "Maximum number of times one basic block is analyzed")
	_ = fs.Int(SummaryLimitFlag, DefaultSummaryLimit, "Maximum number of summaries kept per function")
	_ = fs.String(SummaryCombinationFlag, string(CombineAll), "How to combine the results of several summaries of one callee: all or first")
	_ = fs.String(ModelsFileFlag, "", "YAML file with additional release models")
	_ = fs.String(SummaryStoreFlag, "", "Path of a database persisting summaries across runs")
	_ = fs.Bool(DebugFlag, false, "Enable debug logging")

	return *fs
}

func run(pass *analysis.Pass) (any, error) {
	conf := &Config{
		PrettyPrint:        true,
		DisjunctLimit:      DefaultDisjunctLimit,
		LoopBound:          DefaultLoopBound,
		SummaryLimit:       DefaultSummaryLimit,
		SummaryCombination: CombineAll,
	}

	// Override the defaults with the flags the user provided.
	flags := &pass.Analyzer.Flags
	if v, ok := lookup(flags, PrettyPrintFlag); ok {
		conf.PrettyPrint = v.(bool)
	}
	if v, ok := lookup(flags, IncludePkgsFlag); ok {
		conf.IncludePkgs = splitList(v.(string))
	}
	if v, ok := lookup(flags, ExcludePkgsFlag); ok {
		conf.ExcludePkgs = splitList(v.(string))
	}
	for name, dst := range map[string]*int{
		DisjunctLimitFlag: &conf.DisjunctLimit,
		LoopBoundFlag:     &conf.LoopBound,
		SummaryLimitFlag:  &conf.SummaryLimit,
	} {
		v, ok := lookup(flags, name)
		if !ok {
			continue
		}
		if v.(int) <= 0 {
			return nil, fmt.Errorf("flag %q must be positive, got %d", name, v.(int))
		}
		*dst = v.(int)
	}
	if v, ok := lookup(flags, SummaryCombinationFlag); ok {
		switch c := Combination(v.(string)); c {
		case CombineAll, CombineFirst:
			conf.SummaryCombination = c
		default:
			return nil, fmt.Errorf("flag %q must be %q or %q, got %q", SummaryCombinationFlag, CombineAll, CombineFirst, c)
		}
	}
	if v, ok := lookup(flags, ModelsFileFlag); ok {
		conf.ModelsFile = v.(string)
	}
	if v, ok := lookup(flags, SummaryStoreFlag); ok {
		conf.SummaryStore = v.(string)
	}
	if v, ok := lookup(flags, DebugFlag); ok {
		conf.Debug = v.(bool)
	}

	if conf.Debug {
		EnableDebugLogging()
	}

	models := DefaultModels()
	if conf.ModelsFile != "" {
		loaded, err := LoadModels(conf.ModelsFile)
		if err != nil {
			return nil, err
		}
		models = models.Merge(loaded)
	}
	conf.Models = models

	return conf, nil
}

func lookup(fs *flag.FlagSet, name string) (any, bool) {
	f := fs.Lookup(name)
	if f == nil {
		return nil, false
	}
	getter, ok := f.Value.(flag.Getter)
	if !ok {
		return nil, false
	}
	return getter.Get(), true
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnableDebugLogging switches the logger to debug level with timestamps.
func EnableDebugLogging() {
	log.SetLevel(log.DebugLevel)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
}
