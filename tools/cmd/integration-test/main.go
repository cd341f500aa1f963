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

// Package main checks cross-package summaries end to end. It builds the biabduct binary, runs it
// over the `testdata/integration` module and matches every reported diagnostic against the
// `//want` comment on the same line of that module.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"
)

// Position is a file and line of a diagnostic or of a `//want` comment.
type Position struct {
	Filename string
	Line     int
}

func (p Position) String() string { return fmt.Sprintf("%s:%d", p.Filename, p.Line) }

// Driver produces the diagnostics of one way of invoking the analyzer.
type Driver interface {
	// Run returns the message reported at each position of the module in dir.
	Run(dir string) (map[Position]string, error)
}

// CollectGroundTruths reads the `//want` comments of every package of the module in dir.
func CollectGroundTruths(dir string) (map[Position]*regexp.Regexp, error) {
	cfg := &packages.Config{
		Dir:  dir,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax | packages.NeedTypes,
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return nil, fmt.Errorf("load packages of %s: %w", dir, err)
	}

	wants := make(map[Position]*regexp.Regexp)
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			for _, group := range file.Comments {
				for _, c := range group.List {
					pattern, ok := parseWant(c.Text)
					if !ok {
						continue
					}
					re, err := regexp.Compile(pattern)
					if err != nil {
						return nil, fmt.Errorf("compile want %q: %w", pattern, err)
					}
					p := pkg.Fset.Position(c.Pos())
					wants[Position{Filename: p.Filename, Line: p.Line}] = re
				}
			}
		}
	}
	return wants, nil
}

// parseWant returns the literal message expected by a `//want` comment.
func parseWant(comment string) (string, bool) {
	text := strings.TrimSpace(strings.TrimPrefix(comment, "//"))
	rest, ok := strings.CutPrefix(text, "want ")
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if unquoted, err := strconv.Unquote(rest); err == nil {
		return regexp.QuoteMeta(unquoted), true
	}
	return regexp.QuoteMeta(strings.Trim(rest, "\"")), true
}

// CompareDiagnostics returns one joined error listing every unexpected, mismatched and missing
// diagnostic, ordered by position, or nil when reports and wants agree.
func CompareDiagnostics(truth map[Position]*regexp.Regexp, collected map[Position]string) error {
	var problems []string
	for pos, got := range collected {
		want, ok := truth[pos]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%s: unexpected diagnostic %q", pos, got))
		case !want.MatchString(got):
			problems = append(problems, fmt.Sprintf("%s: diagnostic mismatch\n\twant %q\n\tgot  %q", pos, want, got))
		}
	}
	for pos, want := range truth {
		if _, ok := collected[pos]; !ok {
			problems = append(problems, fmt.Sprintf("%s: missing diagnostic %q", pos, want))
		}
	}
	sort.Strings(problems)

	var errs []error
	for _, p := range problems {
		errs = append(errs, errors.New(p))
	}
	return errors.Join(errs...)
}

// Run checks the integration module with every driver. It must be started from the repository
// root, since the standalone driver builds the analyzer from there.
func Run() error {
	root, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return fmt.Errorf("locate repository root: %w", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	if top := strings.TrimSpace(string(root)); top != wd {
		return fmt.Errorf("run from the repository root %q, not %q", top, wd)
	}

	dir := filepath.Join(wd, "testdata", "integration")
	wants, err := CollectGroundTruths(dir)
	if err != nil {
		return err
	}

	for _, driver := range []Driver{&StandaloneDriver{Root: wd}} {
		name := reflect.TypeOf(driver).Elem().Name()
		fmt.Printf("%s: ", name)
		reports, err := driver.Run(dir)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := CompareDiagnostics(wants, reports); err != nil {
			return fmt.Errorf("%s reported different diagnostics:\n%w", name, err)
		}
		fmt.Printf("ok, %d of %d wants matched\n", len(reports), len(wants))
	}
	return nil
}

func main() {
	if err := Run(); err != nil {
		fmt.Fprintf(os.Stderr, "integration test: %v\n", err)
		os.Exit(1)
	}
}
