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

// Package diagnostic hosts the reportable violation of the analysis and the diagnostic engine,
// which collects violations found while analyzing a package and turns them into sorted,
// de-duplicated analysis diagnostics.
package diagnostic

import (
	"cmp"
	"go/token"
	"slices"

	"go.uber.org/biabduct/domain/history"
	"go.uber.org/biabduct/util/tokenhelper"
	"golang.org/x/tools/go/analysis"
)

// fileInfo bundles the token.File object and whether it is a fake file (i.e., imported from
// archive, where only line information is present).
type fileInfo struct {
	file   *token.File
	isFake bool
}

type violation struct {
	pos      token.Pos
	position token.Position
	err      *AccessToInvalidAddress
}

// Engine collects violations for one package.
type Engine struct {
	pass       *analysis.Pass
	violations []violation
	nolint     []Range
	// files maps the file name (relative to the working directory when possible) to the
	// token.File object, for converting positions found in summaries back to local token.Pos.
	files map[string]fileInfo
}

// NewEngine creates a new diagnostic engine. Violations reported inside the given nolint ranges
// are dropped.
func NewEngine(pass *analysis.Pass, nolint []Range) *Engine {
	files := make(map[string]fileInfo)
	pass.Fset.Iterate(func(file *token.File) bool {
		name := tokenhelper.RelToCwd(file.Name())

		// Files imported from archive are conceptually "\n" * 65535: no gaps between line starts.
		isFake := true
		prev := -1
		for _, pos := range file.Lines() {
			if prev != -1 && pos-prev > 1 {
				isFake = false
				break
			}
			prev = pos
		}
		files[name] = fileInfo{file: file, isFake: isFake}
		return true
	})

	return &Engine{pass: pass, nolint: nolint, files: files}
}

// Add records a violation at the given position.
func (e *Engine) Add(pos token.Pos, err *AccessToInvalidAddress) {
	position := e.pass.Fset.Position(pos)
	position.Filename = tokenhelper.RelToCwd(position.Filename)
	e.violations = append(e.violations, violation{pos: pos, position: position, err: err})
}

// Len returns the number of recorded violations.
func (e *Engine) Len() int { return len(e.violations) }

// Diagnostics returns one diagnostic per distinct (position, message) pair outside nolint ranges,
// sorted by file name and offset. Each diagnostic relates the invalidation site and every call
// the access went through.
func (e *Engine) Diagnostics() []analysis.Diagnostic {
	slices.SortStableFunc(e.violations, func(a, b violation) int {
		if n := cmp.Compare(a.position.Filename, b.position.Filename); n != 0 {
			return n
		}
		return cmp.Compare(a.position.Offset, b.position.Offset)
	})

	type key struct {
		pos     token.Pos
		message string
	}
	seen := make(map[key]bool)
	diagnostics := make([]analysis.Diagnostic, 0, len(e.violations))
	for _, v := range e.violations {
		msg := v.err.Error()
		if seen[key{v.pos, msg}] || e.suppressed(v.position) {
			continue
		}
		seen[key{v.pos, msg}] = true
		diagnostics = append(diagnostics, analysis.Diagnostic{
			Pos:     v.pos,
			Message: msg,
			Related: e.related(v.err),
		})
	}
	return diagnostics
}

func (e *Engine) suppressed(position token.Position) bool {
	for _, r := range e.nolint {
		if r.Filename == position.Filename && r.From <= position.Line && position.Line <= r.To {
			return true
		}
	}
	return false
}

func (e *Engine) related(err *AccessToInvalidAddress) []analysis.RelatedInformation {
	var related []analysis.RelatedInformation
	add := func(t history.Trace, prefix string) {
		if !t.Location.IsValid() {
			return
		}
		related = append(related, analysis.RelatedInformation{
			Pos:     e.toPos(t.Location),
			Message: prefix + t.Action,
		})
	}
	for _, f := range err.InvalidatedBy.Trace.Frames() {
		add(f, "invalidated: ")
	}
	for _, f := range err.AccessedBy.Frames()[1:] {
		add(f, "accessed: ")
	}
	return related
}

// _fakeFileMaxLines is the maximum number of lines that the archive importer adds to a (fake)
// file when it imports a package.
const _fakeFileMaxLines = 64 * 1024

// toPos converts a position found in a summary, possibly computed for another package, back to a
// token.Pos of the local file set, padding the file set with fake files and lines when needed.
func (e *Engine) toPos(position token.Position) token.Pos {
	filename := tokenhelper.RelToCwd(position.Filename)
	info, ok := e.files[filename]
	if !ok {
		file := e.pass.Fset.AddFile(filename, e.pass.Fset.Base(), _fakeFileMaxLines)
		fakeLines := make([]int, position.Line)
		for i := range fakeLines {
			fakeLines[i] = i
		}
		file.SetLines(fakeLines)
		info = fileInfo{file: file, isFake: true}
		e.files[filename] = info
	}

	if info.isFake {
		for i := info.file.LineCount(); i < position.Line; i++ {
			info.file.AddLine(i)
		}
		// Only line numbers are accurate for fake files.
		return info.file.LineStart(position.Line)
	}
	if position.Offset >= info.file.Size() {
		return info.file.LineStart(min(max(position.Line, 1), info.file.LineCount()))
	}
	return info.file.Pos(position.Offset)
}
