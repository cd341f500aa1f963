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

// Package summary hosts the analysis fact carrying the summaries of a function across packages,
// together with the compact encoding shared by facts and the persistent summary store.
package summary

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"go/types"
	"strings"
	"testing"

	"github.com/klauspost/compress/s2"
	"go.uber.org/biabduct/domain/attribute"
	"go.uber.org/biabduct/domain/prepost"
	"golang.org/x/tools/go/analysis"
)

// FuncSummaries is the fact attached to exported functions: the summaries of all the behaviors
// the analysis found for the function.
type FuncSummaries struct {
	Summaries []prepost.Summary
}

// AFact makes FuncSummaries satisfy the analysis.Fact interface.
func (*FuncSummaries) AFact() {}

func (f *FuncSummaries) String() string {
	parts := make([]string, len(f.Summaries))
	for i, s := range f.Summaries {
		parts[i] = fmt.Sprintf("#%d\n%s", i, s)
	}
	return strings.Join(parts, "\n")
}

// GobEncode encodes the summaries with gob, compressed with s2.
func (f *FuncSummaries) GobEncode() ([]byte, error) {
	return Encode(f.Summaries)
}

// GobDecode decodes summaries encoded by GobEncode.
func (f *FuncSummaries) GobDecode(input []byte) error {
	sums, err := Decode(input)
	if err != nil {
		return err
	}
	f.Summaries = sums
	return nil
}

// Encode encodes summaries with gob, compressed with s2.
func Encode(sums []prepost.Summary) (b []byte, err error) {
	var buf bytes.Buffer
	writer := s2.NewWriter(&buf)
	closed := false
	defer func() {
		if closed {
			return
		}
		if cerr := writer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if err := gob.NewEncoder(writer).Encode(sums); err != nil {
		return nil, fmt.Errorf("encode summaries: %w", err)
	}

	// Close the s2 writer before getting the bytes such that we have complete information.
	closed = true
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode decodes summaries encoded by Encode.
func Decode(input []byte) ([]prepost.Summary, error) {
	var sums []prepost.Summary
	if err := gob.NewDecoder(s2.NewReader(bytes.NewReader(input))).Decode(&sums); err != nil {
		return nil, fmt.Errorf("decode summaries: %w", err)
	}
	return sums, nil
}

// Export attaches the summaries of fn to it as a fact. Only exported functions of the current
// package carry facts, and empty summary lists are never exported.
func Export(pass *analysis.Pass, fn *types.Func, sums []prepost.Summary) {
	if len(sums) == 0 || !fn.Exported() || fn.Pkg() != pass.Pkg {
		return
	}

	// The top-level analyzer does not see the facts of the accumulation analyzer, so tests check
	// the encoding here.
	if testing.Testing() {
		data, err := Encode(sums)
		if err != nil {
			panic(err)
		}
		if _, err := Decode(data); err != nil {
			panic(err)
		}
	}

	pass.ExportObjectFact(fn, &FuncSummaries{Summaries: sums})
}

// Import returns the summaries attached to fn by the analysis of its package.
func Import(pass *analysis.Pass, fn *types.Func) ([]prepost.Summary, bool) {
	var fact FuncSummaries
	if !pass.ImportObjectFact(fn, &fact) {
		return nil, false
	}
	return fact.Summaries, true
}

// GobRegister must be called before encoding or decoding summaries.
func GobRegister() {
	attribute.GobRegister()
}

func init() {
	GobRegister()
}
