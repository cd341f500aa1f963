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

package analysishelper

import (
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/ssa"
)

// EnhancedPass is a drop-in replacement for `*analysis.Pass` that provides additional helper methods
// to make it easier to work with the analysis pass.
type EnhancedPass struct {
	*analysis.Pass
}

// NewEnhancedPass creates a new EnhancedPass from the given *analysis.Pass.
func NewEnhancedPass(pass *analysis.Pass) *EnhancedPass {
	return &EnhancedPass{Pass: pass}
}

// HasPackageDirective returns true iff the package doc comment of one of the files contains the
// directive string.
func (p *EnhancedPass) HasPackageDirective(directive string) bool {
	for _, file := range p.Files {
		if file.Doc == nil {
			continue
		}
		for _, c := range file.Doc.List {
			if strings.Contains(c.Text, directive) {
				return true
			}
		}
	}
	return false
}

// IsLocal returns true iff fn is a source function of the package under analysis. Synthetic
// wrappers and functions of other packages are not local.
func (p *EnhancedPass) IsLocal(fn *ssa.Function) bool {
	return fn != nil && fn.Synthetic == "" && fn.Pkg != nil && fn.Pkg.Pkg == p.Pkg
}

// FuncObject returns the declared function or method of fn. Anonymous functions and synthetic
// wrappers have none.
func (p *EnhancedPass) FuncObject(fn *ssa.Function) (*types.Func, bool) {
	if fn.Parent() != nil {
		return nil, false
	}
	obj, ok := fn.Object().(*types.Func)
	return obj, ok
}
