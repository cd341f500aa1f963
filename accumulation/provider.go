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

package accumulation

import (
	"errors"
	"go/types"

	log "github.com/sirupsen/logrus"
	"go.uber.org/biabduct/domain/prepost"
	"go.uber.org/biabduct/store"
	"go.uber.org/biabduct/summary"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/ssa"
)

// provider looks summaries up in the functions analyzed so far, then in the facts of upstream
// packages, then in the summary store.
type provider struct {
	pass  *analysis.Pass
	store *store.Store
	local map[*ssa.Function][]prepost.Summary
}

func (p *provider) Summaries(fn *ssa.Function) ([]prepost.Summary, bool) {
	if origin := fn.Origin(); origin != nil {
		fn = origin
	}
	if sums, ok := p.local[fn]; ok {
		return sums, true
	}
	if obj, ok := fn.Object().(*types.Func); ok && obj.Pkg() != nil && obj.Pkg() != p.pass.Pkg {
		if sums, ok := summary.Import(p.pass, obj); ok {
			return sums, true
		}
	}
	if p.store == nil {
		return nil, false
	}
	sums, err := p.store.Get(fn.String())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).WithField("func", fn.String()).Debug("reading summary store")
		}
		return nil, false
	}
	return sums, true
}
