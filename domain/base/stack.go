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

package base

import (
	"github.com/benbjohnson/immutable"
	"go.uber.org/biabduct/domain/addr"
	"go.uber.org/biabduct/domain/vars"
)

// Stack binds variables to values. The zero value is the empty stack; all operations are
// persistent.
type Stack struct {
	m *immutable.SortedMap[vars.Var, AddrHist]
}

// Len returns the number of bound variables.
func (s Stack) Len() int {
	if s.m == nil {
		return 0
	}
	return s.m.Len()
}

// Find returns the value bound to v.
func (s Stack) Find(v vars.Var) (AddrHist, bool) {
	if s.m == nil {
		return AddrHist{}, false
	}
	return s.m.Get(v)
}

// Add returns the stack with v bound to val, replacing any previous binding.
func (s Stack) Add(v vars.Var, val AddrHist) Stack {
	m := s.m
	if m == nil {
		m = immutable.NewSortedMap[vars.Var, AddrHist](vars.Comparer{})
	}
	return Stack{m: m.Set(v, val)}
}

// Remove returns the stack without the binding of v.
func (s Stack) Remove(v vars.Var) Stack {
	if _, ok := s.Find(v); !ok {
		return s
	}
	return Stack{m: s.m.Delete(v)}
}

// Eval returns the value bound to v, binding a fresh address first if v is unbound.
func (s Stack) Eval(gen *addr.Generator, v vars.Var) (Stack, AddrHist) {
	if val, ok := s.Find(v); ok {
		return s, val
	}
	val := AddrHist{Addr: gen.Fresh()}
	return s.Add(v, val), val
}

// Range calls f on every binding in variable order until f returns false.
func (s Stack) Range(f func(vars.Var, AddrHist) bool) {
	if s.m == nil {
		return
	}
	for it := s.m.Iterator(); !it.Done(); {
		v, val, _ := it.Next()
		if !f(v, val) {
			return
		}
	}
}

// Filter returns the stack keeping only the bindings for which keep returns true.
func (s Stack) Filter(keep func(vars.Var) bool) Stack {
	out := s
	s.Range(func(v vars.Var, _ AddrHist) bool {
		if !keep(v) {
			out = out.Remove(v)
		}
		return true
	})
	return out
}
