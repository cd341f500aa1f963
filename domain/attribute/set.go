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

package attribute

import (
	"cmp"
	"strings"

	"github.com/benbjohnson/immutable"
)

type kindComparer struct{}

func (kindComparer) Compare(a, b Kind) int { return cmp.Compare(a, b) }

// A Set is a persistent set of attributes holding at most one attribute per kind. The zero value
// is the empty set. All operations return a new set and leave the receiver untouched.
type Set struct {
	m *immutable.SortedMap[Kind, Attribute]
}

// SetOf returns the set made of the given attributes, added in order.
func SetOf(attrs ...Attribute) Set {
	var s Set
	for _, a := range attrs {
		s = s.Add(a)
	}
	return s
}

// Len returns the number of attributes in the set.
func (s Set) Len() int {
	if s.m == nil {
		return 0
	}
	return s.m.Len()
}

// IsEmpty reports whether the set holds no attribute.
func (s Set) IsEmpty() bool { return s.Len() == 0 }

// Add returns the set with a added. If the set already holds an attribute of the same kind, the
// existing one is kept, so adding is idempotent.
func (s Set) Add(a Attribute) Set {
	if _, ok := s.Get(a.Kind()); ok {
		return s
	}
	m := s.m
	if m == nil {
		m = immutable.NewSortedMap[Kind, Attribute](kindComparer{})
	}
	return Set{m: m.Set(a.Kind(), a)}
}

// Get returns the attribute of the given kind, if any.
func (s Set) Get(k Kind) (Attribute, bool) {
	if s.m == nil {
		return nil, false
	}
	return s.m.Get(k)
}

// Has reports whether the set holds an attribute of the given kind.
func (s Set) Has(k Kind) bool {
	_, ok := s.Get(k)
	return ok
}

// Remove returns the set without the attribute of the given kind.
func (s Set) Remove(k Kind) Set {
	if !s.Has(k) {
		return s
	}
	return Set{m: s.m.Delete(k)}
}

// Invalid returns the invalidation attribute of the set, if any.
func (s Set) Invalid() (Invalid, bool) {
	a, ok := s.Get(KindInvalid)
	if !ok {
		return Invalid{}, false
	}
	return a.(Invalid), true
}

// Closure returns the closure attribute of the set, if any.
func (s Set) Closure() (Closure, bool) {
	a, ok := s.Get(KindClosure)
	if !ok {
		return Closure{}, false
	}
	return a.(Closure), true
}

// Union returns the set holding the attributes of both sets. On a kind conflict the receiver's
// attribute wins.
func (s Set) Union(other Set) Set {
	out := s
	other.Range(func(a Attribute) bool {
		out = out.Add(a)
		return true
	})
	return out
}

// Range calls f on every attribute in kind order until f returns false.
func (s Set) Range(f func(Attribute) bool) {
	if s.m == nil {
		return
	}
	for it := s.m.Iterator(); !it.Done(); {
		_, a, _ := it.Next()
		if !f(a) {
			return
		}
	}
}

// All returns the attributes in kind order.
func (s Set) All() []Attribute {
	out := make([]Attribute, 0, s.Len())
	s.Range(func(a Attribute) bool {
		out = append(out, a)
		return true
	})
	return out
}

// Contains reports whether every attribute of other is equal, ignoring traces, to an attribute
// of s.
func (s Set) Contains(other Set) bool {
	ok := true
	other.Range(func(a Attribute) bool {
		mine, found := s.Get(a.Kind())
		ok = found && mine.Equal(a)
		return ok
	})
	return ok
}

// Equal reports whether both sets hold equal attributes, ignoring traces.
func (s Set) Equal(other Set) bool {
	return s.Len() == other.Len() && s.Contains(other)
}

func (s Set) String() string {
	parts := make([]string, 0, s.Len())
	s.Range(func(a Attribute) bool {
		parts = append(parts, a.String())
		return true
	})
	return "{" + strings.Join(parts, ", ") + "}"
}
