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

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReleaseKind names the kind of release performed by a modeled function.
type ReleaseKind string

const (
	// ReleaseFree models C `free`.
	ReleaseFree ReleaseKind = "free"
	// ReleasePoolPut models handing an object back to a `sync.Pool`.
	ReleasePoolPut ReleaseKind = "pool-put"
	// ReleaseGeneric models any other function after which the argument must not be used.
	ReleaseGeneric ReleaseKind = "release"
)

// ReleaseModel states that calling Func invalidates its Arg-th argument. Func is the full name of
// the function as printed by types.Func.FullName, e.g. "(*sync.Pool).Put". Arguments are counted
// from zero, the receiver of a method being argument zero.
type ReleaseModel struct {
	Func string      `yaml:"func"`
	Arg  int         `yaml:"arg"`
	Kind ReleaseKind `yaml:"kind"`
}

// Models is the set of functions the analysis does not summarize but models directly.
type Models struct {
	Release []ReleaseModel `yaml:"release"`
}

// DefaultModels returns the built-in models.
func DefaultModels() *Models {
	return &Models{Release: []ReleaseModel{
		{Func: "(*sync.Pool).Put", Arg: 1, Kind: ReleasePoolPut},
		{Func: "_Cfunc_free", Arg: 0, Kind: ReleaseFree},
	}}
}

// LoadModels reads models from a YAML file of the form:
//
//	release:
//	  - func: "(*example.com/pool.Arena).Free"
//	    arg: 1
//	    kind: release
func LoadModels(path string) (*Models, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}
	return ParseModels(data)
}

// ParseModels parses models from YAML.
func ParseModels(data []byte) (*Models, error) {
	var m Models
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse models: %w", err)
	}
	for i, r := range m.Release {
		if r.Func == "" {
			return nil, fmt.Errorf("release model #%d: empty function name", i)
		}
		if r.Arg < 0 {
			return nil, fmt.Errorf("release model %q: negative argument index %d", r.Func, r.Arg)
		}
		switch r.Kind {
		case ReleaseFree, ReleasePoolPut, ReleaseGeneric:
		case "":
			m.Release[i].Kind = ReleaseGeneric
		default:
			return nil, fmt.Errorf("release model %q: unknown kind %q", r.Func, r.Kind)
		}
	}
	return &m, nil
}

// Merge returns the models of m followed by the ones of other. For a function modeled by both,
// the model of other wins.
func (m *Models) Merge(other *Models) *Models {
	out := &Models{}
	overridden := make(map[string]bool, len(other.Release))
	for _, r := range other.Release {
		overridden[r.Func] = true
	}
	for _, r := range m.Release {
		if !overridden[r.Func] {
			out.Release = append(out.Release, r)
		}
	}
	out.Release = append(out.Release, other.Release...)
	return out
}

// LookupRelease returns the release model of the named function.
func (m *Models) LookupRelease(fullName string) (ReleaseModel, bool) {
	if m == nil {
		return ReleaseModel{}, false
	}
	for _, r := range m.Release {
		if r.Func == fullName {
			return r, true
		}
	}
	return ReleaseModel{}, false
}
