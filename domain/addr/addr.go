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

// Package addr defines abstract addresses, the opaque tokens standing for memory locations in the
// symbolic heap, together with the generator that hands them out.
package addr

import "strconv"

// An Address is an opaque symbolic identifier for one memory location. Addresses are only ever
// compared by identity, and they are totally ordered so that every map keyed by them iterates
// deterministically.
type Address uint64

// String returns the conventional `v<n>` rendering of the address.
func (a Address) String() string {
	return "v" + strconv.FormatUint(uint64(a), 10)
}

// Compare orders addresses by creation order.
func Compare(a, b Address) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// A Generator is a stateful object handing out fresh addresses. A generator is owned by exactly
// one procedure analysis, which keeps the analysis of independent procedures deterministic and
// free of shared state. It is not safe for concurrent use.
type Generator struct {
	last Address
}

// NewGenerator returns a generator whose first address is v1. The zero address is never handed
// out, so it can serve as a sentinel.
func NewGenerator() *Generator {
	return &Generator{}
}

// Fresh returns an address that has never been returned by this generator before.
func (g *Generator) Fresh() Address {
	g.last++
	return g.last
}

// Comparer implements immutable.Comparer for addresses.
type Comparer struct{}

// Compare implements immutable.Comparer.
func (Comparer) Compare(a, b Address) int { return Compare(a, b) }
