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

// Package nilderef checks dereferences of nil pointers, directly and through calls.
package nilderef

type node struct {
	next *node
	val  int
}

func direct() int {
	var n *node
	return n.val //want "access to field `val` of a value that is nil"
}

func read(n *node) int { return n.val }

func viaCall() int {
	return read(nil) //want "access to field `val` of a value that is nil, via call to `read`"
}

func chain(n *node) int { return read(n) }

func viaChain() int {
	return chain(nil) //want "is nil, via call to `chain` -> `read`"
}

func guarded(n *node) int {
	if n == nil {
		return 0
	}
	return n.val
}

func safe() int { return guarded(nil) }

func checked(n *node) int {
	if n != nil {
		return n.val
	}
	return 0
}

func closure() int {
	n := &node{}
	reset := func() { n = nil }
	reset()
	return n.val //want "access to field `val` of a value that is nil"
}

func second(n *node) int {
	return n.next.val
}

func secondOfFresh() int {
	n := &node{}
	n.next = nil
	return second(n) //want "access to field `val` of a value that is nil, via call to `second`"
}

func suppressed() int {
	var n *node
	return n.val //nolint:biabduct
}
