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

// Package outparam checks that writes through parameters flow back to callers.
package outparam

type Block struct {
	size int
}

type Arena struct {
	blocks []*Block
}

func (a *Arena) Free(b *Block) {}

type Slot struct {
	block *Block
}

func fill(s *Slot) {
	s.block = &Block{}
}

func freeSlot(a *Arena, s *Slot) {
	a.Free(s.block)
}

func useAfterFree(a *Arena) int {
	s := &Slot{}
	fill(s)
	freeSlot(a, s)
	return s.block.size //want "access to field `size` of a value that was released by `Free`"
}

func refill(a *Arena) int {
	s := &Slot{}
	fill(s)
	freeSlot(a, s)
	fill(s)
	return s.block.size
}
