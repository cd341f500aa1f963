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

// Package pool checks accesses to objects handed back to a sync.Pool.
package pool

import "sync"

type Buffer struct {
	data []byte
}

var _pool = sync.Pool{New: func() any { return new(Buffer) }}

func get() *Buffer { return _pool.Get().(*Buffer) }

func put(b *Buffer) { _pool.Put(b) }

func useAfterPut() int {
	b := &Buffer{}
	_pool.Put(b)
	return len(b.data) //want "access to field `data` of a value that was put back into a pool by `Put`"
}

func putThenRead() int {
	b := get()
	put(b)
	return len(b.data) //want "access to field `data` of a value that was put back into a pool by `Put`"
}

func doublePut() {
	b := get()
	put(b)
	put(b) //want "put into a pool of a value that was put back into a pool by `Put`, via call to `put`"
}

func putAndForget() {
	b := get()
	b.data = append(b.data, 'x')
	put(b)
}

func reassign() int {
	b := get()
	put(b)
	b = get()
	return len(b.data)
}

func putNil() {
	_pool.Put(nil)
}
