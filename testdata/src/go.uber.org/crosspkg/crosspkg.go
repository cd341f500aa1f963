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

// Package crosspkg checks that summaries flow across packages as facts.
package crosspkg

import "go.uber.org/crosspkg/lib"

func useAfterClose() int {
	h := lib.Open()
	lib.Close(h)
	return h.Fd //want "access to field `Fd` of a value that was released by `release`"
}

func closeTwice() {
	h := lib.Open()
	lib.Close(h)
	lib.Close(h) //want "release of a value that was released by `release`, via call to `Close`"
}

func closeOnce() int {
	h := lib.Open()
	fd := h.Fd
	lib.Close(h)
	return fd
}
