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

package diagnostic

import (
	"strings"

	"go.uber.org/biabduct/domain/attribute"
	"go.uber.org/biabduct/domain/history"
	"go.uber.org/biabduct/util/tokenhelper"
)

// AccessToInvalidAddress is the one reportable violation: an address that is known to be invalid
// is accessed, either directly or by a callee whose precondition requires it to be valid.
type AccessToInvalidAddress struct {
	// InvalidatedBy explains how and where the address became invalid.
	InvalidatedBy attribute.Invalid
	// AccessedBy explains the access, through the chain of calls that led to it.
	AccessedBy history.Trace
}

// Error renders the violation on one line: the access, the cause of invalidity, the calls the
// access went through and where the invalidation happened.
func (e *AccessToInvalidAddress) Error() string {
	var b strings.Builder
	b.WriteString("invalid access: ")
	b.WriteString(e.AccessedBy.Innermost().Action)
	b.WriteString(" of a value that ")
	b.WriteString(e.InvalidatedBy.Cause.String())

	if callees := e.Callees(); len(callees) > 0 {
		b.WriteString(", via call to `")
		b.WriteString(strings.Join(callees, "` -> `"))
		b.WriteString("`")
	}

	if loc := e.InvalidatedBy.Trace.Innermost().Location; loc.IsValid() {
		b.WriteString(" (invalidated at ")
		b.WriteString(tokenhelper.PositionString(loc))
		b.WriteString(")")
	}
	return b.String()
}

// Callees returns the procedures the access went through, outermost first.
func (e *AccessToInvalidAddress) Callees() []string {
	var callees []string
	for _, f := range e.AccessedBy.Frames() {
		if f.InCall != nil {
			callees = append(callees, f.Callee)
		}
	}
	return callees
}
