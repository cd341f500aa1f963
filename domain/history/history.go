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

// Package history hosts value histories and traces. A history is an append-only record of the
// operations that produced a value; a trace explains where an action (an access, an invalidation,
// an allocation) happened, possibly deep inside a chain of calls. Both are carried along the
// abstract state purely for diagnostics: no equality or ordering in the domain ever looks at them.
package history

import (
	"fmt"
	"go/token"
	"strings"

	"go.uber.org/biabduct/util/tokenhelper"
)

// EventKind enumerates the operations recorded in a history.
type EventKind uint8

const (
	// Assignment records that the value was assigned (stored) at a location.
	Assignment EventKind = iota
	// Call records that the value was returned by, or passed through, a call.
	Call
	// VariableDeclaration records that the value is the initial value of a declared variable.
	VariableDeclaration
	// FormalDeclared records that the value flowed in through a formal parameter.
	FormalDeclared
	// Capture records that the value was captured by a closure.
	Capture
)

var _eventKindNames = [...]string{
	Assignment:          "assigned",
	Call:                "returned from call to",
	VariableDeclaration: "variable declared",
	FormalDeclared:      "parameter declared",
	Capture:             "captured",
}

func (k EventKind) String() string {
	if int(k) < len(_eventKindNames) {
		return _eventKindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

// An Event is one step of a history.
type Event struct {
	Kind     EventKind
	Location token.Position
	// Name is the callee for Call events and the variable for declarations, empty otherwise.
	Name string
}

func (e Event) String() string {
	s := e.Kind.String()
	if e.Name != "" {
		s += " `" + e.Name + "`"
	}
	if e.Location.IsValid() {
		s += " at " + tokenhelper.PositionString(e.Location)
	}
	return s
}

// History is an append-only sequence of events, oldest first. The zero value is the empty
// history.
type History []Event

// Append returns a new history with the event added at the end. The receiver is never modified,
// and the returned history never shares its backing array with the receiver, so histories can be
// freely shared between abstract states.
func (h History) Append(e Event) History {
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, e)
}

func (h History) String() string {
	parts := make([]string, len(h))
	for i, e := range h {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, "; ") + "]"
}

// A Trace explains where an action happened. An immediate trace has InCall == nil; a trace through
// a call records the callee and the call site, and InCall describes what happened inside the
// callee (recursively).
type Trace struct {
	// Action describes what happened, e.g. "dereference" or "released by `Put`".
	Action   string
	Location token.Position
	History  History
	// Callee is the called procedure when InCall is set.
	Callee string
	InCall *Trace
}

// Immediate returns a trace for an action that happened at the given location.
func Immediate(action string, loc token.Position, hist History) Trace {
	return Trace{Action: action, Location: loc, History: hist}
}

// ViaCall returns a trace for an action that happened inside a call to the callee at the given
// call location.
func ViaCall(callee string, loc token.Position, hist History, inCall Trace) Trace {
	return Trace{
		Action:   "call to `" + callee + "`",
		Location: loc,
		History:  hist,
		Callee:   callee,
		InCall:   &inCall,
	}
}

// Innermost returns the trace of the action itself, following all calls down.
func (t Trace) Innermost() Trace {
	for t.InCall != nil {
		t = *t.InCall
	}
	return t
}

// Frames returns the chain of traces from the outermost call site to the innermost action.
func (t Trace) Frames() []Trace {
	var frames []Trace
	for cur := &t; cur != nil; cur = cur.InCall {
		frames = append(frames, *cur)
	}
	return frames
}

// String renders the trace on one line, outermost call first.
func (t Trace) String() string {
	frames := t.Frames()
	parts := make([]string, len(frames))
	for i, f := range frames {
		parts[i] = f.Action
		if f.Location.IsValid() {
			parts[i] += " at " + tokenhelper.PositionString(f.Location)
		}
	}
	return strings.Join(parts, " -> ")
}
