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
	"bytes"
	"encoding/gob"
	"errors"
	"go/token"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/biabduct/domain/addr"
	"go.uber.org/biabduct/domain/attribute"
	"go.uber.org/biabduct/domain/history"
	"go.uber.org/biabduct/domain/vars"
	"go.uber.org/goleak"
)

func TestEvalCreatesFreshAddressesOnce(t *testing.T) {
	t.Parallel()

	gen := addr.NewGenerator()
	var s State
	var x, y, x2 AddrHist
	s.Stack, x = s.Stack.Eval(gen, vars.LocalVar("x"))
	s.Stack, y = s.Stack.Eval(gen, vars.LocalVar("y"))
	s.Stack, x2 = s.Stack.Eval(gen, vars.LocalVar("x"))
	require.NotEqual(t, x.Addr, y.Addr)
	require.Equal(t, x.Addr, x2.Addr)

	var f1, f2, d AddrHist
	s.Heap, f1 = s.Heap.EvalEdge(gen, x.Addr, Field("f"))
	s.Heap, f2 = s.Heap.EvalEdge(gen, x.Addr, Field("f"))
	s.Heap, d = s.Heap.EvalEdge(gen, x.Addr, Deref())
	require.Equal(t, f1.Addr, f2.Addr)
	require.NotEqual(t, f1.Addr, d.Addr)
	require.NotEqual(t, x.Addr, d.Addr)
	require.NotEqual(t, y.Addr, f1.Addr)
}

func TestPersistence(t *testing.T) {
	t.Parallel()

	var h Heap
	h1 := h.AddEdge(1, Deref(), AddrHist{Addr: 2})
	h2 := h1.AddEdge(1, Field("f"), AddrHist{Addr: 3})
	h3 := h2.RemoveEdge(1, Deref())

	require.Zero(t, h.Len())
	c1, _ := h1.Find(1)
	c2, _ := h2.Find(1)
	c3, _ := h3.Find(1)
	require.Equal(t, 1, c1.Edges.Len())
	require.Equal(t, 2, c2.Edges.Len())
	require.Equal(t, 1, c3.Edges.Len())
	_, ok := c3.Edges.Get(Deref())
	require.False(t, ok)
}

func TestAddAttributeIsIdempotent(t *testing.T) {
	t.Parallel()

	attr := attribute.WrittenTo{Trace: history.Immediate("write", testPos(1), nil)}
	var h Heap
	once := h.AddAttribute(1, attr)
	twice := once.AddAttribute(1, attr)
	require.Empty(t, cmp.Diff(State{Heap: once}.Flatten(), State{Heap: twice}.Flatten()))
}

func TestCheckValid(t *testing.T) {
	t.Parallel()

	inv := attribute.Invalid{Cause: attribute.Cause{Kind: attribute.CFree}, Trace: history.Immediate("free", testPos(4), nil)}
	h := Heap{}.Register(1).AddAttribute(2, inv).AddAttribute(3, attribute.MustBeValid{})

	require.NoError(t, h.CheckValid(1))
	require.NoError(t, h.CheckValid(3))
	require.NoError(t, h.CheckValid(42), "unconstrained addresses are valid")

	err := h.CheckValid(2)
	var invErr *InvalidAddressError
	require.True(t, errors.As(err, &invErr))
	require.Equal(t, addr.Address(2), invErr.Addr)
	require.Equal(t, inv, invErr.Invalid)
}

func TestReachabilityAndRestrict(t *testing.T) {
	t.Parallel()

	s := State{
		Stack: Stack{}.Add(vars.FormalVar(0), AddrHist{Addr: 1}),
		Heap: Heap{}.
			AddEdge(1, Deref(), AddrHist{Addr: 2}).
			AddEdge(2, Field("next"), AddrHist{Addr: 1}).
			AddEdge(2, Field("val"), AddrHist{Addr: 3}).
			AddEdge(4, Deref(), AddrHist{Addr: 2}).
			AddAttribute(5, attribute.WrittenTo{}),
	}
	reach := s.Reachable()
	require.Equal(t, map[addr.Address]bool{1: true, 2: true, 3: true}, reach)

	gc := s.Restrict(reach)
	require.Equal(t, 2, gc.Heap.Len())
	require.False(t, gc.Heap.IsRegistered(4))
	require.False(t, gc.Heap.IsRegistered(5))

	// Every reachability query from the roots answers the same after collection.
	require.Equal(t, reach, gc.Reachable())
	for _, a := range []addr.Address{1, 2} {
		before, _ := s.Heap.Find(a)
		after, _ := gc.Heap.Find(a)
		require.Equal(t, before, after)
	}
}

func TestFlatRoundTrip(t *testing.T) {
	t.Parallel()

	s := sampleState()
	require.Empty(t, cmp.Diff(s.Flatten(), s.Flatten().State().Flatten()))

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(s))
	var decoded State
	require.NoError(t, gob.NewDecoder(&buf).Decode(&decoded))
	require.Empty(t, cmp.Diff(s.Flatten(), decoded.Flatten()))
}

func TestString(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"stack: #arg0=v1 #ret=v4\n"+
			"heap:\n"+
			"  v1: {* -> v2}\n"+
			"  v2: {.f -> v3, [0] -> v3} {MustBeValid(dereference)}\n"+
			"  v3: {} {Invalid(was freed by `free`)}",
		sampleState().String())
}

func TestStackFilter(t *testing.T) {
	t.Parallel()

	s := Stack{}.
		Add(vars.FormalVar(0), AddrHist{Addr: 1}).
		Add(vars.RegisterVar("t0"), AddrHist{Addr: 2}).
		Add(vars.ReturnVar(), AddrHist{Addr: 3})
	kept := s.Filter(func(v vars.Var) bool { return v.IsAbducible() || v.IsReturn() })
	require.Equal(t, 2, kept.Len())
	_, ok := kept.Find(vars.RegisterVar("t0"))
	require.False(t, ok)
	require.Equal(t, 3, s.Len())
}

func sampleState() State {
	free := attribute.Invalid{Cause: attribute.Cause{Kind: attribute.CFree}, Trace: history.Immediate("free", testPos(2), nil)}
	deref := attribute.MustBeValid{Trace: history.Immediate("dereference", testPos(3), nil)}
	return State{
		Stack: Stack{}.
			Add(vars.FormalVar(0), AddrHist{Addr: 1, Hist: history.History{{Kind: history.FormalDeclared, Name: "p"}}}).
			Add(vars.ReturnVar(), AddrHist{Addr: 4}),
		Heap: Heap{}.
			AddEdge(1, Deref(), AddrHist{Addr: 2}).
			AddEdge(2, Field("f"), AddrHist{Addr: 3}).
			AddEdge(2, Index("0"), AddrHist{Addr: 3}).
			AddAttribute(2, deref).
			AddAttribute(3, free),
	}
}

func testPos(line int) token.Position {
	return token.Position{Filename: "a.go", Line: line, Column: 1}
}

func TestMain(m *testing.M) {
	attribute.GobRegister()
	goleak.VerifyTestMain(m)
}
