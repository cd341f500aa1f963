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

package abductive

import (
	"errors"
	"go/token"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/biabduct/domain/addr"
	"go.uber.org/biabduct/domain/attribute"
	"go.uber.org/biabduct/domain/base"
	"go.uber.org/biabduct/domain/history"
	"go.uber.org/biabduct/domain/vars"
	"go.uber.org/goleak"
)

var _deref = history.Immediate("dereference", token.Position{Filename: "a.go", Line: 1, Column: 1}, nil)

func TestEvalAbducesOnlyFormalsAndGlobals(t *testing.T) {
	t.Parallel()

	gen := addr.NewGenerator()
	var d Domain
	d, p := d.Eval(gen, vars.FormalVar(0))
	d, g := d.Eval(gen, vars.GlobalVar("pkg.G"))
	d, x := d.Eval(gen, vars.RegisterVar("t0"))

	for v, want := range map[vars.Var]addr.Address{vars.FormalVar(0): p.Addr, vars.GlobalVar("pkg.G"): g.Addr} {
		got, ok := d.Pre.Stack.Find(v)
		require.True(t, ok)
		require.Equal(t, want, got.Addr)
		require.True(t, d.Pre.Heap.IsRegistered(want))
	}
	_, ok := d.Pre.Stack.Find(vars.RegisterVar("t0"))
	require.False(t, ok)
	require.False(t, d.Pre.Heap.IsRegistered(x.Addr))

	// Evaluating again returns the existing binding and does not touch pre.
	again, p2 := d.Eval(gen, vars.FormalVar(0))
	require.Equal(t, p.Addr, p2.Addr)
	require.Equal(t, d.Pre.Flatten(), again.Pre.Flatten())
}

func TestEvalDoesNotRewritePre(t *testing.T) {
	t.Parallel()

	gen := addr.NewGenerator()
	var d Domain
	d, p := d.Eval(gen, vars.FormalVar(0))
	d.Post.Stack = d.Post.Stack.Remove(vars.FormalVar(0))
	d, p2 := d.Eval(gen, vars.FormalVar(0))
	require.NotEqual(t, p.Addr, p2.Addr)
	inPre, _ := d.Pre.Stack.Find(vars.FormalVar(0))
	require.Equal(t, p.Addr, inPre.Addr)
}

func TestEvalEdgePropagatesFromFootprintOnly(t *testing.T) {
	t.Parallel()

	gen := addr.NewGenerator()
	var d Domain
	d, slot := d.Eval(gen, vars.FormalVar(0))
	d, val := d.EvalEdge(gen, slot.Addr, base.Deref())
	d, fld := d.EvalEdge(gen, val.Addr, base.Field("f"))

	got, ok := d.Pre.Heap.FindEdge(val.Addr, base.Field("f"))
	require.True(t, ok)
	require.Equal(t, fld.Addr, got.Addr)
	require.True(t, d.Pre.Heap.IsRegistered(fld.Addr))

	// Addresses outside the footprint only grow post.
	d, local := d.Eval(gen, vars.RegisterVar("t1"))
	d, localFld := d.EvalEdge(gen, local.Addr, base.Deref())
	_, ok = d.Post.Heap.FindEdge(local.Addr, base.Deref())
	require.True(t, ok)
	require.False(t, d.Pre.Heap.IsRegistered(local.Addr))
	require.False(t, d.Pre.Heap.IsRegistered(localFld.Addr))

	// Repeated evaluation resolves to the same address.
	_, fld2 := d.EvalEdge(gen, val.Addr, base.Field("f"))
	require.Equal(t, fld.Addr, fld2.Addr)
}

func TestCheckValid(t *testing.T) {
	t.Parallel()

	gen := addr.NewGenerator()
	var d Domain
	d, slot := d.Eval(gen, vars.FormalVar(0))
	d, val := d.EvalEdge(gen, slot.Addr, base.Deref())

	d, err := d.CheckValid(_deref, val.Addr)
	require.NoError(t, err)
	require.True(t, d.Pre.Heap.Attrs(val.Addr).Has(attribute.KindMustBeValid))
	require.False(t, d.Post.Heap.Attrs(val.Addr).Has(attribute.KindMustBeValid))

	cause := attribute.Cause{Kind: attribute.CFree}
	freed := d.Invalidate(val.Addr, cause, _deref)
	_, err = freed.CheckValid(_deref, val.Addr)
	var invErr *base.InvalidAddressError
	require.True(t, errors.As(err, &invErr))
	require.Equal(t, cause, invErr.Invalid.Cause)

	// A valid address outside the footprint adds nothing to pre.
	d, local := d.Eval(gen, vars.RegisterVar("t0"))
	d2, err := d.CheckValid(_deref, local.Addr)
	require.NoError(t, err)
	require.Equal(t, d.Pre.Flatten(), d2.Pre.Flatten())
}

func TestDiscardUnreachableKeepsPreFootprintInPost(t *testing.T) {
	t.Parallel()

	gen := addr.NewGenerator()
	var d Domain
	d, slot := d.Eval(gen, vars.FormalVar(0))
	d, val := d.EvalEdge(gen, slot.Addr, base.Deref())
	d = d.Invalidate(val.Addr, attribute.Cause{Kind: attribute.CFree}, _deref)
	// Overwrite the formal slot so the original value is only reachable from pre.
	d = d.Write(slot.Addr, base.Deref(), base.AddrHist{Addr: gen.Fresh()}, _deref)
	// Garbage.
	d = d.AddAttribute(gen.Fresh(), attribute.WrittenTo{})

	gc := d.DiscardUnreachable()
	require.True(t, gc.Post.Heap.Attrs(val.Addr).Has(attribute.KindInvalid))
	require.Equal(t, 2, gc.Post.Heap.Len())
	require.True(t, Equivalent(d, gc))
}

func TestLeqReflexive(t *testing.T) {
	t.Parallel()

	d := sampleDomain(addr.NewGenerator())
	require.True(t, Leq(d, d))
	require.True(t, Leq(Domain{}, Domain{}))
}

func TestLeqUpToRenaming(t *testing.T) {
	t.Parallel()

	gen := addr.NewGenerator()
	a := sampleDomain(gen)
	b := sampleDomain(gen)
	require.True(t, Leq(a, b))
	require.True(t, Leq(b, a))
}

func TestLeqDetectsDifferences(t *testing.T) {
	t.Parallel()

	gen := addr.NewGenerator()
	d := sampleDomain(gen)
	slot, _ := d.Post.Stack.Find(vars.FormalVar(0))
	val, _ := d.Post.Heap.FindEdge(slot.Addr, base.Deref())

	// An extra post fact on the left is not present on the right.
	freed := d.Invalidate(val.Addr, attribute.Cause{Kind: attribute.CFree}, _deref)
	require.False(t, Leq(freed, d))
	require.True(t, Leq(d, freed))

	// A stronger precondition on the right cannot embed into a weaker one on the left.
	var weak Domain
	weak, _ = weak.Eval(gen, vars.FormalVar(0))
	require.False(t, Leq(weak, d))

	// Renaming conflicts: both formals point to the same value on one side only.
	aliased, distinct := twoFormals(gen, true), twoFormals(gen, false)
	require.False(t, Leq(aliased, distinct))
	require.False(t, Leq(distinct, aliased))
}

func sampleDomain(gen *addr.Generator) Domain {
	var d Domain
	d, slot := d.Eval(gen, vars.FormalVar(0))
	d, val := d.EvalEdge(gen, slot.Addr, base.Deref())
	d, _ = d.CheckValid(_deref, val.Addr)
	d, fld := d.EvalEdge(gen, val.Addr, base.Field("f"))
	d, ret := d.Eval(gen, vars.ReturnVar())
	return d.Write(ret.Addr, base.Deref(), fld, _deref)
}

func twoFormals(gen *addr.Generator, aliased bool) Domain {
	var d Domain
	d, s0 := d.Eval(gen, vars.FormalVar(0))
	d, s1 := d.Eval(gen, vars.FormalVar(1))
	d, v0 := d.EvalEdge(gen, s0.Addr, base.Deref())
	if aliased {
		d.Pre.Heap = d.Pre.Heap.AddEdge(s1.Addr, base.Deref(), v0)
		d.Post.Heap = d.Post.Heap.AddEdge(s1.Addr, base.Deref(), v0)
	} else {
		d, _ = d.EvalEdge(gen, s1.Addr, base.Deref())
	}
	return d
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
