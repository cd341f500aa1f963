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

package attribute

import (
	"bytes"
	"encoding/gob"
	"go/token"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/biabduct/domain/history"
	"go.uber.org/biabduct/domain/vars"
	"go.uber.org/goleak"
)

func trace(action string, line int) history.Trace {
	return history.Immediate(action, token.Position{Filename: "a.go", Line: line, Column: 1}, nil)
}

func TestAddIsIdempotent(t *testing.T) {
	t.Parallel()

	first := Invalid{Cause: Cause{Kind: CFree}, Trace: trace("free", 1)}
	second := Invalid{Cause: Cause{Kind: ConstantNull}, Trace: trace("nil", 2)}

	s := SetOf(first)
	require.Equal(t, 1, s.Len())
	s2 := s.Add(second)
	require.Equal(t, 1, s2.Len())
	got, ok := s2.Invalid()
	require.True(t, ok)
	require.Equal(t, first, got)

	s3 := s.Add(first)
	require.True(t, s3.Equal(s))
}

func TestEqualIgnoresTraces(t *testing.T) {
	t.Parallel()

	a := MustBeValid{Trace: trace("dereference", 1)}
	b := MustBeValid{Trace: trace("field access", 9)}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(WrittenTo{}))

	i1 := Invalid{Cause: Cause{Kind: PoolPut, Name: "Put"}, Trace: trace("put", 1)}
	i2 := Invalid{Cause: Cause{Kind: PoolPut, Name: "Put"}, Trace: trace("put", 5)}
	i3 := Invalid{Cause: Cause{Kind: CFree}, Trace: trace("put", 5)}
	require.True(t, i1.Equal(i2))
	require.False(t, i1.Equal(i3))

	sv := AddressOfStackVariable{Var: vars.LocalVar("x")}
	require.True(t, sv.Equal(AddressOfStackVariable{Var: vars.LocalVar("x"), Location: token.Position{Line: 3}}))
	require.False(t, sv.Equal(AddressOfStackVariable{Var: vars.LocalVar("y")}))
}

func TestSetOperations(t *testing.T) {
	t.Parallel()

	var empty Set
	require.True(t, empty.IsEmpty())
	require.Empty(t, empty.All())
	require.Equal(t, "{}", empty.String())
	require.True(t, empty.Remove(KindInvalid).IsEmpty())

	s := SetOf(WrittenTo{}, MustBeValid{}, Closure{Proc: "f"})
	require.Equal(t, []Kind{KindClosure, KindMustBeValid, KindWrittenTo}, kinds(s.All()))

	c, ok := s.Closure()
	require.True(t, ok)
	require.Equal(t, "f", c.Proc)

	removed := s.Remove(KindMustBeValid)
	require.False(t, removed.Has(KindMustBeValid))
	require.True(t, s.Has(KindMustBeValid), "removal must not modify the receiver")

	u := removed.Union(SetOf(Allocated{Allocator: "new"}, Closure{Proc: "g"}))
	require.Equal(t, []Kind{KindAllocated, KindClosure, KindWrittenTo}, kinds(u.All()))
	c, _ = u.Closure()
	require.Equal(t, "f", c.Proc)

	require.True(t, u.Contains(removed))
	require.False(t, removed.Contains(u))
}

func TestGobRoundTrip(t *testing.T) {
	t.Parallel()

	in := []Attribute{
		Invalid{Cause: Cause{Kind: Released, Name: "Close"}, Trace: history.ViaCall("f", token.Position{Line: 2}, nil, trace("release", 7))},
		MustBeValid{Trace: trace("dereference", 3)},
		Allocated{Allocator: "new"},
	}
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(in))
	var out []Attribute
	require.NoError(t, gob.NewDecoder(&buf).Decode(&out))
	require.Equal(t, in, out)
}

func kinds(attrs []Attribute) []Kind {
	out := make([]Kind, len(attrs))
	for i, a := range attrs {
		out[i] = a.Kind()
	}
	return out
}

func TestMain(m *testing.M) {
	GobRegister()
	goleak.VerifyTestMain(m)
}
