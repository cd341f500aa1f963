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

package engine

import (
	"errors"
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"strconv"

	"go.uber.org/biabduct/diagnostic"
	"go.uber.org/biabduct/domain/abductive"
	"go.uber.org/biabduct/domain/attribute"
	"go.uber.org/biabduct/domain/base"
	"go.uber.org/biabduct/domain/history"
	"go.uber.org/biabduct/domain/vars"
	"golang.org/x/tools/go/ssa"
)

// value evaluates an SSA operand. Parameters and free variables are formals, read through their
// slot; a global is the slot of the global itself; registers are bound on the stack.
func (f *frame) value(d abductive.Domain, v ssa.Value) (abductive.Domain, base.AddrHist) {
	switch v := v.(type) {
	case *ssa.Parameter:
		for i, p := range f.fn.Params {
			if p == v {
				return f.formal(d, i, v.Name())
			}
		}
	case *ssa.FreeVar:
		for i, fv := range f.fn.FreeVars {
			if fv == v {
				return f.formal(d, len(f.fn.Params)+i, v.Name())
			}
		}
	case *ssa.Global:
		return d.Eval(f.gen, vars.GlobalVar(v.Pkg.Pkg.Path()+"."+v.Name()))
	case *ssa.Const:
		val := base.AddrHist{Addr: f.gen.Fresh()}
		if v.IsNil() && isNilable(v.Type()) {
			d = d.Invalidate(val.Addr, attribute.Cause{Kind: attribute.ConstantNull},
				history.Immediate("nil", f.position(), nil))
		}
		return d, val
	case *ssa.Function:
		val := base.AddrHist{Addr: f.gen.Fresh()}
		return d.AddAttribute(val.Addr, attribute.Closure{Proc: f.closureName(v)}), val
	case *ssa.Builtin:
		return d, base.AddrHist{Addr: f.gen.Fresh()}
	}
	return d.Eval(f.gen, vars.RegisterVar(v.Name()))
}

func (f *frame) formal(d abductive.Domain, i int, name string) (abductive.Domain, base.AddrHist) {
	d, slot := d.Eval(f.gen, vars.FormalVar(i))
	d, val := d.EvalEdge(f.gen, slot.Addr, base.Deref())
	if len(val.Hist) == 0 {
		val.Hist = val.Hist.Append(history.Event{
			Kind:     history.FormalDeclared,
			Location: f.fset.Position(f.fn.Pos()),
			Name:     name,
		})
	}
	return d, val
}

func (f *frame) closureName(fn *ssa.Function) string {
	name := fn.String()
	f.closures[name] = fn
	return name
}

func (f *frame) bind(d abductive.Domain, v ssa.Value, val base.AddrHist) abductive.Domain {
	return d.SetVar(vars.RegisterVar(v.Name()), val)
}

func (f *frame) fresh(d abductive.Domain, v ssa.Value) abductive.Domain {
	return f.bind(d, v, base.AddrHist{Addr: f.gen.Fresh()})
}

// check is the validity gate of the executor. It reports the violation and returns false if val
// is invalid, in which case the disjunct ends.
func (f *frame) check(d abductive.Domain, action string, val base.AddrHist) (abductive.Domain, bool) {
	trace := history.Immediate(action, f.position(), val.Hist)
	d, err := d.CheckValid(trace, val.Addr)
	if err == nil {
		return d, true
	}
	var invErr *base.InvalidAddressError
	if !errors.As(err, &invErr) {
		panic(fmt.Sprintf("validity check in %s: %v", f.fn, err))
	}
	f.report(f.reportPos(), &diagnostic.AccessToInvalidAddress{InvalidatedBy: invErr.Invalid, AccessedBy: trace})
	return d, false
}

// exec executes one non-control instruction and returns the resulting disjuncts.
func (f *frame) exec(instr ssa.Instruction, d abductive.Domain) []abductive.Domain {
	loc := f.position()

	switch instr := instr.(type) {
	case *ssa.Alloc:
		name := instr.Comment
		if name == "" {
			name = instr.Name()
		}
		val := base.AddrHist{
			Addr: f.gen.Fresh(),
			Hist: history.History{}.Append(history.Event{Kind: history.VariableDeclaration, Location: loc, Name: name}),
		}
		if instr.Heap {
			d = d.Allocate(val.Addr, "new", history.Immediate("allocation", loc, val.Hist))
		} else {
			d = d.AddAttribute(val.Addr, attribute.AddressOfStackVariable{
				Var:      vars.LocalVar(name),
				Location: loc,
				History:  val.Hist,
			})
		}
		return one(f.bind(d, instr, val))

	case *ssa.Store:
		d, ptr := f.value(d, instr.Addr)
		d, ok := f.check(d, "write", ptr)
		if !ok {
			return nil
		}
		d, val := f.value(d, instr.Val)
		val.Hist = val.Hist.Append(history.Event{Kind: history.Assignment, Location: loc})
		return one(d.Write(ptr.Addr, base.Deref(), val, history.Immediate("write", loc, ptr.Hist)))

	case *ssa.UnOp:
		if instr.Op != token.MUL {
			return one(f.fresh(d, instr))
		}
		d, ptr := f.value(d, instr.X)
		d, ok := f.check(d, "dereference", ptr)
		if !ok {
			return nil
		}
		d, val := d.EvalEdge(f.gen, ptr.Addr, base.Deref())
		return one(f.bind(d, instr, val))

	case *ssa.FieldAddr:
		d, ptr := f.value(d, instr.X)
		name := fieldName(instr.X.Type(), instr.Field)
		d, ok := f.check(d, "access to field `"+name+"`", ptr)
		if !ok {
			return nil
		}
		d, val := d.EvalEdge(f.gen, ptr.Addr, base.Field(name))
		return one(f.bind(d, instr, val))

	case *ssa.Field:
		d, x := f.value(d, instr.X)
		d, val := d.EvalEdge(f.gen, x.Addr, base.Field(fieldName(instr.X.Type(), instr.Field)))
		return one(f.bind(d, instr, val))

	case *ssa.IndexAddr:
		d, x := f.value(d, instr.X)
		// Indexing a nil slice is a bounds error, not an invalid access.
		if _, ok := instr.X.Type().Underlying().(*types.Pointer); ok {
			if d, ok = f.check(d, "indexing", x); !ok {
				return nil
			}
		}
		return one(f.index(d, instr, x, instr.Index))

	case *ssa.Index:
		d, x := f.value(d, instr.X)
		return one(f.index(d, instr, x, instr.Index))

	case *ssa.Lookup:
		return one(f.fresh(d, instr))

	case *ssa.MakeClosure:
		fn := instr.Fn.(*ssa.Function)
		c := base.AddrHist{Addr: f.gen.Fresh()}
		d = d.AddAttribute(c.Addr, attribute.Closure{Proc: f.closureName(fn)})
		for i, b := range instr.Bindings {
			var val base.AddrHist
			d, val = f.value(d, b)
			val.Hist = val.Hist.Append(history.Event{Kind: history.Capture, Location: loc, Name: fn.FreeVars[i].Name()})
			d.Post.Heap = d.Post.Heap.AddEdge(c.Addr, base.Field(fn.FreeVars[i].Name()), val)
		}
		return one(f.bind(d, instr, c))

	case *ssa.MakeSlice, *ssa.MakeMap, *ssa.MakeChan:
		v := instr.(ssa.Value)
		val := base.AddrHist{Addr: f.gen.Fresh()}
		d = d.Allocate(val.Addr, "make", history.Immediate("allocation", loc, nil))
		return one(f.bind(d, v, val))

	case *ssa.ChangeType:
		return one(f.passthrough(d, instr, instr.X))
	case *ssa.Convert:
		return one(f.passthrough(d, instr, instr.X))
	case *ssa.ChangeInterface:
		return one(f.passthrough(d, instr, instr.X))
	case *ssa.MakeInterface:
		return one(f.passthrough(d, instr, instr.X))
	case *ssa.SliceToArrayPointer:
		return one(f.passthrough(d, instr, instr.X))
	case *ssa.Slice:
		return one(f.passthrough(d, instr, instr.X))
	case *ssa.MultiConvert:
		return one(f.passthrough(d, instr, instr.X))

	case *ssa.TypeAssert:
		if !instr.CommaOk {
			return one(f.passthrough(d, instr, instr.X))
		}
		d, x := f.value(d, instr.X)
		tuple := base.AddrHist{Addr: f.gen.Fresh()}
		d.Post.Heap = d.Post.Heap.AddEdge(tuple.Addr, base.Field("0"), x)
		return one(f.bind(d, instr, tuple))

	case *ssa.Extract:
		d, tuple := f.value(d, instr.Tuple)
		d, val := d.EvalEdge(f.gen, tuple.Addr, base.Field(strconv.Itoa(instr.Index)))
		return one(f.bind(d, instr, val))

	case *ssa.Call:
		return f.call(d, instr)

	case ssa.Value:
		return one(f.fresh(d, instr))
	}

	// Instructions without a result and without effects on the heap shape: stores to maps, sends,
	// deferred and concurrent calls, debug references.
	return one(d)
}

func (f *frame) passthrough(d abductive.Domain, v ssa.Value, x ssa.Value) abductive.Domain {
	d, val := f.value(d, x)
	return f.bind(d, v, val)
}

// index reads an element: a constant index is an edge of the container, any other index yields an
// unconstrained value.
func (f *frame) index(d abductive.Domain, v ssa.Value, x base.AddrHist, idx ssa.Value) abductive.Domain {
	c, ok := idx.(*ssa.Const)
	if !ok || c.Value == nil || c.Value.Kind() != constant.Int {
		return f.fresh(d, v)
	}
	d, val := d.EvalEdge(f.gen, x.Addr, base.Index(c.Value.ExactString()))
	return f.bind(d, v, val)
}

func one(d abductive.Domain) []abductive.Domain {
	return []abductive.Domain{d}
}

// isNilable reports whether dereferencing or calling a nil value of type t panics.
func isNilable(t types.Type) bool {
	switch u := t.Underlying().(type) {
	case *types.Pointer, *types.Signature:
		return true
	case *types.Basic:
		return u.Kind() == types.UnsafePointer
	}
	return false
}

// fieldName returns the name of the i-th field of the struct t, or of the struct t points to.
func fieldName(t types.Type, i int) string {
	if p, ok := t.Underlying().(*types.Pointer); ok {
		t = p.Elem()
	}
	if s, ok := t.Underlying().(*types.Struct); ok && i < s.NumFields() {
		return s.Field(i).Name()
	}
	return "#" + strconv.Itoa(i)
}
