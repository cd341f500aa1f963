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

package accumulation

import (
	"cmp"
	"slices"

	"github.com/twmb/algoimpl/go/graph"
	"golang.org/x/tools/go/ssa"
)

// callGraph is the static call graph of the local functions of a package. Taking a function value
// or creating a closure counts as a call, since the value may be called later.
type callGraph struct {
	graph   *graph.Graph
	nodes   map[*ssa.Function]graph.Node
	callees map[*ssa.Function][]*ssa.Function
}

// component is a strongly connected component of the call graph, its functions in source order.
type component struct {
	funcs     []*ssa.Function
	recursive bool
}

func newCallGraph(funcs []*ssa.Function) *callGraph {
	cg := &callGraph{
		graph:   graph.New(graph.Directed),
		nodes:   make(map[*ssa.Function]graph.Node, len(funcs)),
		callees: make(map[*ssa.Function][]*ssa.Function),
	}
	for _, fn := range funcs {
		n := cg.graph.MakeNode()
		*n.Value = fn
		cg.nodes[fn] = n
	}

	for _, fn := range funcs {
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				for _, op := range instr.Operands(nil) {
					if op == nil {
						continue
					}
					if callee, ok := (*op).(*ssa.Function); ok {
						cg.addEdge(fn, callee)
					}
				}
			}
		}
	}
	return cg
}

func (cg *callGraph) addEdge(caller, callee *ssa.Function) {
	to, ok := cg.nodes[callee]
	if !ok || slices.Contains(cg.callees[caller], callee) {
		return
	}
	if err := cg.graph.MakeEdge(cg.nodes[caller], to); err != nil {
		// Both nodes belong to the graph, so this cannot happen.
		panic(err)
	}
	cg.callees[caller] = append(cg.callees[caller], callee)
}

// bottomUp returns the strongly connected components of the graph, every component after the
// components it calls.
func (cg *callGraph) bottomUp() []component {
	var comps []component
	index := make(map[*ssa.Function]int)
	for _, nodes := range cg.graph.StronglyConnectedComponents() {
		c := component{}
		for _, n := range nodes {
			c.funcs = append(c.funcs, (*n.Value).(*ssa.Function))
		}
		slices.SortFunc(c.funcs, func(a, b *ssa.Function) int { return cmp.Compare(a.Pos(), b.Pos()) })
		comps = append(comps, c)
	}
	slices.SortFunc(comps, func(a, b component) int { return cmp.Compare(a.funcs[0].Pos(), b.funcs[0].Pos()) })

	for i, c := range comps {
		for _, fn := range c.funcs {
			index[fn] = i
		}
	}
	for i, c := range comps {
		for _, fn := range c.funcs {
			if slices.ContainsFunc(cg.callees[fn], func(callee *ssa.Function) bool { return index[callee] == i }) {
				comps[i].recursive = true
			}
		}
	}

	order := make([]component, 0, len(comps))
	done := make([]bool, len(comps))
	var visit func(i int)
	visit = func(i int) {
		if done[i] {
			return
		}
		done[i] = true
		for _, fn := range comps[i].funcs {
			for _, callee := range cg.callees[fn] {
				visit(index[callee])
			}
		}
		order = append(order, comps[i])
	}
	for i := range comps {
		visit(i)
	}
	return order
}
