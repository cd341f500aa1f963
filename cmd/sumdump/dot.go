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

package main

import (
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/biabduct/domain/attribute"
	"go.uber.org/biabduct/domain/base"
	"go.uber.org/biabduct/domain/prepost"
)

const tmplGraph = `digraph Summaries {
	label={{printf "%q" .Title}};
	labeljust="l";
	fontname="Arial";
	rankdir="LR";

	node [shape="ellipse" style="filled" fillcolor="honeydew" fontname="Verdana"];
	{{range .Clusters}}
	subgraph {{printf "%q" .ID}} {
		label={{printf "%q" .Label}};
		{{- range .Nodes}}
		{{printf "%q" .ID}} [ {{.Attrs}} ];
		{{- end}}
		{{- range .Edges}}
		{{printf "%q -> %q" .From .To}} [ label={{printf "%q" .Label}} ];
		{{- end}}
	}
	{{end}}
}
`

var _graphTemplate = template.Must(template.New("graph").Parse(tmplGraph))

type dotGraph struct {
	Title    string
	Clusters []*dotCluster
}

type dotCluster struct {
	ID    string
	Label string
	Nodes []dotNode
	Edges []dotEdge
}

type dotNode struct {
	ID    string
	Attrs string
}

type dotEdge struct {
	From, To, Label string
}

// renderDot renders the summaries of fn as a DOT graph with one cluster per pre and post state.
// Variables are boxes; addresses are ellipses labeled with their attributes, and red when invalid.
func renderDot(fn string, sums []prepost.Summary) (string, error) {
	g := dotGraph{Title: fn}
	for i, sum := range sums {
		g.Clusters = append(g.Clusters,
			stateCluster(fmt.Sprintf("cluster_%d_pre", i), fmt.Sprintf("#%d pre", i), sum.Pre),
			stateCluster(fmt.Sprintf("cluster_%d_post", i), fmt.Sprintf("#%d post", i), sum.Post),
		)
	}

	var b strings.Builder
	if err := _graphTemplate.Execute(&b, g); err != nil {
		return "", fmt.Errorf("render graph of %s: %w", fn, err)
	}
	return b.String(), nil
}

func stateCluster(id, label string, s base.State) *dotCluster {
	c := &dotCluster{ID: id, Label: label}
	node := func(name string) string { return id + "/" + name }

	flat := s.Flatten()
	for _, b := range flat.Stack {
		c.Nodes = append(c.Nodes, dotNode{ID: node(b.Var.String()), Attrs: fmt.Sprintf("shape=box label=%q", b.Var.String())})
		c.Edges = append(c.Edges, dotEdge{From: node(b.Var.String()), To: node(b.Addr.String())})
	}
	for _, cell := range flat.Heap {
		lbl := cell.Addr.String()
		fill := "honeydew"
		if len(cell.Attrs) > 0 {
			lbl += "\n" + attribute.SetOf(cell.Attrs...).String()
		}
		for _, a := range cell.Attrs {
			if a.Kind() == attribute.KindInvalid {
				fill = "lightpink"
			}
		}
		c.Nodes = append(c.Nodes, dotNode{ID: node(cell.Addr.String()), Attrs: fmt.Sprintf("label=%q fillcolor=%q", lbl, fill)})
		for _, e := range cell.Edges {
			c.Edges = append(c.Edges, dotEdge{From: node(cell.Addr.String()), To: node(e.Addr.String()), Label: e.Access.String()})
		}
	}
	return c
}
