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

// sumdump inspects a summary store written by the analyzer (see the "summary-store" flag): it
// lists the functions with stored summaries, prints their summaries, and renders them as graphs.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/goccy/go-graphviz"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"go.uber.org/biabduct/config"
	"go.uber.org/biabduct/domain/prepost"
	"go.uber.org/biabduct/store"
)

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "sumdump"
	app.Usage = "inspect a summary store"
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "store, s", Usage: "path of the summary store"},
		cli.BoolFlag{Name: "debug", Usage: "enable debug output for logging"},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("debug") {
			config.EnableDebugLogging()
		}
		if c.GlobalString("store") == "" {
			return errors.New("missing --store")
		}
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:   "list",
			Usage:  "list the functions with stored summaries",
			Action: withStore(list),
		},
		{
			Name:      "show",
			Usage:     "print the summaries of a function",
			ArgsUsage: "<function>",
			Action:    withStore(show),
		},
		{
			Name:      "dot",
			Usage:     "render the summaries of a function as a graph",
			ArgsUsage: "<function>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "format, f", Value: "dot", Usage: "output format: dot, svg or png"},
				cli.StringFlag{Name: "output, o", Usage: "output file, standard output if empty"},
			},
			Action: withStore(dot),
		},
	}
	return app
}

// withStore opens the store read-only around a command.
func withStore(action func(*cli.Context, *store.Store) error) func(*cli.Context) error {
	return func(c *cli.Context) (err error) {
		path := c.GlobalString("store")
		s, err := store.OpenReadOnly(path)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, s.Close()) }()
		log.WithField("store", path).Debug("opened summary store")
		return action(c, s)
	}
}

func list(c *cli.Context, s *store.Store) error {
	keys, err := s.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(c.App.Writer, k)
	}
	return nil
}

func lookup(c *cli.Context, s *store.Store) (string, []prepost.Summary, error) {
	fn := c.Args().First()
	if fn == "" {
		return "", nil, errors.New("missing function name")
	}
	sums, err := s.Get(fn)
	return fn, sums, err
}

var _header = color.New(color.FgCyan, color.Bold)

func show(c *cli.Context, s *store.Store) error {
	fn, sums, err := lookup(c, s)
	if err != nil {
		return err
	}
	for i, sum := range sums {
		_header.Fprintf(c.App.Writer, "%s #%d\n", fn, i)
		fmt.Fprintln(c.App.Writer, sum.String())
	}
	return nil
}

func dot(c *cli.Context, s *store.Store) (err error) {
	fn, sums, err := lookup(c, s)
	if err != nil {
		return err
	}
	text, err := renderDot(fn, sums)
	if err != nil {
		return err
	}

	out := c.App.Writer
	if name := c.String("output"); name != "" {
		f, createErr := os.Create(name)
		if createErr != nil {
			return createErr
		}
		defer func() { err = errors.Join(err, f.Close()) }()
		out = f
	}

	switch format := strings.ToLower(c.String("format")); format {
	case "dot":
		_, err = io.WriteString(out, text)
		return err
	case "svg", "png":
		return renderImage(out, graphviz.Format(format), text)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func renderImage(out io.Writer, format graphviz.Format, text string) (err error) {
	g := graphviz.New()
	graph, err := graphviz.ParseBytes([]byte(text))
	if err != nil {
		return fmt.Errorf("parse graph: %w", err)
	}
	defer func() {
		err = errors.Join(err, graph.Close(), g.Close())
	}()
	return g.Render(graph, format, out)
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
