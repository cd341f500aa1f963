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
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// _analyzerName is the key of the analyzer's diagnostics in the JSON output of the binary.
const _analyzerName = "biabduct"

// StandaloneDriver builds cmd/biabduct from the repository at Root and runs it on the project.
type StandaloneDriver struct {
	Root string
}

// Run implements Driver.
func (d *StandaloneDriver) Run(dir string) (map[Position]string, error) {
	bin := filepath.Join(d.Root, "bin", "biabduct")
	build := exec.Command("go", "build", "-o", bin, "./cmd/biabduct")
	build.Dir = d.Root
	if out, err := build.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("build biabduct: %w\n%s", err, out)
	}

	// Run the binary on the integration test project, with redirects to an internal buffer.
	cmd := exec.Command(bin, "-json", "-pretty-print=false", "-include-pkgs=example.com/integration", "./...")
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout, cmd.Stderr = &buf, &buf
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run biabduct: %w\n%s", err, buf.String())
	}
	return parseStandaloneOutput(buf.Bytes())
}

func parseStandaloneOutput(output []byte) (map[Position]string, error) {
	type diagnostic struct {
		Posn    string `json:"posn"`
		Message string `json:"message"`
	}
	// package ID -> analyzer name -> diagnostics.
	var result map[string]map[string][]diagnostic
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("decode biabduct output: %w", err)
	}

	collected := make(map[Position]string)
	for _, m := range result {
		diagnostics, ok := m[_analyzerName]
		if !ok {
			continue
		}
		for _, d := range diagnostics {
			pos, err := parsePosn(d.Posn)
			if err != nil {
				return nil, err
			}
			if current, ok := collected[pos]; ok {
				return nil, fmt.Errorf("multiple diagnostics on the same line not supported, current: %q, got: %q", current, d.Message)
			}
			collected[pos] = d.Message
		}
	}
	return collected, nil
}

// parsePosn parses a "file:line:column" position.
func parsePosn(posn string) (Position, error) {
	parts := strings.Split(posn, ":")
	if len(parts) < 3 {
		return Position{}, fmt.Errorf("expect file:line:column position, got %q", posn)
	}
	// The file name itself may contain colons, e.g. a Windows volume name.
	line, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return Position{}, fmt.Errorf("convert line of %q: %w", posn, err)
	}
	return Position{Filename: strings.Join(parts[:len(parts)-2], ":"), Line: line}, nil
}
