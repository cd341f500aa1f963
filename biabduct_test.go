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

package biabduct

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/biabduct/config"
	"go.uber.org/goleak"
	"golang.org/x/tools/go/analysis/analysistest"
)

// For descriptions of the purpose of each of the following tests, consult their source files
// located in testdata/src/<testname>/<testname>.go

func TestPool(t *testing.T) {
	t.Parallel()

	testdata := analysistest.TestData()
	analysistest.Run(t, testdata, Analyzer, "go.uber.org/pool")
}

func TestNilDeref(t *testing.T) {
	t.Parallel()

	testdata := analysistest.TestData()
	analysistest.Run(t, testdata, Analyzer, "go.uber.org/nilderef")
}

func TestCrossPackage(t *testing.T) {
	t.Parallel()

	testdata := analysistest.TestData()
	analysistest.Run(t, testdata, Analyzer, "go.uber.org/crosspkg")
}

func TestOutParam(t *testing.T) {
	t.Parallel()

	testdata := analysistest.TestData()
	analysistest.Run(t, testdata, Analyzer, "go.uber.org/outparam")
}

func TestNoAnalysis(t *testing.T) {
	t.Parallel()

	testdata := analysistest.TestData()
	analysistest.Run(t, testdata, Analyzer, "go.uber.org/noanalysis")
}

func TestPrettyPrint(t *testing.T) { //nolint:paralleltest
	// We specifically do not set this test to be parallel such that this test is run separately
	// from the parallel tests. This makes it possible to set the pretty-print flag to true for
	// testing and false for the other tests.
	err := config.Analyzer.Flags.Set(config.PrettyPrintFlag, "true")
	require.NoError(t, err)
	defer func() {
		err := config.Analyzer.Flags.Set(config.PrettyPrintFlag, "false")
		require.NoError(t, err)
	}()

	testdata := analysistest.TestData()
	analysistest.Run(t, testdata, Analyzer, "prettyprint_biabduct")
}

func TestPrettyPrintErrorMessage(t *testing.T) {
	t.Parallel()

	msg := prettyPrintErrorMessage("invalid access: dereference of a value that is nil, via call to `read` (invalidated at a.go:3:5)")
	require.Contains(t, msg, errorColor.Sprint("error: "))
	require.Contains(t, msg, codeColor.Sprint("`read`"))
	require.Contains(t, msg, positionColor.Sprint("a.go:3:5"))
	require.Contains(t, msg, causeColor.Sprint("is nil"))
}

func TestMain(m *testing.M) {
	flags := map[string]string{
		// Pretty print should be turned off for easier error message matching in test files.
		config.PrettyPrintFlag: "false",
		// Keep the standard library out of scope.
		config.IncludePkgsFlag: "go.uber.org/,prettyprint_biabduct",
		config.ModelsFileFlag:  "testdata/models.yaml",
	}
	for f, v := range flags {
		if err := config.Analyzer.Flags.Set(f, v); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to set config flag %s with %s: %s", f, v, err)
			os.Exit(1)
		}
	}

	goleak.VerifyTestMain(m)
}
