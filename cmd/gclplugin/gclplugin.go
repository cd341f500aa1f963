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

// Package gclplugin implements the golangci-lint's module plugin interface for the analyzer to be
// used as a private linter in golangci-lint. See more details at
// https://golangci-lint.run/plugins/module-plugins/.
package gclplugin

import (
	"fmt"

	"github.com/golangci/plugin-module-register/register"
	"go.uber.org/biabduct"
	"go.uber.org/biabduct/config"
	"golang.org/x/tools/go/analysis"
)

func init() {
	register.Plugin(config.LinterName, New)
}

// New returns the golangci-lint plugin that wraps the analyzer. Settings mirror the command line
// flags; scalar YAML values are accepted as well as strings.
func New(settings any) (register.LinterPlugin, error) {
	if settings == nil {
		return &Plugin{}, nil
	}
	s, ok := settings.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expect %s's configurations to be a map from string to "+
			"string (similar to command line flags), got %T", config.LinterName, settings)
	}
	conf := make(map[string]string, len(s))
	for k, v := range s {
		switch v := v.(type) {
		case string:
			conf[k] = v
		case bool, int, int64, uint64, float64:
			conf[k] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("expect %s's configuration values for %q to be strings, got %T", config.LinterName, k, v)
		}
	}

	return &Plugin{conf: conf}, nil
}

// Plugin is the plugin wrapper for golangci-lint.
type Plugin struct {
	conf map[string]string
}

// BuildAnalyzers builds the analyzer with the configurations applied to the config analyzer.
func (p *Plugin) BuildAnalyzers() ([]*analysis.Analyzer, error) {
	for k, v := range p.conf {
		if err := config.Analyzer.Flags.Set(k, v); err != nil {
			return nil, fmt.Errorf("set config flag %s with %s: %w", k, v, err)
		}
	}

	return []*analysis.Analyzer{biabduct.Analyzer}, nil
}

// GetLoadMode returns the load mode of the plugin. The SSA builder only needs type information.
func (p *Plugin) GetLoadMode() string { return register.LoadModeTypesInfo }
