/*
 * Copyright (C) 2021 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package config

import (
	"fmt"
	"strings"

	"github.com/omd-tools/check-predicted/pkg/api"
	"github.com/omd-tools/check-predicted/pkg/rrdquery"
)

type GenericMap map[string]interface{}

// Options holds the raw command line values.
type Options struct {
	Host           string
	PerfdataDir    string
	Service        string
	Metrics        string
	Definitions    string
	Warn           float64
	Crit           float64
	Timeout        int
	SampleTime     string
	SampleCount    int
	SampleInterval int
	SampleWindow   int
	Start          string
	Engine         string
	GraphWidth     int
	GraphStep      int
	GraphFile      string
	Verbose        bool
	WarnIf         string
	CritIf         string
}

// Metric is one tracked metric with its effective consolidation and
// thresholds.
type Metric struct {
	Name          string
	Consolidation api.Consolidation
	Warn          float64
	Crit          float64
}

// Config is the resolved check configuration.
type Config struct {
	Host        string
	Service     string
	PerfdataDir string
	Engine      string
	Metrics     []Metric
	Sampling    api.Sampling
	GraphWidth  int
	GraphStep   int
	GraphFile   string
	Verbose     bool
	WarnIf      string
	CritIf      string
}

// CollectDetail reports whether the probe should also fetch the measured,
// predicted and sigma values: either to display them, or because an
// override condition wants to reference them.
func (c *Config) CollectDetail() bool {
	return c.Verbose || c.WarnIf != "" || c.CritIf != ""
}

// ParseConfig resolves the command line values and the optional
// definitions file into the effective check configuration. Resolution
// order per metric field: the metric entry, then the definition defaults,
// then the command line.
func ParseConfig(opts *Options) (Config, error) {
	if opts.Host == "" {
		return Config{}, fmt.Errorf("a host is required")
	}
	if opts.Service == "" {
		return Config{}, fmt.Errorf("a service name is required")
	}

	cfg := Config{
		Host:        opts.Host,
		Service:     opts.Service,
		PerfdataDir: opts.PerfdataDir,
		Engine:      opts.Engine,
		Sampling: api.Sampling{
			Time:     opts.SampleTime,
			Start:    opts.Start,
			Count:    opts.SampleCount,
			Interval: opts.SampleInterval,
			Window:   opts.SampleWindow,
		},
		GraphWidth: opts.GraphWidth,
		GraphStep:  opts.GraphStep,
		GraphFile:  opts.GraphFile,
		Verbose:    opts.Verbose,
		WarnIf:     opts.WarnIf,
		CritIf:     opts.CritIf,
	}
	if cfg.Sampling.Count == 0 || cfg.Sampling.Interval <= 0 || cfg.Sampling.Window <= 0 {
		return Config{}, fmt.Errorf("sampling wants a nonzero count and positive interval and window")
	}

	defs := api.Definitions{}
	if opts.Definitions != "" {
		var err error
		if defs, err = LoadDefinitions(opts.Definitions); err != nil {
			return Config{}, err
		}
		applySampling(&cfg.Sampling, defs.Sampling)
	}
	if len(defs.Metrics) == 0 {
		for _, name := range strings.Split(opts.Metrics, ",") {
			if name = strings.TrimSpace(name); name != "" {
				defs.Metrics = append(defs.Metrics, api.TrackedMetric{Name: name})
			}
		}
	}
	if len(defs.Metrics) == 0 {
		return Config{}, fmt.Errorf("no metrics to track")
	}

	seen := map[string]bool{}
	for _, m := range defs.Metrics {
		if m.Name == "" {
			return Config{}, fmt.Errorf("a tracked metric needs a name")
		}
		if seen[m.Name] {
			return Config{}, fmt.Errorf("metric %q is tracked twice", m.Name)
		}
		seen[m.Name] = true

		resolved := Metric{
			Name:          m.Name,
			Consolidation: pickConsolidation(m.Consolidation, defs.Defaults.Consolidation, api.ConsolidationAvg),
			Warn:          pickFloat(m.Warn, defs.Defaults.Warn, opts.Warn),
			Crit:          pickFloat(m.Crit, defs.Defaults.Crit, opts.Crit),
		}
		if _, err := rrdquery.EngineCF(resolved.Consolidation); err != nil {
			return Config{}, fmt.Errorf("metric %s: %w", m.Name, err)
		}
		cfg.Metrics = append(cfg.Metrics, resolved)
	}
	return cfg, nil
}

func pickConsolidation(values ...api.Consolidation) api.Consolidation {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func pickFloat(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func applySampling(dst *api.Sampling, src api.Sampling) {
	if src.Time != "" {
		dst.Time = src.Time
	}
	if src.Start != "" {
		dst.Start = src.Start
	}
	if src.Count != 0 {
		dst.Count = src.Count
	}
	if src.Interval != 0 {
		dst.Interval = src.Interval
	}
	if src.Window != 0 {
		dst.Window = src.Window
	}
}
