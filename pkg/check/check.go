/*
 * Copyright (C) 2022 IBM, Inc.
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

// Package check grades probe results and feeds them to the monitoring
// plugin protocol.
package check

import (
	"fmt"

	"github.com/Knetic/govaluate"
	ms "github.com/mitchellh/mapstructure"
	"github.com/olorin/nagiosplugin"
	"github.com/sirupsen/logrus"

	"github.com/omd-tools/check-predicted/pkg/config"
	"github.com/omd-tools/check-predicted/pkg/predict"
)

var checkLog = logrus.WithField("component", "check.Evaluator")

// reporter is the slice of the plugin check the evaluator writes to.
type reporter interface {
	AddResult(status nagiosplugin.Status, message string)
	AddPerfDatum(label, unit string, value float64, thresholds ...float64) error
}

// conditionParams are the variables an override condition can reference.
// Measured, predicted and sigma are only filled when the probe collected
// detail values, which it always does while a condition is configured.
type conditionParams struct {
	Score     float64 `mapstructure:"score"`
	Warn      float64 `mapstructure:"warn"`
	Crit      float64 `mapstructure:"crit"`
	Measured  float64 `mapstructure:"measured"`
	Predicted float64 `mapstructure:"predicted"`
	Sigma     float64 `mapstructure:"sigma"`
	Sources   int     `mapstructure:"sources"`
}

// Evaluator turns probe results into plugin results and performance data.
// The default grading compares the deviation score against the per-metric
// thresholds; a configured warnif or critif condition replaces the
// corresponding comparison.
type Evaluator struct {
	metrics map[string]config.Metric
	verbose bool
	warnIf  *govaluate.EvaluableExpression
	critIf  *govaluate.EvaluableExpression
}

func NewEvaluator(cfg *config.Config) (*Evaluator, error) {
	e := &Evaluator{
		metrics: map[string]config.Metric{},
		verbose: cfg.Verbose,
	}
	for _, m := range cfg.Metrics {
		e.metrics[m.Name] = m
	}
	var err error
	if cfg.WarnIf != "" {
		if e.warnIf, err = govaluate.NewEvaluableExpression(cfg.WarnIf); err != nil {
			return nil, fmt.Errorf("warnif condition: %w", err)
		}
	}
	if cfg.CritIf != "" {
		if e.critIf, err = govaluate.NewEvaluableExpression(cfg.CritIf); err != nil {
			return nil, fmt.Errorf("critif condition: %w", err)
		}
	}
	return e, nil
}

// Apply grades every result and records it on the check. A metric with no
// usable value degrades to warning, so it stays visible without masking a
// critical sibling.
func (e *Evaluator) Apply(nag reporter, results []predict.Result) error {
	for i := range results {
		r := &results[i]
		if !r.Available {
			checkLog.Debugf("metric %s has no value: %s", r.Metric, r.Reason)
			nag.AddResult(nagiosplugin.WARNING, fmt.Sprintf("%s: %s", r.Metric, r.Reason))
			continue
		}

		m := e.metrics[r.Metric]
		crit := r.Score > m.Crit
		warn := r.Score > m.Warn
		if e.warnIf != nil || e.critIf != nil {
			params, err := conditionParameters(m, r)
			if err != nil {
				return err
			}
			if e.critIf != nil {
				if crit, err = evalCondition(e.critIf, params); err != nil {
					return fmt.Errorf("critif condition: %w", err)
				}
			}
			if e.warnIf != nil {
				if warn, err = evalCondition(e.warnIf, params); err != nil {
					return fmt.Errorf("warnif condition: %w", err)
				}
			}
		}

		status := nagiosplugin.OK
		switch {
		case crit:
			status = nagiosplugin.CRITICAL
		case warn:
			status = nagiosplugin.WARNING
		}
		nag.AddResult(status, e.message(r))
		if err := addPerfData(nag, r); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) message(r *predict.Result) string {
	msg := fmt.Sprintf("%s is %.2f sigma from prediction", r.Metric, r.Score)
	if r.Sources > 1 {
		msg += fmt.Sprintf(" (%d series)", r.Sources)
	}
	if e.verbose && r.Detail != nil {
		msg += fmt.Sprintf(", measured %.2f%s, predicted %.2f%s, sigma %.2f",
			r.Detail.Measured, r.Unit, r.Detail.Predicted, r.Unit, r.Detail.Sigma)
	}
	return msg
}

func conditionParameters(m config.Metric, r *predict.Result) (config.GenericMap, error) {
	input := conditionParams{
		Score:   r.Score,
		Warn:    m.Warn,
		Crit:    m.Crit,
		Sources: r.Sources,
	}
	if r.Detail != nil {
		input.Measured = r.Detail.Measured
		input.Predicted = r.Detail.Predicted
		input.Sigma = r.Detail.Sigma
	}
	params := config.GenericMap{}
	if err := ms.Decode(&input, &params); err != nil {
		return nil, fmt.Errorf("condition parameters: %w", err)
	}
	return params, nil
}

func evalCondition(expr *govaluate.EvaluableExpression, params config.GenericMap) (bool, error) {
	out, err := expr.Evaluate(params)
	if err != nil {
		return false, err
	}
	verdict, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%q is not a boolean condition", expr.String())
	}
	return verdict, nil
}

func addPerfData(nag reporter, r *predict.Result) error {
	if err := nag.AddPerfDatum(r.Metric+"_score", "", r.Score, 0); err != nil {
		return err
	}
	if r.Detail == nil {
		return nil
	}
	if err := nag.AddPerfDatum(r.Metric+"_measured", "", r.Detail.Measured); err != nil {
		return err
	}
	if err := nag.AddPerfDatum(r.Metric+"_predicted", "", r.Detail.Predicted); err != nil {
		return err
	}
	return nag.AddPerfDatum(r.Metric+"_sigma", "", r.Detail.Sigma, 0)
}
