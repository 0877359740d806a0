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

package check

import (
	"testing"

	"github.com/olorin/nagiosplugin"
	"github.com/stretchr/testify/require"

	"github.com/omd-tools/check-predicted/pkg/api"
	"github.com/omd-tools/check-predicted/pkg/config"
	"github.com/omd-tools/check-predicted/pkg/predict"
)

type perfRecord struct {
	label      string
	value      float64
	thresholds []float64
}

type fakeCheck struct {
	statuses []nagiosplugin.Status
	messages []string
	perfdata []perfRecord
}

func (f *fakeCheck) AddResult(status nagiosplugin.Status, message string) {
	f.statuses = append(f.statuses, status)
	f.messages = append(f.messages, message)
}

func (f *fakeCheck) AddPerfDatum(label, _ string, value float64, thresholds ...float64) error {
	f.perfdata = append(f.perfdata, perfRecord{label: label, value: value, thresholds: thresholds})
	return nil
}

func evalConfig() config.Config {
	return config.Config{
		Metrics: []config.Metric{
			{Name: "out", Consolidation: api.ConsolidationAvg, Warn: 1, Crit: 2},
		},
	}
}

func available(score float64) predict.Result {
	return predict.Result{Metric: "out", Score: score, Available: true, Unit: "bps", Sources: 1}
}

func TestEvaluatorGrades(t *testing.T) {
	table := []struct {
		name     string
		score    float64
		expected nagiosplugin.Status
	}{
		{"below warn", 0.5, nagiosplugin.OK},
		{"at warn stays ok", 1.0, nagiosplugin.OK},
		{"above warn", 1.5, nagiosplugin.WARNING},
		{"at crit stays warning", 2.0, nagiosplugin.WARNING},
		{"above crit", 2.5, nagiosplugin.CRITICAL},
	}

	for _, testCase := range table {
		t.Run(testCase.name, func(tt *testing.T) {
			e, err := NewEvaluator(&config.Config{Metrics: evalConfig().Metrics})
			require.NoError(tt, err)
			fake := &fakeCheck{}
			require.NoError(tt, e.Apply(fake, []predict.Result{available(testCase.score)}))
			require.Equal(tt, []nagiosplugin.Status{testCase.expected}, fake.statuses)
		})
	}
}

func TestEvaluatorUnavailable(t *testing.T) {
	cfg := evalConfig()
	e, err := NewEvaluator(&cfg)
	require.NoError(t, err)

	fake := &fakeCheck{}
	err = e.Apply(fake, []predict.Result{
		{Metric: "out", Reason: "not listed in the service metadata"},
	})
	require.NoError(t, err)
	require.Equal(t, []nagiosplugin.Status{nagiosplugin.WARNING}, fake.statuses)
	require.Equal(t, []string{"out: not listed in the service metadata"}, fake.messages)
	require.Empty(t, fake.perfdata)
}

func TestEvaluatorMessage(t *testing.T) {
	cfg := evalConfig()
	e, err := NewEvaluator(&cfg)
	require.NoError(t, err)

	fake := &fakeCheck{}
	r := available(1.5)
	r.Sources = 3
	require.NoError(t, e.Apply(fake, []predict.Result{r}))
	require.Equal(t, []string{"out is 1.50 sigma from prediction (3 series)"}, fake.messages)
}

func TestEvaluatorVerboseMessage(t *testing.T) {
	cfg := evalConfig()
	cfg.Verbose = true
	e, err := NewEvaluator(&cfg)
	require.NoError(t, err)

	fake := &fakeCheck{}
	r := available(1.5)
	r.Detail = &predict.Detail{Measured: 97, Predicted: 100, Sigma: 2}
	require.NoError(t, e.Apply(fake, []predict.Result{r}))
	require.Equal(t,
		[]string{"out is 1.50 sigma from prediction, measured 97.00bps, predicted 100.00bps, sigma 2.00"},
		fake.messages)
}

func TestEvaluatorPerfData(t *testing.T) {
	cfg := evalConfig()
	e, err := NewEvaluator(&cfg)
	require.NoError(t, err)

	fake := &fakeCheck{}
	r := available(1.5)
	r.Detail = &predict.Detail{Measured: 97, Predicted: 100, Sigma: 2}
	require.NoError(t, e.Apply(fake, []predict.Result{r}))

	require.Equal(t, []perfRecord{
		{label: "out_score", value: 1.5, thresholds: []float64{0}},
		{label: "out_measured", value: 97},
		{label: "out_predicted", value: 100},
		{label: "out_sigma", value: 2, thresholds: []float64{0}},
	}, fake.perfdata)
}

func TestEvaluatorCritCondition(t *testing.T) {
	cfg := evalConfig()
	cfg.CritIf = "score > crit * 2"
	e, err := NewEvaluator(&cfg)
	require.NoError(t, err)

	fake := &fakeCheck{}
	r := available(3)
	r.Detail = &predict.Detail{Measured: 97, Predicted: 100, Sigma: 2}
	require.NoError(t, e.Apply(fake, []predict.Result{r}))
	// 3 is not past the doubled threshold, the default warn grading holds.
	require.Equal(t, []nagiosplugin.Status{nagiosplugin.WARNING}, fake.statuses)

	fake = &fakeCheck{}
	r = available(5)
	r.Detail = &predict.Detail{Measured: 97, Predicted: 100, Sigma: 2}
	require.NoError(t, e.Apply(fake, []predict.Result{r}))
	require.Equal(t, []nagiosplugin.Status{nagiosplugin.CRITICAL}, fake.statuses)
}

func TestEvaluatorWarnCondition(t *testing.T) {
	cfg := evalConfig()
	cfg.WarnIf = "score > warn && measured > 1000"
	e, err := NewEvaluator(&cfg)
	require.NoError(t, err)

	fake := &fakeCheck{}
	r := available(1.5)
	r.Detail = &predict.Detail{Measured: 97, Predicted: 100, Sigma: 2}
	require.NoError(t, e.Apply(fake, []predict.Result{r}))
	require.Equal(t, []nagiosplugin.Status{nagiosplugin.OK}, fake.statuses)

	fake = &fakeCheck{}
	r.Detail.Measured = 5000
	require.NoError(t, e.Apply(fake, []predict.Result{r}))
	require.Equal(t, []nagiosplugin.Status{nagiosplugin.WARNING}, fake.statuses)
}

func TestEvaluatorSourcesCondition(t *testing.T) {
	cfg := evalConfig()
	cfg.WarnIf = "score > warn && sources > 1"
	e, err := NewEvaluator(&cfg)
	require.NoError(t, err)

	fake := &fakeCheck{}
	r := available(1.5)
	r.Sources = 2
	r.Detail = &predict.Detail{}
	require.NoError(t, e.Apply(fake, []predict.Result{r}))
	require.Equal(t, []nagiosplugin.Status{nagiosplugin.WARNING}, fake.statuses)
}

func TestEvaluatorBadConditions(t *testing.T) {
	cfg := evalConfig()
	cfg.CritIf = "score >"
	_, err := NewEvaluator(&cfg)
	require.Error(t, err)

	cfg = evalConfig()
	cfg.CritIf = "score + 1"
	e, err := NewEvaluator(&cfg)
	require.NoError(t, err)
	r := available(1.5)
	r.Detail = &predict.Detail{}
	err = e.Apply(&fakeCheck{}, []predict.Result{r})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a boolean condition")
}
