/*
 * Copyright (C) 2023 IBM, Inc.
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

// Package predict compares the smoothed current value of each tracked
// metric against the engine's seasonal prediction and reports the distance
// in units of the predicted standard deviation.
package predict

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/omd-tools/check-predicted/pkg/config"
	"github.com/omd-tools/check-predicted/pkg/perfdata"
	"github.com/omd-tools/check-predicted/pkg/rrdquery"
)

var probeLog = logrus.WithField("component", "predict.Probe")

// Detail carries the informational values behind a deviation score.
type Detail struct {
	Measured  float64
	Predicted float64
	Sigma     float64
}

// Result is the outcome for one tracked metric. Reason is set when the
// metric is not Available.
type Result struct {
	Metric    string
	Score     float64
	Available bool
	Reason    string
	Unit      string
	Sources   int
	Detail    *Detail
}

// outputs remembers the result tokens registered for one metric, so the
// collected results keep the configured metric order.
type outputs struct {
	metric   config.Metric
	unit     string
	sources  int
	reason   string
	score    string
	measured string
	pred     string
	sigma    string
}

// Probe builds one engine job covering every tracked metric, runs it, and
// folds the reduced values back into per-metric results.
type Probe struct {
	cfg    config.Config
	meta   *perfdata.Service
	runner *rrdquery.Runner
}

func NewProbe(cfg config.Config, meta *perfdata.Service, runner *rrdquery.Runner) *Probe {
	return &Probe{cfg: cfg, meta: meta, runner: runner}
}

// Run executes the probe. A metric missing from the service metadata or
// from the engine output comes back unavailable instead of failing the
// batch; build and execution errors fail it.
func (p *Probe) Run(ctx context.Context) ([]Result, error) {
	job := rrdquery.NewJob(rrdquery.Graph{
		Width:   p.cfg.GraphWidth,
		Step:    p.cfg.GraphStep,
		OutFile: p.cfg.GraphFile,
		Start:   p.cfg.Sampling.Start,
		End:     p.cfg.Sampling.Time,
	})

	pending := make([]*outputs, 0, len(p.cfg.Metrics))
	for _, m := range p.cfg.Metrics {
		out, err := p.accumulate(job, m)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", m.Name, err)
		}
		pending = append(pending, out)
	}

	values := rrdquery.Results{}
	if job.OutputCount() > 0 {
		var err error
		if values, err = p.runner.Run(ctx, job); err != nil {
			return nil, err
		}
	} else {
		probeLog.Debug("no tracked metric is archived, skipping the engine")
	}

	results := make([]Result, 0, len(pending))
	for _, out := range pending {
		results = append(results, collect(out, values))
	}
	return results, nil
}

func (p *Probe) accumulate(job *rrdquery.Job, m config.Metric) (*outputs, error) {
	out := &outputs{metric: m}
	sources := p.meta.Select(m.Name)
	if len(sources) == 0 {
		probeLog.Debugf("metric %s is not listed in the service metadata", m.Name)
		out.reason = "not listed in the service metadata"
		return out, nil
	}
	out.unit = sources[0].Unit
	out.sources = len(sources)

	base, err := p.defineBase(job, m, sources)
	if err != nil {
		return nil, err
	}
	smooth, err := job.DefineSmooth(base, p.cfg.Sampling.Window)
	if err != nil {
		return nil, err
	}
	pred, sigma, err := job.DefinePrediction(base, p.cfg.Sampling.Interval, p.cfg.Sampling.Count, p.cfg.Sampling.Window)
	if err != nil {
		return nil, err
	}
	diff, err := job.DefineDeviation(smooth, pred, sigma)
	if err != nil {
		return nil, err
	}
	if out.score, err = job.RequestOutput(diff); err != nil {
		return nil, err
	}
	if p.cfg.CollectDetail() {
		if out.measured, err = job.RequestOutput(smooth); err != nil {
			return nil, err
		}
		if out.pred, err = job.RequestOutput(pred); err != nil {
			return nil, err
		}
		if out.sigma, err = job.RequestOutput(sigma); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// defineBase registers the raw series backing a metric. Several physical
// series fold into one aggregate registered under the metric's canonical
// series name, so every downstream token looks the same either way.
func (p *Probe) defineBase(job *rrdquery.Job, m config.Metric, sources []perfdata.Datasource) (rrdquery.StepRef, error) {
	if len(sources) == 1 {
		return job.DefineSeries(sources[0].File, sources[0].Index, m.Name, m.Consolidation)
	}
	refs := make([]rrdquery.StepRef, 0, len(sources))
	for i, src := range sources {
		ref, err := job.DefineSeries(src.File, src.Index, fmt.Sprintf("%s%d", m.Name, i), m.Consolidation)
		if err != nil {
			return rrdquery.StepRef{}, err
		}
		refs = append(refs, ref)
	}
	return job.DefineAggregate(rrdquery.SeriesName(m.Name, m.Consolidation), refs)
}

func collect(out *outputs, values rrdquery.Results) Result {
	r := Result{Metric: out.metric.Name, Unit: out.unit, Sources: out.sources}
	if out.reason != "" {
		r.Reason = out.reason
		return r
	}
	score, ok := values.Value(out.score)
	if !ok {
		r.Reason = "no deviation value in the engine output"
		if raw, present := values[out.score]; present && math.IsNaN(raw) {
			r.Reason = "the archives hold no data for the sampled windows"
		}
		return r
	}
	r.Score = score
	r.Available = true
	if out.measured != "" {
		r.Detail = &Detail{
			Measured:  values[out.measured],
			Predicted: values[out.pred],
			Sigma:     values[out.sigma],
		}
	}
	return r
}
