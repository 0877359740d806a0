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

package rrdquery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omd-tools/check-predicted/pkg/api"
)

var jobLog = logrus.WithField("component", "rrdquery.Job")

// Graph defaults, matching the engine invocation the plugin historically
// used.
const (
	DefaultEngine     = "rrdtool"
	DefaultGraphWidth = 12096
	DefaultGraphStep  = 60
	DefaultStart      = "end-6w"
	DefaultEnd        = "now"
)

const (
	printPrefix  = "curr_"
	printFormat  = "%6.2lf"
	seriesPrefix = "ds"
	suffixSmooth = "_smooth"
	suffixPred   = "_pred"
	suffixSigma  = "_sigma"
	suffixDiff   = "_diff"
)

var (
	ErrUnknownConsolidation = errors.New("unknown consolidation")
	ErrEmptyAggregate       = errors.New("aggregate needs at least one input")
	ErrJobExecuted          = errors.New("job already executed")
)

// AlreadyDefinedError notes a second registration under a taken name.
type AlreadyDefinedError struct {
	Name string
}

func (e *AlreadyDefinedError) Error() string {
	return fmt.Sprintf("step %q is already defined", e.Name)
}

var consolidationTokens = map[api.Consolidation]string{
	api.ConsolidationAvg: "AVERAGE",
	api.ConsolidationMin: "MINIMUM",
	api.ConsolidationMax: "MAXIMUM",
}

// EngineCF maps a consolidation to the engine keyword.
func EngineCF(cf api.Consolidation) (string, error) {
	token, ok := consolidationTokens[cf]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownConsolidation, cf)
	}
	return token, nil
}

// Graph carries the engine-level parameters shared by every step of a
// job. Times are in the engine's AT-style format.
type Graph struct {
	Width   int
	Step    int
	OutFile string
	Start   string
	End     string
}

type stepKind int

const (
	kindSeries stepKind = iota // DEF
	kindDerive                 // CDEF
	kindPrint                  // VDEF and PRINT pair
)

type step struct {
	kind   stepKind
	name   string
	series string // kindSeries: file:index:CF
	expr   *Expr  // kindDerive
	target string // kindPrint: printed step
}

// StepRef is an opaque handle to a registered step. Refs are only handed
// out by registration, so expressions cannot name steps that are not part
// of the job yet.
type StepRef struct {
	name string
}

func (r StepRef) Name() string {
	return r.name
}

type jobState int

const (
	stateEmpty jobState = iota
	stateAccumulating
	stateExecuted
)

// Job accumulates named series and derivation steps for one engine
// invocation. Step names are unique within a job and derive from the
// inputs alone, so the same inputs always regenerate the same name.
type Job struct {
	graph   Graph
	steps   []*step
	byName  map[string]*step
	state   jobState
	scratch bool
}

// NewJob starts an empty job. Zero graph fields fall back to the
// defaults; an empty OutFile becomes a scratch artifact that the runner
// removes after execution.
func NewJob(graph Graph) *Job {
	if graph.Width <= 0 {
		graph.Width = DefaultGraphWidth
	}
	if graph.Step <= 0 {
		graph.Step = DefaultGraphStep
	}
	if graph.Start == "" {
		graph.Start = DefaultStart
	}
	if graph.End == "" {
		graph.End = DefaultEnd
	}
	j := &Job{graph: graph, byName: map[string]*step{}}
	if j.graph.OutFile == "" {
		j.graph.OutFile = filepath.Join(os.TempDir(), "check-predicted-"+uuid.NewString()+".png")
		j.scratch = true
	}
	return j
}

// SeriesName is the canonical step name of a raw series.
func SeriesName(metric string, cf api.Consolidation) string {
	return seriesPrefix + metric + "_" + string(cf)
}

// ResultToken is the results key under which a printed step lands: the
// step name with the series prefix stripped.
func ResultToken(stepName string) string {
	return strings.TrimPrefix(stepName, seriesPrefix)
}

// DefineSeries registers the raw series of one archived datasource.
func (j *Job) DefineSeries(file string, dsIndex int, metric string, cf api.Consolidation) (StepRef, error) {
	token, err := EngineCF(cf)
	if err != nil {
		return StepRef{}, err
	}
	if file == "" || metric == "" {
		return StepRef{}, fmt.Errorf("series needs a file and a metric name")
	}
	return j.register(&step{
		kind:   kindSeries,
		name:   SeriesName(metric, cf),
		series: fmt.Sprintf("%s:%d:%s", file, dsIndex, token),
	})
}

// DefineAggregate registers the sum of the inputs under an explicit name.
// A single input stays a plain alias, which lets callers canonicalize a
// name without changing the data.
func (j *Job) DefineAggregate(name string, inputs []StepRef) (StepRef, error) {
	if len(inputs) == 0 {
		return StepRef{}, ErrEmptyAggregate
	}
	if err := j.resolve(inputs...); err != nil {
		return StepRef{}, err
	}
	expr := NewExpr().Ref(inputs[0])
	for _, in := range inputs[1:] {
		expr.Ref(in).Operator(OpAdd)
	}
	return j.registerExpr(name, expr)
}

// DefineSmooth registers a moving average over in, half the window wide,
// evening out short glitches in the current rate.
func (j *Job) DefineSmooth(in StepRef, window int) (StepRef, error) {
	if err := j.resolve(in); err != nil {
		return StepRef{}, err
	}
	if window <= 0 {
		return StepRef{}, fmt.Errorf("smooth window must be positive, got %d", window)
	}
	expr := NewExpr().Ref(in).Number(window / 2).Operator(OpTrend)
	return j.registerExpr(in.name+suffixSmooth, expr)
}

// DefinePrediction registers the seasonal prediction of in together with
// its standard deviation. interval is the distance between historical
// windows, count the number of windows (negative reaches into the past),
// window the width of each one, all in seconds.
func (j *Job) DefinePrediction(in StepRef, interval, count, window int) (StepRef, StepRef, error) {
	if err := j.resolve(in); err != nil {
		return StepRef{}, StepRef{}, err
	}
	if interval <= 0 || window <= 0 || count == 0 {
		return StepRef{}, StepRef{}, fmt.Errorf("prediction wants positive interval and window and a nonzero count, got %d/%d/%d", interval, window, count)
	}
	basis := func(op string) *Expr {
		return NewExpr().Number(interval).Number(count).Number(window).Ref(in).Operator(op)
	}
	pred, err := j.registerExpr(in.name+suffixPred, basis(OpPredict))
	if err != nil {
		return StepRef{}, StepRef{}, err
	}
	sigma, err := j.registerExpr(in.name+suffixSigma, basis(OpPredictSigma))
	if err != nil {
		return StepRef{}, StepRef{}, err
	}
	return pred, sigma, nil
}

// DefineDeviation registers the distance between measured and predicted
// in units of sigma. A zero sigma pins the score to zero instead of
// dividing.
func (j *Job) DefineDeviation(measured, predicted, sigma StepRef) (StepRef, error) {
	if err := j.resolve(measured, predicted, sigma); err != nil {
		return StepRef{}, err
	}
	expr := NewExpr().
		Ref(sigma).Number(0).Operator(OpEq).
		Number(0).
		Ref(measured).Ref(predicted).Operator(OpSub).Operator(OpAbs).Ref(sigma).Operator(OpDiv).
		Operator(OpIf)
	name := strings.TrimSuffix(measured.name, suffixSmooth) + suffixDiff
	return j.registerExpr(name, expr)
}

// RequestOutput registers a print of the last value of in and returns the
// token under which the value will appear in the reduced results.
func (j *Job) RequestOutput(in StepRef) (string, error) {
	if err := j.resolve(in); err != nil {
		return "", err
	}
	if _, err := j.register(&step{kind: kindPrint, name: printPrefix + in.name, target: in.name}); err != nil {
		return "", err
	}
	return ResultToken(in.name), nil
}

// OutputCount reports how many print steps the job carries.
func (j *Job) OutputCount() int {
	n := 0
	for _, s := range j.steps {
		if s.kind == kindPrint {
			n++
		}
	}
	return n
}

// CommandArgs serializes the job to the engine's graph argument vector,
// steps in registration order.
func (j *Job) CommandArgs() ([]string, error) {
	args := []string{
		"graph",
		"--width", strconv.Itoa(j.graph.Width),
		"--step", strconv.Itoa(j.graph.Step),
		j.graph.OutFile,
		"--start", j.graph.Start,
		"--end", j.graph.End,
	}
	for _, s := range j.steps {
		switch s.kind {
		case kindSeries:
			args = append(args, fmt.Sprintf("DEF:%s=%s", s.name, s.series))
		case kindDerive:
			rpn, err := s.expr.Render()
			if err != nil {
				return nil, fmt.Errorf("step %s: %w", s.name, err)
			}
			args = append(args, fmt.Sprintf("CDEF:%s=%s", s.name, rpn))
		case kindPrint:
			args = append(args,
				fmt.Sprintf("VDEF:%s=%s,LAST", s.name, s.target),
				fmt.Sprintf("PRINT:%s:%s = %s", s.name, s.name, printFormat))
		}
	}
	return args, nil
}

func (j *Job) register(s *step) (StepRef, error) {
	if j.state == stateExecuted {
		return StepRef{}, ErrJobExecuted
	}
	if _, taken := j.byName[s.name]; taken {
		return StepRef{}, &AlreadyDefinedError{Name: s.name}
	}
	j.steps = append(j.steps, s)
	j.byName[s.name] = s
	j.state = stateAccumulating
	jobLog.Tracef("registered step %s", s.name)
	return StepRef{name: s.name}, nil
}

func (j *Job) registerExpr(name string, expr *Expr) (StepRef, error) {
	if err := expr.Err(); err != nil {
		return StepRef{}, fmt.Errorf("step %s: %w", name, err)
	}
	return j.register(&step{kind: kindDerive, name: name, expr: expr})
}

func (j *Job) resolve(refs ...StepRef) error {
	for _, r := range refs {
		if r.name == "" {
			return fmt.Errorf("empty step reference")
		}
		if _, ok := j.byName[r.name]; !ok {
			return fmt.Errorf("step %q is not part of this job", r.name)
		}
	}
	return nil
}

func (j *Job) markExecuted() {
	j.state = stateExecuted
}
