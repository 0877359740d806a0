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
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

var runLog = logrus.WithField("component", "rrdquery.Runner")

// The engine prints one image size line ahead of the values, and the
// final newline leaves one empty trailing entry. Both are dropped before
// any matching.
const (
	headerLines  = 1
	trailerLines = 1
)

// Lines produced by print steps, per the printPrefix and printFormat
// constants.
var printLine = regexp.MustCompile(`^curr_ds(\S+) =\s*(.*)$`)

// InvocationError wraps an engine execution failure. The whole batch is
// lost, there are no partial results.
type InvocationError struct {
	Err    error
	Stderr string
}

func (e *InvocationError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("engine invocation failed: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("engine invocation failed: %v", e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// MalformedNumberError notes a print line whose value did not parse. It
// aborts the whole reduction.
type MalformedNumberError struct {
	Token string
	Value string
}

func (e *MalformedNumberError) Error() string {
	return fmt.Sprintf("malformed number %q for output %s", e.Value, e.Token)
}

// Results maps output tokens to reduced values.
type Results map[string]float64

// Value returns the reduced value of token. ok is false when the token is
// missing or the engine reported the value as unknown.
func (r Results) Value(token string) (float64, bool) {
	v, found := r[token]
	if !found || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Runner executes accumulated jobs, one engine subprocess per job, and
// reduces the printed output. It applies no timeout of its own; the
// caller's context bounds the subprocess.
type Runner struct {
	engine string
	clock  clock.Clock
}

func NewRunner(engine string, c clock.Clock) *Runner {
	if engine == "" {
		engine = DefaultEngine
	}
	if c == nil {
		c = clock.New()
	}
	return &Runner{engine: engine, clock: c}
}

// Run serializes the job, invokes the engine once and reduces its output.
// The job is spent afterwards, whether the invocation succeeded or not.
func (r *Runner) Run(ctx context.Context, job *Job) (Results, error) {
	if job.state == stateExecuted {
		return nil, ErrJobExecuted
	}
	if job.OutputCount() == 0 {
		runLog.Warn("job requests no output, the result mapping will be empty")
	}
	args, err := job.CommandArgs()
	if err != nil {
		return nil, err
	}
	job.markExecuted()
	if job.scratch {
		defer func() {
			if err := os.Remove(job.graph.OutFile); err != nil && !os.IsNotExist(err) {
				runLog.WithError(err).Debugf("leaving scratch artifact %s behind", job.graph.OutFile)
			}
		}()
	}

	runLog.Debugf("engine command: %s %s", r.engine, strings.Join(args, " "))
	start := r.clock.Now()

	cmd := exec.CommandContext(ctx, r.engine, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &InvocationError{Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}
	runLog.Debugf("engine finished in %s", r.clock.Since(start))

	return Reduce(stdout.String())
}

// Reduce filters raw engine output down to the requested values. The
// first and last lines never carry values and are dropped unseen; other
// lines only count when they look like print output.
func Reduce(raw string) (Results, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) <= headerLines+trailerLines {
		return Results{}, nil
	}
	lines = lines[headerLines : len(lines)-trailerLines]

	res := Results{}
	for _, line := range lines {
		m := printLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		v, err := parseValue(value)
		if err != nil {
			return nil, &MalformedNumberError{Token: m[1], Value: value}
		}
		res[m[1]] = v
	}
	return res, nil
}

// The engine prints unknown values as nan or -nan; ParseFloat rejects the
// signed form.
func parseValue(s string) (float64, error) {
	if strings.EqualFold(s, "nan") || strings.EqualFold(s, "-nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
