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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omd-tools/check-predicted/pkg/api"
)

const outFile = "/perf/gateway1/Interface_1_out.rrd"

func testJob() *Job {
	return NewJob(Graph{OutFile: "/tmp/gateway1.png"})
}

func TestSeriesNaming(t *testing.T) {
	require.Equal(t, "dsout_avg", SeriesName("out", api.ConsolidationAvg))
	require.Equal(t, "out_avg_diff", ResultToken("dsout_avg_diff"))

	job := testJob()
	ref, err := job.DefineSeries(outFile, 1, "out", api.ConsolidationAvg)
	require.NoError(t, err)
	require.Equal(t, "dsout_avg", ref.Name())

	args, err := job.CommandArgs()
	require.NoError(t, err)
	require.Contains(t, args, "DEF:dsout_avg=/perf/gateway1/Interface_1_out.rrd:1:AVERAGE")
}

func TestSeriesConsolidations(t *testing.T) {
	job := testJob()
	minRef, err := job.DefineSeries(outFile, 1, "out", api.ConsolidationMin)
	require.NoError(t, err)
	require.Equal(t, "dsout_min", minRef.Name())
	maxRef, err := job.DefineSeries(outFile, 1, "out", api.ConsolidationMax)
	require.NoError(t, err)
	require.Equal(t, "dsout_max", maxRef.Name())

	args, err := job.CommandArgs()
	require.NoError(t, err)
	require.Contains(t, args, "DEF:dsout_min="+outFile+":1:MINIMUM")
	require.Contains(t, args, "DEF:dsout_max="+outFile+":1:MAXIMUM")
}

func TestSeriesUnknownConsolidation(t *testing.T) {
	job := testJob()
	_, err := job.DefineSeries(outFile, 1, "out", api.Consolidation("median"))
	require.ErrorIs(t, err, ErrUnknownConsolidation)
}

func TestSeriesValidation(t *testing.T) {
	job := testJob()
	_, err := job.DefineSeries("", 1, "out", api.ConsolidationAvg)
	require.Error(t, err)
	_, err = job.DefineSeries(outFile, 1, "", api.ConsolidationAvg)
	require.Error(t, err)
}

func TestDuplicateStep(t *testing.T) {
	job := testJob()
	_, err := job.DefineSeries(outFile, 1, "out", api.ConsolidationAvg)
	require.NoError(t, err)

	_, err = job.DefineSeries(outFile, 1, "out", api.ConsolidationAvg)
	var dupErr *AlreadyDefinedError
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "dsout_avg", dupErr.Name)
}

func TestAggregate(t *testing.T) {
	job := testJob()
	refs := make([]StepRef, 0, 3)
	for i, file := range []string{"a.rrd", "b.rrd", "c.rrd"} {
		ref, err := job.DefineSeries(file, 1, fmt.Sprintf("out%d", i), api.ConsolidationAvg)
		require.NoError(t, err)
		refs = append(refs, ref)
	}

	agg, err := job.DefineAggregate(SeriesName("out", api.ConsolidationAvg), refs)
	require.NoError(t, err)
	require.Equal(t, "dsout_avg", agg.Name())

	args, err := job.CommandArgs()
	require.NoError(t, err)
	require.Contains(t, args, "CDEF:dsout_avg=dsout0_avg,dsout1_avg,+,dsout2_avg,+")
}

func TestAggregateSingleInput(t *testing.T) {
	job := testJob()
	ref, err := job.DefineSeries(outFile, 1, "out0", api.ConsolidationAvg)
	require.NoError(t, err)

	agg, err := job.DefineAggregate("dsout_avg", []StepRef{ref})
	require.NoError(t, err)
	require.Equal(t, "dsout_avg", agg.Name())

	args, err := job.CommandArgs()
	require.NoError(t, err)
	require.Contains(t, args, "CDEF:dsout_avg=dsout0_avg")
}

func TestAggregateEmpty(t *testing.T) {
	job := testJob()
	_, err := job.DefineAggregate("dsout_avg", nil)
	require.ErrorIs(t, err, ErrEmptyAggregate)
}

func TestForeignRef(t *testing.T) {
	other := testJob()
	foreign, err := other.DefineSeries(outFile, 1, "out", api.ConsolidationAvg)
	require.NoError(t, err)

	job := testJob()
	_, err = job.DefineSmooth(foreign, 1800)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not part of this job")

	_, err = job.DefineSmooth(StepRef{}, 1800)
	require.Error(t, err)
}

func TestSmooth(t *testing.T) {
	job := testJob()
	base, err := job.DefineSeries(outFile, 1, "out", api.ConsolidationAvg)
	require.NoError(t, err)

	smooth, err := job.DefineSmooth(base, 1800)
	require.NoError(t, err)
	require.Equal(t, "dsout_avg_smooth", smooth.Name())

	args, err := job.CommandArgs()
	require.NoError(t, err)
	require.Contains(t, args, "CDEF:dsout_avg_smooth=dsout_avg,900,TRENDNAN")

	_, err = job.DefineSmooth(base, 0)
	require.Error(t, err)
}

func TestPrediction(t *testing.T) {
	job := testJob()
	base, err := job.DefineSeries(outFile, 1, "out", api.ConsolidationAvg)
	require.NoError(t, err)

	pred, sigma, err := job.DefinePrediction(base, 604800, -5, 1800)
	require.NoError(t, err)
	require.Equal(t, "dsout_avg_pred", pred.Name())
	require.Equal(t, "dsout_avg_sigma", sigma.Name())

	args, err := job.CommandArgs()
	require.NoError(t, err)
	require.Contains(t, args, "CDEF:dsout_avg_pred=604800,-5,1800,dsout_avg,PREDICT")
	require.Contains(t, args, "CDEF:dsout_avg_sigma=604800,-5,1800,dsout_avg,PREDICTSIGMA")
}

func TestPredictionValidation(t *testing.T) {
	job := testJob()
	base, err := job.DefineSeries(outFile, 1, "out", api.ConsolidationAvg)
	require.NoError(t, err)

	_, _, err = job.DefinePrediction(base, 0, -5, 1800)
	require.Error(t, err)
	_, _, err = job.DefinePrediction(base, 604800, 0, 1800)
	require.Error(t, err)
	_, _, err = job.DefinePrediction(base, 604800, -5, 0)
	require.Error(t, err)
}

func TestDeviation(t *testing.T) {
	job := testJob()
	base, err := job.DefineSeries(outFile, 1, "out", api.ConsolidationAvg)
	require.NoError(t, err)
	smooth, err := job.DefineSmooth(base, 1800)
	require.NoError(t, err)
	pred, sigma, err := job.DefinePrediction(base, 604800, -5, 1800)
	require.NoError(t, err)

	diff, err := job.DefineDeviation(smooth, pred, sigma)
	require.NoError(t, err)
	require.Equal(t, "dsout_avg_diff", diff.Name())

	args, err := job.CommandArgs()
	require.NoError(t, err)
	require.Contains(t, args,
		"CDEF:dsout_avg_diff=dsout_avg_sigma,0,EQ,0,dsout_avg_smooth,dsout_avg_pred,-,ABS,dsout_avg_sigma,/,IF")
}

func TestRequestOutput(t *testing.T) {
	job := testJob()
	base, err := job.DefineSeries(outFile, 1, "out", api.ConsolidationAvg)
	require.NoError(t, err)
	require.Equal(t, 0, job.OutputCount())

	token, err := job.RequestOutput(base)
	require.NoError(t, err)
	require.Equal(t, "out_avg", token)
	require.Equal(t, 1, job.OutputCount())

	args, err := job.CommandArgs()
	require.NoError(t, err)
	require.Contains(t, args, "VDEF:curr_dsout_avg=dsout_avg,LAST")
	require.Contains(t, args, "PRINT:curr_dsout_avg:curr_dsout_avg = %6.2lf")
}

func TestCommandArgsLayout(t *testing.T) {
	job := NewJob(Graph{OutFile: "/tmp/gateway1.png"})
	base, err := job.DefineSeries(outFile, 1, "out", api.ConsolidationAvg)
	require.NoError(t, err)
	smooth, err := job.DefineSmooth(base, 1800)
	require.NoError(t, err)
	pred, sigma, err := job.DefinePrediction(base, 604800, -5, 1800)
	require.NoError(t, err)
	diff, err := job.DefineDeviation(smooth, pred, sigma)
	require.NoError(t, err)
	token, err := job.RequestOutput(diff)
	require.NoError(t, err)
	require.Equal(t, "out_avg_diff", token)

	args, err := job.CommandArgs()
	require.NoError(t, err)
	require.Equal(t, []string{
		"graph",
		"--width", "12096",
		"--step", "60",
		"/tmp/gateway1.png",
		"--start", "end-6w",
		"--end", "now",
		"DEF:dsout_avg=/perf/gateway1/Interface_1_out.rrd:1:AVERAGE",
		"CDEF:dsout_avg_smooth=dsout_avg,900,TRENDNAN",
		"CDEF:dsout_avg_pred=604800,-5,1800,dsout_avg,PREDICT",
		"CDEF:dsout_avg_sigma=604800,-5,1800,dsout_avg,PREDICTSIGMA",
		"CDEF:dsout_avg_diff=dsout_avg_sigma,0,EQ,0,dsout_avg_smooth,dsout_avg_pred,-,ABS,dsout_avg_sigma,/,IF",
		"VDEF:curr_dsout_avg_diff=dsout_avg_diff,LAST",
		"PRINT:curr_dsout_avg_diff:curr_dsout_avg_diff = %6.2lf",
	}, args)
}

func TestDeterministicNames(t *testing.T) {
	build := func() []string {
		job := NewJob(Graph{OutFile: "/tmp/gateway1.png"})
		base, err := job.DefineSeries(outFile, 1, "out", api.ConsolidationAvg)
		require.NoError(t, err)
		smooth, err := job.DefineSmooth(base, 1800)
		require.NoError(t, err)
		pred, sigma, err := job.DefinePrediction(base, 604800, -5, 1800)
		require.NoError(t, err)
		diff, err := job.DefineDeviation(smooth, pred, sigma)
		require.NoError(t, err)
		_, err = job.RequestOutput(diff)
		require.NoError(t, err)
		args, err := job.CommandArgs()
		require.NoError(t, err)
		return args
	}
	require.Equal(t, build(), build())
}

func TestGraphDefaults(t *testing.T) {
	job := NewJob(Graph{})
	args, err := job.CommandArgs()
	require.NoError(t, err)

	require.Equal(t, "graph", args[0])
	require.Equal(t, []string{"--width", "12096", "--step", "60"}, args[1:5])
	require.Equal(t, []string{"--start", "end-6w", "--end", "now"}, args[6:10])

	scratch := args[5]
	require.True(t, strings.HasPrefix(scratch, filepath.Join(os.TempDir(), "check-predicted-")))
	require.True(t, strings.HasSuffix(scratch, ".png"))
}

func TestRegisterAfterExecution(t *testing.T) {
	job := testJob()
	_, err := job.DefineSeries(outFile, 1, "out", api.ConsolidationAvg)
	require.NoError(t, err)

	job.markExecuted()
	_, err = job.DefineSeries(outFile, 1, "in", api.ConsolidationAvg)
	require.ErrorIs(t, err, ErrJobExecuted)
}
