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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	jsoniter "github.com/json-iterator/go"
	"github.com/olorin/nagiosplugin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/omd-tools/check-predicted/pkg/check"
	"github.com/omd-tools/check-predicted/pkg/config"
	"github.com/omd-tools/check-predicted/pkg/perfdata"
	"github.com/omd-tools/check-predicted/pkg/predict"
	"github.com/omd-tools/check-predicted/pkg/rrdquery"
)

var (
	buildVersion       = "unknown"
	buildDate          = "unknown"
	cfgFile            string
	logLevel           string
	envPrefix          = "CHECK-PREDICTED"
	defaultCfgFileName = ".check-predicted"
	opts               config.Options
)

// rootCmd represents the root command
var rootCmd = &cobra.Command{
	Use:   "check-predicted",
	Short: "Alert when a metric drifts away from the value its own history predicts",
	Run: func(_ *cobra.Command, _ []string) {
		run()
	},
}

// initConfig use config file and ENV variables if set.
func initConfig() {
	v := viper.New()

	if cfgFile != "" {
		// Use config file from the flag.
		v.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal(err)
		}
		// Search config in home directory with name ".check-predicted" (without extension).
		v.AddConfigPath(home)
		v.SetConfigName(defaultCfgFileName)
	}

	// Read environment variables that match prefix
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	// If a config file is found, read it in.
	cfgErr := v.ReadInConfig()

	bindFlags(rootCmd, v)

	// initialize logger
	initLogger()

	// A monitoring host rarely carries a config file, that is not worth a
	// line on stderr every run.
	if cfgErr != nil {
		log.Debugf("Read config error: %v", cfgErr)
	}
}

func initLogger() {
	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		ll = log.ErrorLevel
	}
	log.SetLevel(ll)
	log.SetFormatter(&log.TextFormatter{DisableColors: false, FullTimestamp: true, PadLevelText: true, DisableQuote: true})
}

func dumpConfig(opts *config.Options) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary
	configAsJSON, err := json.MarshalIndent(opts, "", "    ")
	if err != nil {
		panic(fmt.Sprintf("error dumping config: %v", err))
	}
	log.Debugf("Using configuration:\n%s", configAsJSON)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		_ = v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix))

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			switch val.(type) {
			case bool, uint, string, int32, int16, int8, int, uint32, uint64, int64, float64, float32, []string, []int:
				_ = cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val))
			default:
				var jsonNew = jsoniter.ConfigCompatibleWithStandardLibrary
				b, err := jsonNew.Marshal(&val)
				if err != nil {
					log.Fatalf("can't parse flag %s into json with value %v got error %s", f.Name, val, err)
					return
				}
				_ = cmd.Flags().Set(f.Name, string(b))
			}
		}
	})
}

// defaultPerfdataDir accounts for OMD, where perfdata lives under the
// site root.
func defaultPerfdataDir() string {
	return fmt.Sprintf("%s/var/pnp4nagios/perfdata", os.Getenv("OMD_ROOT"))
}

func initFlags() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $HOME/%s)", defaultCfgFileName))
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "Log level: debug, info, warning, error")
	rootCmd.PersistentFlags().StringVarP(&opts.Host, "host", "H", "", "host whose perfdata to query")
	rootCmd.PersistentFlags().StringVar(&opts.PerfdataDir, "path", defaultPerfdataDir(), "path to the perfdata directory")
	rootCmd.PersistentFlags().StringVar(&opts.Service, "servicename", "Interface_1", "service to query")
	rootCmd.PersistentFlags().StringVar(&opts.Metrics, "dsname", "out", "datasource(s) to track, comma separated")
	rootCmd.PersistentFlags().StringVar(&opts.Definitions, "definitions", "", "metric definitions file or directory, replaces dsname")
	rootCmd.PersistentFlags().Float64VarP(&opts.Warn, "warn", "w", 1, "sigma coefficient variation before warn - higher is less sensitive")
	rootCmd.PersistentFlags().Float64VarP(&opts.Crit, "crit", "c", 2, "sigma coefficient variation before crit - higher is less sensitive")
	rootCmd.PersistentFlags().IntVar(&opts.Timeout, "timeout", 40, "engine timeout, in seconds (0 disables)")
	rootCmd.PersistentFlags().StringVar(&opts.SampleTime, "sampletime", rrdquery.DefaultEnd, "sets a specific sample time, use the engine time format")
	rootCmd.PersistentFlags().IntVar(&opts.SampleCount, "samplecount", -5, "number of back samples to take (should be negative)")
	rootCmd.PersistentFlags().IntVar(&opts.SampleInterval, "sampleinterval", 604800, "interval between samples (in seconds)")
	rootCmd.PersistentFlags().IntVar(&opts.SampleWindow, "samplewindow", 1800, "size of sample window (in seconds)")
	rootCmd.PersistentFlags().StringVar(&opts.Start, "start", rrdquery.DefaultStart, "graph start time, must reach back over every sample")
	rootCmd.PersistentFlags().StringVar(&opts.Engine, "engine", rrdquery.DefaultEngine, "graphing engine binary")
	rootCmd.PersistentFlags().IntVar(&opts.GraphWidth, "graphwidth", rrdquery.DefaultGraphWidth, "graph width (in steps)")
	rootCmd.PersistentFlags().IntVar(&opts.GraphStep, "graphstep", rrdquery.DefaultGraphStep, "time of each graph step (in seconds)")
	rootCmd.PersistentFlags().StringVar(&opts.GraphFile, "graphfile", "", "keep the rendered graph at this path (default: throwaway)")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "report measured, predicted and sigma values as well")
	rootCmd.PersistentFlags().StringVar(&opts.WarnIf, "warnif", "", "condition replacing the warn comparison, e.g. 'score > warn && measured > 1000'")
	rootCmd.PersistentFlags().StringVar(&opts.CritIf, "critif", "", "condition replacing the crit comparison")
}

func main() {
	// Initialize flags (command line parameters)
	initFlags()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() {
	// Initial log message
	log.Debugf("Starting %s:\nBuild version: %s\nBuild date: %s", filepath.Base(os.Args[0]), buildVersion, buildDate)

	// Dump configuration
	dumpConfig(&opts)

	nag := nagiosplugin.NewCheck()
	defer nag.Finish()

	cfg, err := config.ParseConfig(&opts)
	if err != nil {
		nag.Unknownf("can't resolve configuration: %v", err)
	}

	evaluator, err := check.NewEvaluator(&cfg)
	if err != nil {
		nag.Unknownf("%v", err)
	}

	meta, err := perfdata.Load(cfg.PerfdataDir, cfg.Host, cfg.Service)
	if err != nil {
		nag.Unknownf("%v", err)
	}

	// The monitoring core sends SIGTERM when a check outlives its slot.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.Timeout)*time.Second)
		defer cancel()
	}

	probe := predict.NewProbe(cfg, meta, rrdquery.NewRunner(cfg.Engine, clock.New()))
	results, err := probe.Run(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			nag.Unknownf("the engine did not answer within %d seconds", opts.Timeout)
		}
		if errors.Is(err, context.Canceled) {
			nag.Unknownf("interrupted while waiting for the engine")
		}
		nag.Unknownf("%v", err)
	}

	if err := evaluator.Apply(nag, results); err != nil {
		nag.Unknownf("%v", err)
	}
}
