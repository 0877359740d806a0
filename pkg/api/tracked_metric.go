package api

// Definitions is the body of a metric definitions file. Per-metric values
// override the defaults; defaults and sampling override the command line.
type Definitions struct {
	Defaults MetricDefaults  `yaml:"defaults,omitempty" json:"defaults,omitempty" doc:"defaults applied to every tracked metric unless overridden"`
	Sampling Sampling        `yaml:"sampling,omitempty" json:"sampling,omitempty" doc:"historical sampling parameters, override the command line"`
	Metrics  []TrackedMetric `yaml:"metrics" json:"metrics" doc:"list of tracked metrics, each includes:"`
}

type MetricDefaults struct {
	Consolidation Consolidation `yaml:"consolidation,omitempty" json:"consolidation,omitempty" enum:"ConsolidationEnum" doc:"(enum) consolidation function used when reading archives, one of:"`
	Warn          float64       `yaml:"warn,omitempty" json:"warn,omitempty" doc:"deviation score (in sigmas) above which a metric degrades to warning"`
	Crit          float64       `yaml:"crit,omitempty" json:"crit,omitempty" doc:"deviation score (in sigmas) above which a metric becomes critical"`
}

type TrackedMetric struct {
	Name          string        `yaml:"name" json:"name" doc:"datasource name as listed in the perfdata metadata"`
	Consolidation Consolidation `yaml:"consolidation,omitempty" json:"consolidation,omitempty" enum:"ConsolidationEnum" doc:"(enum) consolidation function, overrides the default, one of:"`
	Warn          float64       `yaml:"warn,omitempty" json:"warn,omitempty" doc:"warning threshold, overrides the default (0 falls back)"`
	Crit          float64       `yaml:"crit,omitempty" json:"crit,omitempty" doc:"critical threshold, overrides the default (0 falls back)"`
}

// Sampling shapes the historical windows handed to the engine prediction
// functions.
type Sampling struct {
	Time     string `yaml:"time,omitempty" json:"time,omitempty" doc:"sample end time, in engine AT-style time format (default: now)"`
	Start    string `yaml:"start,omitempty" json:"start,omitempty" doc:"graph start time, must reach back over every sampled window (default: end-6w)"`
	Count    int    `yaml:"count,omitempty" json:"count,omitempty" doc:"number of historical windows, negative shifts them into the past (default: -5)"`
	Interval int    `yaml:"interval,omitempty" json:"interval,omitempty" doc:"seasonal distance between windows, in seconds (default: 604800, one week)"`
	Window   int    `yaml:"window,omitempty" json:"window,omitempty" doc:"width of each window, in seconds (default: 1800)"`
}
