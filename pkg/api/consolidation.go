package api

// Consolidation selects the consolidation function applied when samples
// are read back from a round robin archive.
type Consolidation string

const (
	ConsolidationAvg Consolidation = "avg" // arithmetic mean of the samples behind each step (AVERAGE)
	ConsolidationMin Consolidation = "min" // smallest sample behind each step (MINIMUM)
	ConsolidationMax Consolidation = "max" // largest sample behind each step (MAXIMUM)
)

type ConsolidationEnum struct {
	Avg string `yaml:"avg" doc:"arithmetic mean of the samples behind each step (AVERAGE)"`
	Min string `yaml:"min" doc:"smallest sample behind each step (MINIMUM)"`
	Max string `yaml:"max" doc:"largest sample behind each step (MAXIMUM)"`
}

func ConsolidationName(operation string) string {
	return GetEnumName(ConsolidationEnum{}, operation)
}
