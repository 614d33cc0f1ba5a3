package replay

import (
	"sort"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/engine"
)

// Outcome is one accepted classification from a replay run.
type Outcome struct {
	Line     int
	Sample   classify.Sample
	Result   classify.Result
	Previous classify.MachineState
	Changed  bool
}

// Report summarizes one run. Rejected holds rows the engine refused
// (zone cardinality changes); parse failures never reach the run.
type Report struct {
	Machines    int
	Samples     int
	Transitions int
	StateCounts map[classify.MachineState]int
	Rejected    []RowError
}

// Run classifies the rows with a fresh engine, sorted by timestamp
// across machines (stable, so file order breaks ties). Each machine's
// zone cardinality is pinned by its first sample. Thresholds are
// validated up front; a ConfigError aborts the run before any sample
// is touched.
func Run(rows []Row, cfg classify.Thresholds) ([]Outcome, Report, error) {
	if cerr := cfg.Validate(); cerr != nil {
		return nil, Report{}, cerr
	}

	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Sample.Timestamp.Before(sorted[j].Sample.Timestamp)
	})

	eng := engine.New()
	report := Report{StateCounts: make(map[classify.MachineState]int)}
	outcomes := make([]Outcome, 0, len(sorted))
	seen := make(map[string]bool)

	for _, row := range sorted {
		id := row.Sample.MachineID
		if !seen[id] {
			if err := eng.Register(id, cfg, 0); err != nil {
				return nil, Report{}, err
			}
			seen[id] = true
			report.Machines++
		}
		ev, err := eng.Evaluate(row.Sample)
		if err != nil {
			report.Rejected = append(report.Rejected, RowError{Line: row.Line, Err: err})
			continue
		}
		report.Samples++
		report.StateCounts[ev.Result.State]++
		if ev.Changed && ev.Previous != "" {
			report.Transitions++
		}
		outcomes = append(outcomes, Outcome{
			Line:     row.Line,
			Sample:   row.Sample,
			Result:   ev.Result,
			Previous: ev.Previous,
			Changed:  ev.Changed,
		})
	}
	return outcomes, report, nil
}
