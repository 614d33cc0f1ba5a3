// Package classify derives a discrete operating state for an extruder
// from sensor telemetry. It is pure computation over already-fetched
// data: no I/O, no retained state, bounded time per call. History
// retention and per-machine serialization live in the engine package.
package classify

// MachineState is the classified operating state of one machine.
type MachineState string

const (
	StateOff        MachineState = "OFF"
	StateIdle       MachineState = "IDLE"
	StateHeating    MachineState = "HEATING"
	StateCooling    MachineState = "COOLING"
	StateProduction MachineState = "PRODUCTION"
	// StateUnknown means no rule matched. It is an expected, actionable
	// outcome signalling an ambiguous reading, never an error and never
	// coerced to OFF or PRODUCTION.
	StateUnknown MachineState = "UNKNOWN"
)

// Result pairs the assigned state with its audit explanation.
type Result struct {
	State       MachineState `json:"state"`
	Explanation Explanation  `json:"explanation"`
}

type features struct {
	rpm      float64
	pressure float64
	mean     float64
	trend    *float64
}

type stateRule struct {
	name   string
	state  MachineState
	checks func(f features, cfg Thresholds) []Check
}

// stateRules is evaluated first-match-wins in this fixed priority so
// more specific active states are not masked by laxer ones.
var stateRules = []stateRule{
	{name: "production", state: StateProduction, checks: productionChecks},
	{name: "heating", state: StateHeating, checks: heatingChecks},
	{name: "cooling", state: StateCooling, checks: coolingChecks},
	{name: "idle", state: StateIdle, checks: idleChecks},
	{name: "off", state: StateOff, checks: offChecks},
}

func productionChecks(f features, cfg Thresholds) []Check {
	return []Check{
		checkGE("rpm_at_least_prod", f.rpm, cfg.RPMProd),
		checkGE("pressure_at_least_prod", f.pressure, cfg.PProd),
	}
}

func heatingChecks(f features, cfg Thresholds) []Check {
	return []Check{
		checkLT("rpm_below_prod", f.rpm, cfg.RPMProd),
		checkGE("mean_temp_active", f.mean, cfg.TMinActive),
		checkTrendGE("trend_rising", f.trend, cfg.TrendEps),
	}
}

func coolingChecks(f features, cfg Thresholds) []Check {
	return []Check{
		checkLT("rpm_below_on", f.rpm, cfg.RPMOn),
		checkGE("mean_temp_active", f.mean, cfg.TMinActive),
		checkTrendLE("trend_falling", f.trend, -cfg.TrendEps),
	}
}

func idleChecks(f features, cfg Thresholds) []Check {
	return []Check{
		checkLT("rpm_below_on", f.rpm, cfg.RPMOn),
		checkLT("pressure_below_on", f.pressure, cfg.POn),
		checkGE("mean_temp_active", f.mean, cfg.TMinActive),
		checkTrendStable("trend_stable", f.trend, cfg.TrendEps),
	}
}

// offChecks deliberately omits pressure: residual pressure decays on
// its own after shutdown and must not keep a cold, stationary machine
// out of OFF.
func offChecks(f features, cfg Thresholds) []Check {
	return []Check{
		checkLT("rpm_below_on", f.rpm, cfg.RPMOn),
		checkLT("mean_temp_inactive", f.mean, cfg.TMinActive),
	}
}

// Classifier evaluates the fixed rule order against samples. Safe for
// concurrent use; the configuration is immutable after construction.
type Classifier struct {
	cfg Thresholds
}

// NewClassifier validates cfg and fails fast on ordering violations.
func NewClassifier(cfg Thresholds) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg}, nil
}

func (c *Classifier) Thresholds() Thresholds { return c.cfg }

// Classify assigns exactly one state to the current sample. prev is the
// retained predecessor used for trend derivation; nil means no history,
// which leaves the trend unknown (not stable). An invalid sample
// returns a *SampleError and no state.
func (c *Classifier) Classify(current Sample, prev *Sample) (Result, error) {
	if err := ValidateSample(current); err != nil {
		return Result{}, err
	}
	f := features{
		rpm:      current.RPM,
		pressure: current.Pressure,
		mean:     current.MeanTemperature(),
		trend:    temperatureTrend(current, prev, c.cfg.Lookback()),
	}
	explanation := Explanation{
		State:    StateUnknown,
		MeanTemp: f.mean,
		Trend:    f.trend,
		Traces:   make([]RuleTrace, 0, len(stateRules)),
	}
	for _, rule := range stateRules {
		trace := RuleTrace{Rule: rule.name, State: rule.state, Matched: true, Checks: rule.checks(f, c.cfg)}
		for _, check := range trace.Checks {
			if !check.Passed {
				trace.Matched = false
			}
		}
		explanation.Traces = append(explanation.Traces, trace)
		if trace.Matched {
			explanation.State = rule.state
			return Result{State: rule.state, Explanation: explanation}, nil
		}
	}
	return Result{State: StateUnknown, Explanation: explanation}, nil
}
