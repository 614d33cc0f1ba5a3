package classify

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func testThresholds() Thresholds {
	return Thresholds{
		RPMOn:                5,
		RPMProd:              30,
		POn:                  1,
		PProd:                50,
		TMinActive:           60,
		TrendEps:             0.2,
		TrendLookbackSeconds: 900,
	}
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(testThresholds())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	return c
}

func sampleAt(ts time.Time, rpm, pressure float64, temps ...float64) Sample {
	return Sample{MachineID: "machine-a", Timestamp: ts, RPM: rpm, Pressure: pressure, Temperatures: temps}
}

var t0 = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func TestClassifyProduction(t *testing.T) {
	c := newTestClassifier(t)
	result, err := c.Classify(sampleAt(t0, 45, 80, 210, 212, 208, 211), nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.State != StateProduction {
		t.Fatalf("expected PRODUCTION, got %s", result.State)
	}
	if len(result.Explanation.Traces) != 1 {
		t.Fatalf("expected evaluation to stop at first match, got %d traces", len(result.Explanation.Traces))
	}
}

func TestClassifyRegressionResidualPressureOff(t *testing.T) {
	c := newTestClassifier(t)
	result, err := c.Classify(sampleAt(t0, 0.0, 2.4, 24.3, 24.7, 24.9, 22.6), nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.State != StateOff {
		t.Fatalf("expected OFF despite residual pressure, got %s", result.State)
	}
}

func TestClassifyBoundaryRPMOn(t *testing.T) {
	c := newTestClassifier(t)
	result, err := c.Classify(sampleAt(t0, 5.0, 0, 20, 21), nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.State != StateUnknown {
		t.Fatalf("rpm equal to RPM_ON must not satisfy rpm < RPM_ON, got %s", result.State)
	}
}

func TestClassifyHeatingFromTrend(t *testing.T) {
	c := newTestClassifier(t)
	prev := sampleAt(t0, 3, 0.5, 55, 55)
	current := sampleAt(t0.Add(60*time.Second), 3, 0.5, 61, 61)
	result, err := c.Classify(current, &prev)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.State != StateHeating {
		t.Fatalf("expected HEATING, got %s", result.State)
	}
	if result.Explanation.Trend == nil {
		t.Fatalf("expected a derived trend")
	}
	if *result.Explanation.Trend != 6 {
		t.Fatalf("expected 6 C/min, got %v", *result.Explanation.Trend)
	}
}

func TestClassifyCoolingFromTrend(t *testing.T) {
	c := newTestClassifier(t)
	prev := sampleAt(t0, 0, 0, 120, 120)
	current := sampleAt(t0.Add(2*time.Minute), 0, 0, 110, 110)
	result, err := c.Classify(current, &prev)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.State != StateCooling {
		t.Fatalf("expected COOLING, got %s", result.State)
	}
}

func TestClassifyIdleStableTrend(t *testing.T) {
	c := newTestClassifier(t)
	prev := sampleAt(t0, 0, 0.2, 180, 182)
	current := sampleAt(t0.Add(time.Minute), 0, 0.2, 180.05, 182.05)
	result, err := c.Classify(current, &prev)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.State != StateIdle {
		t.Fatalf("expected IDLE, got %s", result.State)
	}
}

func TestClassifySingleSampleOffWithoutHistory(t *testing.T) {
	c := newTestClassifier(t)
	result, err := c.Classify(sampleAt(t0, 0, 0, 20), nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.State != StateOff {
		t.Fatalf("trend-independent OFF must resolve without history, got %s", result.State)
	}
	if result.Explanation.Trend != nil {
		t.Fatalf("expected unknown trend without history")
	}
}

func TestClassifyUnknownTrendBlocksTrendRules(t *testing.T) {
	c := newTestClassifier(t)
	// warm and stationary, but no predecessor: idle/heating/cooling need
	// a trend and must fail, off needs a cold machine and must fail.
	result, err := c.Classify(sampleAt(t0, 0, 0.2, 180, 182), nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.State != StateUnknown {
		t.Fatalf("expected UNKNOWN with unknown trend, got %s", result.State)
	}
	if len(result.Explanation.Traces) != 5 {
		t.Fatalf("expected all five rules traced, got %d", len(result.Explanation.Traces))
	}
}

func TestClassifyUnknownMidRangeRPM(t *testing.T) {
	c := newTestClassifier(t)
	prev := sampleAt(t0, 10, 0.5, 70, 70)
	current := sampleAt(t0.Add(time.Minute), 10, 0.5, 70, 70)
	result, err := c.Classify(current, &prev)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.State != StateUnknown {
		t.Fatalf("expected UNKNOWN for mid-range rpm, got %s", result.State)
	}
}

func TestClassifyTotality(t *testing.T) {
	c := newTestClassifier(t)
	valid := map[MachineState]bool{
		StateOff: true, StateIdle: true, StateHeating: true,
		StateCooling: true, StateProduction: true, StateUnknown: true,
	}
	prev := sampleAt(t0, 0, 0, 100, 100)
	for _, rpm := range []float64{0, 4.9, 5, 29.9, 30, 100} {
		for _, pressure := range []float64{0, 0.9, 1, 49.9, 50, 200} {
			for _, temp := range []float64{0, 59.9, 60, 250} {
				current := sampleAt(t0.Add(time.Minute), rpm, pressure, temp)
				result, err := c.Classify(current, &prev)
				if err != nil {
					t.Fatalf("classify rpm=%v p=%v temp=%v: %v", rpm, pressure, temp, err)
				}
				if !valid[result.State] {
					t.Fatalf("undefined state %q", result.State)
				}
			}
		}
	}
}

func TestClassifyIdempotent(t *testing.T) {
	c := newTestClassifier(t)
	prev := sampleAt(t0, 3, 0.5, 55, 55)
	current := sampleAt(t0.Add(time.Minute), 3, 0.5, 61, 61)
	first, err := c.Classify(current, &prev)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	second, err := c.Classify(current, &prev)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs produced different results")
	}
}

func TestClassifyInvalidPressureIsNotUnknown(t *testing.T) {
	c := newTestClassifier(t)
	_, err := c.Classify(sampleAt(t0, 10, -1, 50), nil)
	if err == nil {
		t.Fatalf("expected invalid sample error")
	}
	var sampleErr *SampleError
	if !errors.As(err, &sampleErr) {
		t.Fatalf("expected *SampleError, got %T", err)
	}
}

func TestClassifyEmptyTemperatures(t *testing.T) {
	c := newTestClassifier(t)
	_, err := c.Classify(Sample{MachineID: "machine-a", Timestamp: t0, RPM: 0, Pressure: 0}, nil)
	var sampleErr *SampleError
	if !errors.As(err, &sampleErr) {
		t.Fatalf("expected *SampleError for empty temperatures, got %v", err)
	}
}

func TestExplanationRecordsLiteralValues(t *testing.T) {
	c := newTestClassifier(t)
	result, err := c.Classify(sampleAt(t0, 45, 80, 210, 212), nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	trace := result.Explanation.Traces[0]
	if trace.Rule != "production" || !trace.Matched {
		t.Fatalf("expected matched production trace, got %+v", trace)
	}
	if trace.Checks[0].Observed != "45" || trace.Checks[0].Limit != ">= 30" {
		t.Fatalf("expected literal rpm values in trace, got %+v", trace.Checks[0])
	}
	if trace.Checks[1].Observed != "80" || trace.Checks[1].Limit != ">= 50" {
		t.Fatalf("expected literal pressure values in trace, got %+v", trace.Checks[1])
	}
}

func TestExplanationSerializable(t *testing.T) {
	c := newTestClassifier(t)
	result, err := c.Classify(sampleAt(t0, 0, 0, 20), nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	raw, err := json.Marshal(result.Explanation)
	if err != nil {
		t.Fatalf("marshal explanation: %v", err)
	}
	var decoded Explanation
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal explanation: %v", err)
	}
	if decoded.State != StateOff || len(decoded.Traces) != len(result.Explanation.Traces) {
		t.Fatalf("explanation did not round-trip")
	}
}

func TestClassifyUnknownTraceShowsFailedChecks(t *testing.T) {
	c := newTestClassifier(t)
	result, err := c.Classify(sampleAt(t0, 5.0, 0, 20, 21), nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	off := result.Explanation.Traces[len(result.Explanation.Traces)-1]
	if off.Rule != "off" || off.Matched {
		t.Fatalf("expected failed off trace, got %+v", off)
	}
	if off.Checks[0].Name != "rpm_below_on" || off.Checks[0].Passed {
		t.Fatalf("expected rpm boundary check to fail, got %+v", off.Checks[0])
	}
	if !off.Checks[1].Passed {
		t.Fatalf("expected cold-temperature check recorded as passed, got %+v", off.Checks[1])
	}
}
