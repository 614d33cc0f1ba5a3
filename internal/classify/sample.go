package classify

import (
	"fmt"
	"math"
	"time"
)

// Sample is one ingestion event for one machine at one instant.
// Samples for a machine must arrive in timestamp order; ordering is
// enforced by the engine, not here.
type Sample struct {
	MachineID    string    `json:"machineId"`
	Timestamp    time.Time `json:"timestamp"`
	RPM          float64   `json:"rpm"`
	Pressure     float64   `json:"pressure"`
	Temperatures []float64 `json:"temperatures"`
}

// MeanTemperature averages the zone readings. Callers must validate
// the sample first; an empty zone list returns 0 here.
func (s Sample) MeanTemperature() float64 {
	if len(s.Temperatures) == 0 {
		return 0
	}
	var sum float64
	for _, t := range s.Temperatures {
		sum += t
	}
	return sum / float64(len(s.Temperatures))
}

// ValidateSample rejects structurally bad input: negative magnitudes,
// non-finite values, an empty zone list, a zero timestamp or a missing
// machine id. Invalid samples never resolve to a state.
func ValidateSample(s Sample) *SampleError {
	var details []ErrorDetail
	if s.MachineID == "" {
		details = append(details, ErrorDetail{Field: "machineId", Problem: "missing", Hint: "Provide the machine unit id"})
	}
	if s.Timestamp.IsZero() {
		details = append(details, ErrorDetail{Field: "timestamp", Problem: "missing", Hint: "Provide an RFC3339 timestamp"})
	}
	if s.RPM < 0 {
		details = append(details, ErrorDetail{Field: "rpm", Problem: "negative", Hint: "Screw speed cannot be negative"})
	} else if !isFinite(s.RPM) {
		details = append(details, ErrorDetail{Field: "rpm", Problem: "not finite"})
	}
	if s.Pressure < 0 {
		details = append(details, ErrorDetail{Field: "pressure", Problem: "negative", Hint: "Melt pressure cannot be negative"})
	} else if !isFinite(s.Pressure) {
		details = append(details, ErrorDetail{Field: "pressure", Problem: "not finite"})
	}
	if len(s.Temperatures) == 0 {
		details = append(details, ErrorDetail{Field: "temperatures", Problem: "empty", Hint: "Provide at least one zone reading"})
	}
	for i, t := range s.Temperatures {
		if !isFinite(t) {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("temperatures[%d]", i), Problem: "not finite"})
		}
	}
	if len(details) > 0 {
		return &SampleError{Details: details}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
