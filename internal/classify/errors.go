package classify

import (
	"fmt"
	"strings"
)

type ErrorDetail struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
	Hint    string `json:"hint,omitempty"`
}

// SampleError reports a structurally invalid sample. It is surfaced to
// the caller and never degraded to a machine state.
type SampleError struct {
	Details []ErrorDetail `json:"details"`
}

func (e *SampleError) Error() string {
	return "invalid sample: " + joinDetails(e.Details)
}

// ConfigError reports an invalid threshold configuration. Fatal at
// load, never recovered mid-run.
type ConfigError struct {
	Details []ErrorDetail `json:"details"`
}

func (e *ConfigError) Error() string {
	return "invalid thresholds: " + joinDetails(e.Details)
}

func joinDetails(details []ErrorDetail) string {
	parts := make([]string, 0, len(details))
	for _, d := range details {
		parts = append(parts, fmt.Sprintf("%s %s", d.Field, d.Problem))
	}
	return strings.Join(parts, "; ")
}
