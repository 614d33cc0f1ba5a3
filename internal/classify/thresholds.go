package classify

import "time"

// Thresholds is the immutable rule configuration for one classifier
// instance. It is validated once at construction and shared read-only
// across concurrent evaluations.
type Thresholds struct {
	RPMOn                float64 `json:"rpmOn" yaml:"rpm_on"`
	RPMProd              float64 `json:"rpmProd" yaml:"rpm_prod"`
	POn                  float64 `json:"pOn" yaml:"p_on"`
	PProd                float64 `json:"pProd" yaml:"p_prod"`
	TMinActive           float64 `json:"tMinActive" yaml:"t_min_active"`
	TrendEps             float64 `json:"trendEps" yaml:"trend_eps"`
	TrendLookbackSeconds int     `json:"trendLookbackSeconds" yaml:"trend_lookback_seconds"`
}

func (t Thresholds) Validate() *ConfigError {
	var details []ErrorDetail
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"rpmOn", t.RPMOn},
		{"rpmProd", t.RPMProd},
		{"pOn", t.POn},
		{"pProd", t.PProd},
		{"tMinActive", t.TMinActive},
		{"trendEps", t.TrendEps},
	} {
		if f.value < 0 {
			details = append(details, ErrorDetail{Field: f.name, Problem: "negative"})
		} else if !isFinite(f.value) {
			details = append(details, ErrorDetail{Field: f.name, Problem: "not finite"})
		}
	}
	if t.TrendEps == 0 {
		details = append(details, ErrorDetail{Field: "trendEps", Problem: "zero", Hint: "A zero band cannot separate stable from drifting"})
	}
	if t.TrendLookbackSeconds <= 0 {
		details = append(details, ErrorDetail{Field: "trendLookbackSeconds", Problem: "not positive", Hint: "Trend needs a bounded look-back window"})
	}
	if t.RPMOn > t.RPMProd {
		details = append(details, ErrorDetail{Field: "rpmOn", Problem: "exceeds rpmProd", Hint: "RPM_ON <= RPM_PROD"})
	}
	if t.POn > t.PProd {
		details = append(details, ErrorDetail{Field: "pOn", Problem: "exceeds pProd", Hint: "P_ON <= P_PROD"})
	}
	if len(details) > 0 {
		return &ConfigError{Details: details}
	}
	return nil
}

// Lookback is the oldest predecessor age still usable for a trend.
func (t Thresholds) Lookback() time.Duration {
	return time.Duration(t.TrendLookbackSeconds) * time.Second
}
