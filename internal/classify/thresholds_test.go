package classify

import "testing"

func TestThresholdsValid(t *testing.T) {
	if err := testThresholds().Validate(); err != nil {
		t.Fatalf("expected valid thresholds, got %v", err)
	}
}

func TestThresholdsRPMOrdering(t *testing.T) {
	cfg := testThresholds()
	cfg.RPMOn = 40
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected RPM_ON > RPM_PROD to fail validation")
	}
	if len(err.Details) != 1 || err.Details[0].Field != "rpmOn" {
		t.Fatalf("expected rpmOn detail, got %+v", err.Details)
	}
}

func TestThresholdsPressureOrdering(t *testing.T) {
	cfg := testThresholds()
	cfg.POn = 60
	if cfg.Validate() == nil {
		t.Fatalf("expected P_ON > P_PROD to fail validation")
	}
}

func TestThresholdsNegativeMagnitude(t *testing.T) {
	cfg := testThresholds()
	cfg.TMinActive = -1
	if cfg.Validate() == nil {
		t.Fatalf("expected negative threshold to fail validation")
	}
}

func TestThresholdsZeroTrendEps(t *testing.T) {
	cfg := testThresholds()
	cfg.TrendEps = 0
	if cfg.Validate() == nil {
		t.Fatalf("expected zero trend epsilon to fail validation")
	}
}

func TestThresholdsLookbackRequired(t *testing.T) {
	cfg := testThresholds()
	cfg.TrendLookbackSeconds = 0
	if cfg.Validate() == nil {
		t.Fatalf("expected missing look-back to fail validation")
	}
}

func TestNewClassifierRejectsInvalidConfig(t *testing.T) {
	cfg := testThresholds()
	cfg.POn = 60
	if _, err := NewClassifier(cfg); err == nil {
		t.Fatalf("expected constructor to fail fast on invalid config")
	}
}
