package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "database_url: postgres://localhost/extruder\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AdminAddr != ":8091" || cfg.MetricsAddr != ":9100" {
		t.Fatalf("expected default addresses, got %s %s", cfg.AdminAddr, cfg.MetricsAddr)
	}
	if cfg.Defaults.Thresholds != DefaultThresholds() {
		t.Fatalf("expected default thresholds, got %+v", cfg.Defaults.Thresholds)
	}
	if cfg.Workers != 4 || cfg.Defaults.PollIntervalSeconds != 15 {
		t.Fatalf("expected worker and poll defaults, got %d %d", cfg.Workers, cfg.Defaults.PollIntervalSeconds)
	}
}

func TestLoadExplicitThresholds(t *testing.T) {
	path := writeConfig(t, `
defaults:
  thresholds:
    rpm_on: 4
    rpm_prod: 25
    p_on: 0.8
    p_prod: 40
    t_min_active: 55
    trend_eps: 0.3
    trend_lookback_seconds: 600
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Defaults.Thresholds.RPMProd != 25 || cfg.Defaults.Thresholds.TrendEps != 0.3 {
		t.Fatalf("expected explicit thresholds, got %+v", cfg.Defaults.Thresholds)
	}
}

func TestLoadRejectsInvalidThresholdOrdering(t *testing.T) {
	path := writeConfig(t, `
defaults:
  thresholds:
    rpm_on: 50
    rpm_prod: 25
    p_on: 0.8
    p_prod: 40
    t_min_active: 55
    trend_eps: 0.3
    trend_lookback_seconds: 600
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected threshold ordering violation to fail at load")
	}
}

func TestLoadRejectsMQTTWithoutBroker(t *testing.T) {
	path := writeConfig(t, "mqtt: {}\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected mqtt block without broker to fail")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestMergeThresholds(t *testing.T) {
	defaults := DefaultThresholds()
	if got := MergeThresholds(defaults, nil); got != defaults {
		t.Fatalf("expected defaults without override, got %+v", got)
	}
	override := defaults
	override.RPMProd = 22
	override.TrendLookbackSeconds = 0
	got := MergeThresholds(defaults, &override)
	if got.RPMProd != 22 {
		t.Fatalf("expected override applied, got %+v", got)
	}
	if got.TrendLookbackSeconds != defaults.TrendLookbackSeconds {
		t.Fatalf("expected look-back inherited from defaults, got %+v", got)
	}
}
