package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
)

type Config struct {
	AdminAddr   string          `yaml:"admin_addr"`
	MetricsAddr string          `yaml:"metrics_addr"`
	DatabaseURL string          `yaml:"database_url"`
	NatsURL     string          `yaml:"nats_url"`
	Workers     int             `yaml:"workers"`
	Defaults    DefaultsConfig  `yaml:"defaults"`
	Limits      LimitsConfig    `yaml:"limits"`
	Alerts      AlertsConfig    `yaml:"alerts"`
	MQTT        *MQTTConfig     `yaml:"mqtt"`
	OPCUA       *OPCUAConfig    `yaml:"opcua"`
	Allowlist   AllowlistConfig `yaml:"allowlist"`
}

type DefaultsConfig struct {
	Thresholds          classify.Thresholds `yaml:"thresholds"`
	PollIntervalSeconds int                 `yaml:"poll_interval_seconds"`
	ZoneCount           int                 `yaml:"zone_count"`
}

type LimitsConfig struct {
	MaxFetchRows        int `yaml:"max_fetch_rows"`
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds"`
	MinPollSeconds      int `yaml:"min_poll_seconds"`
	MaxPollSeconds      int `yaml:"max_poll_seconds"`
}

type AlertsConfig struct {
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type OPCUAConfig struct {
	Endpoint       string `yaml:"endpoint"`
	SecurityMode   string `yaml:"security_mode"`
	SecurityPolicy string `yaml:"security_policy"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
}

type AllowlistConfig struct {
	Tables []string `yaml:"tables"`
}

// DefaultThresholds are the plant-floor defaults applied when neither
// the config file nor the machine record overrides them.
func DefaultThresholds() classify.Thresholds {
	return classify.Thresholds{
		RPMOn:                5,
		RPMProd:              30,
		POn:                  1,
		PProd:                50,
		TMinActive:           60,
		TrendEps:             0.2,
		TrendLookbackSeconds: 900,
	}
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default is the configuration used when no config file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.AdminAddr == "" {
		c.AdminAddr = ":8091"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9100"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Defaults.Thresholds == (classify.Thresholds{}) {
		c.Defaults.Thresholds = DefaultThresholds()
	}
	if c.Defaults.Thresholds.TrendLookbackSeconds == 0 {
		c.Defaults.Thresholds.TrendLookbackSeconds = int((15 * time.Minute).Seconds())
	}
	if c.Defaults.PollIntervalSeconds <= 0 {
		c.Defaults.PollIntervalSeconds = 15
	}
	if c.Limits.MaxFetchRows <= 0 {
		c.Limits.MaxFetchRows = 500
	}
	if c.Limits.QueryTimeoutSeconds <= 0 {
		c.Limits.QueryTimeoutSeconds = 10
	}
	if c.Limits.MinPollSeconds <= 0 {
		c.Limits.MinPollSeconds = 5
	}
	if c.Limits.MaxPollSeconds <= 0 {
		c.Limits.MaxPollSeconds = 3600
	}
	if c.Alerts.CooldownSeconds <= 0 {
		c.Alerts.CooldownSeconds = 300
	}
	if c.MQTT != nil && c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "extruder-worker"
	}
	if c.OPCUA != nil {
		if c.OPCUA.SecurityMode == "" {
			c.OPCUA.SecurityMode = "None"
		}
		if c.OPCUA.SecurityPolicy == "" {
			c.OPCUA.SecurityPolicy = "None"
		}
	}
}

func (c Config) validate() error {
	if err := c.Defaults.Thresholds.Validate(); err != nil {
		return fmt.Errorf("defaults.thresholds: %w", err)
	}
	if c.Limits.MinPollSeconds > c.Limits.MaxPollSeconds {
		return fmt.Errorf("limits: min_poll_seconds exceeds max_poll_seconds")
	}
	if c.Defaults.PollIntervalSeconds < c.Limits.MinPollSeconds || c.Defaults.PollIntervalSeconds > c.Limits.MaxPollSeconds {
		return fmt.Errorf("defaults.poll_interval_seconds outside [%d, %d]", c.Limits.MinPollSeconds, c.Limits.MaxPollSeconds)
	}
	if c.MQTT != nil && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt: broker required")
	}
	if c.OPCUA != nil && c.OPCUA.Endpoint == "" {
		return fmt.Errorf("opcua: endpoint required")
	}
	return nil
}

// MergeThresholds resolves a machine's effective thresholds: the
// override document replaces the defaults wholesale when present.
func MergeThresholds(defaults classify.Thresholds, override *classify.Thresholds) classify.Thresholds {
	if override == nil {
		return defaults
	}
	merged := *override
	if merged.TrendLookbackSeconds == 0 {
		merged.TrendLookbackSeconds = defaults.TrendLookbackSeconds
	}
	return merged
}
