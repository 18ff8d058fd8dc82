// Package config centralises runtime configuration for pulsebus services.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quartzlab/pulsebus/errs"
)

// BusConfig tunes event bus defaults.
type BusConfig struct {
	DefaultRetryBackoff time.Duration `yaml:"defaultRetryBackoff"`
}

// TelemetryConfig configures the collector and its exporters.
type TelemetryConfig struct {
	StateFile             string  `yaml:"stateFile"`
	RollupFile            string  `yaml:"rollupFile"`
	MaxHistory            int     `yaml:"maxHistory"`
	RollupIntervalSeconds float64 `yaml:"rollupIntervalSeconds"`
	CollectorConcurrency  int     `yaml:"collectorConcurrency"`
	OTLPEndpoint          string  `yaml:"otlpEndpoint"`
	ServiceName           string  `yaml:"serviceName"`
}

// RollupInterval returns the configured rollup cadence as a duration.
func (t TelemetryConfig) RollupInterval() time.Duration {
	return time.Duration(t.RollupIntervalSeconds * float64(time.Second))
}

// ProducerConfig configures the synthetic workflow producer.
type ProducerConfig struct {
	Enabled            bool     `yaml:"enabled"`
	WorkflowsPerSecond float64  `yaml:"workflowsPerSecond"`
	Steps              []string `yaml:"steps"`
	FailEvery          int      `yaml:"failEvery"`
}

// AppConfig is the configuration tree loaded from defaults and overrides.
type AppConfig struct {
	Environment string          `yaml:"environment"`
	Debug       bool            `yaml:"debug"`
	Bus         BusConfig       `yaml:"bus"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Producer    ProducerConfig  `yaml:"producer"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Environment: "dev",
		Debug:       false,
		Bus: BusConfig{
			DefaultRetryBackoff: 500 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			StateFile:             "data/telemetry.json",
			RollupFile:            "data/telemetry-rollup.jsonl",
			MaxHistory:            200,
			RollupIntervalSeconds: 60,
			CollectorConcurrency:  4,
			OTLPEndpoint:          "",
			ServiceName:           "pulsebus",
		},
		Producer: ProducerConfig{
			Enabled:            false,
			WorkflowsPerSecond: 1,
			Steps:              []string{"config", "hooks.strategy", "hooks.execution", "quality.checks"},
			FailEvery:          0,
		},
	}
}

// LoadOrDefault loads the configuration file when present, falling back to
// defaults otherwise. The second return reports whether a file was read.
func LoadOrDefault(ctx context.Context, path string) (AppConfig, bool, error) {
	cfg := defaultAppConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.loadEnv()
			if vErr := cfg.Validate(ctx); vErr != nil {
				return AppConfig{}, false, vErr
			}
			return cfg, false, nil
		}
		return AppConfig{}, false, fmt.Errorf("read app config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, false, fmt.Errorf("parse app config: %w", err)
	}

	cfg.loadEnv()
	cfg.normalize()
	if err := cfg.Validate(ctx); err != nil {
		return AppConfig{}, false, err
	}
	return cfg, true, nil
}

// Save writes the configuration back to disk in YAML form.
func Save(path string, cfg AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode app config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write app config: %w", err)
	}
	return nil
}

func (c *AppConfig) loadEnv() {
	if env := strings.TrimSpace(os.Getenv("PULSEBUS_ENV")); env != "" {
		c.Environment = strings.ToLower(env)
	}
	if endpoint := strings.TrimSpace(os.Getenv("PULSEBUS_OTLP_ENDPOINT")); endpoint != "" {
		c.Telemetry.OTLPEndpoint = endpoint
	}
	if debug := strings.TrimSpace(os.Getenv("PULSEBUS_DEBUG")); debug == "1" || strings.EqualFold(debug, "true") {
		c.Debug = true
	}
}

func (c *AppConfig) normalize() {
	defaults := defaultAppConfig()
	if c.Bus.DefaultRetryBackoff <= 0 {
		c.Bus.DefaultRetryBackoff = defaults.Bus.DefaultRetryBackoff
	}
	if c.Telemetry.MaxHistory <= 0 {
		c.Telemetry.MaxHistory = defaults.Telemetry.MaxHistory
	}
	if c.Telemetry.RollupIntervalSeconds <= 0 {
		c.Telemetry.RollupIntervalSeconds = defaults.Telemetry.RollupIntervalSeconds
	}
	if c.Telemetry.CollectorConcurrency < 1 {
		c.Telemetry.CollectorConcurrency = defaults.Telemetry.CollectorConcurrency
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaults.Telemetry.ServiceName
	}
	if c.Producer.WorkflowsPerSecond <= 0 {
		c.Producer.WorkflowsPerSecond = defaults.Producer.WorkflowsPerSecond
	}
	if len(c.Producer.Steps) == 0 {
		c.Producer.Steps = defaults.Producer.Steps
	}
	if c.Producer.FailEvery < 0 {
		c.Producer.FailEvery = 0
	}
}

// Validate rejects configurations the runtime cannot operate with.
func (c AppConfig) Validate(_ context.Context) error {
	if c.Environment == "" {
		return errs.New("config/validate", errs.CodeInvalid, errs.WithMessage("environment required"))
	}
	if c.Telemetry.StateFile == "" && c.Telemetry.RollupFile == "" {
		return errs.New("config/validate", errs.CodeInvalid,
			errs.WithMessage("telemetry requires a state file, a rollup file, or both"))
	}
	return nil
}
