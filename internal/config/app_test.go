package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	cfg, fromFile, err := LoadOrDefault(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fromFile {
		t.Fatal("expected defaults, not a loaded file")
	}
	if cfg.Bus.DefaultRetryBackoff != 500*time.Millisecond {
		t.Fatalf("unexpected default backoff %v", cfg.Bus.DefaultRetryBackoff)
	}
	if cfg.Telemetry.MaxHistory != 200 {
		t.Fatalf("unexpected default history %d", cfg.Telemetry.MaxHistory)
	}
}

func TestLoadOrDefaultParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulsebus.yaml")
	body := []byte(`
environment: prod
bus:
  defaultRetryBackoff: 250ms
telemetry:
  stateFile: /var/lib/pulsebus/state.json
  rollupFile: /var/lib/pulsebus/rollup.jsonl
  maxHistory: 50
  rollupIntervalSeconds: 0.5
producer:
  enabled: true
  workflowsPerSecond: 10
  failEvery: 7
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, fromFile, err := LoadOrDefault(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fromFile {
		t.Fatal("expected config loaded from file")
	}
	if cfg.Environment != "prod" {
		t.Fatalf("unexpected environment %q", cfg.Environment)
	}
	if cfg.Bus.DefaultRetryBackoff != 250*time.Millisecond {
		t.Fatalf("unexpected backoff %v", cfg.Bus.DefaultRetryBackoff)
	}
	if cfg.Telemetry.RollupInterval() != 500*time.Millisecond {
		t.Fatalf("unexpected rollup interval %v", cfg.Telemetry.RollupInterval())
	}
	if cfg.Telemetry.MaxHistory != 50 {
		t.Fatalf("unexpected history %d", cfg.Telemetry.MaxHistory)
	}
	if !cfg.Producer.Enabled || cfg.Producer.FailEvery != 7 {
		t.Fatalf("unexpected producer config %+v", cfg.Producer)
	}
}

func TestValidateRejectsNoSinks(t *testing.T) {
	cfg := defaultAppConfig()
	cfg.Telemetry.StateFile = ""
	cfg.Telemetry.RollupFile = ""
	if err := cfg.Validate(context.Background()); err == nil {
		t.Fatal("expected validation error when both sinks are empty")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PULSEBUS_ENV", "Staging")
	t.Setenv("PULSEBUS_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("PULSEBUS_DEBUG", "true")

	cfg, _, err := LoadOrDefault(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Environment != "staging" {
		t.Fatalf("expected env override, got %q", cfg.Environment)
	}
	if cfg.Telemetry.OTLPEndpoint != "http://collector:4318" {
		t.Fatalf("expected endpoint override, got %q", cfg.Telemetry.OTLPEndpoint)
	}
	if !cfg.Debug {
		t.Fatal("expected debug override")
	}
}

func TestSaveRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulsebus.yaml")
	cfg := defaultAppConfig()
	cfg.Environment = "prod"
	cfg.Producer.Enabled = true

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, fromFile, err := LoadOrDefault(context.Background(), path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !fromFile || loaded.Environment != "prod" || !loaded.Producer.Enabled {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}
