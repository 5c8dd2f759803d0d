package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Integration tests that exercise the full LoadFrom pipeline:
// defaults < YAML < environment variables.

func TestLoadFrom_FullHierarchy(t *testing.T) {
	// YAML sets port=9090, env overrides to 7070. Env must win.
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
server:
  port: "9090"
scheduler:
  strategy: "least_loaded"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SWARMFORGE_PORT", "7070")
	t.Setenv("SWARMFORGE_SCHED_STRATEGY", "capability_match")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("env should override YAML: got port %q, want 7070", cfg.Server.Port)
	}
	if cfg.Scheduler.Strategy != "capability_match" {
		t.Errorf("env should override YAML: got strategy %q, want capability_match", cfg.Scheduler.Strategy)
	}
}

func TestLoadFrom_YAMLPartialOverride(t *testing.T) {
	// YAML sets only the drain timeout; all other fields keep defaults.
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
lifecycle:
  drain_timeout: 2m
`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Lifecycle.DrainTimeout != 2*time.Minute {
		t.Errorf("got drain timeout %v, want 2m", cfg.Lifecycle.DrainTimeout)
	}
	// Defaults preserved
	if cfg.Lifecycle.MaxTasksPerAgent != 50 {
		t.Errorf("got max tasks %d, want default 50", cfg.Lifecycle.MaxTasksPerAgent)
	}
	if cfg.Scheduler.Strategy != "round_robin" {
		t.Errorf("got strategy %q, want default round_robin", cfg.Scheduler.Strategy)
	}
}

func TestLoadFrom_InvalidPoolRejected(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
pools:
  - name: builders
    capabilities: []
    min_agents: 0
    max_agents: 3
`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(yamlPath); err == nil {
		t.Fatal("expected validation error for empty capability filter")
	}
}
