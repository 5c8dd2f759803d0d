package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/SwarmForge/internal/domain/pool"
)

func poolSpec(name string, minAgents, maxAgents int) pool.Spec {
	return pool.Spec{
		Name:             name,
		CapabilityFilter: []string{"go"},
		MinAgents:        minAgents,
		MaxAgents:        maxAgents,
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Scheduler.Strategy != "round_robin" {
		t.Errorf("expected round_robin strategy, got %s", cfg.Scheduler.Strategy)
	}
	if cfg.Health.UnhealthyThreshold != 3 {
		t.Errorf("expected unhealthy threshold 3, got %d", cfg.Health.UnhealthyThreshold)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
	if cfg.Lifecycle.DrainTimeout != 60*time.Second {
		t.Errorf("expected drain timeout 60s, got %v", cfg.Lifecycle.DrainTimeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
scheduler:
  strategy: "least_loaded"
  max_head_scan: 64
scaler:
  scale_up_dwell_ticks: 3
pools:
  - name: builders
    capabilities: [go, rust]
    min_agents: 1
    max_agents: 5
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Scheduler.Strategy != "least_loaded" {
		t.Errorf("expected least_loaded, got %s", cfg.Scheduler.Strategy)
	}
	if cfg.Scheduler.MaxHeadScan != 64 {
		t.Errorf("expected max_head_scan 64, got %d", cfg.Scheduler.MaxHeadScan)
	}
	if cfg.Scaler.ScaleUpDwellTicks != 3 {
		t.Errorf("expected dwell ticks 3, got %d", cfg.Scaler.ScaleUpDwellTicks)
	}
	if len(cfg.Pools) != 1 || cfg.Pools[0].Name != "builders" {
		t.Fatalf("expected builders pool, got %+v", cfg.Pools)
	}
	if len(cfg.Pools[0].CapabilityFilter) != 2 {
		t.Errorf("expected 2 capabilities, got %v", cfg.Pools[0].CapabilityFilter)
	}
	// Unchanged fields keep defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL, got %s", cfg.NATS.URL)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("SWARMFORGE_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("SWARMFORGE_SCHED_STRATEGY", "capability_match")
	t.Setenv("SWARMFORGE_HEALTH_INTERVAL", "10s")
	t.Setenv("SWARMFORGE_MAX_TASKS_PER_AGENT", "25")
	t.Setenv("SWARMFORGE_LOG_BUFFER_SIZE", "256")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.Scheduler.Strategy != "capability_match" {
		t.Errorf("expected capability_match, got %s", cfg.Scheduler.Strategy)
	}
	if cfg.Health.Interval != 10*time.Second {
		t.Errorf("expected health interval 10s, got %v", cfg.Health.Interval)
	}
	if cfg.Lifecycle.MaxTasksPerAgent != 25 {
		t.Errorf("expected max tasks 25, got %d", cfg.Lifecycle.MaxTasksPerAgent)
	}
	if cfg.Logging.BufferSize != 256 {
		t.Errorf("expected log buffer 256, got %d", cfg.Logging.BufferSize)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "empty NATS URL",
			modify: func(c *Config) { c.NATS.URL = "" },
			errMsg: "nats.url is required",
		},
		{
			name:   "unknown strategy",
			modify: func(c *Config) { c.Scheduler.Strategy = "random" },
			errMsg: "scheduler.strategy",
		},
		{
			name:   "zero head scan",
			modify: func(c *Config) { c.Scheduler.MaxHeadScan = 0 },
			errMsg: "max_head_scan",
		},
		{
			name:   "zero unhealthy threshold",
			modify: func(c *Config) { c.Health.UnhealthyThreshold = 0 },
			errMsg: "health thresholds",
		},
		{
			name: "probe timeout exceeds interval",
			modify: func(c *Config) {
				c.Health.ProbeTimeout = time.Minute
				c.Health.Interval = time.Second
			},
			errMsg: "probe_timeout",
		},
		{
			name:   "zero dwell ticks",
			modify: func(c *Config) { c.Scaler.ScaleUpDwellTicks = 0 },
			errMsg: "dwell ticks",
		},
		{
			name: "pool with inverted bounds",
			modify: func(c *Config) {
				c.Pools = append(c.Pools, poolSpec("bad", 5, 2))
			},
			errMsg: "bad",
		},
		{
			name: "duplicate pool name",
			modify: func(c *Config) {
				c.Pools = append(c.Pools, poolSpec("dup", 0, 2), poolSpec("dup", 0, 2))
			},
			errMsg: "defined twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)

			err := validate(&cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults must validate, got %v", err)
	}
}
