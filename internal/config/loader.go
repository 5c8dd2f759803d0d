package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "swarmforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SWARMFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "SWARMFORGE_CORS_ORIGIN")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SWARMFORGE_PG_MAX_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SWARMFORGE_PG_MAX_CONN_LIFETIME")
	setString(&cfg.Logging.Level, "SWARMFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SWARMFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SWARMFORGE_LOG_ASYNC")
	setInt(&cfg.Logging.BufferSize, "SWARMFORGE_LOG_BUFFER_SIZE")
	setString(&cfg.Telemetry.Endpoint, "SWARMFORGE_OTLP_ENDPOINT")
	setInt64(&cfg.Cache.MaxSizeMB, "SWARMFORGE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.ResultTTL, "SWARMFORGE_CACHE_RESULT_TTL")
	setInt(&cfg.Breaker.MaxFailures, "SWARMFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SWARMFORGE_BREAKER_TIMEOUT")
	setString(&cfg.Scheduler.Strategy, "SWARMFORGE_SCHED_STRATEGY")
	setInt(&cfg.Scheduler.MaxHeadScan, "SWARMFORGE_SCHED_MAX_HEAD_SCAN")
	setDuration(&cfg.Scheduler.CancelAckWait, "SWARMFORGE_SCHED_CANCEL_ACK_WAIT")
	setDuration(&cfg.Health.Interval, "SWARMFORGE_HEALTH_INTERVAL")
	setDuration(&cfg.Health.ProbeTimeout, "SWARMFORGE_HEALTH_PROBE_TIMEOUT")
	setInt(&cfg.Health.UnhealthyThreshold, "SWARMFORGE_HEALTH_UNHEALTHY_THRESHOLD")
	setInt(&cfg.Health.RecoveryThreshold, "SWARMFORGE_HEALTH_RECOVERY_THRESHOLD")
	setDuration(&cfg.Scaler.Interval, "SWARMFORGE_SCALER_INTERVAL")
	setInt(&cfg.Scaler.ScaleUpQueueThreshold, "SWARMFORGE_SCALER_UP_QUEUE_THRESHOLD")
	setInt(&cfg.Scaler.ScaleUpDwellTicks, "SWARMFORGE_SCALER_UP_DWELL_TICKS")
	setInt(&cfg.Scaler.ScaleDownIdleThreshold, "SWARMFORGE_SCALER_DOWN_IDLE_THRESHOLD")
	setInt(&cfg.Scaler.ScaleDownDwellTicks, "SWARMFORGE_SCALER_DOWN_DWELL_TICKS")
	setDuration(&cfg.Lifecycle.DrainTimeout, "SWARMFORGE_DRAIN_TIMEOUT")
	setInt(&cfg.Lifecycle.MaxTasksPerAgent, "SWARMFORGE_MAX_TASKS_PER_AGENT")
}

// validate checks that required fields are set and pool specs are sound.
// Pool bound violations and duplicate names are rejected here, at startup.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	switch cfg.Scheduler.Strategy {
	case "round_robin", "least_loaded", "capability_match":
	default:
		return fmt.Errorf("scheduler.strategy %q is unknown", cfg.Scheduler.Strategy)
	}
	if cfg.Scheduler.MaxHeadScan < 1 {
		return errors.New("scheduler.max_head_scan must be >= 1")
	}
	if cfg.Health.UnhealthyThreshold < 1 || cfg.Health.RecoveryThreshold < 1 {
		return errors.New("health thresholds must be >= 1")
	}
	if cfg.Health.ProbeTimeout >= cfg.Health.Interval {
		return errors.New("health.probe_timeout must be shorter than health.interval")
	}
	if cfg.Scaler.ScaleUpDwellTicks < 1 || cfg.Scaler.ScaleDownDwellTicks < 1 {
		return errors.New("scaler dwell ticks must be >= 1")
	}

	seen := make(map[string]bool, len(cfg.Pools))
	for i := range cfg.Pools {
		if err := cfg.Pools[i].Validate(); err != nil {
			return err
		}
		if seen[cfg.Pools[i].Name] {
			return fmt.Errorf("pool %q defined twice", cfg.Pools[i].Name)
		}
		seen[cfg.Pools[i].Name] = true
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
