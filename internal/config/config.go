// Package config provides hierarchical configuration loading for SwarmForge.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"time"

	"github.com/Strob0t/SwarmForge/internal/domain/pool"
)

// Config holds all runtime configuration for the SwarmForge control plane.
type Config struct {
	Server    Server      `yaml:"server"`
	NATS      NATS        `yaml:"nats"`
	Postgres  Postgres    `yaml:"postgres"`
	Logging   Logging     `yaml:"logging"`
	Telemetry Telemetry   `yaml:"telemetry"`
	Cache     Cache       `yaml:"cache"`
	Breaker   Breaker     `yaml:"breaker"`
	Scheduler Scheduler   `yaml:"scheduler"`
	Health    Health      `yaml:"health"`
	Scaler    Scaler      `yaml:"scaler"`
	Lifecycle Lifecycle   `yaml:"lifecycle"`
	Pools     []pool.Spec `yaml:"pools"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// NATS holds NATS JetStream configuration.
type NATS struct {
	URL string `yaml:"url"`
}

// Postgres holds the optional audit store configuration.
// An empty DSN disables the audit trail.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

// Logging holds structured logging configuration. BufferSize is the async
// handler's channel capacity; records beyond it are dropped, not blocked on.
type Logging struct {
	Level      string `yaml:"level"`
	Service    string `yaml:"service"`
	Async      bool   `yaml:"async"`
	BufferSize int    `yaml:"buffer_size"`
}

// Telemetry holds OpenTelemetry exporter configuration.
// An empty endpoint disables the OTLP exporters.
type Telemetry struct {
	Endpoint string `yaml:"endpoint"`
}

// Cache holds result retention cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	ResultTTL time.Duration `yaml:"result_ttl"`
}

// Breaker holds the circuit breaker configuration guarding host calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Scheduler holds task scheduling configuration.
type Scheduler struct {
	Strategy      string        `yaml:"strategy"`        // "round_robin" | "least_loaded" | "capability_match"
	MaxHeadScan   int           `yaml:"max_head_scan"`   // bounded queue-head scan for eligibility
	CancelAckWait time.Duration `yaml:"cancel_ack_wait"` // cooperative cancel acknowledgement window
}

// Health holds health monitor configuration.
type Health struct {
	Interval           time.Duration `yaml:"interval"`
	ProbeTimeout       time.Duration `yaml:"probe_timeout"`
	UnhealthyThreshold int           `yaml:"unhealthy_threshold"`
	RecoveryThreshold  int           `yaml:"recovery_threshold"`
}

// Scaler holds auto-scaler configuration.
type Scaler struct {
	Interval               time.Duration `yaml:"interval"`
	ScaleUpQueueThreshold  int           `yaml:"scale_up_queue_threshold"`
	ScaleUpDwellTicks      int           `yaml:"scale_up_dwell_ticks"`
	ScaleDownIdleThreshold int           `yaml:"scale_down_idle_threshold"`
	ScaleDownDwellTicks    int           `yaml:"scale_down_dwell_ticks"`
}

// Lifecycle holds agent lifecycle configuration.
type Lifecycle struct {
	DrainTimeout     time.Duration `yaml:"drain_timeout"`
	MaxTasksPerAgent int           `yaml:"max_tasks_per_agent"` // 0 disables proactive recycling
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		NATS: NATS{
			URL: "nats://localhost:4222",
		},
		Postgres: Postgres{
			MaxConns:        10,
			MaxConnLifetime: time.Hour,
		},
		Logging: Logging{
			Level:      "info",
			Service:    "swarmforge-core",
			BufferSize: 1024,
		},
		Cache: Cache{
			MaxSizeMB: 64,
			ResultTTL: time.Hour,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Scheduler: Scheduler{
			Strategy:      "round_robin",
			MaxHeadScan:   32,
			CancelAckWait: 10 * time.Second,
		},
		Health: Health{
			Interval:           30 * time.Second,
			ProbeTimeout:       5 * time.Second,
			UnhealthyThreshold: 3,
			RecoveryThreshold:  2,
		},
		Scaler: Scaler{
			Interval:               15 * time.Second,
			ScaleUpQueueThreshold:  2,
			ScaleUpDwellTicks:      2,
			ScaleDownIdleThreshold: 2,
			ScaleDownDwellTicks:    4,
		},
		Lifecycle: Lifecycle{
			DrainTimeout:     60 * time.Second,
			MaxTasksPerAgent: 50,
		},
	}
}
