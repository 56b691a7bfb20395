// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads runtime configuration for the SLA engine from the
// environment. All options have defaults so the daemon starts with zero
// configuration in development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
)

// ============================================================================
// CONFIG STRUCTS
// ============================================================================

// Config contains all SLA engine configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Server contains daemon-level settings.
	Server ServerConfig `json:"server"`

	// SLA contains enforcement loop settings and policy defaults.
	SLA SLAConfig `json:"sla"`

	// Autoscale contains autoscaling recommender settings.
	Autoscale AutoscaleConfig `json:"autoscale"`

	// Signals contains live signal collector settings.
	Signals SignalsConfig `json:"signals"`
}

// ServerConfig contains daemon-level settings. LogDir is optional; when
// empty the daemon logs to stderr only.
type ServerConfig struct {
	Port         int    `json:"port"`
	DataDir      string `json:"data_dir"`
	CatalogDir   string `json:"catalog_dir"`
	LogLevel     string `json:"log_level"`
	LogDir       string `json:"log_dir"`
	SweepSeconds int    `json:"sweep_seconds"`
}

// SLAConfig contains enforcement loop settings. DefaultMode and
// DefaultTriggerWindows fill policy fields the document leaves unset.
type SLAConfig struct {
	Enabled                  bool                      `json:"enabled"`
	DefaultMode              datatypes.EnforcementMode `json:"default_mode"`
	DefaultTriggerWindows    int                       `json:"default_trigger_windows"`
	WindowGranularitySeconds int                       `json:"window_granularity_seconds"`
	ShedOnSaturation         bool                      `json:"shed_on_saturation"`
	Degrade                  DegradeConfig             `json:"degrade"`
}

// DegradeConfig contains default degrade mitigation parameters, used when a
// policy enables allow_degrade without spelling out its own actions.
type DegradeConfig struct {
	DisableAudioChannel bool `json:"disable_audio_channel"`
	MinResults          int  `json:"min_results"`
	MaxOutputBytes      int  `json:"max_output_bytes"`
}

// AutoscaleConfig contains autoscaling recommender settings.
type AutoscaleConfig struct {
	HysteresisPct float64 `json:"hysteresis_pct"`
	DryRun        bool    `json:"dry_run"`
	Backend       string  `json:"backend"`
	ExecutorURL   string  `json:"executor_url"`
}

// SignalsConfig contains live signal collector settings. The token is never
// serialized.
type SignalsConfig struct {
	Backend      string              `json:"backend"`
	InfluxURL    string              `json:"influx_url"`
	InfluxToken  string              `json:"-"`
	InfluxOrg    string              `json:"influx_org"`
	InfluxBucket string              `json:"influx_bucket"`
	Static       StaticSignalsConfig `json:"static"`
}

// StaticSignalsConfig pins signal values for the static backend. Gauges
// left nil report as unavailable, which is useful for rehearsing degraded
// paths in development.
type StaticSignalsConfig struct {
	Replicas      int      `json:"replicas"`
	P95MS         *float64 `json:"p95_ms,omitempty"`
	QueueDepth    *float64 `json:"queue_depth,omitempty"`
	SaturationPct *float64 `json:"saturation_pct,omitempty"`
}

// ============================================================================
// LOADING
// ============================================================================

// Default returns the default configuration.
//
// Outputs:
//   - Config: Default configuration with sensible values.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8092,
			DataDir:      "/var/lib/aleutian/guard",
			CatalogDir:   "/etc/aleutian/guard/catalog",
			LogLevel:     "info",
			SweepSeconds: 60,
		},
		SLA: SLAConfig{
			Enabled:                  true,
			DefaultMode:              datatypes.ModeObserve,
			DefaultTriggerWindows:    3,
			WindowGranularitySeconds: 60,
			ShedOnSaturation:         false,
			Degrade: DegradeConfig{
				DisableAudioChannel: true,
				MinResults:          3,
				MaxOutputBytes:      65536,
			},
		},
		Autoscale: AutoscaleConfig{
			HysteresisPct: 10,
			DryRun:        true, // Recommend-only by default
			Backend:       "noop",
		},
		Signals: SignalsConfig{
			Backend:      "nop",
			InfluxURL:    "http://influxdb:8086",
			InfluxOrg:    "aleutian-platform",
			InfluxBucket: "guard-signals",
			Static: StaticSignalsConfig{
				Replicas: 1,
			},
		},
	}
}

// FromEnv loads configuration with priority: env > defaults.
//
// Unparsable numeric values keep the default for that option. Structural
// problems (port range, zero windows) are reported by Validate.
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the merged configuration is invalid.
func FromEnv() (Config, error) {
	config := Default()
	loadFromEnv(&config)
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func loadFromEnv(config *Config) {
	// Server
	if v := os.Getenv("GUARD_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Server.Port = i
		}
	}
	if v := os.Getenv("GUARD_DATA_DIR"); v != "" {
		config.Server.DataDir = v
	}
	if v := os.Getenv("GUARD_CATALOG_DIR"); v != "" {
		config.Server.CatalogDir = v
	}
	if v := os.Getenv("GUARD_LOG_LEVEL"); v != "" {
		config.Server.LogLevel = v
	}
	if v := os.Getenv("GUARD_LOG_DIR"); v != "" {
		config.Server.LogDir = v
	}
	if v := os.Getenv("GUARD_SWEEP_SECONDS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Server.SweepSeconds = i
		}
	}

	// SLA
	if v := os.Getenv("GUARD_SLA_ENABLED"); v != "" {
		config.SLA.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("GUARD_DEFAULT_MODE"); v != "" {
		if mode := datatypes.EnforcementMode(v); mode.Valid() {
			config.SLA.DefaultMode = mode
		}
	}
	if v := os.Getenv("GUARD_DEFAULT_TRIGGER_WINDOWS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.SLA.DefaultTriggerWindows = i
		}
	}
	if v := os.Getenv("GUARD_WINDOW_GRANULARITY_SECONDS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.SLA.WindowGranularitySeconds = i
		}
	}
	if v := os.Getenv("GUARD_SHED_ON_SATURATION"); v != "" {
		config.SLA.ShedOnSaturation = v == "true" || v == "1"
	}
	if v := os.Getenv("GUARD_DEGRADE_DISABLE_AUDIO"); v != "" {
		config.SLA.Degrade.DisableAudioChannel = v == "true" || v == "1"
	}
	if v := os.Getenv("GUARD_DEGRADE_MIN_RESULTS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.SLA.Degrade.MinResults = i
		}
	}
	if v := os.Getenv("GUARD_DEGRADE_MAX_OUTPUT_BYTES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.SLA.Degrade.MaxOutputBytes = i
		}
	}

	// Autoscale
	if v := os.Getenv("GUARD_AUTOSCALE_HYSTERESIS_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Autoscale.HysteresisPct = f
		}
	}
	if v := os.Getenv("GUARD_AUTOSCALE_DRY_RUN"); v != "" {
		config.Autoscale.DryRun = v == "true" || v == "1"
	}
	if v := os.Getenv("GUARD_AUTOSCALE_BACKEND"); v != "" {
		config.Autoscale.Backend = v
	}
	if v := os.Getenv("GUARD_EXECUTOR_URL"); v != "" {
		config.Autoscale.ExecutorURL = v
	}

	// Signals
	if v := os.Getenv("GUARD_SIGNALS_BACKEND"); v != "" {
		config.Signals.Backend = v
	}
	if v := os.Getenv("GUARD_INFLUXDB_URL"); v != "" {
		config.Signals.InfluxURL = v
	}
	if v := os.Getenv("GUARD_INFLUXDB_TOKEN"); v != "" {
		config.Signals.InfluxToken = v
	}
	if v := os.Getenv("GUARD_INFLUXDB_ORG"); v != "" {
		config.Signals.InfluxOrg = v
	}
	if v := os.Getenv("GUARD_INFLUXDB_BUCKET"); v != "" {
		config.Signals.InfluxBucket = v
	}
	if v := os.Getenv("GUARD_STATIC_REPLICAS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Signals.Static.Replicas = i
		}
	}
	if v := os.Getenv("GUARD_STATIC_P95_MS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Signals.Static.P95MS = &f
		}
	}
	if v := os.Getenv("GUARD_STATIC_QUEUE_DEPTH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Signals.Static.QueueDepth = &f
		}
	}
	if v := os.Getenv("GUARD_STATIC_SATURATION_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Signals.Static.SaturationPct = &f
		}
	}
}

// Validate checks that the configuration is valid.
//
// Outputs:
//   - error: Non-nil if configuration is invalid.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Server.SweepSeconds < 1 {
		return fmt.Errorf("sweep_seconds must be >= 1")
	}
	if !c.SLA.DefaultMode.Valid() {
		return fmt.Errorf("default_mode must be observe, warn, or enforce")
	}
	if c.SLA.DefaultTriggerWindows < 1 {
		return fmt.Errorf("default_trigger_windows must be >= 1")
	}
	if c.SLA.WindowGranularitySeconds < 1 {
		return fmt.Errorf("window_granularity_seconds must be >= 1")
	}
	if c.SLA.Degrade.MinResults < 1 {
		return fmt.Errorf("degrade min_results must be >= 1")
	}
	if c.SLA.Degrade.MaxOutputBytes < 1 {
		return fmt.Errorf("degrade max_output_bytes must be >= 1")
	}
	if c.Autoscale.HysteresisPct < 0 || c.Autoscale.HysteresisPct > 100 {
		return fmt.Errorf("hysteresis_pct must be between 0 and 100")
	}
	return nil
}
