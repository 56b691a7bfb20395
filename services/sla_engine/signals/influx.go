// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package signals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianGuard/pkg/validation"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/telemetry"
)

// Signal schema in the platform bucket. Sidecars write one point per
// scrape with tenant and route_class tags.
const (
	signalMeasurement = "guard_signals"
	fieldSaturation   = "saturation_pct"
	fieldQueueDepth   = "queue_depth"
	fieldP95          = "p95_ms"
	fieldReplicas     = "replicas"
)

// fluxQuerier is the slice of the InfluxDB client the collector uses.
// api.QueryAPI satisfies it.
type fluxQuerier interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

// InfluxCollector reads gauges from an InfluxDB signal bucket.
//
// Each gauge is the last point within the lookback window; anything
// older counts as unavailable. Query failures degrade the reading and
// are logged, never returned.
//
// Thread Safety: Safe for concurrent use.
type InfluxCollector struct {
	client   influxdb2.Client
	queryAPI fluxQuerier
	bucket   string
	lookback time.Duration
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// NewInflux creates a collector against the configured InfluxDB.
//
// Description:
//
//	Builds the client and query API. Does not contact the server;
//	call Ping to verify reachability.
//
// Inputs:
//
//	cfg - Backend configuration. URL, Org, and Bucket are required.
//	logger - Optional logger.
//
// Outputs:
//
//	*InfluxCollector - The collector.
//	error - Non-nil if required configuration is missing.
func NewInflux(cfg Config, logger *slog.Logger) (*InfluxCollector, error) {
	if cfg.URL == "" {
		return nil, errors.New("influx url is required")
	}
	if cfg.Org == "" {
		return nil, errors.New("influx org is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("influx bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxCollector{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		lookback: lookback,
		logger:   logger.With(slog.String("component", "signals"), slog.String("backend", BackendInflux)),
	}, nil
}

// SetMetrics attaches meter instruments for collection counts.
func (c *InfluxCollector) SetMetrics(m *telemetry.Metrics) {
	c.metrics = m
}

func (c *InfluxCollector) Name() string { return BackendInflux }

// LiveSignals reads saturation and queue depth for one scope.
func (c *InfluxCollector) LiveSignals(ctx context.Context, tenant string, route datatypes.RouteClass) datatypes.LiveSignals {
	signals := datatypes.LiveSignals{Quality: datatypes.SignalOK}

	safeTenant, err := validation.SanitizeTenant(tenant)
	if err != nil {
		degrade(&signals, fmt.Sprintf("tenant rejected: %v", err))
		c.countCollection(ctx, signals.Quality)
		return signals
	}
	if !route.Valid() {
		degrade(&signals, fmt.Sprintf("unknown route class %q", route))
		c.countCollection(ctx, signals.Quality)
		return signals
	}

	if v, err := c.lastFloat(ctx, safeTenant, route, fieldSaturation); err != nil {
		c.logger.Warn("saturation gauge unreadable", slog.String("tenant", safeTenant), slog.String("error", err.Error()))
		degrade(&signals, fieldSaturation+" unreadable")
	} else if v == nil {
		degrade(&signals, fieldSaturation+" unavailable")
	} else {
		signals.SaturationPct = v
	}

	if v, err := c.lastFloat(ctx, safeTenant, route, fieldQueueDepth); err != nil {
		c.logger.Warn("queue depth gauge unreadable", slog.String("tenant", safeTenant), slog.String("error", err.Error()))
		degrade(&signals, fieldQueueDepth+" unreadable")
	} else if v == nil {
		degrade(&signals, fieldQueueDepth+" unavailable")
	} else {
		signals.QueueDepth = v
	}

	c.countCollection(ctx, signals.Quality)
	return signals
}

// Snapshot reads the autoscaler's inputs for one scope.
//
// A snapshot is only as useful as its replica count: when that gauge is
// missing the latency and queue readings are dropped too, so the
// recommender sees an empty snapshot and holds.
func (c *InfluxCollector) Snapshot(ctx context.Context, tenant string, route datatypes.RouteClass) datatypes.SignalSnapshot {
	snap := datatypes.SignalSnapshot{CollectedAt: time.Now().UTC()}

	safeTenant, err := validation.SanitizeTenant(tenant)
	if err != nil {
		c.logger.Warn("snapshot tenant rejected", slog.String("error", err.Error()))
		return snap
	}
	if !route.Valid() {
		c.logger.Warn("snapshot route class unknown", slog.String("route_class", string(route)))
		return snap
	}

	replicas, err := c.lastFloat(ctx, safeTenant, route, fieldReplicas)
	if err != nil || replicas == nil {
		if err != nil {
			c.logger.Warn("replica gauge unreadable", slog.String("tenant", safeTenant), slog.String("error", err.Error()))
		}
		return snap
	}
	snap.CurrentReplicas = int(math.Round(*replicas))

	if v, err := c.lastFloat(ctx, safeTenant, route, fieldP95); err == nil && v != nil {
		snap.P95MS = v
	}
	if v, err := c.lastFloat(ctx, safeTenant, route, fieldQueueDepth); err == nil && v != nil {
		snap.QueueDepth = v
	}
	return snap
}

// Ping checks InfluxDB health.
func (c *InfluxCollector) Ping(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx health: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return fmt.Errorf("influx health status not passing")
	}
	return nil
}

// Close shuts down the underlying HTTP client.
func (c *InfluxCollector) Close() {
	c.client.Close()
}

// lastFloat returns the most recent value for one field within the
// lookback window, or nil when no point exists.
func (c *InfluxCollector) lastFloat(ctx context.Context, tenant string, route datatypes.RouteClass, field string) (*float64, error) {
	// Tenant is sanitized and route comes from a closed enum, so the
	// interpolation cannot carry Flux injection.
	flux := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -%ds)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.tenant == "%s" and r.route_class == "%s")
		  |> filter(fn: (r) => r._field == "%s")
		  |> last()
	`, c.bucket, int(c.lookback.Seconds()), signalMeasurement, tenant, route, field)

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", field, err)
	}
	if result == nil {
		return nil, nil
	}

	var value *float64
	for result.Next() {
		if v, ok := result.Record().Value().(float64); ok {
			value = &v
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	return value, nil
}

func (c *InfluxCollector) countCollection(ctx context.Context, quality datatypes.SignalQuality) {
	if c.metrics == nil {
		return
	}
	c.metrics.SignalCollectionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", BackendInflux),
		attribute.String("quality", string(quality)),
	))
}
