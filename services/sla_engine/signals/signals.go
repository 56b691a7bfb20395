// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package signals collects the live gauges the engine cannot derive from
// its own request samples: saturation, queue depth, and replica counts.
//
// Collectors never fail an evaluation. A gauge that cannot be read comes
// back nil with the quality marked degraded and a human-readable detail,
// and the evaluator decides what a degraded reading means for the tenant.
//
// Three backends ship with the engine:
//
//	influx - reads the platform's signal bucket (production)
//	static - pins values from configuration (development)
//	nop    - reports everything unavailable (default)
package signals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
)

// Backend names accepted by New.
const (
	BackendInflux = "influx"
	BackendStatic = "static"
	BackendNop    = "nop"
)

// ErrUnknownBackend is returned when configuration names a backend this
// build does not provide.
var ErrUnknownBackend = errors.New("unknown signals backend")

// DefaultLookback bounds how stale a gauge may be before it counts as
// unavailable.
const DefaultLookback = 2 * time.Minute

// Collector obtains live signals for one (tenant, route class) scope.
//
// Thread Safety: Implementations are safe for concurrent use.
type Collector interface {
	// Name identifies the backend in logs and health output.
	Name() string

	// LiveSignals returns the gauges the SLA evaluator checks directly.
	// Unreadable gauges degrade the quality instead of failing.
	LiveSignals(ctx context.Context, tenant string, route datatypes.RouteClass) datatypes.LiveSignals

	// Snapshot returns the autoscaler's inputs. A snapshot without a
	// usable replica count comes back empty.
	Snapshot(ctx context.Context, tenant string, route datatypes.RouteClass) datatypes.SignalSnapshot

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// Config selects and configures a collector backend.
type Config struct {
	// Backend is one of influx, static, nop. Empty selects nop.
	Backend string

	// URL, Token, Org, Bucket configure the influx backend.
	URL    string
	Token  string
	Org    string
	Bucket string

	// Lookback bounds gauge staleness for the influx backend.
	// Zero selects DefaultLookback.
	Lookback time.Duration

	// Static configures the static backend.
	Static StaticValues
}

// StaticValues pins the gauges returned by the static backend. Nil
// pointers report as unavailable.
type StaticValues struct {
	Replicas      int
	P95MS         *float64
	QueueDepth    *float64
	SaturationPct *float64
}

// New builds the collector the configuration names.
func New(cfg Config, logger *slog.Logger) (Collector, error) {
	switch cfg.Backend {
	case "", BackendNop:
		return NewNop(), nil
	case BackendStatic:
		return NewStatic(cfg.Static), nil
	case BackendInflux:
		return NewInflux(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// degrade marks the signals degraded and appends one detail.
func degrade(s *datatypes.LiveSignals, detail string) {
	s.Quality = datatypes.SignalDegraded
	s.Details = append(s.Details, detail)
}

// -----------------------------------------------------------------------------
// Nop Backend
// -----------------------------------------------------------------------------

// NopCollector reports every gauge unavailable. It is the default so the
// engine runs on stored measurements alone until a real backend is wired.
type NopCollector struct{}

// NewNop creates the nop collector.
func NewNop() *NopCollector {
	return &NopCollector{}
}

func (c *NopCollector) Name() string { return BackendNop }

func (c *NopCollector) LiveSignals(_ context.Context, _ string, _ datatypes.RouteClass) datatypes.LiveSignals {
	return datatypes.LiveSignals{
		Quality: datatypes.SignalDegraded,
		Details: []string{"signals backend disabled"},
	}
}

func (c *NopCollector) Snapshot(_ context.Context, _ string, _ datatypes.RouteClass) datatypes.SignalSnapshot {
	return datatypes.SignalSnapshot{CollectedAt: time.Now().UTC()}
}

func (c *NopCollector) Ping(_ context.Context) error { return nil }

// -----------------------------------------------------------------------------
// Static Backend
// -----------------------------------------------------------------------------

// StaticCollector returns pinned values for every scope. Intended for
// development and for rehearsing degraded paths: any gauge left nil in
// the configuration reports as unavailable.
type StaticCollector struct {
	values StaticValues
}

// NewStatic creates a collector that always returns the given values.
func NewStatic(values StaticValues) *StaticCollector {
	return &StaticCollector{values: values}
}

func (c *StaticCollector) Name() string { return BackendStatic }

func (c *StaticCollector) LiveSignals(_ context.Context, _ string, _ datatypes.RouteClass) datatypes.LiveSignals {
	signals := datatypes.LiveSignals{Quality: datatypes.SignalOK}
	if c.values.SaturationPct != nil {
		v := *c.values.SaturationPct
		signals.SaturationPct = &v
	} else {
		degrade(&signals, "saturation_pct not configured")
	}
	if c.values.QueueDepth != nil {
		v := *c.values.QueueDepth
		signals.QueueDepth = &v
	} else {
		degrade(&signals, "queue_depth not configured")
	}
	return signals
}

func (c *StaticCollector) Snapshot(_ context.Context, _ string, _ datatypes.RouteClass) datatypes.SignalSnapshot {
	snap := datatypes.SignalSnapshot{
		CurrentReplicas: c.values.Replicas,
		CollectedAt:     time.Now().UTC(),
	}
	if c.values.P95MS != nil {
		v := *c.values.P95MS
		snap.P95MS = &v
	}
	if c.values.QueueDepth != nil {
		v := *c.values.QueueDepth
		snap.QueueDepth = &v
	}
	return snap
}

func (c *StaticCollector) Ping(_ context.Context) error { return nil }
