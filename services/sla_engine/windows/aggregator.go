// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package windows turns per-request observations into rolling per-window
statistics without requiring an external time-series database.

The Aggregator keeps a bounded in-memory sample buffer per
(tenant, route class, window length) key and upserts one durable
Measurement row per aligned time bucket. Two window lengths are maintained
simultaneously: a fast window for reaction and a slow window for
error-budget burn smoothing.

# Design Rationale

SLA checks need percentiles over the last minute, not a full metrics
pipeline. A rolling buffer plus aligned-bucket upserts gives reproducible
window boundaries: concurrent writers updating the current bucket converge
on the same Measurement identity instead of producing sliding duplicates.

# Limitations

Buffers are process-local, unpersisted state. Running multiple instances
without sticky routing per (tenant, route class) yields inconsistent
percentile views across workers; only the upserted Measurement rows are
durable. Route observations for a given key to one owner, or replace the
buffer with a shared aggregation store, before scaling out.
*/
package windows

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/telemetry"
)

// =============================================================================
// INTERFACE DEFINITIONS
// =============================================================================

// Sink persists aggregated window statistics.
//
// # Description
//
// The Aggregator upserts exactly one Measurement per aligned bucket on
// every write. Implementations must treat the Measurement ID as the row
// identity: create if absent, else overwrite the numeric fields and
// computed_at (last-write-wins).
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Sink interface {
	UpsertMeasurement(ctx context.Context, m *datatypes.Measurement) error
}

// =============================================================================
// STRUCT DEFINITIONS
// =============================================================================

// Config configures the window aggregator.
type Config struct {
	// FastWindowSeconds is the reaction window length. Default: 60.
	FastWindowSeconds int

	// SlowWindowSeconds is the burn-rate smoothing window length. Default: 300.
	SlowWindowSeconds int

	// MaxSamplesPerKey bounds each rolling buffer. When a buffer exceeds the
	// limit the oldest samples are dropped. Default: 8192.
	MaxSamplesPerKey int
}

// DefaultConfig returns sensible aggregator defaults.
func DefaultConfig() Config {
	return Config{
		FastWindowSeconds: 60,
		SlowWindowSeconds: 300,
		MaxSamplesPerKey:  8192,
	}
}

// bufferKey identifies one rolling sample buffer.
type bufferKey struct {
	tenant        string
	route         datatypes.RouteClass
	windowSeconds int
}

// Aggregator maintains rolling sample buffers and writes Measurements.
//
// # Description
//
// On each observation the sample is appended to the fast and slow buffers
// for its (tenant, route class) pair, samples older than now minus the
// window length are evicted, and the surviving samples are folded into one
// Measurement per window, upserted through the Sink.
//
// # Thread Safety
//
// Safe for concurrent use via RWMutex.
type Aggregator struct {
	config  Config
	sink    Sink
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu      sync.RWMutex
	buffers map[bufferKey][]datatypes.Sample
}

// =============================================================================
// CONSTRUCTOR FUNCTIONS
// =============================================================================

// NewAggregator creates a window aggregator writing through the given sink.
//
// # Inputs
//
//   - config: Aggregator configuration. Zero fields take defaults.
//   - sink: Measurement persistence. Must not be nil.
//   - logger: Structured logger. Nil falls back to slog.Default().
//
// # Outputs
//
//   - *Aggregator: Ready-to-use aggregator.
func NewAggregator(config Config, sink Sink, logger *slog.Logger) *Aggregator {
	def := DefaultConfig()
	if config.FastWindowSeconds <= 0 {
		config.FastWindowSeconds = def.FastWindowSeconds
	}
	if config.SlowWindowSeconds <= 0 {
		config.SlowWindowSeconds = def.SlowWindowSeconds
	}
	if config.MaxSamplesPerKey <= 0 {
		config.MaxSamplesPerKey = def.MaxSamplesPerKey
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{
		config:  config,
		sink:    sink,
		logger:  logger,
		buffers: make(map[bufferKey][]datatypes.Sample),
	}
}

// SetMetrics wires optional telemetry instruments. Call before first use.
func (a *Aggregator) SetMetrics(m *telemetry.Metrics) {
	a.metrics = m
}

// =============================================================================
// Aggregator METHODS
// =============================================================================

// RecordObservation folds one request outcome into both rolling windows.
//
// # Description
//
// Appends the sample to the fast and slow buffers for the key, evicts
// samples older than now minus each window length, recomputes the window
// statistics, and upserts one Measurement per window for the current
// aligned bucket. The bucket boundary floor-divides epoch seconds by the
// window length, so repeated writes inside one bucket update the same row.
//
// # Inputs
//
//   - ctx: Context for sink writes.
//   - tenant: Tenant identifier. Must be non-empty.
//   - route: Route class of the request.
//   - latencyMS: Observed request latency in milliseconds.
//   - statusCode: HTTP-style status code; >= 500 counts as an error.
//   - saturationPct: Optional saturation gauge sampled with the request.
//   - now: Observation time. Zero value means time.Now().
//
// # Outputs
//
//   - []*datatypes.Measurement: Updated snapshots, fast window first.
//   - error: Non-nil if any sink upsert fails. Snapshots computed before
//     the failure are still returned.
func (a *Aggregator) RecordObservation(ctx context.Context, tenant string, route datatypes.RouteClass, latencyMS float64, statusCode int, saturationPct *float64, now time.Time) ([]*datatypes.Measurement, error) {
	if tenant == "" {
		return nil, fmt.Errorf("tenant must not be empty")
	}
	if !route.Valid() {
		return nil, fmt.Errorf("unknown route class: %s", route)
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	sample := datatypes.Sample{
		Timestamp:     now,
		LatencyMS:     latencyMS,
		StatusCode:    statusCode,
		SaturationPct: saturationPct,
	}

	measurements := make([]*datatypes.Measurement, 0, 2)
	var firstErr error

	for _, windowSeconds := range []int{a.config.FastWindowSeconds, a.config.SlowWindowSeconds} {
		m := a.ingest(bufferKey{tenant: tenant, route: route, windowSeconds: windowSeconds}, sample, now)
		measurements = append(measurements, m)

		if err := a.sink.UpsertMeasurement(ctx, m); err != nil {
			a.logger.Error("measurement upsert failed",
				"tenant", tenant,
				"route_class", route,
				"window_seconds", windowSeconds,
				"error", err)
			if a.metrics != nil {
				a.metrics.ErrorsTotal.Add(ctx, 1)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("upsert %ds measurement: %w", windowSeconds, err)
			}
		}
	}

	return measurements, firstErr
}

// BufferedSamples reports how many samples a key currently holds.
//
// # Description
//
// Exposed for buffer gauges and tests. Returns 0 for unknown keys.
func (a *Aggregator) BufferedSamples(tenant string, route datatypes.RouteClass, windowSeconds int) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.buffers[bufferKey{tenant: tenant, route: route, windowSeconds: windowSeconds}])
}

// ingest appends the sample, evicts expired ones, and folds the survivors
// into a Measurement for the current aligned bucket.
func (a *Aggregator) ingest(key bufferKey, sample datatypes.Sample, now time.Time) *datatypes.Measurement {
	cutoff := now.Add(-time.Duration(key.windowSeconds) * time.Second)

	a.mu.Lock()
	buffer := append(a.buffers[key], sample)

	kept := buffer[:0]
	evicted := 0
	for _, s := range buffer {
		if s.Timestamp.After(cutoff) {
			kept = append(kept, s)
		} else {
			evicted++
		}
	}

	// Enforce the per-key cap (rolling window)
	if len(kept) > a.config.MaxSamplesPerKey {
		evicted += len(kept) - a.config.MaxSamplesPerKey
		kept = kept[len(kept)-a.config.MaxSamplesPerKey:]
	}

	a.buffers[key] = kept
	snapshot := make([]datatypes.Sample, len(kept))
	copy(snapshot, kept)
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.WindowSamples.Add(context.Background(), int64(1-evicted))
		if evicted > 0 {
			a.metrics.WindowEvictionsTotal.Add(context.Background(), int64(evicted))
		}
	}

	return computeMeasurement(key, snapshot, now)
}

// =============================================================================
// WINDOW STATISTICS
// =============================================================================

// computeMeasurement folds a sample set into the aligned bucket statistics.
func computeMeasurement(key bufferKey, samples []datatypes.Sample, now time.Time) *datatypes.Measurement {
	windowStart := alignBucket(now, key.windowSeconds)
	windowEnd := windowStart.Add(time.Duration(key.windowSeconds) * time.Second)

	m := &datatypes.Measurement{
		ID:            datatypes.MeasurementID(key.tenant, key.route, key.windowSeconds, windowEnd),
		Tenant:        key.tenant,
		RouteClass:    key.route,
		WindowSeconds: key.windowSeconds,
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
		RequestCount:  int64(len(samples)),
		ComputedAt:    now,
	}

	if len(samples) == 0 {
		return m
	}

	latencies := make([]float64, 0, len(samples))
	saturationSum := 0.0
	saturationCount := 0
	for _, s := range samples {
		latencies = append(latencies, s.LatencyMS)
		if s.StatusCode >= 500 {
			m.ErrorCount++
		}
		if s.SaturationPct != nil {
			saturationSum += *s.SaturationPct
			saturationCount++
		}
	}

	sort.Float64s(latencies)
	m.P50MS = nearestRank(latencies, 0.50)
	m.P95MS = nearestRank(latencies, 0.95)
	m.P99MS = nearestRank(latencies, 0.99)

	availability := float64(m.RequestCount-m.ErrorCount) / float64(m.RequestCount) * 100
	m.AvailabilityPct = &availability

	if saturationCount > 0 {
		avg := saturationSum / float64(saturationCount)
		m.AvgSaturationPct = &avg
	}

	return m
}

// alignBucket floor-divides epoch seconds by the window length. All writers
// inside one window agree on the same bucket identity.
func alignBucket(now time.Time, windowSeconds int) time.Time {
	w := int64(windowSeconds)
	return time.Unix((now.Unix()/w)*w, 0).UTC()
}

// nearestRank returns the nearest-rank percentile of ascending-sorted values:
// index ceil(q*n)-1, clamped to the valid range.
func nearestRank(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(q*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
