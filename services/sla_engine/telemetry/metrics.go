// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the SLA engine service.
//
// Description:
//
//	Provides standard counters, histograms, and gauges for SLA evaluations,
//	breach detection, autoscaling recommendations, and audit recording.
//	All metrics use the "guard_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- SLA Metrics ---

	// SLAEvaluationsTotal counts SLA evaluations by status and decision.
	SLAEvaluationsTotal metric.Int64Counter

	// SLABreachesTotal counts detected breaches by type and severity.
	SLABreachesTotal metric.Int64Counter

	// EvaluationDuration records SLA evaluation duration in seconds.
	EvaluationDuration metric.Float64Histogram

	// OpenIncidents tracks the number of non-resolved incidents.
	OpenIncidents metric.Int64ObservableGauge

	// --- Window Metrics ---

	// WindowSamples tracks samples currently held in rolling buffers.
	WindowSamples metric.Int64UpDownCounter

	// WindowEvictionsTotal counts samples dropped by window eviction.
	WindowEvictionsTotal metric.Int64Counter

	// --- Autoscaling Metrics ---

	// AutoscaleActionsTotal counts recommendations by action and reason.
	AutoscaleActionsTotal metric.Int64Counter

	// RecommendationDuration records recommendation duration in seconds.
	RecommendationDuration metric.Float64Histogram

	// --- Signal Metrics ---

	// SignalCollectionsTotal counts live signal collections by backend and quality.
	SignalCollectionsTotal metric.Int64Counter

	// --- Audit Metrics ---

	// AuditEventsTotal counts recorded audit events by type.
	AuditEventsTotal metric.Int64Counter

	// --- Error Metrics ---

	// ErrorsTotal counts total errors by type and component.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Description:
//
//	Registers all pre-defined metrics with the provided meter.
//	Returns an error if any metric registration fails.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all counters and histograms initialized.
//	error - Non-nil if metric registration fails.
//
// Example:
//
//	meter := otel.Meter("sla_engine")
//	metrics, err := telemetry.NewMetrics(meter)
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	metrics.SLAEvaluationsTotal.Add(ctx, 1, ...)
//
// Thread Safety: Safe for concurrent use after creation.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- SLA Metrics ---
	m.SLAEvaluationsTotal, err = meter.Int64Counter(
		"guard_sla_evaluations_total",
		metric.WithDescription("Total SLA evaluations"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sla_evaluations_total: %w", err)
	}

	m.SLABreachesTotal, err = meter.Int64Counter(
		"guard_sla_breaches_total",
		metric.WithDescription("Total SLA breaches detected"),
		metric.WithUnit("{breach}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sla_breaches_total: %w", err)
	}

	m.EvaluationDuration, err = meter.Float64Histogram(
		"guard_sla_evaluation_duration_seconds",
		metric.WithDescription("SLA evaluation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	if err != nil {
		return nil, fmt.Errorf("create sla_evaluation_duration: %w", err)
	}

	// Note: OpenIncidents requires a callback registration, handled separately

	// --- Window Metrics ---
	m.WindowSamples, err = meter.Int64UpDownCounter(
		"guard_window_buffer_samples",
		metric.WithDescription("Samples currently held in rolling window buffers"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create window_buffer_samples: %w", err)
	}

	m.WindowEvictionsTotal, err = meter.Int64Counter(
		"guard_window_evictions_total",
		metric.WithDescription("Total samples dropped by window eviction"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create window_evictions_total: %w", err)
	}

	// --- Autoscaling Metrics ---
	m.AutoscaleActionsTotal, err = meter.Int64Counter(
		"guard_autoscale_actions_total",
		metric.WithDescription("Total autoscaling recommendations"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create autoscale_actions_total: %w", err)
	}

	m.RecommendationDuration, err = meter.Float64Histogram(
		"guard_autoscale_recommendation_duration_seconds",
		metric.WithDescription("Autoscaling recommendation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create recommendation_duration: %w", err)
	}

	// --- Signal Metrics ---
	m.SignalCollectionsTotal, err = meter.Int64Counter(
		"guard_signal_collections_total",
		metric.WithDescription("Total live signal collections"),
		metric.WithUnit("{collection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create signal_collections_total: %w", err)
	}

	// --- Audit Metrics ---
	m.AuditEventsTotal, err = meter.Int64Counter(
		"guard_audit_events_total",
		metric.WithDescription("Total audit events recorded"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit_events_total: %w", err)
	}

	// --- Error Metrics ---
	m.ErrorsTotal, err = meter.Int64Counter(
		"guard_errors_total",
		metric.WithDescription("Total errors by type and component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}

// RegisterOpenIncidents registers a callback for the open incidents gauge.
//
// Description:
//
//	Sets up an observable gauge that reports the number of non-resolved
//	incidents. The callback is invoked each time metrics are scraped.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//	countFunc - A function that returns the current open incident count.
//
// Outputs:
//
//	metric.Registration - Registration handle for cleanup.
//	error - Non-nil if registration fails.
func (m *Metrics) RegisterOpenIncidents(meter metric.Meter, countFunc func() int64) (metric.Registration, error) {
	var err error
	m.OpenIncidents, err = meter.Int64ObservableGauge(
		"guard_open_incidents",
		metric.WithDescription("Number of non-resolved SLA incidents"),
		metric.WithUnit("{incident}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create open_incidents: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.OpenIncidents, countFunc())
		return nil
	}, m.OpenIncidents)
}
