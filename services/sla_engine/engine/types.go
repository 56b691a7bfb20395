// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"time"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/catalog"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
)

// ServiceVersion is the SLA engine service version.
const ServiceVersion = "0.4.0"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ObservationRequest is the request for POST /v1/observations.
type ObservationRequest struct {
	// Tenant is the tenant the request was served for.
	Tenant string `json:"tenant" binding:"required"`

	// RouteClass is the route class that served the request
	// (run, read, mutation, ingest, ops, admin).
	RouteClass string `json:"route_class" binding:"required"`

	// LatencyMS is the observed end-to-end latency in milliseconds.
	LatencyMS float64 `json:"latency_ms"`

	// StatusCode is the HTTP status the request finished with.
	StatusCode int `json:"status_code" binding:"required"`

	// SaturationPct is the backend saturation gauge at serve time, if the
	// caller sampled one.
	SaturationPct *float64 `json:"saturation_pct,omitempty"`

	// At overrides the sample timestamp. Omit it for live traffic; replay
	// tools set it to backfill historical windows.
	At *time.Time `json:"at,omitempty"`
}

// EvaluateRequest is the request for POST /v1/evaluate.
type EvaluateRequest struct {
	// Tenant is the tenant to evaluate.
	Tenant string `json:"tenant" binding:"required"`

	// RouteClass is the route class to evaluate.
	RouteClass string `json:"route_class" binding:"required"`
}

// AutoscaleRequest is the request for POST /v1/autoscale/evaluate and
// POST /v1/autoscale/apply.
type AutoscaleRequest struct {
	// ProfileID names the autoscaling profile to run.
	ProfileID string `json:"profile_id" binding:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ObservationResponse is the response for POST /v1/observations.
type ObservationResponse struct {
	// Accepted is true when the sample entered a window buffer.
	Accepted bool `json:"accepted"`

	// ClosedMeasurements are the aligned windows this sample closed, if any.
	ClosedMeasurements []*datatypes.Measurement `json:"closed_measurements,omitempty"`

	// BufferedSamples is the fast-window buffer depth after the write.
	BufferedSamples int `json:"buffered_samples"`
}

// IncidentsResponse is the response for GET /v1/incidents.
type IncidentsResponse struct {
	Incidents []*datatypes.Incident `json:"incidents"`
	Count     int                   `json:"count"`
}

// ActionsResponse is the response for GET /v1/actions.
type ActionsResponse struct {
	Actions []*datatypes.AutoscalingAction `json:"actions"`
	Count   int                            `json:"count"`
}

// MeasurementsResponse is the response for GET /v1/measurements.
type MeasurementsResponse struct {
	Measurements []*datatypes.Measurement `json:"measurements"`
	Count        int                      `json:"count"`
}

// StatusResponse is the response for GET /v1/status.
type StatusResponse struct {
	// Service is the service name.
	Service string `json:"service"`

	// Version is the service version.
	Version string `json:"version"`

	// UptimeSeconds is how long the service has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Catalog summarizes the loaded policy catalog.
	Catalog catalog.Stats `json:"catalog"`

	// PolicyFingerprints maps catalog document IDs to content fingerprints.
	PolicyFingerprints map[string]string `json:"policy_fingerprints"`

	// SignalsBackend is the live signal collector in use.
	SignalsBackend string `json:"signals_backend"`

	// ExecutorBackend is the scale executor in use.
	ExecutorBackend string `json:"executor_backend"`

	// AutoscaleDryRun is true when the autoscale loop only records
	// recommendations.
	AutoscaleDryRun bool `json:"autoscale_dry_run"`

	// SLAEnabled is true when the enforcement sweep loop is running.
	SLAEnabled bool `json:"sla_enabled"`

	// DataDir is the BadgerDB directory, empty for in-memory databases.
	DataDir string `json:"data_dir,omitempty"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	// Status is "healthy" or "degraded".
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`

	// Details explains a degraded status.
	Details string `json:"details,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}
