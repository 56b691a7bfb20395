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
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/autoscaler"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
)

// Handlers provides HTTP handlers for the SLA engine endpoints.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers backed by the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleObserve handles POST /v1/observations.
//
// Description:
//
//	Records one request sample into the rolling windows. When the sample
//	closes an aligned window the computed measurements are persisted and
//	returned so callers can see percentile folds land.
//
// Response:
//
//	202 Accepted: ObservationResponse
//	400 Bad Request: Invalid body, unknown route class, or negative latency
//	500 Internal Server Error: Measurement write failed
func (h *Handlers) HandleObserve(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleObserve")

	var req ObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	route, err := datatypes.ParseRouteClass(req.RouteClass)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "UNKNOWN_ROUTE_CLASS",
		})
		return
	}
	if req.LatencyMS < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "latency_ms must not be negative",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	now := time.Now().UTC()
	if req.At != nil {
		now = req.At.UTC()
	}

	closed, err := h.svc.aggregator.RecordObservation(c.Request.Context(),
		req.Tenant, route, req.LatencyMS, req.StatusCode, req.SaturationPct, now)
	if err != nil {
		logger.Error("Observation write failed", "tenant", req.Tenant, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to record observation",
			Code:  "OBSERVATION_FAILED",
		})
		return
	}

	c.JSON(http.StatusAccepted, ObservationResponse{
		Accepted:           true,
		ClosedMeasurements: closed,
		BufferedSamples:    h.svc.aggregator.BufferedSamples(req.Tenant, route, h.svc.windowConfig.FastWindowSeconds),
	})
}

// HandleEvaluate handles POST /v1/evaluate.
//
// Description:
//
//	Runs one SLA evaluation for a tenant and route class and returns the
//	full verdict: status, breaches, enforcement decision, degrade actions,
//	and signal quality. Evaluation persists incident state as a side
//	effect, exactly as the sweep loop does.
//
// Response:
//
//	200 OK: datatypes.Evaluation
//	400 Bad Request: Invalid body or unknown route class
//	500 Internal Server Error: Evaluation failed
func (h *Handlers) HandleEvaluate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleEvaluate")

	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	route, err := datatypes.ParseRouteClass(req.RouteClass)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "UNKNOWN_ROUTE_CLASS",
		})
		return
	}

	eval, err := h.svc.evaluator.EvaluateTenantSLA(c.Request.Context(), req.Tenant, route)
	if err != nil {
		logger.Error("Evaluation failed", "tenant", req.Tenant, "route_class", req.RouteClass, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Evaluation failed",
			Code:    "EVALUATION_FAILED",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, eval)
}

// HandleAutoscaleEvaluate handles POST /v1/autoscale/evaluate.
//
// Description:
//
//	Dry-runs one autoscaling profile: collects a live signal snapshot,
//	computes the recommendation, and records it without touching the
//	executor. Cooldown shows up as a hold in the returned action, never
//	as an error on this path.
//
// Response:
//
//	200 OK: datatypes.AutoscalingAction
//	400 Bad Request: Invalid body
//	404 Not Found: Unknown profile
//	500 Internal Server Error: Recommendation failed
func (h *Handlers) HandleAutoscaleEvaluate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAutoscaleEvaluate")

	profile, ok := h.bindProfile(c, logger)
	if !ok {
		return
	}

	snapshot := h.svc.collector.Snapshot(c.Request.Context(), profile.Tenant, profile.RouteClass)
	action, err := h.svc.recommender.Evaluate(c.Request.Context(), profile, profile.Tenant, snapshot)
	if err != nil {
		logger.Error("Autoscale evaluation failed", "profile_id", profile.ID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Autoscale evaluation failed",
			Code:    "AUTOSCALE_FAILED",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, action)
}

// HandleAutoscaleApply handles POST /v1/autoscale/apply.
//
// Description:
//
//	Runs one autoscaling profile and drives the configured executor when
//	the recommendation changes replicas. A cooldown conflict returns 409
//	with the blocking hold already recorded; an unreachable executor
//	returns 502 with the unexecuted action already recorded.
//
// Response:
//
//	200 OK: datatypes.AutoscalingAction
//	400 Bad Request: Invalid body
//	404 Not Found: Unknown profile
//	409 Conflict: Cooldown blocks the replica change
//	502 Bad Gateway: Executor rejected or unreachable
//	500 Internal Server Error: Recommendation failed
func (h *Handlers) HandleAutoscaleApply(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAutoscaleApply")

	profile, ok := h.bindProfile(c, logger)
	if !ok {
		return
	}

	snapshot := h.svc.collector.Snapshot(c.Request.Context(), profile.Tenant, profile.RouteClass)
	action, err := h.svc.recommender.Apply(c.Request.Context(), profile, profile.Tenant, snapshot)
	switch {
	case errors.Is(err, autoscaler.ErrCooldownActive):
		logger.Info("Apply blocked by cooldown", "profile_id", profile.ID)
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: err.Error(),
			Code:  "COOLDOWN_ACTIVE",
		})
		return
	case errors.Is(err, autoscaler.ErrExecutorUnavailable):
		logger.Error("Executor unavailable", "profile_id", profile.ID, "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: err.Error(),
			Code:  "EXECUTOR_UNAVAILABLE",
		})
		return
	case err != nil:
		logger.Error("Autoscale apply failed", "profile_id", profile.ID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Autoscale apply failed",
			Code:    "AUTOSCALE_FAILED",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, action)
}

// bindProfile parses an AutoscaleRequest and resolves its profile from the
// catalog, writing the error response itself when either step fails.
func (h *Handlers) bindProfile(c *gin.Context, logger *slog.Logger) (*datatypes.AutoscalingProfile, bool) {
	var req AutoscaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return nil, false
	}

	profile, ok := h.svc.catalog.Profile(req.ProfileID)
	if !ok {
		logger.Warn("Profile not found", "profile_id", req.ProfileID)
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "profile not found",
			Code:  "PROFILE_NOT_FOUND",
		})
		return nil, false
	}
	return profile, true
}

// HandleListIncidents handles GET /v1/incidents.
//
// Query Parameters:
//
//	tenant: Tenant to list incidents for (required)
//	include_resolved: Include resolved incidents (optional, default false)
//	limit: Maximum number of results (optional, default 50)
//
// Response:
//
//	200 OK: IncidentsResponse (newest first)
//	400 Bad Request: Missing tenant
//	500 Internal Server Error: Read failed
func (h *Handlers) HandleListIncidents(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListIncidents")

	tenant := c.Query("tenant")
	if tenant == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "tenant query parameter is required",
			Code:  "MISSING_TENANT",
		})
		return
	}
	includeResolved := c.Query("include_resolved") == "true"
	limit := queryInt(c, "limit", 50)

	incidents, err := h.svc.store.ListIncidents(c.Request.Context(), tenant, includeResolved, limit)
	if err != nil {
		logger.Error("Incident read failed", "tenant", tenant, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to list incidents",
			Code:  "STORE_READ_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, IncidentsResponse{Incidents: incidents, Count: len(incidents)})
}

// HandleListActions handles GET /v1/actions.
//
// Query Parameters:
//
//	profile: Autoscaling profile to list actions for (required)
//	limit: Maximum number of results (optional, default 50)
//
// Response:
//
//	200 OK: ActionsResponse (newest first)
//	400 Bad Request: Missing profile
//	500 Internal Server Error: Read failed
func (h *Handlers) HandleListActions(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListActions")

	profileID := c.Query("profile")
	if profileID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "profile query parameter is required",
			Code:  "MISSING_PROFILE",
		})
		return
	}
	limit := queryInt(c, "limit", 50)

	actions, err := h.svc.store.ListActions(c.Request.Context(), profileID, limit)
	if err != nil {
		logger.Error("Action read failed", "profile_id", profileID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to list actions",
			Code:  "STORE_READ_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, ActionsResponse{Actions: actions, Count: len(actions)})
}

// HandleListMeasurements handles GET /v1/measurements.
//
// Query Parameters:
//
//	tenant: Tenant to read (required)
//	route_class: Route class to read (required)
//	window: Window length in seconds (optional, default fast window)
//	limit: Maximum number of results (optional, default 20)
//
// Response:
//
//	200 OK: MeasurementsResponse (newest first)
//	400 Bad Request: Missing tenant or unknown route class
//	500 Internal Server Error: Read failed
func (h *Handlers) HandleListMeasurements(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListMeasurements")

	tenant := c.Query("tenant")
	if tenant == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "tenant query parameter is required",
			Code:  "MISSING_TENANT",
		})
		return
	}
	route, err := datatypes.ParseRouteClass(c.Query("route_class"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "UNKNOWN_ROUTE_CLASS",
		})
		return
	}
	window := queryInt(c, "window", h.svc.windowConfig.FastWindowSeconds)
	limit := queryInt(c, "limit", 20)

	measurements, err := h.svc.store.LatestMeasurements(c.Request.Context(), tenant, route, window, limit)
	if err != nil {
		logger.Error("Measurement read failed", "tenant", tenant, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to list measurements",
			Code:  "STORE_READ_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, MeasurementsResponse{Measurements: measurements, Count: len(measurements)})
}

// HandleStatus handles GET /v1/status.
//
// Description:
//
//	Returns the operational snapshot: catalog stats and fingerprints,
//	configured backends, and the dry-run and enable flags. This is the
//	first endpoint to check when a policy edit does not seem to take.
//
// Response:
//
//	200 OK: StatusResponse
func (h *Handlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Service:            "sla_engine",
		Version:            ServiceVersion,
		UptimeSeconds:      int64(time.Since(h.svc.startedAt).Seconds()),
		Catalog:            h.svc.catalog.Stats(),
		PolicyFingerprints: h.svc.catalog.Fingerprints(),
		SignalsBackend:     h.svc.collector.Name(),
		ExecutorBackend:    h.svc.executor.Name(),
		AutoscaleDryRun:    h.svc.config.Autoscale.DryRun,
		SLAEnabled:         h.svc.config.SLA.Enabled,
		DataDir:            h.svc.db.Path(),
	})
}

// HandleHealth handles GET /health.
//
// Description:
//
//	Returns 200 whenever the process is serving. The status field reports
//	"degraded" when the signal backend does not answer a ping, which the
//	evaluator tolerates by marking verdicts degraded rather than failing.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	resp := HealthResponse{Status: "healthy", Version: ServiceVersion}
	if err := h.svc.collector.Ping(c.Request.Context()); err != nil {
		resp.Status = "degraded"
		resp.Details = "signal backend unreachable: " + err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// queryInt parses a positive integer query parameter, falling back on
// absent or malformed values.
func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
