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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all SLA engine routes with the router.
//
// Description:
//
//	Registers the /v1/* endpoints with the given Gin router group. The
//	group should already have any required middleware applied. /health
//	and /metrics live on the root router, wired by the daemon main.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Ingest Endpoints:
//
//	POST /v1/observations - Record a request sample into the windows
//
// Enforcement Endpoints:
//
//	POST /v1/evaluate - Run one SLA evaluation for a tenant and route class
//	POST /v1/autoscale/evaluate - Dry-run an autoscaling profile
//	POST /v1/autoscale/apply - Run a profile and drive the executor
//
// Read Endpoints:
//
//	GET /v1/status - Catalog stats, fingerprints, configured backends
//	GET /v1/incidents - Incident trail for a tenant, newest first
//	GET /v1/actions - Autoscaling action trail for a profile, newest first
//	GET /v1/measurements - Stored window measurements, newest first
//
// Example:
//
//	svc, _ := engine.NewService(ctx, cfg, logger)
//	handlers := engine.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	engine.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	// Ingest
	rg.POST("/observations", handlers.HandleObserve)

	// Enforcement
	rg.POST("/evaluate", handlers.HandleEvaluate)
	autoscale := rg.Group("/autoscale")
	{
		autoscale.POST("/evaluate", handlers.HandleAutoscaleEvaluate)
		autoscale.POST("/apply", handlers.HandleAutoscaleApply)
	}

	// Stored rows and status
	rg.GET("/status", handlers.HandleStatus)
	rg.GET("/incidents", handlers.HandleListIncidents)
	rg.GET("/actions", handlers.HandleListActions)
	rg.GET("/measurements", handlers.HandleListMeasurements)
}
