// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the SLA engine API.
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it through the configured AuthProvider, and stores
// the resulting AuthInfo in the Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store AuthInfo in context
//	           │
//	           ▼
//	       Handler (retrieves via GetAuthInfo)
//
// # Open Source Behavior
//
// With the default NopAuthProvider every request authenticates as
// "local-user" with the admin role, so guardd works out of the box with
// no identity infrastructure. Enterprise builds substitute a provider
// that validates tokens against a real identity backend and gate the
// mutating endpoints with RequireAction.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGuard/pkg/extensions"
)

// authInfoKey is the Gin context key for the authenticated identity.
// A typed key string prevents collisions with other context values.
const authInfoKey = "guard_auth_info"

// SetAuthInfo stores the authenticated identity in the Gin context.
// Called by AuthMiddleware after a successful Validate; request-scoped.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated identity from the Gin context.
//
// Returns nil when the request was not authenticated or the stored value
// has the wrong type.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// Description:
//
//	Extracts the bearer token from the Authorization header, validates
//	it with the provider, and stores the resulting AuthInfo for
//	downstream handlers. A missing or malformed header yields an empty
//	token, which the NopAuthProvider accepts as the local operator.
//
// Inputs:
//
//	provider - AuthProvider to validate tokens. Must not be nil.
//
// Outputs:
//
//	gin.HandlerFunc - Middleware, typically applied to the /v1 group:
//
//	    v1 := router.Group("/v1")
//	    v1.Use(middleware.AuthMiddleware(provider))
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			// Provider failures read as unauthorized too; leaking the
			// failure mode to the caller helps nobody.
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// RequireAction creates a Gin middleware that authorizes one operation.
//
// Description:
//
//	Checks the authenticated identity against the authz provider for an
//	(action, resource type) pair before the handler runs. Requests with
//	no identity in context are rejected outright, so the middleware must
//	run after AuthMiddleware. Intended for the mutating endpoints, where
//	a replica change is more than a read:
//
//	    autoscale.POST("/apply",
//	        middleware.RequireAction(authz, "apply", "autoscale"),
//	        handlers.HandleAutoscaleApply)
//
// Inputs:
//
//	provider - AuthzProvider to consult. Must not be nil.
//	action - Operation being attempted, e.g. "apply" or "export".
//	resourceType - Resource category, e.g. "autoscale" or "incident".
//
// Outputs:
//
//	gin.HandlerFunc - Middleware that responds 401 without an identity
//	and 403 on a denial.
func RequireAction(provider extensions.AuthzProvider, action, resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authInfo := GetAuthInfo(c)
		if authInfo == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		err := provider.Authorize(c.Request.Context(), extensions.AuthzRequest{
			User:         authInfo,
			Action:       action,
			ResourceType: resourceType,
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "forbidden",
			})
			return
		}

		c.Next()
	}
}

// extractBearerToken extracts the token from the Authorization header.
//
// Expects "Bearer <token>" with a case-insensitive scheme per RFC 7235.
// Returns the empty string when the header is missing or malformed.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
