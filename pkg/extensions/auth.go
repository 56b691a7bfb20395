// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication or authorization fails.
// Enterprise implementations should wrap this error with additional context.
//
// Example:
//
//	if !validToken {
//	    return nil, fmt.Errorf("invalid token format: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo contains identity information returned after successful
// authentication.
//
// Required fields (always populated):
//   - UserID: Unique identifier for the user
//
// Optional fields (may be empty):
//   - Email, Roles, Metadata
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated user.
	// This is the only required field and must never be empty.
	UserID string

	// Email is the user's email address, if the provider supplies one.
	Email string

	// Roles contains the user's role memberships for authorization
	// decisions. Common roles: "admin", "operator", "auditor", "viewer"
	Roles []string

	// Metadata holds additional claims from the identity provider.
	Metadata Metadata
}

// HasRole checks if the user has a specific role.
//
//	if !authInfo.HasRole("operator") {
//	    return ErrUnauthorized
//	}
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user identity.
//
// Implementations must be safe for concurrent use.
//
// # Open Source Behavior
//
// The default NopAuthProvider always returns a valid "local-user" with
// admin privileges, so the read-only ops API and CLI work without any
// authentication infrastructure.
//
// # Enterprise Implementation
//
// Enterprise versions validate tokens against identity providers like
// Okta, Auth0, or Azure AD and return the mapped identity.
type AuthProvider interface {
	// Validate checks if the token is valid and returns the user's
	// identity. Returns ErrUnauthorized (or wrapped) if invalid.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest describes an authorization check as a
// (subject, action, resource) triple.
//
// Example:
//
//	req := AuthzRequest{
//	    User:         authInfo,
//	    Action:       "read",
//	    ResourceType: "incident",
//	    ResourceID:   "inc-456",
//	}
type AuthzRequest struct {
	// User is the authenticated user making the request.
	User *AuthInfo

	// Action is the operation being attempted.
	// Common actions: "read", "evaluate", "apply", "export"
	Action string

	// ResourceType is the category of resource being accessed.
	// Examples: "incident", "action", "measurement", "policy"
	ResourceType string

	// ResourceID is the specific resource instance. If empty, the check
	// covers the resource type in general.
	ResourceID string
}

// AuthzProvider checks if a user is authorized to perform an action.
//
// Implementations must be safe for concurrent use. The default
// NopAuthzProvider allows everything; enterprise versions implement
// RBAC or policy-based access control over the guard resources.
type AuthzProvider interface {
	// Authorize returns nil when the action is permitted and
	// ErrUnauthorized (or wrapped) when denied.
	Authorize(ctx context.Context, req AuthzRequest) error
}

// NopAuthProvider is the default authentication provider for open source.
//
// It always returns a valid local user with admin privileges, enabling
// the ops surface to function without authentication infrastructure.
//
// Thread-safe: this implementation has no mutable state.
type NopAuthProvider struct{}

// Validate always returns a valid local user with admin privileges.
// The token is ignored; any value (including empty) authenticates.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

// NopAuthzProvider is the default authorization provider for open source.
//
// It allows all actions unconditionally, appropriate for single-operator
// deployments where access control isn't needed.
//
// Thread-safe: this implementation has no mutable state.
type NopAuthzProvider struct{}

// Authorize always permits the action.
func (p *NopAuthzProvider) Authorize(_ context.Context, _ AuthzRequest) error {
	return nil
}

// Compile-time interface compliance checks.
var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
)
