// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries, storage keys, or subprocess calls. Using these validators
// prevents injection attacks (Flux injection, key corruption, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// tenantPattern matches valid tenant identifiers.
// Allows: lowercase letters, digits, then dots, hyphens, underscores.
// Max length: 64 characters.
var tenantPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._\-]{0,63}$`)

// ValidateTenant validates a tenant identifier to prevent Flux injection
// and storage key corruption.
//
// Valid tenants:
//   - 1-64 characters
//   - Lowercase letters a-z and digits 0-9
//   - Dots (.), hyphens (-), and underscores (_) after the first character
//
// Returns an error if the tenant is invalid.
//
// Example:
//
//	if err := validation.ValidateTenant(tenant); err != nil {
//	    return nil, fmt.Errorf("invalid tenant: %w", err)
//	}
//	// Safe to use in a Flux query or storage key
func ValidateTenant(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant cannot be empty")
	}

	if !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant format: %q (must be 1-64 lowercase alphanumeric chars, dots, hyphens, or underscores)", tenant)
	}

	return nil
}

// SanitizeTenant normalizes and validates a tenant identifier.
// Returns the lowercase tenant if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	safeTenant, err := validation.SanitizeTenant(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeTenant is lowercase and validated
func SanitizeTenant(tenant string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(tenant))
	if err := ValidateTenant(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// catalogIDPattern matches valid catalog record identifiers (policies,
// assignments, autoscaling profiles). Same shape as tenants but mixed
// case is tolerated since IDs come from YAML authors.
var catalogIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// ValidateCatalogID validates a policy, assignment, or profile identifier.
//
// Valid IDs:
//   - 1-64 characters
//   - Letters, digits, dots, hyphens, underscores
//   - Must start with a letter or digit
//
// Returns an error if the ID is invalid.
func ValidateCatalogID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}

	if !catalogIDPattern.MatchString(id) {
		return fmt.Errorf("invalid id format: %q (must be 1-64 alphanumeric chars, dots, hyphens, or underscores)", id)
	}

	return nil
}
