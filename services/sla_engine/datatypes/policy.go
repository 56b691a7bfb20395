// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the externally authored catalog records: policies and
// tenant assignments. The engine only reads these; the admin surface owns
// them. The raw policy document is validated by the policy package at
// evaluation time, after the assignment override is merged in.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// catalogValidate validates catalog records loaded from the admin surface.
var catalogValidate *validator.Validate

func init() {
	catalogValidate = validator.New()
}

// Policy is a named, versioned configuration record. Tenant is empty for
// global policies, which serve as the fallback when a tenant has no current
// assignment.
type Policy struct {
	ID        string         `json:"id" yaml:"id" validate:"required"`
	Name      string         `json:"name" yaml:"name" validate:"required"`
	Version   int            `json:"version" yaml:"version" validate:"gte=1"`
	Tenant    string         `json:"tenant,omitempty" yaml:"tenant,omitempty"`
	Enabled   bool           `json:"enabled" yaml:"enabled"`
	Document  map[string]any `json:"config" yaml:"config" validate:"required"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
}

// Validate checks the record envelope. The Document body is deliberately not
// validated here; that happens in the policy parser with override merging.
func (p *Policy) Validate() error {
	return catalogValidate.Struct(p)
}

// Global reports whether the policy is tenant-less.
func (p *Policy) Global() bool {
	return p.Tenant == ""
}

// TenantAssignment binds one tenant to one policy for the time range
// [EffectiveFrom, EffectiveTo). A nil EffectiveTo means open-ended. Override
// is JSON-merged over the policy's base document before parsing.
type TenantAssignment struct {
	ID            string         `json:"id" yaml:"id" validate:"required"`
	Tenant        string         `json:"tenant" yaml:"tenant" validate:"required"`
	PolicyID      string         `json:"policy_id" yaml:"policy_id" validate:"required"`
	EffectiveFrom time.Time      `json:"effective_from" yaml:"effective_from"`
	EffectiveTo   *time.Time     `json:"effective_to,omitempty" yaml:"effective_to,omitempty"`
	Override      map[string]any `json:"override,omitempty" yaml:"override,omitempty"`
}

// Validate checks the assignment envelope.
func (a *TenantAssignment) Validate() error {
	return catalogValidate.Struct(a)
}

// CurrentAt reports whether the assignment is in effect at the given time.
func (a *TenantAssignment) CurrentAt(now time.Time) bool {
	if now.Before(a.EffectiveFrom) {
		return false
	}
	return a.EffectiveTo == nil || now.Before(*a.EffectiveTo)
}
