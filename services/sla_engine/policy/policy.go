// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy turns loosely-typed policy documents into strict,
// fully-validated configuration values.
//
// Policy documents are authored externally (YAML or JSON) and stored as raw
// maps on the catalog record. Tenant assignment overrides are JSON-merged
// over the base document first, then the merged document is parsed on every
// evaluation. Parsing is pure: no I/O, no caching, deterministic output for
// a given document and defaults.
package policy

import (
	"fmt"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
)

// ValidationError reports a malformed policy document field. Path is the
// dotted location of the offending field, e.g. "objectives.p95_ms_max.batch".
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "invalid policy: " + e.Reason
	}
	return fmt.Sprintf("invalid policy field %q: %s", e.Path, e.Reason)
}

// Defaults supplies process-wide values for the optional document fields.
// Required fields never fall back to defaults.
type Defaults struct {
	Mode                datatypes.EnforcementMode
	BreachWindowSeconds int
	TriggerWindows      int
	DisableAudioChannel bool
	MinResults          int
	MaxOutputBytes      int
}

// Objectives holds the validated performance targets. Nil pointers and
// missing map entries mean "no check for that metric".
type Objectives struct {
	AvailabilityPctMin   float64                            `json:"availability_pct_min"`
	P95MSMax             map[datatypes.RouteClass]float64   `json:"p95_ms_max"`
	P99MSMax             map[datatypes.RouteClass]float64   `json:"p99_ms_max,omitempty"`
	SaturationPctMax     *float64                           `json:"saturation_pct_max,omitempty"`
	MaxErrorBudgetBurn5M *float64                           `json:"max_error_budget_burn_5m,omitempty"`
}

// Enforcement holds the validated enforcement behavior.
type Enforcement struct {
	Mode                        datatypes.EnforcementMode `json:"mode"`
	BreachWindowSeconds         int                       `json:"breach_window_seconds"`
	ConsecutiveWindowsToTrigger int                       `json:"consecutive_windows_to_trigger"`
}

// Mitigation holds the validated degrade behavior. The concrete values are
// returned verbatim with a degrade decision.
type Mitigation struct {
	AllowDegrade        bool     `json:"allow_degrade"`
	DisableAudioChannel bool     `json:"disable_audio_channel"`
	MinResults          int      `json:"min_results"`
	MaxOutputBytes      int      `json:"max_output_bytes"`
	FallbackProviders   []string `json:"fallback_providers,omitempty"`
}

// AutoscalingLink ties a policy to an autoscaling profile.
type AutoscalingLink struct {
	ProfileID string `json:"profile_id"`
}

// Config is the fully-validated policy value. Nothing partially validated
// crosses this boundary; the evaluator consumes Config only.
type Config struct {
	Objectives      Objectives       `json:"objectives"`
	Enforcement     Enforcement      `json:"enforcement"`
	Mitigation      Mitigation       `json:"mitigation"`
	AutoscalingLink *AutoscalingLink `json:"autoscaling_link,omitempty"`
}

// DegradeActions materializes the mitigation section as the concrete action
// set attached to a degrade decision.
func (c *Config) DegradeActions() *datatypes.DegradeActions {
	return &datatypes.DegradeActions{
		DisableAudioChannel: c.Mitigation.DisableAudioChannel,
		MinResults:          c.Mitigation.MinResults,
		MaxOutputBytes:      c.Mitigation.MaxOutputBytes,
		FallbackProviders:   append([]string(nil), c.Mitigation.FallbackProviders...),
	}
}

// Document serializes the validated config back into a raw document. Parsing
// the result with the same defaults yields an equal Config, which makes the
// validate-serialize-validate cycle idempotent.
func (c *Config) Document() map[string]any {
	objectives := map[string]any{
		"availability_pct_min": c.Objectives.AvailabilityPctMin,
		"p95_ms_max":           ceilingsDocument(c.Objectives.P95MSMax),
	}
	if len(c.Objectives.P99MSMax) > 0 {
		objectives["p99_ms_max"] = ceilingsDocument(c.Objectives.P99MSMax)
	}
	if c.Objectives.SaturationPctMax != nil {
		objectives["saturation_pct_max"] = *c.Objectives.SaturationPctMax
	}
	if c.Objectives.MaxErrorBudgetBurn5M != nil {
		objectives["max_error_budget_burn_5m"] = *c.Objectives.MaxErrorBudgetBurn5M
	}

	mitigation := map[string]any{
		"allow_degrade":         c.Mitigation.AllowDegrade,
		"disable_audio_channel": c.Mitigation.DisableAudioChannel,
		"min_results":           c.Mitigation.MinResults,
		"max_output_bytes":      c.Mitigation.MaxOutputBytes,
	}
	if len(c.Mitigation.FallbackProviders) > 0 {
		providers := make([]any, 0, len(c.Mitigation.FallbackProviders))
		for _, p := range c.Mitigation.FallbackProviders {
			providers = append(providers, p)
		}
		mitigation["fallback_providers"] = providers
	}

	doc := map[string]any{
		"objectives": objectives,
		"enforcement": map[string]any{
			"mode":                           string(c.Enforcement.Mode),
			"breach_window_seconds":          c.Enforcement.BreachWindowSeconds,
			"consecutive_windows_to_trigger": c.Enforcement.ConsecutiveWindowsToTrigger,
		},
		"mitigation": mitigation,
	}
	if c.AutoscalingLink != nil {
		doc["autoscaling_link"] = map[string]any{"profile_id": c.AutoscalingLink.ProfileID}
	}
	return doc
}

func ceilingsDocument(ceilings map[datatypes.RouteClass]float64) map[string]any {
	out := make(map[string]any, len(ceilings))
	for route, ms := range ceilings {
		out[string(route)] = ms
	}
	return out
}
