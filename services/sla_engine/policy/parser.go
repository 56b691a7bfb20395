// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"math"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
)

// Parse validates a raw policy document and produces the typed Config.
//
// Description:
//
//	The document is the policy's raw config body, with any tenant override
//	already merged in (see MergeOverride). The objectives, enforcement, and
//	mitigation sections are required; autoscaling_link is optional. Optional
//	fields fall back to the supplied defaults; required fields never do.
//	The first offending field aborts parsing with a *ValidationError naming
//	its dotted path.
//
// Inputs:
//
//	doc - Raw document, as decoded from YAML or JSON.
//	defaults - Process-wide fallbacks for optional fields.
//
// Outputs:
//
//	*Config - The validated policy value.
//	error - *ValidationError describing the first malformed field.
func Parse(doc map[string]any, defaults Defaults) (*Config, error) {
	if len(doc) == 0 {
		return nil, &ValidationError{Reason: "document is empty"}
	}

	cfg := &Config{}

	objectives, err := requireSection(doc, "objectives")
	if err != nil {
		return nil, err
	}
	if err := parseObjectives(objectives, &cfg.Objectives); err != nil {
		return nil, err
	}

	enforcement, err := requireSection(doc, "enforcement")
	if err != nil {
		return nil, err
	}
	if err := parseEnforcement(enforcement, defaults, &cfg.Enforcement); err != nil {
		return nil, err
	}

	mitigation, err := requireSection(doc, "mitigation")
	if err != nil {
		return nil, err
	}
	if err := parseMitigation(mitigation, defaults, &cfg.Mitigation); err != nil {
		return nil, err
	}

	if raw, ok := doc["autoscaling_link"]; ok && raw != nil {
		link, ok := raw.(map[string]any)
		if !ok {
			return nil, &ValidationError{Path: "autoscaling_link", Reason: "must be an object"}
		}
		profileID, err := requireString(link, "autoscaling_link", "profile_id")
		if err != nil {
			return nil, err
		}
		cfg.AutoscalingLink = &AutoscalingLink{ProfileID: profileID}
	}

	return cfg, nil
}

func parseObjectives(section map[string]any, out *Objectives) error {
	floor, err := requireNumber(section, "objectives", "availability_pct_min")
	if err != nil {
		return err
	}
	if floor < 0 || floor > 100 {
		return &ValidationError{Path: "objectives.availability_pct_min", Reason: "must be a percentage in [0, 100]"}
	}
	out.AvailabilityPctMin = floor

	p95, err := parseCeilings(section, "objectives.p95_ms_max", section["p95_ms_max"])
	if err != nil {
		return err
	}
	if len(p95) == 0 {
		return &ValidationError{Path: "objectives.p95_ms_max", Reason: "must contain at least one route-class entry"}
	}
	out.P95MSMax = p95

	if raw, ok := section["p99_ms_max"]; ok && raw != nil {
		p99, err := parseCeilings(section, "objectives.p99_ms_max", raw)
		if err != nil {
			return err
		}
		out.P99MSMax = p99
	}

	if raw, ok := section["saturation_pct_max"]; ok && raw != nil {
		v, valid := asNumber(raw)
		if !valid || v < 0 || v > 100 {
			return &ValidationError{Path: "objectives.saturation_pct_max", Reason: "must be a percentage in [0, 100]"}
		}
		out.SaturationPctMax = &v
	}

	if raw, ok := section["max_error_budget_burn_5m"]; ok && raw != nil {
		v, valid := asNumber(raw)
		if !valid || v <= 0 {
			return &ValidationError{Path: "objectives.max_error_budget_burn_5m", Reason: "must be a positive number"}
		}
		out.MaxErrorBudgetBurn5M = &v
	}

	return nil
}

// parseCeilings validates a route-class keyed latency ceiling map. Unknown
// route-class keys are rejected, never silently dropped.
func parseCeilings(section map[string]any, path string, raw any) (map[datatypes.RouteClass]float64, error) {
	if raw == nil {
		if path == "objectives.p95_ms_max" {
			return nil, &ValidationError{Path: path, Reason: "is required"}
		}
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &ValidationError{Path: path, Reason: "must be an object keyed by route class"}
	}

	out := make(map[datatypes.RouteClass]float64, len(m))
	for key, value := range m {
		route, err := datatypes.ParseRouteClass(key)
		if err != nil {
			return nil, &ValidationError{Path: path + "." + key, Reason: "unknown route class"}
		}
		ms, valid := asNumber(value)
		if !valid || ms <= 0 {
			return nil, &ValidationError{Path: path + "." + key, Reason: "must be a positive latency in milliseconds"}
		}
		out[route] = ms
	}
	return out, nil
}

func parseEnforcement(section map[string]any, defaults Defaults, out *Enforcement) error {
	out.Mode = defaults.Mode
	if raw, ok := section["mode"]; ok && raw != nil {
		s, valid := raw.(string)
		mode := datatypes.EnforcementMode(s)
		if !valid || !mode.Valid() {
			return &ValidationError{Path: "enforcement.mode", Reason: "must be one of observe, warn, enforce"}
		}
		out.Mode = mode
	}

	out.BreachWindowSeconds = defaults.BreachWindowSeconds
	if raw, ok := section["breach_window_seconds"]; ok && raw != nil {
		v, err := positiveInt(raw, "enforcement.breach_window_seconds")
		if err != nil {
			return err
		}
		out.BreachWindowSeconds = v
	}

	out.ConsecutiveWindowsToTrigger = defaults.TriggerWindows
	if raw, ok := section["consecutive_windows_to_trigger"]; ok && raw != nil {
		v, err := positiveInt(raw, "enforcement.consecutive_windows_to_trigger")
		if err != nil {
			return err
		}
		out.ConsecutiveWindowsToTrigger = v
	}

	return nil
}

func parseMitigation(section map[string]any, defaults Defaults, out *Mitigation) error {
	out.AllowDegrade = false
	if raw, ok := section["allow_degrade"]; ok && raw != nil {
		b, valid := raw.(bool)
		if !valid {
			return &ValidationError{Path: "mitigation.allow_degrade", Reason: "must be a boolean"}
		}
		out.AllowDegrade = b
	}

	out.DisableAudioChannel = defaults.DisableAudioChannel
	if raw, ok := section["disable_audio_channel"]; ok && raw != nil {
		b, valid := raw.(bool)
		if !valid {
			return &ValidationError{Path: "mitigation.disable_audio_channel", Reason: "must be a boolean"}
		}
		out.DisableAudioChannel = b
	}

	out.MinResults = defaults.MinResults
	if raw, ok := section["min_results"]; ok && raw != nil {
		v, err := positiveInt(raw, "mitigation.min_results")
		if err != nil {
			return err
		}
		out.MinResults = v
	}

	out.MaxOutputBytes = defaults.MaxOutputBytes
	if raw, ok := section["max_output_bytes"]; ok && raw != nil {
		v, err := positiveInt(raw, "mitigation.max_output_bytes")
		if err != nil {
			return err
		}
		out.MaxOutputBytes = v
	}

	if raw, ok := section["fallback_providers"]; ok && raw != nil {
		list, valid := raw.([]any)
		if !valid {
			return &ValidationError{Path: "mitigation.fallback_providers", Reason: "must be a list of provider names"}
		}
		providers := make([]string, 0, len(list))
		for _, item := range list {
			s, valid := item.(string)
			if !valid || s == "" {
				return &ValidationError{
					Path:   "mitigation.fallback_providers",
					Reason: "entries must be non-empty strings",
				}
			}
			providers = append(providers, s)
		}
		out.FallbackProviders = providers
	}

	return nil
}

// =============================================================================
// DOCUMENT ACCESS HELPERS
// =============================================================================

func requireSection(doc map[string]any, name string) (map[string]any, error) {
	raw, ok := doc[name]
	if !ok || raw == nil {
		return nil, &ValidationError{Path: name, Reason: "section is required"}
	}
	section, ok := raw.(map[string]any)
	if !ok {
		return nil, &ValidationError{Path: name, Reason: "must be an object"}
	}
	return section, nil
}

func requireString(section map[string]any, sectionPath, key string) (string, error) {
	raw, ok := section[key]
	if !ok || raw == nil {
		return "", &ValidationError{Path: sectionPath + "." + key, Reason: "is required"}
	}
	s, valid := raw.(string)
	if !valid || s == "" {
		return "", &ValidationError{Path: sectionPath + "." + key, Reason: "must be a non-empty string"}
	}
	return s, nil
}

func requireNumber(section map[string]any, sectionPath, key string) (float64, error) {
	raw, ok := section[key]
	if !ok || raw == nil {
		return 0, &ValidationError{Path: sectionPath + "." + key, Reason: "is required"}
	}
	v, valid := asNumber(raw)
	if !valid {
		return 0, &ValidationError{Path: sectionPath + "." + key, Reason: "must be a number"}
	}
	return v, nil
}

// asNumber coerces the numeric types produced by the YAML and JSON decoders.
func asNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func positiveInt(raw any, path string) (int, error) {
	v, valid := asNumber(raw)
	if !valid || v < 1 || v != math.Trunc(v) {
		return 0, &ValidationError{Path: path, Reason: "must be a positive integer"}
	}
	return int(v), nil
}
