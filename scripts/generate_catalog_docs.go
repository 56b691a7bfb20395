// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// generate_catalog_docs generates a markdown reference from a policy catalog
// directory, the same layout guardd loads: policies/, assignments/, and
// profiles/ with one YAML document per file.
//
// Usage:
//
//	go run scripts/generate_catalog_docs.go /etc/aleutian/guard/catalog > docs/catalog_reference.md
//
// The generated documentation includes:
//   - Policy inventory with objectives, enforcement, and mitigation settings
//   - Tenant assignment table with effective ranges and overrides
//   - Autoscaling profile envelopes
//   - Summary statistics
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PolicyYAML is a policy document as authored in the catalog.
type PolicyYAML struct {
	ID      string           `yaml:"id"`
	Name    string           `yaml:"name"`
	Version int              `yaml:"version"`
	Tenant  string           `yaml:"tenant,omitempty"`
	Enabled bool             `yaml:"enabled"`
	Config  PolicyConfigYAML `yaml:"config"`
}

// PolicyConfigYAML is the enforced config body of a policy document.
type PolicyConfigYAML struct {
	Objectives      ObjectivesYAML       `yaml:"objectives"`
	Enforcement     EnforcementYAML      `yaml:"enforcement"`
	Mitigation      MitigationYAML       `yaml:"mitigation"`
	AutoscalingLink *AutoscalingLinkYAML `yaml:"autoscaling_link,omitempty"`
}

// ObjectivesYAML holds the SLA targets of a policy.
type ObjectivesYAML struct {
	AvailabilityPctMin   float64            `yaml:"availability_pct_min"`
	P95MSMax             map[string]float64 `yaml:"p95_ms_max"`
	P99MSMax             map[string]float64 `yaml:"p99_ms_max,omitempty"`
	SaturationPctMax     *float64           `yaml:"saturation_pct_max,omitempty"`
	MaxErrorBudgetBurn5M *float64           `yaml:"max_error_budget_burn_5m,omitempty"`
}

// EnforcementYAML holds the breach detection settings of a policy.
type EnforcementYAML struct {
	Mode                        string `yaml:"mode"`
	BreachWindowSeconds         int    `yaml:"breach_window_seconds"`
	ConsecutiveWindowsToTrigger int    `yaml:"consecutive_windows_to_trigger"`
}

// MitigationYAML holds the degrade settings of a policy.
type MitigationYAML struct {
	AllowDegrade      bool     `yaml:"allow_degrade"`
	MinResults        int      `yaml:"min_results"`
	MaxOutputBytes    int      `yaml:"max_output_bytes"`
	FallbackProviders []string `yaml:"fallback_providers,omitempty"`
}

// AutoscalingLinkYAML links a policy to an autoscaling profile.
type AutoscalingLinkYAML struct {
	ProfileID string `yaml:"profile_id"`
}

// AssignmentYAML is a tenant assignment document.
type AssignmentYAML struct {
	ID            string         `yaml:"id"`
	Tenant        string         `yaml:"tenant"`
	PolicyID      string         `yaml:"policy_id"`
	EffectiveFrom time.Time      `yaml:"effective_from"`
	EffectiveTo   *time.Time     `yaml:"effective_to,omitempty"`
	Override      map[string]any `yaml:"override,omitempty"`
}

// ProfileYAML is an autoscaling profile document.
type ProfileYAML struct {
	ID               string  `yaml:"id"`
	Scope            string  `yaml:"scope"`
	Tenant           string  `yaml:"tenant,omitempty"`
	RouteClass       string  `yaml:"route_class,omitempty"`
	MinReplicas      int     `yaml:"min_replicas"`
	MaxReplicas      int     `yaml:"max_replicas"`
	TargetP95MS      float64 `yaml:"target_p95_ms"`
	TargetQueueDepth float64 `yaml:"target_queue_depth"`
	CooldownSeconds  int     `yaml:"cooldown_seconds"`
	StepUp           int     `yaml:"step_up"`
	StepDown         int     `yaml:"step_down"`
}

func main() {
	catalogDir := "catalog"
	if len(os.Args) > 1 {
		catalogDir = os.Args[1]
	}

	policies, err := loadPolicies(filepath.Join(catalogDir, "policies"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading policies: %v\n", err)
		os.Exit(1)
	}
	assignments, err := loadAssignments(filepath.Join(catalogDir, "assignments"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading assignments: %v\n", err)
		os.Exit(1)
	}
	profiles, err := loadProfiles(filepath.Join(catalogDir, "profiles"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading profiles: %v\n", err)
		os.Exit(1)
	}

	generateMarkdown(catalogDir, policies, assignments, profiles)
}

// documentFiles lists the YAML files in one kind directory, sorted by name.
// A missing kind directory is an empty kind, matching the catalog loader.
func documentFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func loadPolicies(dir string) ([]PolicyYAML, error) {
	files, err := documentFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []PolicyYAML
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var p PolicyYAML
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func loadAssignments(dir string) ([]AssignmentYAML, error) {
	files, err := documentFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []AssignmentYAML
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var a AssignmentYAML
		if err := yaml.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func loadProfiles(dir string) ([]ProfileYAML, error) {
	files, err := documentFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []ProfileYAML
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var p ProfileYAML
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// generateMarkdown outputs the full markdown documentation.
func generateMarkdown(catalogDir string, policies []PolicyYAML, assignments []AssignmentYAML, profiles []ProfileYAML) {
	fmt.Println("# SLA Policy Catalog Reference")
	fmt.Println()
	fmt.Println("## Overview")
	fmt.Println()
	fmt.Printf("This document is the reference for the policy catalog at `%s`.\n", catalogDir)
	fmt.Println("guardd loads the same directory at startup and hot-reloads it on file changes.")
	fmt.Println()
	fmt.Printf("**Generated:** %s\n", time.Now().Format("2006-01-02 15:04:05 UTC"))
	fmt.Println()

	// Statistics
	enabled := 0
	global := 0
	linked := 0
	for _, p := range policies {
		if p.Enabled {
			enabled++
		}
		if p.Tenant == "" {
			global++
		}
		if p.Config.AutoscalingLink != nil {
			linked++
		}
	}
	openEnded := 0
	overridden := 0
	for _, a := range assignments {
		if a.EffectiveTo == nil {
			openEnded++
		}
		if len(a.Override) > 0 {
			overridden++
		}
	}

	fmt.Println("## Summary Statistics")
	fmt.Println()
	fmt.Println("| Metric | Count |")
	fmt.Println("|--------|-------|")
	fmt.Printf("| Policies | %d |\n", len(policies))
	fmt.Printf("| Enabled Policies | %d |\n", enabled)
	fmt.Printf("| Global Policies | %d |\n", global)
	fmt.Printf("| Policies Linked to Autoscaling | %d |\n", linked)
	fmt.Printf("| Assignments | %d |\n", len(assignments))
	fmt.Printf("| Open-Ended Assignments | %d |\n", openEnded)
	fmt.Printf("| Assignments with Overrides | %d |\n", overridden)
	fmt.Printf("| Autoscaling Profiles | %d |\n", len(profiles))
	fmt.Println()

	// Quick reference table (all policies)
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Policy Quick Reference")
	fmt.Println()
	fmt.Println("| Policy | Name | Version | Scope | Mode | Availability Min | Enabled |")
	fmt.Println("|--------|------|---------|-------|------|------------------|---------|")
	for _, p := range policies {
		scope := "global"
		if p.Tenant != "" {
			scope = "tenant " + p.Tenant
		}
		fmt.Printf("| `%s` | %s | %d | %s | %s | %.2f%% | %t |\n",
			p.ID, p.Name, p.Version, scope, p.Config.Enforcement.Mode,
			p.Config.Objectives.AvailabilityPctMin, p.Enabled)
	}
	fmt.Println()

	// Detailed sections per policy
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Policies")
	fmt.Println()
	for _, p := range policies {
		printPolicyDetails(p)
	}

	// Assignments
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Tenant Assignments")
	fmt.Println()
	fmt.Println("An assignment binds a tenant to a policy for a time range. A missing end")
	fmt.Println("means the binding is open-ended. Overrides are JSON-merged over the policy")
	fmt.Println("body before enforcement.")
	fmt.Println()
	fmt.Println("| Assignment | Tenant | Policy | Effective From | Effective To | Override |")
	fmt.Println("|------------|--------|--------|----------------|--------------|----------|")
	for _, a := range assignments {
		to := "open-ended"
		if a.EffectiveTo != nil {
			to = a.EffectiveTo.Format("2006-01-02")
		}
		override := "No"
		if len(a.Override) > 0 {
			override = "Yes"
		}
		fmt.Printf("| `%s` | %s | `%s` | %s | %s | %s |\n",
			a.ID, a.Tenant, a.PolicyID, a.EffectiveFrom.Format("2006-01-02"), to, override)
	}
	fmt.Println()

	// Profiles
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Autoscaling Profiles")
	fmt.Println()
	fmt.Println("| Profile | Scope | Replicas | Target p95 | Target Queue | Cooldown | Step Up/Down |")
	fmt.Println("|---------|-------|----------|------------|--------------|----------|--------------|")
	for _, p := range profiles {
		scope := p.Scope
		switch {
		case p.Tenant != "":
			scope = fmt.Sprintf("%s (%s)", p.Scope, p.Tenant)
		case p.RouteClass != "":
			scope = fmt.Sprintf("%s (%s)", p.Scope, p.RouteClass)
		}
		fmt.Printf("| `%s` | %s | %d-%d | %.0fms | %.0f | %ds | +%d/-%d |\n",
			p.ID, scope, p.MinReplicas, p.MaxReplicas, p.TargetP95MS,
			p.TargetQueueDepth, p.CooldownSeconds, p.StepUp, p.StepDown)
	}
	fmt.Println()

	// Tenant index
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Tenant Index")
	fmt.Println()
	fmt.Println("This index maps tenants to the policies their assignments reference.")
	fmt.Println()

	tenantIndex := make(map[string][]string)
	for _, a := range assignments {
		tenantIndex[a.Tenant] = append(tenantIndex[a.Tenant], a.PolicyID)
	}
	tenants := make([]string, 0, len(tenantIndex))
	for t := range tenantIndex {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)

	fmt.Println("| Tenant | Policies |")
	fmt.Println("|--------|----------|")
	for _, t := range tenants {
		ids := tenantIndex[t]
		sort.Strings(ids)
		fmt.Printf("| %s | `%s` |\n", t, strings.Join(ids, "`, `"))
	}
	fmt.Println()

	// Footer
	fmt.Println("---")
	fmt.Println()
	fmt.Printf("*This document is auto-generated from `%s`.*\n", catalogDir)
	fmt.Println()
	fmt.Printf("*To regenerate: `go run scripts/generate_catalog_docs.go %s > docs/catalog_reference.md`*\n", catalogDir)
}

// printPolicyDetails prints detailed information for a single policy.
func printPolicyDetails(p PolicyYAML) {
	fmt.Printf("### `%s`\n", p.ID)
	fmt.Println()

	scope := "global fallback"
	if p.Tenant != "" {
		scope = "tenant " + p.Tenant
	}

	// Main table
	fmt.Println("| Property | Value |")
	fmt.Println("|----------|-------|")
	fmt.Printf("| **Name** | %s |\n", p.Name)
	fmt.Printf("| **Version** | %d |\n", p.Version)
	fmt.Printf("| **Scope** | %s |\n", scope)
	fmt.Printf("| **Enabled** | %t |\n", p.Enabled)
	fmt.Printf("| **Mode** | %s |\n", p.Config.Enforcement.Mode)
	fmt.Printf("| **Breach Window** | %ds |\n", p.Config.Enforcement.BreachWindowSeconds)
	fmt.Printf("| **Windows to Trigger** | %d |\n", p.Config.Enforcement.ConsecutiveWindowsToTrigger)
	if p.Config.AutoscalingLink != nil {
		fmt.Printf("| **Autoscaling Profile** | `%s` |\n", p.Config.AutoscalingLink.ProfileID)
	}
	fmt.Println()

	// Objectives
	fmt.Println("**Objectives:**")
	fmt.Println()
	fmt.Printf("- availability: at least %.2f%%\n", p.Config.Objectives.AvailabilityPctMin)
	for _, line := range latencyLines("p95", p.Config.Objectives.P95MSMax) {
		fmt.Println(line)
	}
	for _, line := range latencyLines("p99", p.Config.Objectives.P99MSMax) {
		fmt.Println(line)
	}
	if p.Config.Objectives.SaturationPctMax != nil {
		fmt.Printf("- saturation: at most %.1f%%\n", *p.Config.Objectives.SaturationPctMax)
	}
	if p.Config.Objectives.MaxErrorBudgetBurn5M != nil {
		fmt.Printf("- error budget burn (5m): at most %.2fx\n", *p.Config.Objectives.MaxErrorBudgetBurn5M)
	}
	fmt.Println()

	// Mitigation
	if p.Config.Mitigation.AllowDegrade {
		fmt.Println("**Degrade ladder:**")
		fmt.Println()
		fmt.Printf("- min results: %d\n", p.Config.Mitigation.MinResults)
		if p.Config.Mitigation.MaxOutputBytes > 0 {
			fmt.Printf("- max output: %d bytes\n", p.Config.Mitigation.MaxOutputBytes)
		}
		if len(p.Config.Mitigation.FallbackProviders) > 0 {
			fmt.Printf("- fallback providers: %s\n", strings.Join(p.Config.Mitigation.FallbackProviders, ", "))
		}
		fmt.Println()
	}
}

// latencyLines renders one latency objective map as sorted bullet lines.
func latencyLines(label string, byRoute map[string]float64) []string {
	routes := make([]string, 0, len(byRoute))
	for r := range byRoute {
		routes = append(routes, r)
	}
	sort.Strings(routes)

	lines := make([]string, 0, len(routes))
	for _, r := range routes {
		lines = append(lines, fmt.Sprintf("- %s latency (%s): at most %.0fms", label, r, byRoute[r]))
	}
	return lines
}
