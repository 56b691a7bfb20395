// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validPolicyDoc = `id: pol-standard
name: Standard SLA
version: 3
enabled: true
config:
  objectives:
    availability_pct_min: 99.5
    p95_ms_max:
      read: 250
      run: 1200
  enforcement:
    mode: enforce
    breach_window_seconds: 60
    consecutive_windows_to_trigger: 3
  mitigation:
    allow_degrade: true
    min_results: 3
`

const defaultsProbeDoc = `id: pol-defaults
name: Defaults Probe
version: 1
enabled: true
config:
  objectives:
    availability_pct_min: 99.0
    p95_ms_max:
      run: 1500
  enforcement: {}
  mitigation: {}
`

func writePolicyFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	return path
}

func findingPaths(result PolicyValidateResult) []string {
	paths := make([]string, 0, len(result.Findings))
	for _, f := range result.Findings {
		paths = append(paths, f.Path)
	}
	return paths
}

func TestValidatePolicyDocument_Valid(t *testing.T) {
	path := writePolicyFixture(t, validPolicyDoc)

	result, err := validatePolicyDocument(path)
	if err != nil {
		t.Fatalf("validatePolicyDocument returned error: %v", err)
	}

	if !result.Valid {
		t.Errorf("Valid = false, findings: %v", result.Findings)
	}
	if result.PolicyID != "pol-standard" {
		t.Errorf("PolicyID = %q, want pol-standard", result.PolicyID)
	}
	if !strings.HasPrefix(result.Hash, "sha256:") {
		t.Errorf("Hash = %q, want sha256 prefix", result.Hash)
	}
}

func TestValidatePolicyDocument_MissingSection(t *testing.T) {
	doc := `id: pol-broken
name: Broken
version: 1
enabled: true
config:
  enforcement: {}
  mitigation: {}
`
	path := writePolicyFixture(t, doc)

	result, err := validatePolicyDocument(path)
	if err != nil {
		t.Fatalf("validatePolicyDocument returned error: %v", err)
	}

	if result.Valid {
		t.Fatal("Valid = true for a document without objectives")
	}
	paths := findingPaths(result)
	if len(paths) != 1 || paths[0] != "config.objectives" {
		t.Errorf("finding paths = %v, want [config.objectives]", paths)
	}
}

func TestValidatePolicyDocument_BadEnvelope(t *testing.T) {
	doc := `id: pol-broken
enabled: true
config:
  objectives:
    availability_pct_min: 99.0
    p95_ms_max:
      run: 1500
  enforcement: {}
  mitigation: {}
`
	path := writePolicyFixture(t, doc)

	result, err := validatePolicyDocument(path)
	if err != nil {
		t.Fatalf("validatePolicyDocument returned error: %v", err)
	}

	if result.Valid {
		t.Fatal("Valid = true for a document without name and version")
	}
	paths := findingPaths(result)
	wantPaths := map[string]bool{"name": false, "version": false}
	for _, p := range paths {
		if _, ok := wantPaths[p]; ok {
			wantPaths[p] = true
		}
	}
	for p, seen := range wantPaths {
		if !seen {
			t.Errorf("missing finding for %q, got paths %v", p, paths)
		}
	}
}

func TestValidatePolicyDocument_BadCatalogID(t *testing.T) {
	doc := strings.Replace(validPolicyDoc, "id: pol-standard", "id: \"pol standard!\"", 1)
	path := writePolicyFixture(t, doc)

	result, err := validatePolicyDocument(path)
	if err != nil {
		t.Fatalf("validatePolicyDocument returned error: %v", err)
	}

	if result.Valid {
		t.Fatal("Valid = true for a document with a malformed id")
	}
	paths := findingPaths(result)
	if len(paths) != 1 || paths[0] != "id" {
		t.Errorf("finding paths = %v, want [id]", paths)
	}
}

func TestValidatePolicyDocument_BadYAML(t *testing.T) {
	path := writePolicyFixture(t, "id: [unclosed")

	result, err := validatePolicyDocument(path)
	if err != nil {
		t.Fatalf("validatePolicyDocument returned error: %v", err)
	}

	if result.Valid {
		t.Fatal("Valid = true for unparseable YAML")
	}
	if len(result.Findings) != 1 || !strings.Contains(result.Findings[0].Reason, "parse yaml") {
		t.Errorf("Findings = %v, want one parse yaml finding", result.Findings)
	}
}

func TestValidatePolicyDocument_ReadError(t *testing.T) {
	_, err := validatePolicyDocument(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("validatePolicyDocument did not report the missing file")
	}
}

func TestValidatePolicyDocument_HashMatchesContent(t *testing.T) {
	path := writePolicyFixture(t, validPolicyDoc)

	result, err := validatePolicyDocument(path)
	if err != nil {
		t.Fatalf("validatePolicyDocument returned error: %v", err)
	}

	want := fmt.Sprintf("sha256:%x", sha256.Sum256([]byte(validPolicyDoc)))
	if result.Hash != want {
		t.Errorf("Hash = %s, want %s", result.Hash, want)
	}
}

func TestResolvePolicyDocument_FillsDefaults(t *testing.T) {
	path := writePolicyFixture(t, defaultsProbeDoc)

	result, err := resolvePolicyDocument(path)
	if err != nil {
		t.Fatalf("resolvePolicyDocument returned error: %v", err)
	}

	if result.PolicyID != "pol-defaults" {
		t.Errorf("PolicyID = %q, want pol-defaults", result.PolicyID)
	}

	enforcement, ok := result.Resolved["enforcement"].(map[string]any)
	if !ok {
		t.Fatalf("Resolved has no enforcement section: %v", result.Resolved)
	}
	if enforcement["mode"] != "observe" {
		t.Errorf("mode = %v, want the observe default", enforcement["mode"])
	}
	if enforcement["breach_window_seconds"] != 60 {
		t.Errorf("breach_window_seconds = %v, want 60", enforcement["breach_window_seconds"])
	}
	if enforcement["consecutive_windows_to_trigger"] != 3 {
		t.Errorf("consecutive_windows_to_trigger = %v, want 3", enforcement["consecutive_windows_to_trigger"])
	}

	mitigation, ok := result.Resolved["mitigation"].(map[string]any)
	if !ok {
		t.Fatalf("Resolved has no mitigation section: %v", result.Resolved)
	}
	if mitigation["allow_degrade"] != false {
		t.Errorf("allow_degrade = %v, want false", mitigation["allow_degrade"])
	}
	if mitigation["max_output_bytes"] != 65536 {
		t.Errorf("max_output_bytes = %v, want 65536", mitigation["max_output_bytes"])
	}
}

func TestResolvePolicyDocument_RejectsInvalid(t *testing.T) {
	doc := strings.Replace(defaultsProbeDoc, "availability_pct_min: 99.0", "availability_pct_min: 250", 1)
	path := writePolicyFixture(t, doc)

	if _, err := resolvePolicyDocument(path); err == nil {
		t.Fatal("resolvePolicyDocument accepted an availability floor above 100")
	}
}
