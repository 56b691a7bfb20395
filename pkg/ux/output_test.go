// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// Helper to capture stdout
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Helper to capture stderr
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render_Success(t *testing.T) {
	result := IconSuccess.Render()
	if result == "" {
		t.Error("expected non-empty result for IconSuccess")
	}
}

func TestIcon_Render_Warning(t *testing.T) {
	result := IconWarning.Render()
	if result == "" {
		t.Error("expected non-empty result for IconWarning")
	}
}

func TestIcon_Render_Error(t *testing.T) {
	result := IconError.Render()
	if result == "" {
		t.Error("expected non-empty result for IconError")
	}
}

func TestIcon_Render_Pending(t *testing.T) {
	result := IconPending.Render()
	if result == "" {
		t.Error("expected non-empty result for IconPending")
	}
}

func TestIcon_Render_Default(t *testing.T) {
	// Test icons that don't have specific styling
	icons := []Icon{IconArrow, IconBullet, IconAnchor, IconShip, IconWave}
	for _, icon := range icons {
		result := icon.Render()
		if result != string(icon) {
			t.Errorf("expected %q for %q, got %q", string(icon), icon, result)
		}
	}
}

// =============================================================================
// Title Tests
// =============================================================================

func TestTitle_MachineMode(t *testing.T) {
	// Save and restore personality
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Title("SLA Evaluation")
	})

	// In machine mode, Title should output nothing
	if output != "" {
		t.Errorf("expected no output in machine mode, got %q", output)
	}
}

func TestTitle_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Title("SLA Evaluation")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Success Tests
// =============================================================================

func TestSuccess_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Success("Policy applied")
	})

	if output != "OK: Policy applied\n" {
		t.Errorf("expected 'OK: Policy applied', got %q", output)
	}
}

func TestSuccess_MinimalMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMinimal)

	output := captureStdout(func() {
		Success("Policy applied")
	})

	if output == "" {
		t.Error("expected non-empty output in minimal mode")
	}
}

func TestSuccess_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Success("Policy applied")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Warning Tests
// =============================================================================

func TestWarning_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		Warning("Burn rate is elevated")
	})

	if output != "WARN: Burn rate is elevated\n" {
		t.Errorf("expected 'WARN: Burn rate is elevated', got %q", output)
	}
}

func TestWarning_MinimalMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMinimal)

	output := captureStdout(func() {
		Warning("Burn rate is elevated")
	})

	if output == "" {
		t.Error("expected non-empty output in minimal mode")
	}
}

func TestWarning_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Warning("Burn rate is elevated")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestError_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		Error("Daemon unreachable")
	})

	if output != "ERROR: Daemon unreachable\n" {
		t.Errorf("expected 'ERROR: Daemon unreachable', got %q", output)
	}
}

func TestError_MinimalMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMinimal)

	output := captureStdout(func() {
		Error("Daemon unreachable")
	})

	if output == "" {
		t.Error("expected non-empty output in minimal mode")
	}
}

func TestError_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Error("Daemon unreachable")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Info Tests
// =============================================================================

func TestInfo_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Info("Catalog loaded")
	})

	if output != "Catalog loaded\n" {
		t.Errorf("expected plain 'Catalog loaded', got %q", output)
	}
}

func TestInfo_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Info("Catalog loaded")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Muted Tests
// =============================================================================

func TestMuted_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Muted("Secondary text")
	})

	// In machine mode, Muted should output nothing
	if output != "" {
		t.Errorf("expected no output in machine mode, got %q", output)
	}
}

func TestMuted_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Muted("Secondary text")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Box Tests
// =============================================================================

func TestBox_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Box("Policy", "checkout-api: sev1")
	})

	if output != "Policy: checkout-api: sev1\n" {
		t.Errorf("expected 'Policy: checkout-api: sev1', got %q", output)
	}
}

func TestBox_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Box("Policy", "checkout-api: sev1")
	})

	if output == "" {
		t.Error("expected styled box output in full mode")
	}
}

// =============================================================================
// WarningBox Tests
// =============================================================================

func TestWarningBox_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		WarningBox("Budget", "error budget nearly spent")
	})

	if output != "WARN Budget: error budget nearly spent\n" {
		t.Errorf("expected 'WARN Budget: error budget nearly spent', got %q", output)
	}
}

func TestWarningBox_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		WarningBox("Budget", "error budget nearly spent")
	})

	if output == "" {
		t.Error("expected styled warning box output in full mode")
	}
}

// =============================================================================
// StatusBadge Tests
// =============================================================================

func TestStatusBadge_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	result := StatusBadge("breached")

	if result != "BREACHED" {
		t.Errorf("expected plain 'BREACHED', got %q", result)
	}
}

func TestStatusBadge_KnownStatuses(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	cases := map[string]string{
		"healthy":  "HEALTHY",
		"warning":  "WARNING",
		"breached": "BREACHED",
	}

	for status, label := range cases {
		result := StatusBadge(status)
		if !strings.Contains(result, label) {
			t.Errorf("StatusBadge(%q) = %q, expected it to contain %q", status, result, label)
		}
	}
}

func TestStatusBadge_UnknownStatus(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	result := StatusBadge("draining")

	if !strings.Contains(result, "DRAINING") {
		t.Errorf("expected unknown status to render uppercased, got %q", result)
	}
}

// =============================================================================
// SeverityBadge Tests
// =============================================================================

func TestSeverityBadge_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	result := SeverityBadge("sev1")

	if result != "SEV1" {
		t.Errorf("expected plain 'SEV1', got %q", result)
	}
}

func TestSeverityBadge_KnownSeverities(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	for _, severity := range []string{"sev1", "sev2", "sev3"} {
		result := SeverityBadge(severity)
		if !strings.Contains(result, strings.ToUpper(severity)) {
			t.Errorf("SeverityBadge(%q) = %q, expected uppercased label", severity, result)
		}
	}
}

func TestSeverityBadge_UnknownSeverity(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	result := SeverityBadge("sev9")

	if !strings.Contains(result, "SEV9") {
		t.Errorf("expected unknown severity to render uppercased, got %q", result)
	}
}

// =============================================================================
// DecisionBadge Tests
// =============================================================================

func TestDecisionBadge_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	result := DecisionBadge("shed")

	if result != "SHED" {
		t.Errorf("expected plain 'SHED', got %q", result)
	}
}

func TestDecisionBadge_KnownDecisions(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	for _, decision := range []string{"allow", "warn", "degrade", "shed"} {
		result := DecisionBadge(decision)
		if !strings.Contains(result, strings.ToUpper(decision)) {
			t.Errorf("DecisionBadge(%q) = %q, expected uppercased label", decision, result)
		}
	}
}

func TestDecisionBadge_UnknownDecision(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	result := DecisionBadge("throttle")

	if !strings.Contains(result, "THROTTLE") {
		t.Errorf("expected unknown decision to render uppercased, got %q", result)
	}
}

// =============================================================================
// Summary Tests
// =============================================================================

func TestSummary_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Summary(5, 2, 7)
	})

	if output != "SUMMARY: open=5 mitigating=2 resolved=7\n" {
		t.Errorf("expected machine format summary, got %q", output)
	}
}

func TestSummary_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Summary(1, 0, 10)
	})

	if output == "" {
		t.Error("expected styled summary output in full mode")
	}
	if !strings.Contains(output, "open") || !strings.Contains(output, "resolved") {
		t.Errorf("expected labeled counts, got %q", output)
	}
}

// =============================================================================
// Style Constants Tests
// =============================================================================

func TestStyles_NotNil(t *testing.T) {
	// Verify all style structs are initialized
	if Styles.Title.String() == "" && Styles.Subtitle.String() == "" {
		// Styles are initialized but render as empty strings until applied
	}
}

func TestColorConstants(t *testing.T) {
	// Verify color constants are defined
	colors := []interface{}{
		ColorTealBright,
		ColorTealPrimary,
		ColorTealVibrant,
		ColorTealMedium,
		ColorTealDeep,
		ColorTealOcean,
		ColorDeepSea,
		ColorAbyss,
		ColorMidnight,
		ColorSlate,
		ColorDarkest,
		ColorSuccess,
		ColorWarning,
		ColorError,
		ColorMuted,
	}

	for i, c := range colors {
		if c == nil {
			t.Errorf("color at index %d is nil", i)
		}
	}
}

func TestIconConstants(t *testing.T) {
	icons := map[string]Icon{
		"Success": IconSuccess,
		"Warning": IconWarning,
		"Error":   IconError,
		"Pending": IconPending,
		"Arrow":   IconArrow,
		"Bullet":  IconBullet,
		"Anchor":  IconAnchor,
		"Ship":    IconShip,
		"Wave":    IconWave,
	}

	for name, icon := range icons {
		if string(icon) == "" {
			t.Errorf("icon %s is empty", name)
		}
	}
}
