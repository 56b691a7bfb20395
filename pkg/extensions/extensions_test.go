// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.AuthProvider == nil {
		t.Error("AuthProvider should not be nil")
	}
	if opts.AuthzProvider == nil {
		t.Error("AuthzProvider should not be nil")
	}
	if opts.AuditLogger == nil {
		t.Error("AuditLogger should not be nil")
	}
}

func TestServiceOptionsFluent(t *testing.T) {
	custom := &NopAuditLogger{}
	opts := DefaultOptions().WithAudit(custom)

	if opts.AuditLogger != custom {
		t.Error("WithAudit should replace the logger")
	}
	// The original defaults are untouched elsewhere.
	if opts.AuthProvider == nil {
		t.Error("WithAudit must not clear other fields")
	}
}

func TestNopAuthProvider(t *testing.T) {
	provider := &NopAuthProvider{}

	info, err := provider.Validate(context.Background(), "any-token")
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if info.UserID != "local-user" {
		t.Errorf("UserID = %q, want local-user", info.UserID)
	}
	if !info.HasRole("admin") {
		t.Error("local user should have admin role")
	}
	if info.HasRole("auditor") {
		t.Error("local user should not report unknown roles")
	}
}

func TestNopAuthzProvider(t *testing.T) {
	provider := &NopAuthzProvider{}

	err := provider.Authorize(context.Background(), AuthzRequest{
		User:         &AuthInfo{UserID: "local-user"},
		Action:       "read",
		ResourceType: "incident",
	})
	if err != nil {
		t.Errorf("Authorize returned error: %v", err)
	}
}

func TestNopAuditLogger(t *testing.T) {
	logger := &NopAuditLogger{}
	ctx := context.Background()

	err := logger.Log(ctx, AuditEvent{
		EventType: "sla.breach_detected",
		Timestamp: time.Now().UTC(),
		UserID:    "system",
		Outcome:   "breached",
	})
	if err != nil {
		t.Errorf("Log returned error: %v", err)
	}

	events, err := logger.Query(ctx, AuditFilter{})
	if err != nil {
		t.Errorf("Query returned error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Query returned %d events, want 0", len(events))
	}

	if err := logger.Flush(ctx); err != nil {
		t.Errorf("Flush returned error: %v", err)
	}
}

func TestMetadataAccessors(t *testing.T) {
	meta := NewMetadata().
		Set("tenant", "acme").
		Set("breach_count", 2).
		Set("delta", 12.5).
		Set("cooldown_active", true)

	if v, ok := meta.GetString("tenant"); !ok || v != "acme" {
		t.Errorf("GetString(tenant) = %q, %v", v, ok)
	}
	if v, ok := meta.GetInt("breach_count"); !ok || v != 2 {
		t.Errorf("GetInt(breach_count) = %d, %v", v, ok)
	}
	if v, ok := meta.GetFloat64("delta"); !ok || v != 12.5 {
		t.Errorf("GetFloat64(delta) = %f, %v", v, ok)
	}
	if v, ok := meta.GetBool("cooldown_active"); !ok || !v {
		t.Errorf("GetBool(cooldown_active) = %v, %v", v, ok)
	}

	// Wrong-type access reports not-ok.
	if _, ok := meta.GetString("breach_count"); ok {
		t.Error("GetString on an int value should report not-ok")
	}
	if _, ok := meta.GetInt("missing"); ok {
		t.Error("GetInt on a missing key should report not-ok")
	}
}

func TestMetadataCloneAndMerge(t *testing.T) {
	base := NewMetadata().Set("tenant", "acme")

	clone := base.Clone()
	clone.Set("tenant", "globex")
	if v, _ := base.GetString("tenant"); v != "acme" {
		t.Error("Clone should be independent of the original")
	}

	base.Merge(NewMetadata().Set("route_class", "run"))
	if v, _ := base.GetString("route_class"); v != "run" {
		t.Error("Merge should copy entries from the other map")
	}
	base.Merge(nil)

	if base.Len() != 2 {
		t.Errorf("Len = %d, want 2", base.Len())
	}
	if len(base.Keys()) != 2 {
		t.Errorf("Keys length = %d, want 2", len(base.Keys()))
	}
}
