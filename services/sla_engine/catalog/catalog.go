// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog serves the admin-authored policy, assignment, and profile
// documents that drive the control loop.
//
// Documents are plain YAML files under the catalog directory, one record per
// file, split by kind:
//
//	policies/*.yaml     enforcement policies (body parsed at evaluation time)
//	assignments/*.yaml  tenant to policy bindings with optional overrides
//	profiles/*.yaml     autoscaling envelopes
//
// A load reads every document, validates the envelopes, and swaps in a new
// immutable snapshot under an RWMutex, so readers always see a complete
// catalog. Malformed documents are logged, counted, and skipped; the rest of
// the load proceeds. Watch hot-reloads the snapshot on file changes.
//
// Thread Safety:
//
//	All exported methods are safe for concurrent use.
package catalog

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianGuard/pkg/validation"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/policy"
)

// =============================================================================
// Constants
// =============================================================================

const (
	policiesDir    = "policies"
	assignmentsDir = "assignments"
	profilesDir    = "profiles"

	// MaxDocumentSize is the maximum allowed size of one catalog file (1MB).
	MaxDocumentSize = 1024 * 1024
)

// ErrNoPolicy is returned by ResolveEffectivePolicy when the tenant has no
// current assignment and no enabled global policy exists.
var ErrNoPolicy = errors.New("no effective policy for tenant")

// =============================================================================
// Types
// =============================================================================

// snapshot is one immutable load of the catalog directory. Lookups never see
// a partially loaded snapshot; Load builds a fresh one and swaps it in whole.
type snapshot struct {
	policies     map[string]*datatypes.Policy
	assignments  map[string]*datatypes.TenantAssignment
	profiles     map[string]*datatypes.AutoscalingProfile
	fingerprints map[string]string
	loadedAt     time.Time
	skipped      int
}

func newSnapshot() *snapshot {
	return &snapshot{
		policies:     make(map[string]*datatypes.Policy),
		assignments:  make(map[string]*datatypes.TenantAssignment),
		profiles:     make(map[string]*datatypes.AutoscalingProfile),
		fingerprints: make(map[string]string),
	}
}

// Resolved is the outcome of policy resolution for one tenant: the winning
// policy record plus the document to parse, with any assignment override
// already merged in.
type Resolved struct {
	// Policy is the winning catalog record.
	Policy *datatypes.Policy

	// AssignmentID names the assignment that selected the policy. Empty when
	// the policy came from the global fallback.
	AssignmentID string

	// Override is the raw assignment override, nil when none applied.
	Override map[string]any

	// Document is the policy body with Override merged, ready for parsing.
	Document map[string]any
}

// Stats summarizes the loaded catalog for status reporting.
type Stats struct {
	Policies    int       `json:"policies"`
	Assignments int       `json:"assignments"`
	Profiles    int       `json:"profiles"`
	Skipped     int       `json:"skipped"`
	LoadedAt    time.Time `json:"loaded_at"`
	Watching    bool      `json:"watching"`
}

// Catalog loads and serves the policy catalog.
//
// Thread Safety: Safe for concurrent use. Load swaps the snapshot under a
// write lock; all readers take the read lock.
type Catalog struct {
	dir      string
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.RWMutex
	snap     *snapshot
	watcher  *fsnotify.Watcher
	watching bool

	// onReload fires after a successful watcher-triggered reload.
	onReload func()

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Catalog rooted at dir. Call Load before serving lookups.
func New(dir string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		dir:      dir,
		logger:   logger.With(slog.String("component", "catalog")),
		debounce: defaultDebounce,
		snap:     newSnapshot(),
		done:     make(chan struct{}),
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load reads every document under the catalog directory and swaps in a new
// snapshot.
//
// Description:
//
//	Each kind directory is read in filename order. A document that fails to
//	read, parse, or validate is logged and skipped without aborting the
//	load. A missing catalog directory yields an empty catalog, which the
//	engine treats as "no policy configured".
//
// Outputs:
//
//	error - Non-nil only when the catalog root exists but cannot be
//	        inspected, or the context is cancelled.
func (c *Catalog) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	snap := newSnapshot()
	snap.loadedAt = time.Now().UTC()

	if _, err := os.Stat(c.dir); err != nil {
		if os.IsNotExist(err) {
			c.logger.Warn("catalog directory missing, serving empty catalog",
				slog.String("dir", c.dir))
			c.swap(snap)
			return nil
		}
		return fmt.Errorf("stat catalog dir: %w", err)
	}

	c.loadPolicies(snap)
	c.loadAssignments(snap)
	c.loadProfiles(snap)

	c.swap(snap)
	c.logger.Info("catalog loaded",
		slog.String("dir", c.dir),
		slog.Int("policies", len(snap.policies)),
		slog.Int("assignments", len(snap.assignments)),
		slog.Int("profiles", len(snap.profiles)),
		slog.Int("skipped", snap.skipped))
	return nil
}

func (c *Catalog) loadPolicies(snap *snapshot) {
	for _, path := range c.documentFiles(policiesDir) {
		data, err := c.readDocument(path)
		if err != nil {
			c.skip(snap, path, err)
			continue
		}
		var p datatypes.Policy
		if err := yaml.Unmarshal(data, &p); err != nil {
			c.skip(snap, path, fmt.Errorf("parse policy: %w", err))
			continue
		}
		if err := validatePolicyRecord(&p); err != nil {
			c.skip(snap, path, err)
			continue
		}
		if _, dup := snap.policies[p.ID]; dup {
			c.logger.Warn("duplicate policy id, later file wins",
				slog.String("id", p.ID), slog.String("path", path))
		}
		snap.policies[p.ID] = &p
		snap.fingerprints["policy/"+p.ID] = fingerprint(data)
	}
}

func (c *Catalog) loadAssignments(snap *snapshot) {
	for _, path := range c.documentFiles(assignmentsDir) {
		data, err := c.readDocument(path)
		if err != nil {
			c.skip(snap, path, err)
			continue
		}
		var a datatypes.TenantAssignment
		if err := yaml.Unmarshal(data, &a); err != nil {
			c.skip(snap, path, fmt.Errorf("parse assignment: %w", err))
			continue
		}
		if err := validateAssignmentRecord(&a); err != nil {
			c.skip(snap, path, err)
			continue
		}
		if _, dup := snap.assignments[a.ID]; dup {
			c.logger.Warn("duplicate assignment id, later file wins",
				slog.String("id", a.ID), slog.String("path", path))
		}
		snap.assignments[a.ID] = &a
		snap.fingerprints["assignment/"+a.ID] = fingerprint(data)
	}
}

func (c *Catalog) loadProfiles(snap *snapshot) {
	for _, path := range c.documentFiles(profilesDir) {
		data, err := c.readDocument(path)
		if err != nil {
			c.skip(snap, path, err)
			continue
		}
		var p datatypes.AutoscalingProfile
		if err := yaml.Unmarshal(data, &p); err != nil {
			c.skip(snap, path, fmt.Errorf("parse profile: %w", err))
			continue
		}
		if err := validateProfileRecord(&p); err != nil {
			c.skip(snap, path, err)
			continue
		}
		if _, dup := snap.profiles[p.ID]; dup {
			c.logger.Warn("duplicate profile id, later file wins",
				slog.String("id", p.ID), slog.String("path", path))
		}
		snap.profiles[p.ID] = &p
		snap.fingerprints["profile/"+p.ID] = fingerprint(data)
	}
}

// documentFiles lists the YAML files in one kind directory, sorted by name.
// A missing kind directory is an empty kind, not an error.
func (c *Catalog) documentFiles(subdir string) []string {
	dir := filepath.Join(c.dir, subdir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("catalog subdirectory unreadable",
				slog.String("dir", dir), slog.String("error", err.Error()))
		}
		return nil
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
	return files
}

// readDocument reads one catalog file, enforcing the size cap.
func (c *Catalog) readDocument(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat document: %w", err)
	}
	if info.Size() > MaxDocumentSize {
		return nil, fmt.Errorf("document too large: %d bytes (max %d)", info.Size(), MaxDocumentSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}

func (c *Catalog) skip(snap *snapshot, path string, err error) {
	snap.skipped++
	c.logger.Warn("skipping catalog document",
		slog.String("path", path),
		slog.String("error", err.Error()))
}

func (c *Catalog) swap(snap *snapshot) {
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

func (c *Catalog) current() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// fingerprint hashes a document into the sha256:<hex> form used in evidence
// exports.
func fingerprint(data []byte) string {
	return fmt.Sprintf("sha256:%x", sha256.Sum256(data))
}

// =============================================================================
// Validation
// =============================================================================

func validatePolicyRecord(p *datatypes.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := validation.ValidateCatalogID(p.ID); err != nil {
		return err
	}
	if p.Tenant != "" {
		if err := validation.ValidateTenant(p.Tenant); err != nil {
			return err
		}
	}
	return nil
}

func validateAssignmentRecord(a *datatypes.TenantAssignment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := validation.ValidateCatalogID(a.ID); err != nil {
		return err
	}
	if err := validation.ValidateCatalogID(a.PolicyID); err != nil {
		return err
	}
	if err := validation.ValidateTenant(a.Tenant); err != nil {
		return err
	}
	if a.EffectiveTo != nil && !a.EffectiveTo.After(a.EffectiveFrom) {
		return &datatypes.FieldError{Field: "effective_to", Message: "must be after effective_from"}
	}
	return nil
}

func validateProfileRecord(p *datatypes.AutoscalingProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := validation.ValidateCatalogID(p.ID); err != nil {
		return err
	}
	switch p.Scope {
	case datatypes.ScopeTenant:
		if p.Tenant == "" {
			return &datatypes.FieldError{Field: "tenant", Message: "required for tenant scope"}
		}
	case datatypes.ScopeRouteClass:
		if p.RouteClass == "" {
			return &datatypes.FieldError{Field: "route_class", Message: "required for route_class scope"}
		}
	}
	if p.Tenant != "" {
		if err := validation.ValidateTenant(p.Tenant); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Lookups
// =============================================================================

// ResolveEffectivePolicy returns the policy governing a tenant at the given
// instant.
//
// Description:
//
//	Resolution order:
//	  1. The tenant's current assignment, when it references an enabled
//	     policy. With several current assignments the latest effective_from
//	     wins. The assignment override is merged into the returned Document.
//	  2. The most recently updated enabled global policy.
//	  3. Neither exists: ErrNoPolicy.
//
//	An assignment that references a missing or disabled policy is logged
//	and treated as absent, so resolution falls through to the global
//	fallback.
//
// Outputs:
//
//	*Resolved - The winning policy with the merged document. Nil on error.
//	error - ErrNoPolicy when no policy applies.
func (c *Catalog) ResolveEffectivePolicy(ctx context.Context, tenant string, now time.Time) (*Resolved, error) {
	snap := c.current()

	var current *datatypes.TenantAssignment
	for _, a := range snap.assignments {
		if a.Tenant != tenant || !a.CurrentAt(now) {
			continue
		}
		if current == nil || a.EffectiveFrom.After(current.EffectiveFrom) {
			current = a
		}
	}
	if current != nil {
		if p, ok := snap.policies[current.PolicyID]; ok && p.Enabled {
			return &Resolved{
				Policy:       p,
				AssignmentID: current.ID,
				Override:     current.Override,
				Document:     policy.MergeOverride(p.Document, current.Override),
			}, nil
		}
		c.logger.Warn("assignment references missing or disabled policy",
			slog.String("tenant", tenant),
			slog.String("assignment_id", current.ID),
			slog.String("policy_id", current.PolicyID))
	}

	var fallback *datatypes.Policy
	for _, p := range snap.policies {
		if !p.Global() || !p.Enabled {
			continue
		}
		if fallback == nil || p.UpdatedAt.After(fallback.UpdatedAt) {
			fallback = p
		}
	}
	if fallback == nil {
		return nil, ErrNoPolicy
	}
	return &Resolved{
		Policy:   fallback,
		Document: policy.MergeOverride(fallback.Document, nil),
	}, nil
}

// Policy returns the policy with the given id.
func (c *Catalog) Policy(id string) (*datatypes.Policy, bool) {
	p, ok := c.current().policies[id]
	return p, ok
}

// Profile returns the autoscaling profile with the given id.
func (c *Catalog) Profile(id string) (*datatypes.AutoscalingProfile, bool) {
	p, ok := c.current().profiles[id]
	return p, ok
}

// Profiles returns every loaded autoscaling profile, sorted by id.
func (c *Catalog) Profiles() []*datatypes.AutoscalingProfile {
	snap := c.current()
	out := make([]*datatypes.AutoscalingProfile, 0, len(snap.profiles))
	for _, p := range snap.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AssignedTenants returns the distinct tenants with a current assignment,
// sorted.
func (c *Catalog) AssignedTenants(now time.Time) []string {
	snap := c.current()
	seen := make(map[string]struct{})
	out := make([]string, 0, len(snap.assignments))
	for _, a := range snap.assignments {
		if !a.CurrentAt(now) {
			continue
		}
		if _, ok := seen[a.Tenant]; ok {
			continue
		}
		seen[a.Tenant] = struct{}{}
		out = append(out, a.Tenant)
	}
	sort.Strings(out)
	return out
}

// Fingerprints returns the content hash of every loaded document, keyed by
// "<kind>/<id>".
func (c *Catalog) Fingerprints() map[string]string {
	snap := c.current()
	out := make(map[string]string, len(snap.fingerprints))
	for k, v := range snap.fingerprints {
		out[k] = v
	}
	return out
}

// Stats reports the size and age of the current snapshot.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Policies:    len(c.snap.policies),
		Assignments: len(c.snap.assignments),
		Profiles:    len(c.snap.profiles),
		Skipped:     c.snap.skipped,
		LoadedAt:    c.snap.loadedAt,
		Watching:    c.watching,
	}
}
