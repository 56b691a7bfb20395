// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines interfaces for enterprise functionality.
//
// This package provides extension points that allow AleutianEnterprise
// to add capabilities without modifying the core AleutianGuard codebase.
// The open source version uses no-op defaults for all interfaces.
//
// # Design Philosophy
//
// AleutianGuard is designed as a fully functional single-instance SLA
// engine that works without external identity or compliance
// infrastructure. Enterprise features are implemented by providing
// concrete implementations of these interfaces and injecting them via
// ServiceOptions.
//
// # Extension Categories
//
//   - auth.go: Authentication and authorization (AuthProvider, AuthzProvider)
//   - audit.go: Compliance audit logging (AuditLogger)
//   - metadata.go: Typed key-value context attached to audit events
//
// # Usage in AleutianGuard (Open Source)
//
// The open source version uses no-op auth defaults plus a local
// badger-backed audit trail:
//
//	opts := extensions.DefaultOptions().
//	    WithAudit(audit.NewRecorder(db, logger))
//	engine := sla_engine.NewService(cfg, deps, opts)
//
// # Usage in AleutianEnterprise
//
// Enterprise provides concrete implementations:
//
//	opts := extensions.ServiceOptions{
//	    AuthProvider: enterprise.NewOktaProvider(config),
//	    AuditLogger:  enterprise.NewSplunkAuditor(config),
//	}
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
// Multiple goroutines may call methods simultaneously.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// Pass this to service constructors to enable enterprise features.
// All fields are optional; nil values are replaced with no-op defaults
// when DefaultOptions() is called or when services check for nil.
type ServiceOptions struct {
	// AuthProvider validates authentication tokens.
	// Default: NopAuthProvider (always returns a valid local user)
	AuthProvider AuthProvider

	// AuthzProvider checks authorization permissions.
	// Default: NopAuthzProvider (always allows all actions)
	AuthzProvider AuthzProvider

	// AuditLogger records enforcement and scaling decision events.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op defaults.
//
// This is the configuration used by the open source version: all
// operations allowed, no identity checks, no external audit sink.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:  &NopAuthProvider{},
		AuthzProvider: &NopAuthzProvider{},
		AuditLogger:   &NopAuditLogger{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
// Useful for fluent configuration.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuthz returns a copy of opts with the given AuthzProvider.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.AuthzProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
