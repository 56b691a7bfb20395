// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

// Metadata stores arbitrary key-value pairs for context and logging.
//
// Using a defined type rather than map[string]any provides clearer
// intent in signatures and a home for type-safe accessors.
//
// # Common Keys
//
// While Metadata is flexible, these keys are commonly used on guard
// audit events:
//   - "tenant": tenant the decision applies to
//   - "route_class": route class evaluated
//   - "policy_id": resolved policy
//   - "incident_id": incident touched by the decision
//   - "reason": scaling reason code
//   - "from_replicas"/"to_replicas": replica delta
//   - "error": failure message when the outcome is an error
//   - "traceparent": W3C trace context for linking to spans
//
// # Thread Safety
//
// Metadata is NOT thread-safe. Do not share a single instance across
// goroutines without external synchronization.
//
// Example:
//
//	meta := extensions.NewMetadata().
//	    Set("tenant", "acme").
//	    Set("route_class", "run").
//	    Set("breach_count", 2)
type Metadata map[string]any

// NewMetadata creates an empty Metadata instance.
func NewMetadata() Metadata {
	return make(Metadata)
}

// Set adds or updates a key-value pair and returns the Metadata for
// chaining.
func (m Metadata) Set(key string, value any) Metadata {
	m[key] = value
	return m
}

// Get retrieves a value by key, reporting whether the key exists.
func (m Metadata) Get(key string) (any, bool) {
	value, ok := m[key]
	return value, ok
}

// GetString retrieves a string value by key. Returns "" and false if
// the key is absent or holds a non-string value.
func (m Metadata) GetString(key string) (string, bool) {
	value, ok := m[key]
	if !ok {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

// GetInt retrieves an int value by key.
func (m Metadata) GetInt(key string) (int, bool) {
	value, ok := m[key]
	if !ok {
		return 0, false
	}
	i, ok := value.(int)
	return i, ok
}

// GetFloat64 retrieves a float64 value by key.
func (m Metadata) GetFloat64(key string) (float64, bool) {
	value, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := value.(float64)
	return f, ok
}

// GetBool retrieves a bool value by key.
func (m Metadata) GetBool(key string) (bool, bool) {
	value, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := value.(bool)
	return b, ok
}

// Clone creates a shallow copy of the Metadata. Values themselves are
// not deep-copied.
func (m Metadata) Clone() Metadata {
	clone := make(Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Merge copies all key-value pairs from another Metadata into this one,
// overwriting existing keys. Nil input is a no-op.
func (m Metadata) Merge(other Metadata) Metadata {
	if other == nil {
		return m
	}
	for k, v := range other {
		m[k] = v
	}
	return m
}

// Keys returns all keys in the Metadata. Order is not guaranteed.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of key-value pairs.
func (m Metadata) Len() int {
	return len(m)
}
