// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InjectContext injects trace context into outgoing HTTP headers.
//
// Description:
//
//	Uses the globally configured propagator (set in Init) to inject
//	W3C TraceContext and Baggage into HTTP headers. Use this when
//	making outgoing HTTP requests to propagate trace context.
//
// Inputs:
//
//	ctx - Context containing active span information.
//	headers - HTTP headers to inject trace context into.
//
// Thread Safety: Safe for concurrent use.
func InjectContext(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// PropagateToRequest injects trace context into an outgoing HTTP request.
//
// Description:
//
//	Convenience wrapper that injects trace context into the request
//	headers and returns the request with updated context.
//
// Inputs:
//
//	ctx - Context containing active span information.
//	req - HTTP request to inject trace context into.
//
// Outputs:
//
//	*http.Request - Request with context and trace headers updated.
//
// Example:
//
//	func (e *HTTPExecutor) Scale(ctx context.Context, action *datatypes.AutoscalingAction) (bool, error) {
//	    req, _ := http.NewRequest(http.MethodPost, e.url, body)
//	    req = telemetry.PropagateToRequest(ctx, req)
//	    resp, err := e.client.Do(req)
//	    // ...
//	}
//
// Thread Safety: Safe for concurrent use.
func PropagateToRequest(ctx context.Context, req *http.Request) *http.Request {
	InjectContext(ctx, req.Header)
	return req.WithContext(ctx)
}

// MapCarrier implements propagation.TextMapCarrier for map[string]string.
//
// Description:
//
//	Allows trace context propagation with simple string maps, used here to
//	stamp stored audit events so evidence exports can link back to traces.
type MapCarrier map[string]string

// Get returns the value for a key.
func (c MapCarrier) Get(key string) string {
	return c[key]
}

// Set sets a key-value pair.
func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

// Keys returns all keys in the carrier.
func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectToMap injects trace context into a string map.
//
// Description:
//
//	Useful for propagating trace context through non-HTTP transports.
//	If carrier is nil, a new map is created and returned.
//
// Inputs:
//
//	ctx - Context containing active span information.
//	carrier - Map to inject trace context into. May be nil.
//
// Outputs:
//
//	map[string]string - Map with trace context injected.
//
// Thread Safety: Safe for concurrent use.
func InjectToMap(ctx context.Context, carrier map[string]string) map[string]string {
	if carrier == nil {
		carrier = make(map[string]string)
	}
	otel.GetTextMapPropagator().Inject(ctx, MapCarrier(carrier))
	return carrier
}

// ExtractFromMap extracts trace context from a string map.
//
// Inputs:
//
//	ctx - Base context to extend.
//	carrier - Map containing trace context keys.
//
// Outputs:
//
//	context.Context - Context with trace information attached.
//
// Thread Safety: Safe for concurrent use.
func ExtractFromMap(ctx context.Context, carrier map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, MapCarrier(carrier))
}
