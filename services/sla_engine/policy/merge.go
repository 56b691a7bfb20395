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

// MergeOverride applies a tenant override document over a base policy
// document and returns a new document. Neither input is mutated.
//
// Merge rules (shallow JSON-merge):
//   - scalar override values replace the base value
//   - nested objects merge recursively
//   - lists replace wholesale, never element-wise
func MergeOverride(base, override map[string]any) map[string]any {
	merged := copyDocument(base)
	for key, value := range override {
		if overrideMap, ok := value.(map[string]any); ok {
			if baseMap, ok := merged[key].(map[string]any); ok {
				merged[key] = MergeOverride(baseMap, overrideMap)
				continue
			}
		}
		merged[key] = copyValue(value)
	}
	return merged
}

func copyDocument(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		out[key] = copyValue(value)
	}
	return out
}

func copyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return copyDocument(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
