// Package memfilter post-processes ranked search results against metadata
// constraints the engine itself does not understand.
package memfilter

import (
	"time"
)

// Spec is the caller-supplied constraint set for one search call. Zero-value
// fields impose no restriction. It is immutable for the duration of a call.
type Spec struct {
	// Kind retains only candidates whose metadata "kind" field equals this
	// value exactly (case-sensitive).
	Kind string

	// Tags retains only candidates whose tag list shares at least one tag
	// with this set.
	Tags []string

	// Since retains only candidates whose metadata "timestamp" is at or
	// after this instant (inclusive).
	Since time.Time
}

// IsZero reports whether the spec imposes no constraints.
func (s Spec) IsZero() bool {
	return s.Kind == "" && len(s.Tags) == 0 && s.Since.IsZero()
}

// Matches reports whether a candidate's metadata satisfies every supplied
// constraint. A candidate missing a field needed by a supplied constraint is
// rejected (fail-closed).
func (s Spec) Matches(metadata map[string]any) bool {
	if s.Kind != "" {
		kind, ok := metadata["kind"].(string)
		if !ok || kind != s.Kind {
			return false
		}
	}

	if len(s.Tags) > 0 {
		tags := stringSlice(metadata["tags"])
		if !intersects(tags, s.Tags) {
			return false
		}
	}

	if !s.Since.IsZero() {
		ts, ok := timestampOf(metadata["timestamp"])
		if !ok || ts.Before(s.Since) {
			return false
		}
	}

	return true
}

// Apply filters a result's metadata maps in ranked order, preserving order.
// The input slice is not mutated.
func Apply[T any](s Spec, results []T, metadataOf func(T) map[string]any) []T {
	if s.IsZero() {
		return results
	}
	kept := make([]T, 0, len(results))
	for _, r := range results {
		if s.Matches(metadataOf(r)) {
			kept = append(kept, r)
		}
	}
	return kept
}

// stringSlice normalizes a metadata tag value. Tags arrive as []string from
// internal callers and as []any of strings after a JSON round trip.
func stringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func intersects(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

// timestampOf normalizes a metadata timestamp value. Accepted shapes are
// time.Time, an RFC 3339 string, and integer or float Unix seconds.
func timestampOf(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	case float64:
		return time.Unix(int64(v), 0), true
	default:
		return time.Time{}, false
	}
}
