// Package strings holds small helpers for normalizing client-supplied lists.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value and drops blanks and repeats, keeping the
// first occurrence in order. Comparison is case-sensitive.
//
//	DedupeAndTrim([]string{" recipient-001 ", "recipient-002", "recipient-001", ""})
//	// []string{"recipient-001", "recipient-002"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
