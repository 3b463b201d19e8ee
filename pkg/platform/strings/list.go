// Package strings holds small helpers for list-valued flags and settings.
package strings

import (
	"strings"
)

// SplitList flattens comma-separated entries, trims them, and drops
// empties and repeats. First occurrence order is kept.
//
//	SplitList([]string{"a, b", " a", "", "c"}) // []string{"a", "b", "c"}
func SplitList(values []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
