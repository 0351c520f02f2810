package analysis

import (
	"sort"
	"strings"
)

// dedupeStrings trims, drops empties, and removes case-insensitive
// duplicates while preserving first-seen order.
func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// dedupeSortStrings is dedupeStrings plus case-insensitive ordering.
func dedupeSortStrings(in []string) []string {
	out := dedupeStrings(in)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
