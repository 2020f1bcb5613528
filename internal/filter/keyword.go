// Package filter implements the keyword matcher and the freshness gate
// applied to feed items.
package filter

import "strings"

// Match returns the keywords contained in text, in keyword order.
// Matching is case-sensitive substring containment. Empty text or an empty
// keyword never matches.
func Match(text string, keywords []string) []string {
	if text == "" {
		return nil
	}
	var found []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// Union merges keyword sets, dropping duplicates and keeping first-seen order.
func Union(sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, kw := range set {
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}
