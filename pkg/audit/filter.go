package audit

import "strings"

// FilterPolicy decides whether a candidate item is excluded by directory or
// URL policy. Matching is case-insensitive substring containment; an empty
// candidate string never matches. A pure value: no side effects.
type FilterPolicy struct {
	IgnoredDirs       []string
	IgnoredDirsActive bool

	IncludedDirs       []string
	IncludedDirsActive bool

	IgnoredURLs       []string
	IgnoredURLsActive bool
}

// Excluded reports whether the item at the given folder path and URL is
// excluded. The inclusion allow-list and the exclusion lists are
// independent; the item is excluded if either rule excludes it.
func (p FilterPolicy) Excluded(path, url string) bool {
	if p.IgnoredURLsActive && containsAny(url, p.IgnoredURLs) {
		return true
	}
	if p.IgnoredDirsActive && containsAny(path, p.IgnoredDirs) {
		return true
	}
	if p.IncludedDirsActive && !containsAny(path, p.IncludedDirs) {
		return true
	}
	return false
}

func containsAny(candidate string, needles []string) bool {
	if candidate == "" {
		return false
	}
	lower := strings.ToLower(candidate)
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
