package netcap

import (
	"regexp"

	"webtap/internal/logger"
)

// Filter decides, before retention or forwarding, whether a request is noise.
// Both axes come from persisted configuration: declared resource categories
// and URL-pattern heuristics.
type Filter struct {
	resourceTypes map[string]bool
	patterns      []*regexp.Regexp
}

// NewFilter compiles the exclusion sets. Invalid patterns are skipped with a
// warning; a broken heuristic must not disable capture.
func NewFilter(resourceTypes []string, urlPatterns []string, l logger.Logger) *Filter {
	if l == nil {
		l = logger.NewNop()
	}
	f := &Filter{resourceTypes: make(map[string]bool, len(resourceTypes))}
	for _, rt := range resourceTypes {
		f.resourceTypes[rt] = true
	}
	for _, p := range urlPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			l.Warn("invalid exclude pattern skipped", "pattern", p, "error", err)
			continue
		}
		f.patterns = append(f.patterns, re)
	}
	return f
}

// Excluded reports whether an event with the given URL and declared resource
// type should be dropped before retention.
func (f *Filter) Excluded(url, resourceType string) bool {
	if f == nil {
		return false
	}
	if resourceType != "" && f.resourceTypes[resourceType] {
		return true
	}
	for _, re := range f.patterns {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}
