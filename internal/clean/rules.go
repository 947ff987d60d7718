// Package clean turns raw, framework-polluted diagnostic text into readable
// messages. The rule list is ordered and every rule is idempotent: applying
// the set twice yields the same text as applying it once.
package clean

import (
	"regexp"
	"strings"
)

// Rule is one noise-removal step.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Replace string
}

// defaultRules run in order. New noise patterns are added here without
// touching control flow.
var defaultRules = []Rule{
	{
		// build-tool chunk hashes: bundle.3f9ab21c.js, chunk-XYZ.0f0f0f0f0f.mjs,
		// and the literal [hash]/[contenthash] placeholders some tools emit.
		Name:    "chunk-hash",
		Pattern: regexp.MustCompile(`\.(?:[0-9a-f]{8,20}|\[(?:content)?hash\])\.(js|mjs|css)\b`),
		Replace: ".$1",
	},
	{
		Name:    "anonymous-frame",
		Pattern: regexp.MustCompile(`\s+at\s+<anonymous>(?::\d+(?::\d+)?)?`),
		Replace: "",
	},
	{
		Name:    "minified-eval-frame",
		Pattern: regexp.MustCompile(`\(eval at [^)]*\)`),
		Replace: "",
	},
	{
		Name:    "webpack-internal",
		Pattern: regexp.MustCompile(`webpack-internal:///(?:\./)?`),
		Replace: "",
	},
	{
		Name:    "bundler-path-prefix",
		Pattern: regexp.MustCompile(`(?:webpack://[^\s()]*?/\./|/node_modules/\.vite/deps/)`),
		Replace: "",
	},
	{
		Name:    "data-url-payload",
		Pattern: regexp.MustCompile(`data:[\w.+/-]+;base64,[A-Za-z0-9+/=]{16,}`),
		Replace: "data:<payload omitted>",
	},
}

var whitespace = regexp.MustCompile(`\s+`)

// Message applies the rule set to raw text and collapses whitespace.
func Message(raw string) string {
	s := raw
	for i := range defaultRules {
		s = defaultRules[i].Pattern.ReplaceAllString(s, defaultRules[i].Replace)
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Rules exposes the active rule list, mostly for tests and diagnostics.
func Rules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}
