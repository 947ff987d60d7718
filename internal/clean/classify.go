package clean

import "regexp"

// topic is one framework-error classification pattern. The list is ordered;
// the first match wins. Classification is advisory metadata and never drops
// an event.
type topic struct {
	Name    string
	Pattern *regexp.Regexp
}

var topics = []topic{
	{"hydration-mismatch", regexp.MustCompile(`(?i)hydration|did not match.*server rendered|server html`)},
	{"hook-usage", regexp.MustCompile(`(?i)invalid hook call|rendered (?:more|fewer) hooks|hooks can only be called`)},
	{"render-error", regexp.MustCompile(`(?i)each child in a list should have|failed prop type|objects are not valid as a react child|cannot update a component .* while rendering`)},
	{"build-lifecycle", regexp.MustCompile(`(?i)\[hmr\]|hot module replacement|\[vite\]|module factory is not available`)},
}

// Classify tags message text with the first matching topic, or returns the
// empty string when the text stays unclassified.
func Classify(msg string) string {
	for i := range topics {
		if topics[i].Pattern.MatchString(msg) {
			return topics[i].Name
		}
	}
	return ""
}
