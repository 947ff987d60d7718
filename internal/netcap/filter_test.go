package netcap

import (
	"testing"

	"webtap/internal/config"

	"github.com/stretchr/testify/assert"
)

func defaultFilter() *Filter {
	cfg := config.NewConfig()
	return NewFilter(cfg.Network.ExcludeResourceTypes, cfg.Network.ExcludeURLPatterns, nil)
}

func TestFilterExcludesByResourceType(t *testing.T) {
	f := defaultFilter()
	assert.True(t, f.Excluded("https://cdn.example/logo", "Image"))
	assert.True(t, f.Excluded("https://cdn.example/font", "Font"))
	assert.False(t, f.Excluded("https://api.example/users", "XHR"))
	assert.False(t, f.Excluded("https://api.example/users", "Fetch"))
}

func TestFilterExcludesByURLPattern(t *testing.T) {
	f := defaultFilter()
	cases := map[string]bool{
		"data:image/png;base64,AAAA":              true,
		"https://cdn.example/app.woff2":           true,
		"https://cdn.example/hero.png?v=2":        true,
		"https://cdn.example/bundle.js.map":       true,
		"https://api.example/graphql":             false,
		"https://api.example/v1/items?page=2":     false,
		"https://app.example/static/js/bundle.js": false,
	}
	for url, want := range cases {
		assert.Equal(t, want, f.Excluded(url, ""), "url: %s", url)
	}
}

func TestFilterSkipsInvalidPatterns(t *testing.T) {
	f := NewFilter(nil, []string{`[broken`, `^https://tracked\.`}, nil)
	assert.True(t, f.Excluded("https://tracked.example/x", ""))
	assert.False(t, f.Excluded("https://ok.example/x", ""))
}

func TestNilFilterExcludesNothing(t *testing.T) {
	var f *Filter
	assert.False(t, f.Excluded("https://anything", "Image"))
}
