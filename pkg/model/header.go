package model

import "strings"

// Header holds request/response headers keyed by lowercase name.
type Header map[string]string

// Get returns the value for key, case-insensitively.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set stores value under the lowercase form of key.
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Del removes key.
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}
