package utils

import "github.com/microcosm-cc/bluemonday"

var sanitizer = bluemonday.UGCPolicy()

// Sanitize reduces user HTML to the UGC subset so it can be rendered unescaped.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}
