package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// SanitizeText strips all markup from user supplied free text.
func SanitizeText(s string) string {
	return strings.TrimSpace(strict.Sanitize(s))
}
