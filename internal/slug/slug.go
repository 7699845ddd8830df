// Package slug validates and derives the short codes used for revenue
// categories. A code is lowercase [a-z0-9_], 2 to 40 runes.
package slug

import (
	"regexp"
	"strings"
)

var codeRe = regexp.MustCompile(`^[a-z0-9_]{2,40}$`)

// IsSlug reports whether s is a valid category code.
func IsSlug(s string) bool {
	return codeRe.MatchString(s)
}

// Slugify derives a category code from a free-form label: lowercase, any run
// of characters outside [a-z0-9_] becomes a single underscore, truncated to
// 40 runes with leading and trailing underscores trimmed.
func Slugify(label string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(label) {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
		switch {
		case ok && r == '_':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case ok:
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
		if b.Len() >= 40 {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}
