// Package slugs provides the slugification helpers used to match link
// fragments against headings.
//
// Exported Markdown links point at headings using one of two conventions:
//   - Heading slugs: GitHub/doctoc-style fragment IDs derived from heading text
//     with a conservative, Unicode-aware transformation.
//   - Component slugs: ASCII transliterated slugs built on gosimple/slug, used
//     as a fallback when a fragment was produced by another tool.
package slugs

import (
	"strings"
	"unicode"

	goslug "github.com/gosimple/slug"
)

// HeadingSlug converts a heading text to a URL-friendly fragment slug.
func HeadingSlug(text string) string {
	var result strings.Builder
	prevDash := false

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			prevDash = false
		case r == ' ' || r == '-' || r == '_' || r == ':':
			// Convert separators (including colon) to dashes
			if !prevDash && result.Len() > 0 {
				result.WriteRune('-')
				prevDash = true
			}
		}
	}

	return strings.TrimSuffix(result.String(), "-")
}

// ComponentSlug converts a string to an ASCII slug.
func ComponentSlug(s string) string {
	s = strings.TrimSuffix(s, ".md")
	slugged := goslug.Make(s)
	if slugged == "" {
		slugged = strings.ToLower(strings.ReplaceAll(s, " ", "-"))
	}
	return slugged
}

// MatchHeading returns the heading a link fragment refers to.
//
// Matching is tried in order: exact heading text, heading slug, component slug.
func MatchHeading(fragment string, headings []string) (string, bool) {
	fragment = strings.TrimSpace(strings.TrimPrefix(fragment, "#"))
	if fragment == "" {
		return "", false
	}
	for _, h := range headings {
		if h == fragment {
			return h, true
		}
	}
	want := HeadingSlug(fragment)
	for _, h := range headings {
		if want != "" && HeadingSlug(h) == want {
			return h, true
		}
	}
	want = ComponentSlug(fragment)
	for _, h := range headings {
		if want != "" && ComponentSlug(h) == want {
			return h, true
		}
	}
	return "", false
}
