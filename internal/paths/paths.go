// Package paths provides canonical helpers for working with export-relative
// paths and Markdown link destinations:
// - normalizing relative paths (e.g. "./sub//b-4.md" -> "sub/b-4.md")
// - splitting and unescaping link destinations written by the export tool
// - keeping resolved paths inside the export or plan root
package paths

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrPathOutside is returned when a path escapes its base directory.
var ErrPathOutside = errors.New("path escapes base directory")

// NormalizeRel normalizes a relative path-like value:
// - converts OS separators to '/'
// - trims leading "./" and leading "/"
// - collapses repeated '/'
func NormalizeRel(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

// ValidateWithin returns ErrPathOutside when candidate is not inside base.
func ValidateWithin(base, candidate string) error {
	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return err
	}
	candidateAbs, err := filepath.Abs(candidate)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(baseAbs, candidateAbs)
	if err != nil {
		return err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrPathOutside, candidate)
	}
	return nil
}

// IsExternal reports whether a link destination points outside the export
// (absolute URLs, scheme-relative URLs, mail links).
func IsExternal(dest string) bool {
	dest = strings.TrimSpace(dest)
	if strings.HasPrefix(dest, "//") {
		return true
	}
	u, err := url.Parse(dest)
	if err != nil {
		return false
	}
	return u.Scheme != ""
}

// SplitLink splits a Markdown link destination into an unescaped path and a
// fragment. Exported links may percent-encode spaces and backslash-escape
// punctuation such as parentheses.
//
// Examples:
// - "Other%20Page%20abcd.md#Setup" -> ("Other Page abcd.md", "Setup")
// - `My \(draft\) 12.md`          -> ("My (draft) 12.md", "")
// - "#local"                       -> ("", "local")
func SplitLink(dest string) (path, fragment string) {
	dest = strings.TrimSpace(dest)
	if i := strings.IndexByte(dest, '#'); i >= 0 {
		path, fragment = dest[:i], dest[i+1:]
	} else {
		path = dest
	}
	path = unescapeBackslashes(path)
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	if unescaped, err := url.PathUnescape(fragment); err == nil {
		fragment = unescaped
	}
	return path, fragment
}

func unescapeBackslashes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
