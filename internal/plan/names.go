// Package plan mirrors a page tree to an editable directory (the plan) and
// reads an edited plan back.
//
// Layout:
//
//	index.md                 root page, front matter id + order
//	<title>-<id>.md          leaf page
//	<title>/index.md         container page, front matter id + order
//	<title>/...              its children
//
// Titles may be edited by renaming files and folders. Identifier suffixes and
// "id:" front matter must not be edited.
package plan

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aidanlsb/wikimigrate/internal/pagetree"
)

// IndexFile is the file holding a container's metadata and body.
const IndexFile = "index.md"

// EscapeTitle makes a title safe to use as a file or folder name. Path
// separators, '%', control characters and a leading '.' are percent-escaped.
func EscapeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for i, r := range title {
		if needsEscape(i, r) {
			fmt.Fprintf(&b, "%%%02X", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func needsEscape(i int, r rune) bool {
	switch {
	case r == '%', r == '/', r == '\\':
		return true
	case r < 0x20, r == 0x7f:
		return true
	case i == 0 && r == '.':
		return true
	}
	return false
}

// UnescapeTitle reverses EscapeTitle. Names that are not valid escapes, for
// example after a manual rename, are returned as they are.
func UnescapeTitle(name string) string {
	if !strings.Contains(name, "%") {
		return name
	}
	title, err := url.PathUnescape(name)
	if err != nil {
		return name
	}
	return title
}

// leafFileName returns the file name of a leaf page.
func leafFileName(n *pagetree.Node) string {
	name := EscapeTitle(n.Title)
	// A leaf titled "index" would otherwise read back as an index file.
	if strings.EqualFold(n.Title, pagetree.IndexTitle) {
		name = fmt.Sprintf("%%%02X", name[0]) + name[1:]
	}
	return name + "-" + n.ID + ".md"
}
