package pagetree

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// DefaultIDPattern matches the identifier suffix appended by the export tool.
// A suffix carries at least one digit, so "Getting Started" has none.
const DefaultIDPattern = `[0-9A-Za-z]*[0-9][0-9A-Za-z]*`

// IndexTitle is the title of index files ("index.md", "index-<id>.md").
const IndexTitle = "index"

// NameParser splits file stems into a title and an identifier suffix.
//
// A stem has the form "<title><sep><id>" where sep is a space, '-' or '_'.
// The last separator wins, so "my-page-2" parses as ("my-page", "2").
type NameParser struct {
	re *regexp.Regexp
}

// NewNameParser compiles a parser for identifiers matching idPattern.
func NewNameParser(idPattern string) (*NameParser, error) {
	if strings.TrimSpace(idPattern) == "" {
		idPattern = DefaultIDPattern
	}
	re, err := regexp.Compile(`^(.+)[ _-](` + idPattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid identifier pattern %q: %w", idPattern, err)
	}
	return &NameParser{re: re}, nil
}

// MustNameParser is NewNameParser for patterns known to be valid.
func MustNameParser(idPattern string) *NameParser {
	p, err := NewNameParser(idPattern)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseStem extracts title and identifier from a file stem.
func (p *NameParser) ParseStem(stem string) (title, id string, ok bool) {
	m := p.re.FindStringSubmatch(stem)
	if m == nil {
		return "", "", false
	}
	title = strings.TrimSpace(m[1])
	id = m[2]
	if title == "" || id == "" {
		return "", "", false
	}
	return title, id, true
}

// ParseFile extracts title and identifier from a Markdown file name.
func (p *NameParser) ParseFile(name string) (title, id string, ok bool) {
	base := filepath.Base(name)
	if !IsMarkdown(base) {
		return "", "", false
	}
	return p.ParseStem(strings.TrimSuffix(base, filepath.Ext(base)))
}

// StripSuffix returns name without its identifier suffix, or name unchanged
// when it has none.
func (p *NameParser) StripSuffix(name string) string {
	if title, _, ok := p.ParseStem(name); ok {
		return title
	}
	return name
}

// IsIndexFile reports whether name is "index.md" or "index<sep><id>.md".
func (p *NameParser) IsIndexFile(name string) bool {
	base := filepath.Base(name)
	if !IsMarkdown(base) {
		return false
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.EqualFold(stem, IndexTitle) {
		return true
	}
	title, _, ok := p.ParseStem(stem)
	return ok && strings.EqualFold(title, IndexTitle)
}

// IsMarkdown reports whether name has a Markdown extension.
func IsMarkdown(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md")
}

// TitleMatch selects how sibling titles are compared.
type TitleMatch string

const (
	// MatchExact compares titles byte for byte.
	MatchExact TitleMatch = "exact"
	// MatchFold compares titles with Unicode case folding.
	MatchFold TitleMatch = "fold"
)

// Equal reports whether two titles collide.
func (m TitleMatch) Equal(a, b string) bool {
	return m.Key(a) == m.Key(b)
}

// Key returns the comparison key for a title.
func (m TitleMatch) Key(title string) string {
	title = strings.TrimSpace(title)
	if m == MatchFold {
		return cases.Fold().String(title)
	}
	return title
}

// Valid reports whether m is a known mode.
func (m TitleMatch) Valid() bool {
	return m == MatchExact || m == MatchFold
}
