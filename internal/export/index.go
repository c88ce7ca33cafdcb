package export

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

// IndexLink is one entry of an index-formatted file.
type IndexLink struct {
	Text   string
	Target string
}

var indexLinePattern = regexp.MustCompile(`^[*-] \[(.*)\]\((.*)\)$`)

// ParseIndex returns the links of an index-formatted document: every non-blank
// line is a list item holding a single link, and there is at least one.
// ok is false for any other document.
func ParseIndex(content []byte) (links []IndexLink, ok bool) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		m := indexLinePattern.FindStringSubmatch(line)
		if m == nil {
			return nil, false
		}
		target := strings.TrimSpace(m[2])
		if target == "" {
			return nil, false
		}
		links = append(links, IndexLink{Text: m[1], Target: target})
	}
	if scanner.Err() != nil || len(links) == 0 {
		return nil, false
	}
	return links, true
}

// IsIndexFormatted reports whether content is an index-formatted document.
func IsIndexFormatted(content []byte) bool {
	_, ok := ParseIndex(content)
	return ok
}
