package executor

import (
	"path"
	"strings"

	"github.com/aidanlsb/wikimigrate/internal/pagetree"
	"github.com/aidanlsb/wikimigrate/internal/paths"
	"github.com/aidanlsb/wikimigrate/internal/slugs"
	"github.com/aidanlsb/wikimigrate/internal/storage"
)

// linkTable maps links between exported files to remote page URLs.
//
// Exported links name the target file, whose identifier suffix survives every
// rename a plan allows, so links are resolved by identifier first. Bare index
// files carry no identifier and are matched by path.
type linkTable struct {
	tree     *pagetree.Tree
	names    *pagetree.NameParser
	conv     *storage.Converter
	headings map[string][]string
	sources  map[string]string // folded source path -> node identifier
}

func newLinkTable(tree *pagetree.Tree, names *pagetree.NameParser, conv *storage.Converter) *linkTable {
	l := &linkTable{
		tree:     tree,
		names:    names,
		conv:     conv,
		headings: make(map[string][]string),
		sources:  make(map[string]string),
	}
	_ = tree.Walk(func(n *pagetree.Node, _ int) error {
		if n.Source != "" {
			l.sources[strings.ToLower(paths.NormalizeRel(n.Source))] = n.ID
		}
		return nil
	})
	return l
}

// target returns the node a link path written in from points at. from may
// be nil when the linking page is unknown.
func (l *linkTable) target(from *pagetree.Node, p string) (*pagetree.Node, bool) {
	p = paths.NormalizeRel(p)
	base := path.Base(p)
	if base == "." || base == "/" || !pagetree.IsMarkdown(base) {
		return nil, false
	}
	if _, id, ok := l.names.ParseFile(base); ok {
		return l.tree.Node(id)
	}
	if !l.names.IsIndexFile(base) {
		return nil, false
	}

	fromDir := "."
	if from != nil && from.Source != "" {
		fromDir = path.Dir(paths.NormalizeRel(from.Source))
	}
	joined := path.Join(fromDir, p)
	if id, ok := l.sources[strings.ToLower(joined)]; ok {
		return l.tree.Node(id)
	}
	if path.Dir(joined) == "." {
		if root := l.tree.Root(); root != nil {
			return root, true
		}
		return nil, false
	}
	// "sub-3/index.md" is the index of container 3.
	if _, id, ok := l.names.ParseStem(path.Base(path.Dir(joined))); ok {
		return l.tree.Node(id)
	}
	return nil, false
}

// Resolve returns the remote URL of dest as linked from the page from,
// including a heading anchor when the fragment names a heading of the
// target page.
func (l *linkTable) Resolve(from *pagetree.Node, dest string) (string, bool) {
	p, fragment := paths.SplitLink(dest)
	if p == "" {
		return "", false
	}
	n, ok := l.target(from, p)
	if !ok {
		return "", false
	}
	if n.Remote == nil || n.Remote.URL == "" {
		return "", false
	}

	url := n.Remote.URL
	if fragment == "" {
		return url, true
	}
	if heading, ok := slugs.MatchHeading(fragment, l.headingsOf(n)); ok {
		url += "#" + headingAnchor(n.Title, heading)
	}
	return url, true
}

// waiting returns the links among unresolved that point at a page of the
// tree which has no remote page yet.
func (l *linkTable) waiting(from *pagetree.Node, unresolved []string) []string {
	var out []string
	for _, dest := range unresolved {
		p, _ := paths.SplitLink(dest)
		if p == "" {
			continue
		}
		if n, ok := l.target(from, p); ok && n.Remote == nil {
			out = append(out, dest)
		}
	}
	return out
}

func (l *linkTable) headingsOf(n *pagetree.Node) []string {
	if h, ok := l.headings[n.ID]; ok {
		return h
	}
	h := l.conv.Headings([]byte(n.Body))
	l.headings[n.ID] = h
	return h
}

// resolver returns the storage.LinkResolver used while rendering from.
func (l *linkTable) resolver(from *pagetree.Node) storage.LinkResolver {
	return storage.LinkResolverFunc(func(dest string) (string, bool) {
		return l.Resolve(from, dest)
	})
}

// headingAnchor builds the anchor Confluence assigns to a heading:
// page title and heading text without spaces, joined by a dash.
func headingAnchor(title, heading string) string {
	return strings.ReplaceAll(title, " ", "") + "-" + strings.ReplaceAll(heading, " ", "")
}
