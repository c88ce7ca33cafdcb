package plan

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/frontmatter"

	"github.com/aidanlsb/wikimigrate/internal/logging"
	"github.com/aidanlsb/wikimigrate/internal/pagetree"
)

// ReadOptions configures Read.
type ReadOptions struct {
	// IDPattern is the regular expression leaf identifier suffixes match.
	IDPattern string

	// TitleMatch decides when two sibling titles collide.
	TitleMatch pagetree.TitleMatch

	Logger logging.Logger
}

// Read parses a plan directory back into a tree.
//
// Renamed files and folders change titles. Removed files and folders drop
// their pages; order entries naming them are ignored. Pages missing from an
// order list are appended in name order. Everything else that breaks the
// layout is reported as a *RoundTripError.
func Read(dir string, opts ReadOptions) (*pagetree.Tree, error) {
	parser, err := pagetree.NewNameParser(opts.IDPattern)
	if err != nil {
		return nil, err
	}
	r := &reader{
		root:   dir,
		parser: parser,
		tree:   pagetree.New(opts.TitleMatch),
		log:    logging.OrNoOp(opts.Logger),
	}

	indexPath := filepath.Join(dir, IndexFile)
	if _, err := os.Stat(indexPath); err != nil {
		return nil, &RoundTripError{Path: IndexFile, Reason: "missing root index", Err: err}
	}
	meta, body, err := r.readIndex(indexPath)
	if err != nil {
		return nil, err
	}

	root := &pagetree.Node{
		ID:     meta.ID,
		Title:  pagetree.IndexTitle,
		Kind:   pagetree.KindContainer,
		Body:   body,
		Source: IndexFile,
	}
	if err := r.tree.SetRoot(root); err != nil {
		return nil, &RoundTripError{Path: IndexFile, Err: err}
	}
	if err := r.readContainer(root, dir, meta.Order); err != nil {
		return nil, err
	}
	if err := r.tree.Validate(); err != nil {
		return nil, &RoundTripError{Path: IndexFile, Err: err}
	}

	r.log.Info("plan read", "dir", dir, "pages", r.tree.Len())
	return r.tree, nil
}

type reader struct {
	root   string
	parser *pagetree.NameParser
	tree   *pagetree.Tree
	log    logging.Logger
}

// entry is a page found in a plan folder before it is placed in the tree.
type entry struct {
	node  *pagetree.Node
	dir   string // folder of a container
	order []string
}

func (r *reader) readContainer(parent *pagetree.Node, dir string, order []string) error {
	items, err := os.ReadDir(dir)
	if err != nil {
		return &RoundTripError{Path: r.rel(dir), Reason: "cannot read folder", Err: err}
	}

	var found []*entry
	byID := make(map[string]*entry)
	for _, item := range items {
		name := item.Name()
		if strings.HasPrefix(name, ".") || name == IndexFile {
			continue
		}
		path := filepath.Join(dir, name)

		var e *entry
		switch {
		case item.IsDir():
			e, err = r.readFolder(path)
		case pagetree.IsMarkdown(name):
			e, err = r.readLeaf(path)
		default:
			r.log.Debug("ignoring non-page file", "path", r.rel(path))
			continue
		}
		if err != nil {
			return err
		}
		if prev, ok := byID[e.node.ID]; ok {
			return &RoundTripError{
				Path: e.node.Source,
				Err:  &pagetree.ConflictError{ID: e.node.ID, Existing: prev.node.Source, Incoming: e.node.Source, Err: pagetree.ErrDuplicateID},
			}
		}
		byID[e.node.ID] = e
		found = append(found, e)
	}

	placed := make(map[string]bool, len(found))
	var ordered []*entry
	for _, id := range order {
		if e, ok := byID[id]; ok && !placed[id] {
			ordered = append(ordered, e)
			placed[id] = true
		} else if !ok {
			r.log.Debug("order entry has no page", "folder", r.rel(dir), "id", id)
		}
	}
	for _, e := range found {
		if !placed[e.node.ID] {
			ordered = append(ordered, e)
		}
	}

	for _, e := range ordered {
		if err := r.tree.AddChild(parent.ID, e.node); err != nil {
			return &RoundTripError{Path: e.node.Source, Err: err}
		}
		if e.node.IsContainer() {
			if err := r.readContainer(e.node, e.dir, e.order); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *reader) readFolder(dir string) (*entry, error) {
	indexPath := filepath.Join(dir, IndexFile)
	if _, err := os.Stat(indexPath); err != nil {
		return nil, &RoundTripError{Path: r.rel(dir), Reason: "folder has no " + IndexFile}
	}
	meta, body, err := r.readIndex(indexPath)
	if err != nil {
		return nil, err
	}
	return &entry{
		node: &pagetree.Node{
			ID:     meta.ID,
			Title:  UnescapeTitle(filepath.Base(dir)),
			Kind:   pagetree.KindContainer,
			Body:   body,
			Source: r.rel(indexPath),
		},
		dir:   dir,
		order: meta.Order,
	}, nil
}

func (r *reader) readLeaf(path string) (*entry, error) {
	title, id, ok := r.parser.ParseFile(filepath.Base(path))
	if !ok {
		return nil, &RoundTripError{Path: r.rel(path), Reason: "file name has no identifier suffix"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &RoundTripError{Path: r.rel(path), Reason: "cannot read file", Err: err}
	}
	return &entry{node: &pagetree.Node{
		ID:     id,
		Title:  UnescapeTitle(title),
		Kind:   pagetree.KindLeaf,
		Body:   string(data),
		Source: r.rel(path),
	}}, nil
}

func (r *reader) readIndex(path string) (*indexMeta, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", &RoundTripError{Path: r.rel(path), Reason: "cannot read index", Err: err}
	}
	var meta indexMeta
	body, err := frontmatter.Parse(bytes.NewReader(data), &meta)
	if err != nil {
		return nil, "", &RoundTripError{Path: r.rel(path), Reason: "invalid front matter", Err: err}
	}
	meta.ID = strings.TrimSpace(meta.ID)
	if meta.ID == "" {
		return nil, "", &RoundTripError{Path: r.rel(path), Reason: "front matter has no id"}
	}
	return &meta, strings.TrimLeft(string(body), "\r\n"), nil
}

func (r *reader) rel(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
