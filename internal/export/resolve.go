// Package export resolves an exported Markdown workspace into a page tree.
//
// Two layouts are understood and may be mixed:
//   - directory layout: a sub-directory paired with an index file is a
//     container, either through an index file inside it ("sub/index-3.md")
//     or a sibling file of the same title ("sub-3.md" next to "sub/");
//   - flat layout: a file whose content is only a list of links
//     ("* [Title](Title abcd.md)") is a container of the files it links to.
//
// Resolution never writes to the export.
package export

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aidanlsb/wikimigrate/internal/logging"
	"github.com/aidanlsb/wikimigrate/internal/pagetree"
	"github.com/aidanlsb/wikimigrate/internal/paths"
)

// Options configures Resolve.
type Options struct {
	// IDPattern is the regular expression identifier suffixes must match.
	IDPattern string

	// TitleMatch decides when two sibling titles collide.
	TitleMatch pagetree.TitleMatch

	// Skip lists paths to leave out of the traversal, such as a plan
	// directory written inside the export.
	Skip []string

	Logger logging.Logger
}

// Resolve walks the export rooted at root and returns its page tree.
// Every structural problem is reported as a *MalformedExportError.
func Resolve(root string, opts Options) (*pagetree.Tree, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &MalformedExportError{Reason: "cannot resolve export path", Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &MalformedExportError{Reason: "cannot read export", Err: err}
	}
	if !info.IsDir() {
		return nil, malformed("", "%s is not a directory", root)
	}

	parser, err := pagetree.NewNameParser(opts.IDPattern)
	if err != nil {
		return nil, err
	}

	r := &resolver{
		root:    abs,
		parser:  parser,
		tree:    pagetree.New(opts.TitleMatch),
		claimed: make(map[string]bool),
		skip:    make(map[string]bool),
		log:     logging.OrNoOp(opts.Logger),
	}
	for _, p := range opts.Skip {
		if p, err := filepath.Abs(p); err == nil {
			r.skip[p] = true
		}
	}
	if err := r.resolve(); err != nil {
		return nil, err
	}
	if err := r.tree.Validate(); err != nil {
		return nil, &MalformedExportError{Err: err}
	}

	r.log.Info("export resolved", "root", root, "nodes", r.tree.Len())
	return r.tree, nil
}

type resolver struct {
	root    string
	parser  *pagetree.NameParser
	tree    *pagetree.Tree
	claimed map[string]bool
	skip    map[string]bool
	log     logging.Logger
}

func (r *resolver) resolve() error {
	entries, err := r.readDir(r.root)
	if err != nil {
		return err
	}

	var indexes []string
	for _, e := range entries {
		if !e.IsDir() && r.parser.IsIndexFile(e.Name()) {
			indexes = append(indexes, e.Name())
		}
	}
	switch len(indexes) {
	case 0:
		return malformed("", "no top-level index file (index.md)")
	case 1:
	default:
		return malformed("", "multiple top-level index files: %s", strings.Join(indexes, ", "))
	}

	indexPath := filepath.Join(r.root, indexes[0])
	id := pagetree.RootID
	if _, suffix, ok := r.parser.ParseFile(indexes[0]); ok {
		id = suffix
	}
	body, err := r.readFile(indexPath)
	if err != nil {
		return err
	}

	root := &pagetree.Node{
		ID:     id,
		Title:  pagetree.IndexTitle,
		Kind:   pagetree.KindContainer,
		Body:   string(body),
		Source: r.rel(indexPath),
	}
	if err := r.tree.SetRoot(root); err != nil {
		return &MalformedExportError{Path: root.Source, Err: err}
	}
	r.claim(indexPath)

	return r.fillContainer(root, indexPath, body, r.root)
}

// fillContainer adds the children of a container: the files its index links
// to first, then the unclaimed entries of its directory (if it has one).
func (r *resolver) fillContainer(node *pagetree.Node, indexPath string, body []byte, dir string) error {
	if links, ok := ParseIndex(body); ok {
		for _, link := range links {
			if err := r.followLink(node, indexPath, link); err != nil {
				return err
			}
		}
	}
	if dir == "" {
		return nil
	}
	return r.scanDir(node, dir)
}

func (r *resolver) followLink(parent *pagetree.Node, indexPath string, link IndexLink) error {
	source := r.rel(indexPath)
	if paths.IsExternal(link.Target) {
		return malformed(source, "index entry %q links outside the export", link.Target)
	}
	target, _ := paths.SplitLink(link.Target)
	if target == "" {
		return malformed(source, "index entry %q has no file", link.Target)
	}

	// Links are relative to the index file; flat exports also write them
	// relative to the export root.
	candidates := []string{
		filepath.Join(filepath.Dir(indexPath), filepath.FromSlash(target)),
		filepath.Join(r.root, filepath.FromSlash(paths.NormalizeRel(target))),
	}
	var found string
	for _, candidate := range candidates {
		if err := paths.ValidateWithin(r.root, candidate); err != nil {
			return &MalformedExportError{Path: source, Reason: "index entry " + link.Target, Err: err}
		}
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			found = filepath.Clean(candidate)
			break
		}
	}
	if found == "" {
		return malformed(source, "index entry %q: file not found", link.Target)
	}
	if r.claimed[found] {
		r.log.Debug("index entry already placed", "index", source, "target", r.rel(found))
		return nil
	}
	return r.addFile(parent, found)
}

func (r *resolver) scanDir(parent *pagetree.Node, dir string) error {
	r.claim(dir)
	entries, err := r.readDir(dir)
	if err != nil {
		return err
	}

	type pairing struct {
		inside  string // index file inside the directory
		sibling string // file next to the directory carrying its title
	}
	pairs := make(map[string]pairing)
	pairedFiles := make(map[string]bool)

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		inside, err := r.findIndexIn(sub)
		if err != nil {
			return err
		}
		if inside != "" {
			pairs[e.Name()] = pairing{inside: inside}
			continue
		}
		if sibling := r.siblingFile(entries, e.Name()); sibling != "" {
			pairs[e.Name()] = pairing{sibling: sibling}
			pairedFiles[sibling] = true
		}
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if r.claimed[path] {
			continue
		}

		if e.IsDir() {
			p, ok := pairs[e.Name()]
			switch {
			case ok && p.inside != "":
				err = r.addDirContainer(parent, path, p.inside)
			case ok:
				siblingPath := filepath.Join(dir, p.sibling)
				if r.claimed[siblingPath] {
					continue
				}
				title, id, _ := r.parser.ParseFile(p.sibling)
				err = r.addNamed(parent, siblingPath, title, id, path)
			default:
				if r.hasMarkdown(path) {
					return malformed(r.rel(path), "directory has no index file")
				}
				r.log.Debug("skipping directory without pages", "dir", r.rel(path))
			}
			if err != nil {
				return err
			}
			continue
		}

		if !pagetree.IsMarkdown(e.Name()) || pairedFiles[e.Name()] {
			continue
		}
		if r.parser.IsIndexFile(e.Name()) {
			return malformed(r.rel(path), "second index file in %s", r.rel(dir))
		}
		if err := r.addFile(parent, path); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) addFile(parent *pagetree.Node, path string) error {
	name := filepath.Base(path)
	if r.parser.IsIndexFile(name) {
		return r.addDirContainer(parent, filepath.Dir(path), path)
	}
	title, id, ok := r.parser.ParseFile(name)
	if !ok {
		return malformed(r.rel(path), "file name has no identifier suffix")
	}
	return r.addNamed(parent, path, title, id, r.siblingDir(path, title))
}

// addNamed adds a file-backed node. dir is the directory paired with the
// file, if any; a paired file is always a container.
func (r *resolver) addNamed(parent *pagetree.Node, path, title, id, dir string) error {
	body, err := r.readFile(path)
	if err != nil {
		return err
	}
	r.claim(path)

	node := &pagetree.Node{
		ID:     id,
		Title:  title,
		Kind:   pagetree.KindLeaf,
		Body:   string(body),
		Source: r.rel(path),
	}
	if dir != "" || IsIndexFormatted(body) {
		node.Kind = pagetree.KindContainer
	}
	if err := r.add(parent, node); err != nil {
		return err
	}
	if !node.IsContainer() {
		return nil
	}
	return r.fillContainer(node, path, body, dir)
}

func (r *resolver) addDirContainer(parent *pagetree.Node, dir, indexPath string) error {
	dirName := filepath.Base(dir)
	var title, id string
	if _, suffix, ok := r.parser.ParseFile(filepath.Base(indexPath)); ok {
		title, id = dirName, suffix
		if t, s, ok := r.parser.ParseStem(dirName); ok && s == suffix {
			title = t
		}
	} else if t, suffix, ok := r.parser.ParseStem(dirName); ok {
		title, id = t, suffix
	} else {
		return malformed(r.rel(indexPath), "neither the index file nor its directory has an identifier suffix")
	}

	body, err := r.readFile(indexPath)
	if err != nil {
		return err
	}
	r.claim(indexPath)

	node := &pagetree.Node{
		ID:     id,
		Title:  title,
		Kind:   pagetree.KindContainer,
		Body:   string(body),
		Source: r.rel(indexPath),
	}
	if err := r.add(parent, node); err != nil {
		return err
	}
	return r.fillContainer(node, indexPath, body, dir)
}

func (r *resolver) add(parent, node *pagetree.Node) error {
	if err := r.tree.AddChild(parent.ID, node); err != nil {
		return &MalformedExportError{Path: node.Source, Err: err}
	}
	r.log.Debug("node resolved", "id", node.ID, "title", node.Title, "kind", node.Kind.String(), "parent", parent.ID)
	return nil
}

func (r *resolver) findIndexIn(dir string) (string, error) {
	entries, err := r.readDir(dir)
	if err != nil {
		return "", err
	}
	var found []string
	for _, e := range entries {
		if !e.IsDir() && r.parser.IsIndexFile(e.Name()) {
			found = append(found, e.Name())
		}
	}
	switch len(found) {
	case 0:
		return "", nil
	case 1:
		return filepath.Join(dir, found[0]), nil
	default:
		return "", malformed(r.rel(dir), "multiple index files: %s", strings.Join(found, ", "))
	}
}

// siblingFile returns the Markdown file among entries whose title matches the
// directory name dirName.
func (r *resolver) siblingFile(entries []os.DirEntry, dirName string) string {
	dirTitle, dirID, dirHasID := r.parser.ParseStem(dirName)
	for _, e := range entries {
		if e.IsDir() || !pagetree.IsMarkdown(e.Name()) || r.parser.IsIndexFile(e.Name()) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if stem == dirName {
			return e.Name()
		}
		title, id, ok := r.parser.ParseStem(stem)
		if !ok {
			continue
		}
		if title == dirName || (dirHasID && title == dirTitle && id == dirID) {
			return e.Name()
		}
	}
	return ""
}

// siblingDir returns the unclaimed directory next to path named after the
// file, if it has no index file of its own.
func (r *resolver) siblingDir(path, title string) string {
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, candidate := range []string{stem, title} {
		dir := filepath.Join(filepath.Dir(path), candidate)
		if r.claimed[dir] {
			continue
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		if inside, err := r.findIndexIn(dir); err == nil && inside == "" {
			return dir
		}
	}
	return ""
}

var errFound = errors.New("found")

func (r *resolver) hasMarkdown(dir string) bool {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && pagetree.IsMarkdown(d.Name()) {
			return errFound
		}
		return nil
	})
	return errors.Is(err, errFound)
}

func (r *resolver) readDir(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &MalformedExportError{Path: r.rel(dir), Reason: "cannot read directory", Err: err}
	}
	visible := entries[:0]
	for _, e := range entries {
		if isHidden(e.Name()) || r.skip[filepath.Join(dir, e.Name())] {
			continue
		}
		visible = append(visible, e)
	}
	return visible, nil
}

func (r *resolver) readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &MalformedExportError{Path: r.rel(path), Reason: "cannot read file", Err: err}
	}
	return data, nil
}

func (r *resolver) claim(path string) {
	r.claimed[filepath.Clean(path)] = true
}

func (r *resolver) rel(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return path
	}
	if rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
