package plan

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/aidanlsb/wikimigrate/internal/atomicfile"
	"github.com/aidanlsb/wikimigrate/internal/logging"
	"github.com/aidanlsb/wikimigrate/internal/pagetree"
)

// WriteOptions configures Write.
type WriteOptions struct {
	// Refresh replaces an existing plan directory instead of failing.
	Refresh bool

	Logger logging.Logger
}

// WriteResult summarizes a written plan.
type WriteResult struct {
	Dir   string `json:"dir"`
	Pages int    `json:"pages"`
	Files int    `json:"files"`
	Dirs  int    `json:"dirs"`
	Bytes int64  `json:"bytes"`
}

// Summary returns a one-line human description of the result.
func (r *WriteResult) Summary() string {
	return fmt.Sprintf("%d pages, %d files in %d folders, %s",
		r.Pages, r.Files, r.Dirs, humanize.Bytes(uint64(r.Bytes)))
}

// indexMeta is the front matter of container index files.
type indexMeta struct {
	ID    string   `yaml:"id"`
	Order []string `yaml:"order,omitempty"`
}

// Write mirrors tree into dir. The plan is assembled in a staging directory
// and moved into place, so a failed write never leaves a partial plan.
func Write(tree *pagetree.Tree, dir string, opts WriteOptions) (*WriteResult, error) {
	if err := tree.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err == nil && !opts.Refresh {
		return nil, fmt.Errorf("%w: %s", ErrPlanExists, dir)
	}

	log := logging.OrNoOp(opts.Logger)
	w := &writer{tree: tree, result: &WriteResult{Dir: dir, Pages: tree.Len()}, log: log}

	if err := atomicfile.ReplaceDir(dir, w.writeRoot); err != nil {
		return nil, err
	}

	log.Info("plan written", "dir", dir, "pages", w.result.Pages, "files", w.result.Files, "bytes", w.result.Bytes)
	return w.result, nil
}

type writer struct {
	tree   *pagetree.Tree
	result *WriteResult
	log    logging.Logger
}

func (w *writer) writeRoot(staging string) error {
	root := w.tree.Root()
	if err := w.writeIndex(staging, root); err != nil {
		return err
	}
	return w.writeChildren(staging, root)
}

func (w *writer) writeChildren(dir string, parent *pagetree.Node) error {
	for _, child := range w.tree.Children(parent.ID) {
		if !child.IsContainer() {
			if err := w.writeFile(filepath.Join(dir, leafFileName(child)), []byte(child.Body)); err != nil {
				return err
			}
			continue
		}

		sub := filepath.Join(dir, EscapeTitle(child.Title))
		if err := os.Mkdir(sub, 0o755); err != nil {
			if os.IsExist(err) {
				return fmt.Errorf("folder for %q (%s) collides with a sibling on this filesystem", child.Title, child.ID)
			}
			return fmt.Errorf("create folder for %q: %w", child.Title, err)
		}
		w.result.Dirs++

		if err := w.writeIndex(sub, child); err != nil {
			return err
		}
		if err := w.writeChildren(sub, child); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) writeIndex(dir string, n *pagetree.Node) error {
	meta, err := yaml.Marshal(indexMeta{ID: n.ID, Order: n.Children})
	if err != nil {
		return fmt.Errorf("encode front matter for %s: %w", n.ID, err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(meta)
	buf.WriteString("---\n")
	buf.WriteString(strings.TrimLeft(n.Body, "\r\n"))

	return w.writeFile(filepath.Join(dir, IndexFile), buf.Bytes())
}

func (w *writer) writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("plan file %s collides with a sibling on this filesystem", filepath.Base(path))
		}
		return fmt.Errorf("create plan file: %w", err)
	}
	n, err := f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write plan file %s: %w", filepath.Base(path), err)
	}

	w.result.Files++
	w.result.Bytes += int64(n)
	w.log.Debug("plan file written", "file", filepath.Base(path))
	return nil
}
