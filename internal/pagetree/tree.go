// Package pagetree holds the canonical page hierarchy shared by the export
// resolver, the plan reader/writer and the executor.
//
// A Tree is an arena of nodes keyed by identifier. Containers reference their
// children by identifier, which keeps the two-phase execution (create pages
// first, render bodies second) free of pointer cycles.
package pagetree

import (
	"errors"
	"fmt"
)

// RootID is the identifier given to a root index file that carries no suffix.
const RootID = "index"

// Kind classifies a node.
type Kind int

const (
	// KindLeaf is a content page with a Markdown body and no children.
	KindLeaf Kind = iota
	// KindContainer is an index page backed by an index-formatted source file.
	KindContainer
)

func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindLeaf:
		return "leaf"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RemoteRef identifies the remote page a node was migrated to.
type RemoteRef struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Version int    `json:"version,omitempty"`
}

// Node is a single page in the hierarchy.
type Node struct {
	ID     string
	Title  string
	Kind   Kind
	Body   string
	Source string // file the node was read from

	// Children holds child identifiers in order. Only containers have children.
	Children []string

	// Remote is bound by the executor once the page exists remotely.
	Remote *RemoteRef
}

// IsContainer reports whether the node is an index page.
func (n *Node) IsContainer() bool {
	return n.Kind == KindContainer
}

var (
	// ErrDuplicateID is returned when an identifier is added twice.
	ErrDuplicateID = errors.New("duplicate identifier")
	// ErrDuplicateTitle is returned when two siblings share a title.
	ErrDuplicateTitle = errors.New("duplicate sibling title")
	// ErrNotContainer is returned when a child is added under a leaf.
	ErrNotContainer = errors.New("parent is not a container")
	// ErrNoRoot is returned when a tree has no root node.
	ErrNoRoot = errors.New("tree has no root")

	// ErrMalformedExport marks errors caused by an export that cannot be
	// resolved into a single tree.
	ErrMalformedExport = errors.New("malformed export")
	// ErrPlanRoundTrip marks errors caused by a plan directory that cannot
	// be read back into a tree.
	ErrPlanRoundTrip = errors.New("plan cannot be read back")
)

// ConflictError describes a clash between two nodes.
type ConflictError struct {
	ID       string
	Title    string
	Existing string // source of the node already in the tree
	Incoming string // source of the node being added
	Err      error
}

func (e *ConflictError) Error() string {
	switch {
	case errors.Is(e.Err, ErrDuplicateID):
		return fmt.Sprintf("%v %q: %s and %s", e.Err, e.ID, e.Existing, e.Incoming)
	case errors.Is(e.Err, ErrDuplicateTitle):
		return fmt.Sprintf("%v %q: %s and %s", e.Err, e.Title, e.Existing, e.Incoming)
	default:
		return fmt.Sprintf("%v: %s", e.Err, e.Incoming)
	}
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Tree is an arena of nodes with a single root.
type Tree struct {
	root    string
	nodes   map[string]*Node
	parents map[string]string
	match   TitleMatch
}

// New returns an empty tree comparing sibling titles with match.
func New(match TitleMatch) *Tree {
	if match == "" {
		match = MatchExact
	}
	return &Tree{
		nodes:   make(map[string]*Node),
		parents: make(map[string]string),
		match:   match,
	}
}

// TitleMatch returns the title comparison used by the tree.
func (t *Tree) TitleMatch() TitleMatch {
	return t.match
}

// SetRoot installs the root node. The root is always a container.
func (t *Tree) SetRoot(n *Node) error {
	if t.root != "" {
		return &ConflictError{ID: n.ID, Existing: t.nodes[t.root].Source, Incoming: n.Source, Err: fmt.Errorf("root already set")}
	}
	n.Kind = KindContainer
	t.root = n.ID
	t.nodes[n.ID] = n
	return nil
}

// AddChild appends n to the children of parentID.
func (t *Tree) AddChild(parentID string, n *Node) error {
	parent, ok := t.nodes[parentID]
	if !ok {
		return fmt.Errorf("unknown parent %q", parentID)
	}
	if !parent.IsContainer() {
		return &ConflictError{ID: n.ID, Incoming: parent.Source, Err: ErrNotContainer}
	}
	if existing, ok := t.nodes[n.ID]; ok {
		return &ConflictError{ID: n.ID, Existing: existing.Source, Incoming: n.Source, Err: ErrDuplicateID}
	}
	for _, childID := range parent.Children {
		sibling := t.nodes[childID]
		if t.match.Equal(sibling.Title, n.Title) {
			return &ConflictError{ID: n.ID, Title: n.Title, Existing: sibling.Source, Incoming: n.Source, Err: ErrDuplicateTitle}
		}
	}

	t.nodes[n.ID] = n
	t.parents[n.ID] = parentID
	parent.Children = append(parent.Children, n.ID)
	return nil
}

// Root returns the root node, or nil for an empty tree.
func (t *Tree) Root() *Node {
	if t.root == "" {
		return nil
	}
	return t.nodes[t.root]
}

// Node looks up a node by identifier.
func (t *Tree) Node(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Parent returns the parent of id. The root has no parent.
func (t *Tree) Parent(id string) (*Node, bool) {
	pid, ok := t.parents[id]
	if !ok {
		return nil, false
	}
	return t.nodes[pid], true
}

// Children returns the ordered children of id.
func (t *Tree) Children(id string) []*Node {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(n.Children))
	for _, cid := range n.Children {
		out = append(out, t.nodes[cid])
	}
	return out
}

// Len returns the number of nodes including the root.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Depth returns how many ancestors id has.
func (t *Tree) Depth(id string) int {
	depth := 0
	for {
		pid, ok := t.parents[id]
		if !ok {
			return depth
		}
		depth++
		id = pid
	}
}

// Path returns the titles from the root's first child down to id.
func (t *Tree) Path(id string) []string {
	var titles []string
	for id != t.root {
		n, ok := t.nodes[id]
		if !ok {
			break
		}
		titles = append([]string{n.Title}, titles...)
		id = t.parents[id]
	}
	return titles
}

// Descendants returns every node below id in pre-order.
func (t *Tree) Descendants(id string) []*Node {
	var out []*Node
	var visit func(string)
	visit = func(cur string) {
		for _, child := range t.Children(cur) {
			out = append(out, child)
			visit(child.ID)
		}
	}
	visit(id)
	return out
}

// SkipChildren can be returned from a WalkFunc to skip a node's subtree.
var SkipChildren = errors.New("skip children")

// WalkFunc is called for each node during Walk.
type WalkFunc func(n *Node, depth int) error

// Walk visits every node in pre-order, parents before children and children
// in their stored order.
func (t *Tree) Walk(fn WalkFunc) error {
	root := t.Root()
	if root == nil {
		return ErrNoRoot
	}
	return t.walk(root, 0, fn)
}

func (t *Tree) walk(n *Node, depth int, fn WalkFunc) error {
	if err := fn(n, depth); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	for _, child := range t.Children(n.ID) {
		if err := t.walk(child, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the structural invariants of the tree.
func (t *Tree) Validate() error {
	if t.Root() == nil {
		return ErrNoRoot
	}
	for id, n := range t.nodes {
		if n.Kind == KindLeaf && len(n.Children) > 0 {
			return &ConflictError{ID: id, Incoming: n.Source, Err: ErrNotContainer}
		}
		if id != t.root {
			if _, ok := t.parents[id]; !ok {
				return fmt.Errorf("node %q (%s) is not attached to the tree", id, n.Source)
			}
		}
	}
	return nil
}
