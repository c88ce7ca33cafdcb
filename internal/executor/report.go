package executor

import (
	"fmt"
	"time"

	"github.com/aidanlsb/wikimigrate/internal/pagetree"
	"github.com/aidanlsb/wikimigrate/internal/remote"
)

// State is the outcome of a single node.
type State int

const (
	// StatePending nodes were not reached, usually because the run was canceled.
	StatePending State = iota
	// StateCreated nodes got a new remote page (or resumed one left pending).
	StateCreated
	// StateSkipped nodes already had a page with the same title under the
	// same parent. The root is always skipped.
	StateSkipped
	// StateFailed nodes hit a remote error.
	StateFailed
	// StateBlocked nodes were not attempted because an ancestor failed or the
	// run was aborted.
	StateBlocked
)

var stateNames = map[State]string{
	StatePending: "pending",
	StateCreated: "created",
	StateSkipped: "skipped",
	StateFailed:  "failed",
	StateBlocked: "blocked",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome records what happened to one node.
type Outcome struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Kind     string `json:"kind"`
	ParentID string `json:"parent_id,omitempty"`
	Depth    int    `json:"depth"`
	State    State  `json:"state"`

	// Resumed is set when a page left pending by an earlier run was found
	// and rendered again.
	Resumed bool `json:"resumed,omitempty"`
	// Rendered is set once the final body was pushed.
	Rendered bool `json:"rendered,omitempty"`

	Remote    *pagetree.RemoteRef `json:"remote,omitempty"`
	BlockedBy string              `json:"blocked_by,omitempty"`
	Attempts  int                 `json:"attempts,omitempty"`

	Unresolved []string `json:"unresolved_links,omitempty"`
	// Waiting lists links to pages of the tree that have no remote page
	// yet. The page stays pending until a later run resolves them.
	Waiting   []string `json:"waiting_links,omitempty"`
	Fallbacks int      `json:"fallbacks,omitempty"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`

	page *remote.Page
}

func (o *Outcome) fail(err error) {
	o.State = StateFailed
	o.Err = err
	o.Error = err.Error()
}

func (o *Outcome) bind(p *remote.Page) {
	url := p.URL
	if url == "" && o.Remote != nil {
		url = o.Remote.URL
	}
	o.page = p
	o.Remote = &pagetree.RemoteRef{ID: p.ID, URL: url, Version: p.Version}
}

// Report is the result of a run. Outcomes are in traversal order.
type Report struct {
	RunID    string        `json:"run_id"`
	RootPage *remote.Page  `json:"root_page,omitempty"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Outcomes []*Outcome    `json:"outcomes"`
	Aborted  string        `json:"aborted,omitempty"`
	Duration time.Duration `json:"-"`
}

// Outcome returns the outcome of the node with the given identifier.
func (r *Report) Outcome(id string) (*Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return nil, false
}

// Count returns the number of outcomes in state s.
func (r *Report) Count(s State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == s {
			n++
		}
	}
	return n
}

// Counts returns outcome counts keyed by state name.
func (r *Report) Counts() map[string]int {
	counts := make(map[string]int, len(stateNames))
	for _, name := range stateNames {
		counts[name] = 0
	}
	for _, o := range r.Outcomes {
		counts[o.State.String()]++
	}
	return counts
}

// OK reports whether every node reached a remote page with its final body.
func (r *Report) OK() bool {
	for _, o := range r.Outcomes {
		if o.State != StateCreated && o.State != StateSkipped {
			return false
		}
		if o.State == StateCreated && (!o.Rendered || len(o.Waiting) > 0) {
			return false
		}
	}
	return r.Aborted == ""
}
