// Package executor mirrors a page tree into a remote wiki space.
//
// A run has two phases. The identity pass walks the tree parents first and
// makes sure every node has a remote page: an existing child page with the
// same title is taken as already migrated, otherwise a page is created with a
// pending placeholder body. The render pass then converts the body of every
// page created in this run, now that every link target has a URL, and pushes
// it. A page whose body is still the placeholder was interrupted between the
// two passes and is rendered again by the next run.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aidanlsb/wikimigrate/internal/logging"
	"github.com/aidanlsb/wikimigrate/internal/pagetree"
	"github.com/aidanlsb/wikimigrate/internal/remote"
	"github.com/aidanlsb/wikimigrate/internal/storage"
)

// DefaultPendingMarker is the text of the placeholder body of pages whose
// content has not been pushed yet.
const DefaultPendingMarker = "wikimigrate: page pending migration"

// Remote is the wiki the tree is mirrored into.
type Remote interface {
	// HomePage returns the homepage of the destination space.
	HomePage(ctx context.Context) (*remote.Page, error)
	// Page returns a page by remote identifier.
	Page(ctx context.Context, id string) (*remote.Page, error)
	// FindChild returns the child of parentID titled title, or nil.
	FindChild(ctx context.Context, parentID, title string) (*remote.Page, error)
	// CreatePage creates a page under parentID.
	CreatePage(ctx context.Context, parentID, title, body string) (*remote.Page, error)
	// UpdatePage replaces the body of page.
	UpdatePage(ctx context.Context, page *remote.Page, body string) (*remote.Page, error)
}

// IndexBody selects what is pushed as the body of container pages.
type IndexBody string

const (
	IndexBodyKeep     IndexBody = "keep"
	IndexBodyChildren IndexBody = "children"
	IndexBodyEmpty    IndexBody = "empty"
)

// ErrAborted is returned when a failure makes the rest of the run pointless.
var ErrAborted = errors.New("run aborted")

// Phase names reported through Progress.
const (
	PhaseIdentity = "identity"
	PhaseRender   = "render"
)

// Progress is reported after each node of each phase.
type Progress struct {
	Phase   string
	Done    int
	Total   int
	Outcome *Outcome
}

// Options configures a run.
type Options struct {
	// RootPageID binds the root of the tree to this page instead of the
	// homepage of the space.
	RootPageID string

	// Attempts and Backoff bound retries of transient failures.
	Attempts int
	Backoff  time.Duration

	IndexBody IndexBody

	// Converter renders bodies. A default converter is used when nil.
	Converter *storage.Converter

	// IDPattern is the identifier suffix pattern used to resolve links.
	IDPattern string

	PendingMarker string

	// RunID names the run. A random identifier is used when empty.
	RunID string

	// Progress, when set, is called after every node of both phases.
	Progress func(Progress)

	Logger logging.Logger
}

type run struct {
	tree     *pagetree.Tree
	remote   Remote
	opts     Options
	retry    retryPolicy
	conv     *storage.Converter
	links    *linkTable
	pending  string
	log      logging.Logger
	report   *Report
	outcomes map[string]*Outcome
	aborted  error
}

// Run mirrors tree into rem. The returned report is non-nil whenever the
// root page could be resolved, even if err is not nil. Per-node failures are
// recorded in the report and do not make Run fail. err is set when the run
// stopped early: the context was canceled or the credentials were refused.
func Run(ctx context.Context, tree *pagetree.Tree, rem Remote, opts Options) (*Report, error) {
	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tree: %w", err)
	}
	names, err := pagetree.NewNameParser(opts.IDPattern)
	if err != nil {
		return nil, err
	}
	if opts.IndexBody == "" {
		opts.IndexBody = IndexBodyKeep
	}
	if opts.PendingMarker == "" {
		opts.PendingMarker = DefaultPendingMarker
	}
	conv := opts.Converter
	if conv == nil {
		conv = storage.NewConverter(storage.Options{QuoteMacros: true})
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	r := &run{
		tree:     tree,
		remote:   rem,
		opts:     opts,
		retry:    retryPolicy{attempts: opts.Attempts, backoff: opts.Backoff},
		conv:     conv,
		links:    newLinkTable(tree, names, conv),
		pending:  storage.PendingBody(opts.PendingMarker),
		log:      logging.OrNoOp(opts.Logger).WithFields(map[string]any{"run_id": runID}),
		report:   &Report{RunID: runID, Started: time.Now()},
		outcomes: make(map[string]*Outcome, tree.Len()),
	}
	defer func() {
		r.report.Finished = time.Now()
		r.report.Duration = r.report.Finished.Sub(r.report.Started)
	}()

	if err := r.bindRoot(ctx); err != nil {
		return nil, err
	}
	r.log.Info("identity pass", "pages", tree.Len()-1, "root", r.report.RootPage.ID)
	if err := r.identityPass(ctx); err != nil {
		return r.report, err
	}
	r.log.Info("render pass", "pages", r.report.Count(StateCreated))
	if err := r.renderPass(ctx); err != nil {
		return r.report, err
	}
	if r.aborted != nil {
		return r.report, r.aborted
	}

	r.log.Info("run finished",
		"created", r.report.Count(StateCreated),
		"skipped", r.report.Count(StateSkipped),
		"failed", r.report.Count(StateFailed),
		"blocked", r.report.Count(StateBlocked),
	)
	return r.report, nil
}

func (r *run) bindRoot(ctx context.Context) error {
	var page *remote.Page
	desc := "resolve space homepage"
	if r.opts.RootPageID != "" {
		desc = "resolve parent page " + r.opts.RootPageID
	}
	_, err := r.retry.do(ctx, desc, func(int) error {
		var err error
		if r.opts.RootPageID != "" {
			page, err = r.remote.Page(ctx, r.opts.RootPageID)
		} else {
			page, err = r.remote.HomePage(ctx)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", desc, err)
	}
	r.report.RootPage = page
	return nil
}

// identityPass gives every node a remote page, parents first.
func (r *run) identityPass(ctx context.Context) error {
	total := r.tree.Len()
	done := 0
	err := r.tree.Walk(func(n *pagetree.Node, depth int) error {
		o := &Outcome{ID: n.ID, Title: n.Title, Kind: n.Kind.String(), Depth: depth}
		r.report.Outcomes = append(r.report.Outcomes, o)
		r.outcomes[n.ID] = o
		defer func() {
			done++
			r.progress(PhaseIdentity, done, total, o)
		}()

		if depth == 0 {
			o.State = StateSkipped
			o.bind(r.report.RootPage)
			n.Remote = o.Remote
			return nil
		}

		parent, _ := r.tree.Parent(n.ID)
		o.ParentID = parent.ID
		po := r.outcomes[parent.ID]

		switch {
		case r.aborted != nil:
			o.State = StateBlocked
			o.Error = r.aborted.Error()
			return nil
		case po.State == StateFailed:
			o.State = StateBlocked
			o.BlockedBy = po.ID
			return nil
		case po.State == StateBlocked || po.State == StatePending:
			o.State = StateBlocked
			o.BlockedBy = po.BlockedBy
			if o.BlockedBy == "" {
				o.BlockedBy = po.ID
			}
			return nil
		}

		if err := ctx.Err(); err != nil {
			o.State = StatePending
			return err
		}

		err := r.ensurePage(ctx, n, o, po.page.ID)
		if err == nil {
			n.Remote = o.Remote
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			o.State = StatePending
			return err
		}
		o.fail(err)
		r.log.Warn("page failed", "id", n.ID, "title", n.Title, "error", err.Error())
		if remote.IsAuth(err) {
			r.aborted = fmt.Errorf("%w: %v", ErrAborted, err)
			r.report.Aborted = err.Error()
		}
		return nil
	})
	if err != nil {
		r.markUnreached()
	}
	return err
}

// markUnreached records the nodes a canceled walk never visited as pending.
func (r *run) markUnreached() {
	_ = r.tree.Walk(func(n *pagetree.Node, depth int) error {
		if _, ok := r.outcomes[n.ID]; ok {
			return nil
		}
		o := &Outcome{ID: n.ID, Title: n.Title, Kind: n.Kind.String(), Depth: depth, State: StatePending}
		if parent, ok := r.tree.Parent(n.ID); ok {
			o.ParentID = parent.ID
		}
		r.report.Outcomes = append(r.report.Outcomes, o)
		r.outcomes[n.ID] = o
		return nil
	})
}

// ensurePage finds or creates the page of n under parentID.
func (r *run) ensurePage(ctx context.Context, n *pagetree.Node, o *Outcome, parentID string) error {
	var existing *remote.Page
	attempts, err := r.retry.do(ctx, "look up "+n.Title, func(int) error {
		var err error
		existing, err = r.remote.FindChild(ctx, parentID, n.Title)
		return err
	})
	o.Attempts += attempts
	if err != nil {
		return err
	}

	if existing != nil {
		o.bind(existing)
		if r.isPending(existing.Body) {
			o.State = StateCreated
			o.Resumed = true
			r.log.Info("resuming pending page", "id", n.ID, "title", n.Title, "page", existing.ID)
			return nil
		}
		o.State = StateSkipped
		r.log.Debug("page exists", "id", n.ID, "title", n.Title, "page", existing.ID)
		return nil
	}

	var created *remote.Page
	attempts, err = r.retry.do(ctx, "create "+n.Title, func(attempt int) error {
		// An earlier attempt may have succeeded without us seeing the response.
		if attempt > 1 {
			found, err := r.remote.FindChild(ctx, parentID, n.Title)
			if err != nil {
				return err
			}
			if found != nil {
				created = found
				return nil
			}
		}
		var err error
		created, err = r.remote.CreatePage(ctx, parentID, n.Title, r.pending)
		return err
	})
	o.Attempts += attempts
	if err != nil {
		return err
	}

	o.bind(created)
	o.State = StateCreated
	r.log.Info("page created", "id", n.ID, "title", n.Title, "page", created.ID)
	return nil
}

func (r *run) isPending(body string) bool {
	body = strings.TrimSpace(body)
	return body == r.pending ||
		(strings.Contains(body, "ac:placeholder") && strings.Contains(body, r.opts.PendingMarker))
}

// renderPass pushes the final body of every page created by this run.
func (r *run) renderPass(ctx context.Context) error {
	var todo []*Outcome
	for _, o := range r.report.Outcomes {
		if o.State == StateCreated {
			todo = append(todo, o)
		}
	}

	for i, o := range todo {
		if r.aborted != nil {
			o.fail(r.aborted)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _ := r.tree.Node(o.ID)
		if err := r.render(ctx, n, o); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			o.fail(err)
			r.log.Warn("render failed", "id", n.ID, "title", n.Title, "error", err.Error())
			if remote.IsAuth(err) {
				r.aborted = fmt.Errorf("%w: %v", ErrAborted, err)
				r.report.Aborted = err.Error()
			}
		}
		r.progress(PhaseRender, i+1, len(todo), o)
	}
	return nil
}

func (r *run) render(ctx context.Context, n *pagetree.Node, o *Outcome) error {
	var storageBody string
	switch {
	case n.IsContainer() && r.opts.IndexBody == IndexBodyChildren:
		storageBody = storage.ChildrenMacro
	case n.IsContainer() && r.opts.IndexBody == IndexBodyEmpty:
	default:
		res, err := r.conv.Render([]byte(n.Body), r.links.resolver(n))
		if err != nil {
			return fmt.Errorf("convert %s: %w", n.Source, err)
		}
		storageBody = res.Storage
		o.Fallbacks = res.Fallbacks
		o.Waiting = r.links.waiting(n, res.Unresolved)
		o.Unresolved = without(res.Unresolved, o.Waiting)
		if len(o.Unresolved) > 0 {
			r.log.Warn("unresolved links", "id", n.ID, "links", strings.Join(o.Unresolved, ", "))
		}
		if len(o.Waiting) > 0 {
			// Keep the page pending so the next run renders it again once
			// the targets exist.
			storageBody += r.pending
			r.log.Warn("links wait for pages not yet migrated", "id", n.ID, "links", strings.Join(o.Waiting, ", "))
		}
	}

	var updated *remote.Page
	attempts, err := r.retry.do(ctx, "update "+n.Title, func(int) error {
		var err error
		updated, err = r.remote.UpdatePage(ctx, o.page, storageBody)
		return err
	})
	o.Attempts += attempts
	if err != nil {
		return err
	}

	o.bind(updated)
	o.Rendered = true
	n.Remote = o.Remote
	return nil
}

func (r *run) progress(phase string, done, total int, o *Outcome) {
	if r.opts.Progress != nil {
		r.opts.Progress(Progress{Phase: phase, Done: done, Total: total, Outcome: o})
	}
}

// without returns the elements of all not in drop.
func without(all, drop []string) []string {
	if len(drop) == 0 {
		return all
	}
	skip := make(map[string]int, len(drop))
	for _, d := range drop {
		skip[d]++
	}
	var out []string
	for _, s := range all {
		if skip[s] > 0 {
			skip[s]--
			continue
		}
		out = append(out, s)
	}
	return out
}
