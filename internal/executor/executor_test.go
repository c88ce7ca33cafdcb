package executor

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/aidanlsb/wikimigrate/internal/pagetree"
	"github.com/aidanlsb/wikimigrate/internal/remote"
	"github.com/aidanlsb/wikimigrate/internal/storage"
)

// scenarioTree is the tree of an export holding index.md, a-2.md,
// sub/index-3.md and sub/b-4.md.
func scenarioTree(t *testing.T) *pagetree.Tree {
	t.Helper()
	tree := pagetree.New(pagetree.MatchExact)
	steps := []struct {
		parent string
		node   *pagetree.Node
	}{
		{"", &pagetree.Node{ID: pagetree.RootID, Title: "index", Body: "# Workspace\n"}},
		{pagetree.RootID, &pagetree.Node{ID: "2", Title: "a", Kind: pagetree.KindLeaf, Source: "a-2.md",
			Body: "See [b](sub/b-4.md) and [setup](sub/b-4.md#setup-steps).\n"}},
		{pagetree.RootID, &pagetree.Node{ID: "3", Title: "sub", Kind: pagetree.KindContainer, Source: "sub/index-3.md",
			Body: "Sub pages.\n"}},
		{"3", &pagetree.Node{ID: "4", Title: "b", Kind: pagetree.KindLeaf, Source: "sub/b-4.md",
			Body: "## Setup steps\n\nBack to [a](../a-2.md) or [gone](gone-9.md).\n"}},
	}
	for _, step := range steps {
		var err error
		if step.parent == "" {
			err = tree.SetRoot(step.node)
		} else {
			err = tree.AddChild(step.parent, step.node)
		}
		if err != nil {
			t.Fatalf("build tree: %v", err)
		}
	}
	return tree
}

func testOptions() Options {
	return Options{Attempts: 3, Backoff: 0}
}

func TestRunTwiceCreatesThenSkips(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)

	report, err := Run(context.Background(), scenarioTree(t), fake, testOptions())
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if got := report.Count(StateCreated); got != 3 {
		t.Fatalf("first run created %d pages, want 3", got)
	}
	if !report.OK() {
		t.Fatalf("first run not OK: %+v", report.Counts())
	}
	if report.RunID == "" {
		t.Error("report has no run ID")
	}

	opts := testOptions()
	opts.RunID = "rerun-1"
	report, err = Run(context.Background(), scenarioTree(t), fake, opts)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if got := report.Count(StateCreated); got != 0 {
		t.Fatalf("second run created %d pages, want 0", got)
	}
	if report.RunID != "rerun-1" {
		t.Errorf("RunID = %q, want the supplied one", report.RunID)
	}
	if got := report.Count(StateSkipped); got != 4 {
		t.Fatalf("second run skipped %d nodes, want 4", got)
	}
	if fake.creates != 3 {
		t.Fatalf("remote creates = %d, want 3", fake.creates)
	}
	for _, title := range []string{"a", "sub", "b"} {
		if n := fake.countTitled(title); n != 1 {
			t.Errorf("%d pages titled %q, want 1", n, title)
		}
	}
}

func TestRunMirrorsHierarchy(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)
	tree := scenarioTree(t)

	report, err := Run(context.Background(), tree, fake, testOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sub, _ := report.Outcome("3")
	b, _ := report.Outcome("4")
	if got := fake.pages[b.Remote.ID].ParentID; got != sub.Remote.ID {
		t.Fatalf("b parent = %q, want %q", got, sub.Remote.ID)
	}
	a, _ := report.Outcome("2")
	if got := fake.pages[a.Remote.ID].ParentID; got != homeID {
		t.Fatalf("a parent = %q, want homepage", got)
	}

	root, _ := report.Outcome(pagetree.RootID)
	if root.State != StateSkipped || root.Remote.ID != homeID {
		t.Fatalf("root outcome = %+v", root)
	}
	if fake.pages[homeID].Version != 1 {
		t.Error("root body was pushed")
	}

	node, _ := tree.Node("4")
	if node.Remote == nil || node.Remote.ID != b.Remote.ID {
		t.Errorf("tree node remote = %+v, want %q", node.Remote, b.Remote.ID)
	}

	var order []string
	for _, o := range report.Outcomes {
		order = append(order, o.ID)
	}
	if got := strings.Join(order, ","); got != "index,2,3,4" {
		t.Errorf("outcome order = %s", got)
	}
}

func TestRunRewritesLinks(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)

	report, err := Run(context.Background(), scenarioTree(t), fake, testOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	a, _ := report.Outcome("2")
	b, _ := report.Outcome("4")

	aBody := fake.pages[a.Remote.ID].Body
	if !strings.Contains(aBody, `href="`+b.Remote.URL+`"`) {
		t.Errorf("a body lacks link to b:\n%s", aBody)
	}
	if !strings.Contains(aBody, b.Remote.URL+"#b-Setupsteps") {
		t.Errorf("a body lacks heading anchor:\n%s", aBody)
	}

	bBody := fake.pages[b.Remote.ID].Body
	if !strings.Contains(bBody, `href="`+a.Remote.URL+`"`) {
		t.Errorf("b body lacks link back to a:\n%s", bBody)
	}
	if len(b.Unresolved) != 1 || b.Unresolved[0] != "gone-9.md" {
		t.Errorf("b unresolved = %v", b.Unresolved)
	}
	if strings.Contains(bBody, DefaultPendingMarker) {
		t.Error("b still carries the pending marker")
	}
}

func TestLinksToFailedPagesAreRewrittenOnRerun(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)
	fake.failCreate["b"] = statusError(http.MethodPost, http.StatusBadRequest)

	report, err := Run(context.Background(), scenarioTree(t), fake, testOptions())
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	a, _ := report.Outcome("2")
	if a.State != StateCreated || !a.Rendered || len(a.Waiting) != 2 {
		t.Fatalf("first run a outcome = %+v", a)
	}
	if len(a.Unresolved) != 0 {
		t.Errorf("a unresolved = %v, want links to b reported as waiting", a.Unresolved)
	}
	if !strings.Contains(fake.pages[a.Remote.ID].Body, DefaultPendingMarker) {
		t.Fatal("a was not left pending")
	}
	if report.OK() {
		t.Error("report OK despite waiting links")
	}

	delete(fake.failCreate, "b")
	report, err = Run(context.Background(), scenarioTree(t), fake, testOptions())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	a, _ = report.Outcome("2")
	if a.State != StateCreated || !a.Resumed || !a.Rendered || len(a.Waiting) != 0 {
		t.Fatalf("second run a outcome = %+v", a)
	}
	b, _ := report.Outcome("4")
	if b.State != StateCreated {
		t.Fatalf("second run b outcome = %+v", b)
	}

	aBody := fake.pages[a.Remote.ID].Body
	if !strings.Contains(aBody, `href="`+b.Remote.URL+`"`) {
		t.Errorf("a body lacks link to b:\n%s", aBody)
	}
	if strings.Contains(aBody, DefaultPendingMarker) {
		t.Error("a still carries the pending marker")
	}
	if !report.OK() {
		t.Errorf("second run not OK: %+v", report.Counts())
	}
	if fake.countTitled("a") != 1 {
		t.Fatal("rerun duplicated a")
	}
}

func TestFailureBlocksSubtreeOnly(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)
	fake.failCreate["sub"] = statusError(http.MethodPost, http.StatusBadRequest)

	report, err := Run(context.Background(), scenarioTree(t), fake, testOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sub, _ := report.Outcome("3")
	if sub.State != StateFailed || sub.Error == "" {
		t.Fatalf("sub outcome = %+v", sub)
	}
	if sub.Attempts != 2 {
		t.Errorf("sub attempts = %d, want lookup plus one create", sub.Attempts)
	}
	b, _ := report.Outcome("4")
	if b.State != StateBlocked || b.BlockedBy != "3" {
		t.Fatalf("b outcome = %+v", b)
	}
	a, _ := report.Outcome("2")
	if a.State != StateCreated || !a.Rendered {
		t.Fatalf("sibling a outcome = %+v", a)
	}
	if report.OK() {
		t.Error("report OK despite failure")
	}
}

func TestTransientFailuresAreRetried(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)
	fake.transient["a"] = 2

	report, err := Run(context.Background(), scenarioTree(t), fake, testOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	a, _ := report.Outcome("2")
	if a.State != StateCreated {
		t.Fatalf("a outcome = %+v", a)
	}
	// One lookup, three create attempts, one render.
	if a.Attempts != 5 {
		t.Errorf("a attempts = %d, want 5", a.Attempts)
	}
}

func TestTransientFailuresExhaustAttempts(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)
	fake.transient["a"] = 10
	opts := testOptions()
	opts.Attempts = 2

	report, err := Run(context.Background(), scenarioTree(t), fake, opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	a, _ := report.Outcome("2")
	if a.State != StateFailed || !remote.IsRetryable(a.Err) {
		t.Fatalf("a outcome = %+v (err %v)", a, a.Err)
	}
	if !strings.Contains(a.Error, "after 2 attempts") {
		t.Errorf("a error = %q", a.Error)
	}
}

func TestLostCreateResponseDoesNotDuplicate(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)
	fake.lostResponse["b"] = true

	report, err := Run(context.Background(), scenarioTree(t), fake, testOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	b, _ := report.Outcome("4")
	if b.State != StateCreated || !b.Rendered {
		t.Fatalf("b outcome = %+v", b)
	}
	if n := fake.countTitled("b"); n != 1 {
		t.Fatalf("%d pages titled b, want 1", n)
	}
}

func TestPendingPageIsResumed(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)
	stale := fake.add(homeID, "a", storage.PendingBody(DefaultPendingMarker))
	done := fake.add(homeID, "sub", "<p>already migrated</p>")

	report, err := Run(context.Background(), scenarioTree(t), fake, testOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	a, _ := report.Outcome("2")
	if a.State != StateCreated || !a.Resumed || !a.Rendered || a.Remote.ID != stale.ID {
		t.Fatalf("a outcome = %+v", a)
	}
	if strings.Contains(fake.pages[stale.ID].Body, DefaultPendingMarker) {
		t.Error("resumed page still pending")
	}

	sub, _ := report.Outcome("3")
	if sub.State != StateSkipped || fake.pages[done.ID].Body != "<p>already migrated</p>" {
		t.Fatalf("existing page was touched: %+v", sub)
	}
	b, _ := report.Outcome("4")
	if b.State != StateCreated || fake.pages[b.Remote.ID].ParentID != done.ID {
		t.Fatalf("b outcome = %+v", b)
	}
}

func TestRenderFailureLeavesPageResumable(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)
	fake.failUpdate["a"] = statusError(http.MethodPut, http.StatusBadRequest)

	report, err := Run(context.Background(), scenarioTree(t), fake, testOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	a, _ := report.Outcome("2")
	if a.State != StateFailed || a.Remote == nil {
		t.Fatalf("a outcome = %+v", a)
	}

	delete(fake.failUpdate, "a")
	report, err = Run(context.Background(), scenarioTree(t), fake, testOptions())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	a, _ = report.Outcome("2")
	if a.State != StateCreated || !a.Resumed || !a.Rendered {
		t.Fatalf("second run a outcome = %+v", a)
	}
	if fake.countTitled("a") != 1 {
		t.Fatal("resume duplicated a")
	}
}

func TestAuthFailureAbortsRun(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)
	fake.failCreate["a"] = statusError(http.MethodPost, http.StatusUnauthorized)

	report, err := Run(context.Background(), scenarioTree(t), fake, testOptions())
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Run() error = %v, want ErrAborted", err)
	}
	if report == nil || report.Aborted == "" {
		t.Fatalf("report = %+v", report)
	}
	for _, id := range []string{"3", "4"} {
		if o, _ := report.Outcome(id); o.State != StateBlocked {
			t.Errorf("%s state = %v, want blocked", id, o.State)
		}
	}
	if fake.creates != 0 {
		t.Errorf("creates = %d after abort", fake.creates)
	}
}

func TestFoldedTitlesMatchExistingPages(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchFold)
	fake.add(homeID, "A", "<p>existing</p>")

	report, err := Run(context.Background(), scenarioTree(t), fake, testOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	a, _ := report.Outcome("2")
	if a.State != StateSkipped {
		t.Fatalf("a state = %v, want skipped", a.State)
	}
	if fake.countTitled("a") != 1 {
		t.Fatal("folded title was duplicated")
	}
}

func TestIndexBodyModes(t *testing.T) {
	tests := []struct {
		mode IndexBody
		want string
	}{
		{IndexBodyKeep, "<p>Sub pages.</p>"},
		{IndexBodyChildren, storage.ChildrenMacro},
		{IndexBodyEmpty, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			fake := newFakeRemote(pagetree.MatchExact)
			opts := testOptions()
			opts.IndexBody = tt.mode

			if _, err := Run(context.Background(), scenarioTree(t), fake, opts); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			got := strings.TrimSpace(fake.bodyOf("sub"))
			if tt.want == "" && got != "" || tt.want != "" && !strings.Contains(got, tt.want) {
				t.Fatalf("sub body = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRootPageOverride(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)
	parent := fake.add(homeID, "Imported", "")
	opts := testOptions()
	opts.RootPageID = parent.ID

	report, err := Run(context.Background(), scenarioTree(t), fake, opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	a, _ := report.Outcome("2")
	if got := fake.pages[a.Remote.ID].ParentID; got != parent.ID {
		t.Fatalf("a parent = %q, want %q", got, parent.ID)
	}

	opts.RootPageID = "missing"
	if _, err := Run(context.Background(), scenarioTree(t), fake, opts); err == nil {
		t.Fatal("Run() with unknown parent page should fail")
	}
}

func TestCancellationKeepsCreatedPages(t *testing.T) {
	fake := newFakeRemote(pagetree.MatchExact)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.Progress = func(p Progress) {
		if p.Phase == PhaseIdentity && p.Outcome.ID == "2" {
			cancel()
		}
	}

	report, err := Run(ctx, scenarioTree(t), fake, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(report.Outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(report.Outcomes))
	}
	if o, _ := report.Outcome("3"); o.State != StatePending {
		t.Errorf("sub state = %v, want pending", o.State)
	}

	report, err = Run(context.Background(), scenarioTree(t), fake, testOptions())
	if err != nil {
		t.Fatalf("resumed Run() error = %v", err)
	}
	a, _ := report.Outcome("2")
	if !a.Resumed || !a.Rendered {
		t.Fatalf("a outcome = %+v", a)
	}
	if fake.creates != 3 {
		t.Fatalf("creates = %d, want 3", fake.creates)
	}
}

func TestRetryPolicyStopsOnPermanentErrors(t *testing.T) {
	calls := 0
	permanent := statusError(http.MethodGet, http.StatusNotFound)
	attempts, err := retryPolicy{attempts: 5}.do(context.Background(), "get", func(int) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || attempts != 1 || calls != 1 {
		t.Fatalf("do() = %d, %v after %d calls", attempts, err, calls)
	}
}
