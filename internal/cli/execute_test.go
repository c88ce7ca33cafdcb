package cli

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aidanlsb/wikimigrate/internal/config"
	"github.com/aidanlsb/wikimigrate/internal/testutil"
)

// plannedWorkspace writes an export and its plan, and points the config at fake.
func plannedWorkspace(t *testing.T, fake *testutil.FakeConfluence, files map[string]string) string {
	t.Helper()
	c := &config.Config{}
	c.Confluence.BaseURL = fake.URL
	c.Confluence.Username = testutil.FakeUsername
	c.Confluence.APIToken = testutil.FakeToken
	c.Retry.BackoffMS = 1
	useConfig(t, c)

	exportDir := newExport(t, files)
	planDir := filepath.Join(t.TempDir(), "plan")
	setVar(t, &planOut, planDir)
	captureStdout(t, func() {
		if err := runPlan(planCmd, []string{exportDir}); err != nil {
			t.Fatalf("runPlan: %v", err)
		}
	})
	return planDir
}

func runExecuteJSON(t *testing.T, args ...string) (testResponse, error) {
	t.Helper()
	var err error
	out := captureStdout(t, func() { err = runExecute(executeCmd, args) })
	return parseResponse(t, out), err
}

func counts(resp testResponse) map[string]interface{} {
	c, _ := resp.Data["counts"].(map[string]interface{})
	return c
}

func TestExecuteTwiceCreatesNoDuplicates(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	planDir := plannedWorkspace(t, fake, testutil.ScenarioExport())
	useJSON(t)
	setVar(t, &executeYes, true)

	resp, err := runExecuteJSON(t, testutil.FakeSpace, planDir)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !resp.OK || counts(resp)["created"] != float64(3) || counts(resp)["skipped"] != float64(1) {
		t.Fatalf("first run: ok=%v counts=%v", resp.OK, counts(resp))
	}
	if resp.Meta == nil || resp.Meta.RunID == "" {
		t.Fatalf("expected a run id, got %+v", resp.Meta)
	}

	resp, err = runExecuteJSON(t, testutil.FakeSpace, planDir)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if counts(resp)["created"] != float64(0) || counts(resp)["skipped"] != float64(4) {
		t.Fatalf("second run counts = %v", counts(resp))
	}
	if fake.Creates() != 3 {
		t.Fatalf("creates = %d, want 3", fake.Creates())
	}

	if got := strings.Join(fake.Children(testutil.FakeHomeID), ","); got != "a,sub" {
		t.Fatalf("homepage children = %s", got)
	}
	sub, _ := fake.Find(testutil.FakeHomeID, "sub")
	b, ok := fake.Find(sub.ID, "b")
	if !ok {
		t.Fatal("page b missing under sub")
	}
	a, _ := fake.Find(testutil.FakeHomeID, "a")
	if !strings.Contains(a.Body, fake.URL+"/spaces/DOCS/pages/"+b.ID+"#b-Setup") {
		t.Fatalf("link to b not rewritten: %s", a.Body)
	}
	if !strings.Contains(b.Body, `ac:name="code"`) {
		t.Fatalf("code block not converted: %s", b.Body)
	}
}

func TestExecuteReportsUnresolvedLinks(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	files := testutil.ScenarioExport()
	files["a-2.md"] = "Broken [link](gone-9.md).\n"
	planDir := plannedWorkspace(t, fake, files)
	useJSON(t)
	setVar(t, &executeYes, true)

	resp, err := runExecuteJSON(t, testutil.FakeSpace, planDir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !resp.OK {
		t.Fatalf("unresolved links must not fail the run: %+v", resp)
	}
	found := false
	for _, w := range resp.Warnings {
		if w.Code == WarnUnresolvedLink && w.PageID == "2" && w.Ref == "gone-9.md" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s warning, got %+v", WarnUnresolvedLink, resp.Warnings)
	}
}

func TestExecuteFailureBlocksSubtree(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	fake.FailStatus["POST sub"] = http.StatusBadRequest
	planDir := plannedWorkspace(t, fake, testutil.ScenarioExport())
	useJSON(t)
	setVar(t, &executeYes, true)

	resp, err := runExecuteJSON(t, testutil.FakeSpace, planDir)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	if resp.OK {
		t.Fatal("report should not be ok")
	}
	c := counts(resp)
	if c["created"] != float64(1) || c["failed"] != float64(1) || c["blocked"] != float64(1) {
		t.Fatalf("counts = %v", c)
	}

	// a links to b, which was never created, so its link waits for the
	// next run.
	var codes []string
	for _, w := range resp.Warnings {
		switch w.Code {
		case WarnPageFailed, WarnPageBlocked, WarnLinkWaiting:
			codes = append(codes, w.Code)
		}
	}
	if got := strings.Join(codes, ","); got != WarnLinkWaiting+","+WarnPageFailed+","+WarnPageBlocked {
		t.Fatalf("warnings = %s", got)
	}

	// Fixing the cause and running again completes the tree and renders a
	// again with its link to b.
	delete(fake.FailStatus, "POST sub")
	resp, err = runExecuteJSON(t, testutil.FakeSpace, planDir)
	if err != nil || !resp.OK {
		t.Fatalf("rerun: err=%v resp=%+v", err, resp)
	}
	if c := counts(resp); c["created"] != float64(3) || c["skipped"] != float64(1) {
		t.Fatalf("rerun counts = %v", c)
	}
}

func TestExecuteAuthFailure(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	planDir := plannedWorkspace(t, fake, testutil.ScenarioExport())
	cfg.Confluence.APIToken = "wrong"
	useJSON(t)
	setVar(t, &executeYes, true)

	resp, err := runExecuteJSON(t, testutil.FakeSpace, planDir)
	if err == nil {
		t.Fatal("expected an error")
	}
	if resp.OK || resp.Error == nil || resp.Error.Code != ErrRemoteAuth {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if fake.Creates() != 0 {
		t.Fatalf("creates = %d, want 0", fake.Creates())
	}
}

func TestExecuteParentOverride(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	parent := fake.AddPage(testutil.FakeHomeID, "Imported", "")
	planDir := plannedWorkspace(t, fake, testutil.ScenarioExport())
	useJSON(t)
	setVar(t, &executeYes, true)
	setVar(t, &executeParent, parent.ID)

	resp, err := runExecuteJSON(t, testutil.FakeSpace, planDir)
	if err != nil || !resp.OK {
		t.Fatalf("run: err=%v resp=%+v", err, resp)
	}
	if got := strings.Join(fake.Children(parent.ID), ","); got != "a,sub" {
		t.Fatalf("children of parent = %s", got)
	}
	if got := fake.Children(testutil.FakeHomeID); len(got) != 1 {
		t.Fatalf("homepage children = %v", got)
	}
}

func TestExecuteRequiresConfirmation(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	planDir := plannedWorkspace(t, fake, testutil.ScenarioExport())
	setVar(t, &isInteractive, func() bool { return false })

	var err error
	captureStdout(t, func() { err = runExecute(executeCmd, []string{testutil.FakeSpace, planDir}) })
	if code := errorCode(err); code != ErrConfirmationRequired {
		t.Fatalf("error = %v (code %s), want %s", err, code, ErrConfirmationRequired)
	}
	if fake.Creates() != 0 {
		t.Fatal("nothing should be created without confirmation")
	}
}

func TestExecuteDeclinedPrompt(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	planDir := plannedWorkspace(t, fake, testutil.ScenarioExport())
	setVar(t, &isInteractive, func() bool { return true })
	setVar[io.Reader](t, &stdin, strings.NewReader("n\n"))

	out := captureStdout(t, func() {
		if err := runExecute(executeCmd, []string{testutil.FakeSpace, planDir}); err != nil {
			t.Fatalf("runExecute: %v", err)
		}
	})
	if !strings.Contains(out, "Migrate 3 pages") || !strings.Contains(out, "Aborted.") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if fake.Creates() != 0 {
		t.Fatal("nothing should be created after declining")
	}
}

func TestExecuteMissingCredentials(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	planDir := plannedWorkspace(t, fake, testutil.ScenarioExport())
	cfg.Confluence.Username = ""
	useJSON(t)
	setVar(t, &executeYes, true)

	resp, err := runExecuteJSON(t, testutil.FakeSpace, planDir)
	if err == nil || resp.Error == nil || resp.Error.Code != ErrConfigInvalid {
		t.Fatalf("unexpected result: err=%v resp=%+v", err, resp)
	}
	if !strings.Contains(resp.Error.Message, "username") {
		t.Fatalf("message = %q", resp.Error.Message)
	}
}

func TestExecuteTextReport(t *testing.T) {
	fake := testutil.NewFakeConfluence(t)
	planDir := plannedWorkspace(t, fake, testutil.ScenarioExport())
	setVar(t, &executeYes, true)

	out := captureStdout(t, func() {
		if err := runExecute(executeCmd, []string{testutil.FakeSpace, planDir}); err != nil {
			t.Fatalf("runExecute: %v", err)
		}
	})
	for _, want := range []string{"created", "sub", "3 created, 1 skipped, 0 failed, 0 blocked"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
