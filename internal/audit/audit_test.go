package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, true)

	steps := []func() error{
		func() error { return l.LogRunStart("r1", "DOCS", "1000") },
		func() error { return l.LogPage("r1", OpCreate, "2", "a", "2001", "https://wiki/a", "") },
		func() error { return l.LogPage("r1", OpFail, "3", "sub", "", "", "400 Bad Request") },
		func() error { return l.LogRunEnd("r1", map[string]int{"created": 1, "failed": 1}, "") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	entries, err := ReadRun(dir, "r1")
	if err != nil {
		t.Fatalf("ReadRun: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	if e := entries[2]; e.Operation != OpFail || e.PageID != "3" || e.Error == "" {
		t.Fatalf("fail entry = %+v", e)
	}
	if entries[0].Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
}

func TestRunsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, true)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(l.Log(Entry{Timestamp: base, RunID: "old", Operation: OpRunStart, Extra: map[string]interface{}{"space": "DOCS"}}))
	must(l.Log(Entry{Timestamp: base.Add(time.Second), RunID: "old", Operation: OpCreate, PageID: "2"}))
	must(l.Log(Entry{Timestamp: base.Add(time.Hour), RunID: "new", Operation: OpRunStart}))
	must(l.Log(Entry{Timestamp: base.Add(time.Hour + time.Second), RunID: "new", Operation: OpRender, PageID: "2"}))
	must(l.Log(Entry{Timestamp: base.Add(time.Hour + 2*time.Second), RunID: "new", Operation: OpRunEnd}))

	runs, err := Runs(dir)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "new" || runs[1].RunID != "old" {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].Finished == nil || runs[1].Finished != nil {
		t.Fatal("only the new run finished")
	}
	if runs[1].Space != "DOCS" || runs[1].Counts[OpCreate] != 1 {
		t.Fatalf("old run = %+v", runs[1])
	}
}

func TestDisabledJournal(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, false)
	if l.Enabled() {
		t.Fatal("expected disabled journal")
	}
	if err := l.LogRunStart("r1", "DOCS", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, Dir)); !os.IsNotExist(err) {
		t.Fatalf("disabled journal wrote files: %v", err)
	}
}

func TestReadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `{"ts":"2026-03-01T10:00:00Z","run_id":"r1","op":"create","page_id":"2"}
not json

{"ts":"2026-03-01T10:00:01Z","run_id":"r1","op":"render","page_id":"2"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	missing, err := Read(t.TempDir())
	if err != nil || missing != nil {
		t.Fatalf("missing journal = %v, %v", missing, err)
	}
}
