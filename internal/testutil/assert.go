package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// AssertFileExists fails the test if the file does not exist.
func (w *TestWorkspace) AssertFileExists(relPath string) {
	w.t.Helper()
	if _, err := os.Stat(filepath.Join(w.Path, filepath.FromSlash(relPath))); os.IsNotExist(err) {
		w.t.Errorf("expected file to exist: %s", relPath)
	}
}

// AssertFileNotExists fails the test if the file exists.
func (w *TestWorkspace) AssertFileNotExists(relPath string) {
	w.t.Helper()
	if _, err := os.Stat(filepath.Join(w.Path, filepath.FromSlash(relPath))); err == nil {
		w.t.Errorf("expected file to not exist: %s", relPath)
	}
}

// AssertFileContains fails the test if the file does not contain the substring.
func (w *TestWorkspace) AssertFileContains(relPath, substr string) {
	w.t.Helper()
	content := w.ReadFile(relPath)
	if !strings.Contains(content, substr) {
		w.t.Errorf("expected file %s to contain %q, got:\n%s", relPath, substr, content)
	}
}

// AssertDirExists fails the test if the directory does not exist.
func (w *TestWorkspace) AssertDirExists(relPath string) {
	w.t.Helper()
	info, err := os.Stat(filepath.Join(w.Path, filepath.FromSlash(relPath)))
	if os.IsNotExist(err) {
		w.t.Errorf("expected directory to exist: %s", relPath)
		return
	}
	if !info.IsDir() {
		w.t.Errorf("expected %s to be a directory, but it's a file", relPath)
	}
}

// AssertHasWarning checks that the result contains a warning with the given code.
func (r *CLIResult) AssertHasWarning(t *testing.T, code string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Code == code {
			return
		}
	}
	t.Errorf("expected warning with code %s, got warnings: %+v", code, r.Warnings)
}

// AssertNoWarnings checks that the result has no warnings.
func (r *CLIResult) AssertNoWarnings(t *testing.T) {
	t.Helper()
	if len(r.Warnings) > 0 {
		t.Errorf("expected no warnings, got: %+v", r.Warnings)
	}
}

// AssertCount checks the count of a state in an execute report.
func (r *CLIResult) AssertCount(t *testing.T, state string, expected int) {
	t.Helper()
	counts := r.DataMap("counts")
	got, _ := counts[state].(float64)
	if int(got) != expected {
		t.Errorf("expected %d %s pages, got %v\nRaw: %s", expected, state, counts[state], r.RawJSON)
	}
}
