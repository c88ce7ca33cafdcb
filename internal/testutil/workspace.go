// Package testutil provides reusable test utilities for wikimigrate tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// ExportDir is the export directory inside a test workspace.
const ExportDir = "export"

// TestWorkspace is a temporary directory holding an export, a config file
// and, once planned, a plan.
type TestWorkspace struct {
	Path   string
	t      *testing.T
	config string
	files  map[string]string
	env    map[string]string
}

// NewTestWorkspace creates a new test workspace builder.
// Call Build() to create the actual directory.
func NewTestWorkspace(t *testing.T) *TestWorkspace {
	t.Helper()
	return &TestWorkspace{
		t:     t,
		files: make(map[string]string),
		env:   make(map[string]string),
	}
}

// WithFile adds a file to the export. The path is relative to the export root.
func (w *TestWorkspace) WithFile(path, content string) *TestWorkspace {
	w.files[filepath.Join(ExportDir, filepath.FromSlash(path))] = content
	return w
}

// WithExport adds every file of files to the export.
func (w *TestWorkspace) WithExport(files map[string]string) *TestWorkspace {
	for path, content := range files {
		w.WithFile(path, content)
	}
	return w
}

// WithConfig sets the config.toml content of the workspace.
func (w *TestWorkspace) WithConfig(toml string) *TestWorkspace {
	w.config = toml
	return w
}

// WithEnv sets an environment variable for commands run in the workspace.
func (w *TestWorkspace) WithEnv(key, value string) *TestWorkspace {
	w.env[key] = value
	return w
}

// WithConfluence points the workspace at a fake Confluence server.
func (w *TestWorkspace) WithConfluence(fake *FakeConfluence) *TestWorkspace {
	return w.
		WithEnv("CONFLUENCE_BASE_URL", fake.URL).
		WithEnv("CONFLUENCE_USERNAME", FakeUsername).
		WithEnv("CONFLUENCE_API_TOKEN", FakeToken)
}

// Build creates the workspace directory and all configured files.
// Returns the TestWorkspace for method chaining.
func (w *TestWorkspace) Build() *TestWorkspace {
	w.t.Helper()

	w.Path = w.t.TempDir()
	if err := os.MkdirAll(filepath.Join(w.Path, ExportDir), 0o755); err != nil {
		w.t.Fatalf("failed to create export directory: %v", err)
	}
	w.writeFile("config.toml", w.config)
	for path, content := range w.files {
		w.writeFile(path, content)
	}
	return w
}

// ConfigPath returns the path of the workspace config file.
func (w *TestWorkspace) ConfigPath() string {
	return filepath.Join(w.Path, "config.toml")
}

// ExportPath returns the path of the export directory.
func (w *TestWorkspace) ExportPath() string {
	return filepath.Join(w.Path, ExportDir)
}

// PlanPath returns the default plan directory, next to the export.
func (w *TestWorkspace) PlanPath() string {
	return filepath.Join(w.Path, "plan")
}

func (w *TestWorkspace) writeFile(relPath, content string) {
	w.t.Helper()
	fullPath := filepath.Join(w.Path, relPath)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.t.Fatalf("failed to create directory %s: %v", dir, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		w.t.Fatalf("failed to write file %s: %v", fullPath, err)
	}
}

// ReadFile reads a file of the workspace.
func (w *TestWorkspace) ReadFile(relPath string) string {
	w.t.Helper()
	fullPath := filepath.Join(w.Path, filepath.FromSlash(relPath))
	content, err := os.ReadFile(fullPath)
	if err != nil {
		w.t.Fatalf("failed to read file %s: %v", fullPath, err)
	}
	return string(content)
}

// WriteFile replaces a file of the workspace, for instance to edit a plan.
func (w *TestWorkspace) WriteFile(relPath, content string) {
	w.t.Helper()
	w.writeFile(filepath.FromSlash(relPath), content)
}

// RemovePath deletes a file or directory of the workspace.
func (w *TestWorkspace) RemovePath(relPath string) {
	w.t.Helper()
	if err := os.RemoveAll(filepath.Join(w.Path, filepath.FromSlash(relPath))); err != nil {
		w.t.Fatalf("failed to remove %s: %v", relPath, err)
	}
}

// FileExists checks if a file exists in the workspace.
func (w *TestWorkspace) FileExists(relPath string) bool {
	w.t.Helper()
	_, err := os.Stat(filepath.Join(w.Path, filepath.FromSlash(relPath)))
	return err == nil
}

// ScenarioExport returns a small directory-layout export: a root index,
// a leaf linking to a nested leaf, and a sub-section.
func ScenarioExport() map[string]string {
	return map[string]string{
		"index.md":       "# Home\n\nWelcome to the workspace.\n",
		"a-2.md":         "# A\n\nSee [B](sub/b-4.md#setup) and [the web](https://example.com).\n",
		"sub/index-3.md": "# Sub\n",
		"sub/b-4.md":     "# B\n\n## Setup\n\n```go\nfmt.Println(\"hi\")\n```\n",
	}
}

// FlatExport returns an export in the flat layout, where index files are
// lists of links.
func FlatExport() map[string]string {
	return map[string]string{
		"index.md":           "* [Guides](Guides g1.md)\n* [FAQ](FAQ f1.md)\n",
		"Guides g1.md":       "* [Install](Install i1.md)\n",
		"Install i1.md":      "Run the installer.\n\n> Note: needs admin rights.\n",
		"FAQ f1.md":          "Read [Install](Install%20i1.md) first.\n",
		"assets/diagram.png": "png",
	}
}
