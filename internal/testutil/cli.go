package testutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

// The binary is built once per test process and shared by all workspaces.
var (
	buildOnce  sync.Once
	binaryPath string
	buildErr   error
)

// CLIResult is the parsed JSON envelope of one wikimigrate invocation.
type CLIResult struct {
	OK       bool
	Data     map[string]interface{}
	Error    *CLIError
	Warnings []CLIWarning
	Meta     *CLIMeta
	RawJSON  string
	Stderr   string
	ExitCode int
}

// CLIError mirrors the error object of the envelope.
type CLIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
}

// CLIWarning mirrors one warning of the envelope.
type CLIWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	PageID  string `json:"page_id,omitempty"`
	Ref     string `json:"ref,omitempty"`
}

// CLIMeta mirrors the meta object of the envelope.
type CLIMeta struct {
	Count     int    `json:"count,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// BuildCLI builds ./cmd/wikimigrate into a temporary directory and returns
// the binary path.
func BuildCLI(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		root, err := moduleRoot()
		if err != nil {
			buildErr = err
			return
		}
		dir, err := os.MkdirTemp("", "wikimigrate-bin-*")
		if err != nil {
			buildErr = err
			return
		}
		name := "wikimigrate"
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		out := filepath.Join(dir, name)
		cmd := exec.Command("go", "build", "-o", out, "./cmd/wikimigrate")
		cmd.Dir = root
		if output, err := cmd.CombinedOutput(); err != nil {
			buildErr = fmt.Errorf("go build: %w\n%s", err, output)
			return
		}
		binaryPath = out
	})
	if buildErr != nil {
		t.Fatalf("failed to build CLI: %v", buildErr)
	}
	return binaryPath
}

// moduleRoot walks up from the working directory to the directory holding go.mod.
func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found above " + dir)
		}
		dir = parent
	}
}

// RunCLI runs wikimigrate with --config and --json from the workspace
// directory and parses the envelope.
func (w *TestWorkspace) RunCLI(args ...string) *CLIResult {
	w.t.Helper()
	return w.run("", args...)
}

// RunCLIWithStdin is RunCLI with stdin attached.
func (w *TestWorkspace) RunCLIWithStdin(stdin string, args ...string) *CLIResult {
	w.t.Helper()
	return w.run(stdin, args...)
}

func (w *TestWorkspace) run(stdin string, args ...string) *CLIResult {
	w.t.Helper()

	cmd := exec.Command(BuildCLI(w.t), append([]string{"--config", w.ConfigPath(), "--json"}, args...)...)
	cmd.Dir = w.Path
	cmd.Env = w.environ()
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	result := &CLIResult{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			w.t.Fatalf("run wikimigrate %s: %v", strings.Join(args, " "), err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	result.RawJSON = stdout.String()
	result.Stderr = stderr.String()

	var resp struct {
		OK       bool                   `json:"ok"`
		Data     map[string]interface{} `json:"data"`
		Error    *CLIError              `json:"error"`
		Warnings []CLIWarning           `json:"warnings"`
		Meta     *CLIMeta               `json:"meta"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		result.Error = &CLIError{
			Code:    "PARSE_ERROR",
			Message: "stdout is not a JSON envelope: " + err.Error(),
			Details: map[string]interface{}{"stdout": result.RawJSON, "stderr": result.Stderr},
		}
		return result
	}
	result.OK = resp.OK
	result.Data = resp.Data
	result.Error = resp.Error
	result.Warnings = resp.Warnings
	result.Meta = resp.Meta
	return result
}

// environ drops the developer's CONFLUENCE_* variables so runs only see
// the workspace credentials.
func (w *TestWorkspace) environ() []string {
	var env []string
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "CONFLUENCE_") {
			env = append(env, kv)
		}
	}
	for k, v := range w.env {
		env = append(env, k+"="+v)
	}
	return env
}

// MustSucceed fails the test unless the envelope reports ok.
func (r *CLIResult) MustSucceed(t *testing.T) *CLIResult {
	t.Helper()
	if !r.OK {
		msg := "no error object"
		if r.Error != nil {
			msg = r.Error.Code + ": " + r.Error.Message
		}
		t.Fatalf("expected success, got %s\nstdout: %s\nstderr: %s", msg, r.RawJSON, r.Stderr)
	}
	return r
}

// MustFail fails the test unless the envelope carries the error code.
func (r *CLIResult) MustFail(t *testing.T, code string) *CLIResult {
	t.Helper()
	switch {
	case r.OK:
		t.Fatalf("expected %s, but the command succeeded\nstdout: %s", code, r.RawJSON)
	case r.Error == nil:
		t.Fatalf("expected %s, got no error object\nstdout: %s", code, r.RawJSON)
	case r.Error.Code != code:
		t.Fatalf("expected %s, got %s: %s", code, r.Error.Code, r.Error.Message)
	}
	return r
}

// MustFailWithMessage fails the test unless the error message or its
// suggestion mentions substr.
func (r *CLIResult) MustFailWithMessage(t *testing.T, substr string) *CLIResult {
	t.Helper()
	if r.OK || r.Error == nil {
		t.Fatalf("expected a failure mentioning %q\nstdout: %s", substr, r.RawJSON)
	}
	if !strings.Contains(r.Error.Message, substr) && !strings.Contains(r.Error.Suggestion, substr) {
		t.Errorf("error %q (suggestion %q) does not mention %q", r.Error.Message, r.Error.Suggestion, substr)
	}
	return r
}

// DataMap returns an object member of the data payload.
func (r *CLIResult) DataMap(key string) map[string]interface{} {
	m, _ := r.Data[key].(map[string]interface{})
	return m
}

// DataList returns an array member of the data payload.
func (r *CLIResult) DataList(key string) []interface{} {
	list, _ := r.Data[key].([]interface{})
	return list
}

// RunID returns the run identifier of an execute result.
func (r *CLIResult) RunID() string {
	if r.Meta == nil {
		return ""
	}
	return r.Meta.RunID
}
