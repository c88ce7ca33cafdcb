// Package audit keeps an append-only journal of execute runs inside a plan
// directory. Each line is one JSON entry; a run is a run_start entry, one
// entry per page that changed, and a run_end entry.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Operations recorded in the journal.
const (
	OpRunStart = "run_start"
	OpCreate   = "create"
	OpResume   = "resume"
	OpRender   = "render"
	OpFail     = "fail"
	OpRunEnd   = "run_end"
)

// Dir is the hidden folder of a plan holding the journal. Plan readers skip
// hidden entries.
const Dir = ".wikimigrate"

// Entry represents a single journal entry.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	RunID     string                 `json:"run_id"`
	Operation string                 `json:"op"`
	PageID    string                 `json:"page_id,omitempty"`
	Title     string                 `json:"title,omitempty"`
	RemoteID  string                 `json:"remote_id,omitempty"`
	URL       string                 `json:"url,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"` // Any additional context
}

// Run summarizes the entries of one run.
type Run struct {
	RunID    string         `json:"run_id"`
	Started  time.Time      `json:"started"`
	Finished *time.Time     `json:"finished,omitempty"`
	Space    string         `json:"space,omitempty"`
	Counts   map[string]int `json:"counts"`
	Aborted  string         `json:"aborted,omitempty"`
}

// Logger handles writing to the journal.
type Logger struct {
	path    string
	enabled bool
	mu      sync.Mutex
}

// Path returns the journal path of a plan directory.
func Path(planDir string) string {
	return filepath.Join(planDir, Dir, "journal.log")
}

// New creates a journal for the given plan directory.
// If enabled is false, the logger will be a no-op.
func New(planDir string, enabled bool) *Logger {
	if !enabled {
		return &Logger{enabled: false}
	}
	return &Logger{path: Path(planDir), enabled: true}
}

// Log appends an entry to the journal.
func (l *Logger) Log(entry Entry) error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	return nil
}

// LogRunStart records the start of a run against space.
func (l *Logger) LogRunStart(runID, space, rootPageID string) error {
	return l.Log(Entry{
		RunID:     runID,
		Operation: OpRunStart,
		RemoteID:  rootPageID,
		Extra:     map[string]interface{}{"space": space},
	})
}

// LogPage records what happened to one page.
func (l *Logger) LogPage(runID, op, pageID, title, remoteID, url, errMsg string) error {
	return l.Log(Entry{
		RunID:     runID,
		Operation: op,
		PageID:    pageID,
		Title:     title,
		RemoteID:  remoteID,
		URL:       url,
		Error:     errMsg,
	})
}

// LogRunEnd records the final counts of a run.
func (l *Logger) LogRunEnd(runID string, counts map[string]int, aborted string) error {
	extra := make(map[string]interface{}, len(counts))
	for state, n := range counts {
		extra[state] = n
	}
	return l.Log(Entry{
		RunID:     runID,
		Operation: OpRunEnd,
		Error:     aborted,
		Extra:     extra,
	})
}

// Read reads all entries from the journal of planDir.
func Read(planDir string) ([]Entry, error) {
	f, err := os.Open(Path(planDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // Skip malformed entries
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

// ReadRun returns the entries of one run, in order.
func ReadRun(planDir, runID string) ([]Entry, error) {
	all, err := Read(planDir)
	if err != nil {
		return nil, err
	}
	var filtered []Entry
	for _, entry := range all {
		if entry.RunID == runID {
			filtered = append(filtered, entry)
		}
	}
	return filtered, nil
}

// Runs groups the journal of planDir by run, most recent first. Runs
// without a run_end entry were interrupted.
func Runs(planDir string) ([]Run, error) {
	all, err := Read(planDir)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Run)
	var order []string
	for _, e := range all {
		run, ok := byID[e.RunID]
		if !ok {
			run = &Run{RunID: e.RunID, Started: e.Timestamp, Counts: make(map[string]int)}
			byID[e.RunID] = run
			order = append(order, e.RunID)
		}
		switch e.Operation {
		case OpRunStart:
			run.Started = e.Timestamp
			if space, ok := e.Extra["space"].(string); ok {
				run.Space = space
			}
		case OpRunEnd:
			finished := e.Timestamp
			run.Finished = &finished
			run.Aborted = e.Error
		default:
			run.Counts[e.Operation]++
		}
	}

	runs := make([]Run, 0, len(order))
	for _, id := range order {
		runs = append(runs, *byID[id])
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Started.After(runs[j].Started) })
	return runs, nil
}

// Enabled returns true if the journal is written.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}
