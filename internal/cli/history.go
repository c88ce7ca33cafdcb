package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/wikimigrate/internal/audit"
	"github.com/aidanlsb/wikimigrate/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history <plan> [run-id]",
	Short: "Show the execute runs recorded for a plan",
	Long: `Show the execute runs recorded in the journal of a plan directory.

Without a run ID, lists every run, most recent first. With a run ID (or a
unique prefix of one), lists the pages that run created, completed or
failed to migrate.

The journal lives in <plan>/.wikimigrate/journal.log and is disabled with
[journal] enabled = false.

Examples:
  wikimigrate history ./plan
  wikimigrate history ./plan 3f2c9a1e
  wikimigrate history ./plan --json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	planDir := args[0]
	if info, err := os.Stat(planDir); err != nil || !info.IsDir() {
		return handleErrorMsg(ErrFileNotFound, "plan directory not found: "+planDir, "Run 'wikimigrate plan <export>' first")
	}

	runs, err := audit.Runs(planDir)
	if err != nil {
		return handleError(ErrFileReadError, err, "")
	}

	if len(args) == 1 {
		return outputRuns(planDir, runs)
	}

	run, err := findRun(runs, args[1])
	if err != nil {
		return handleError(ErrRunNotFound, err, "Run 'wikimigrate history "+planDir+"' to list recorded runs")
	}
	entries, err := audit.ReadRun(planDir, run.RunID)
	if err != nil {
		return handleError(ErrFileReadError, err, "")
	}
	return outputRunEntries(run, entries)
}

// findRun matches a full run ID or a unique prefix of one.
func findRun(runs []audit.Run, ref string) (audit.Run, error) {
	ref = strings.TrimSpace(ref)
	var matches []audit.Run
	for _, run := range runs {
		if run.RunID == ref {
			return run, nil
		}
		if ref != "" && strings.HasPrefix(run.RunID, ref) {
			matches = append(matches, run)
		}
	}
	switch len(matches) {
	case 0:
		return audit.Run{}, fmt.Errorf("no run %q in the journal", ref)
	case 1:
		return matches[0], nil
	default:
		return audit.Run{}, fmt.Errorf("run prefix %q is ambiguous (%d runs)", ref, len(matches))
	}
}

func runStatus(run audit.Run) string {
	switch {
	case run.Finished == nil:
		return "interrupted"
	case run.Aborted != "" || run.Counts[audit.OpFail] > 0:
		return "failed"
	default:
		return "created"
	}
}

func outputRuns(planDir string, runs []audit.Run) error {
	if isJSONOutput() {
		outputSuccess(map[string]interface{}{
			"plan": planDir,
			"runs": runs,
		}, &Meta{Count: len(runs)})
		return nil
	}

	if len(runs) == 0 {
		printLine(ui.Hint("No runs recorded for " + planDir))
		return nil
	}

	table := ui.NewResultsTable(ui.NewDisplayContext(), ui.HistoryLayout).WithHeader()
	for i, run := range runs {
		status := runStatus(run)
		summary := fmt.Sprintf("%d created, %d resumed, %d failed",
			run.Counts[audit.OpCreate], run.Counts[audit.OpResume], run.Counts[audit.OpFail])
		if run.Space != "" {
			summary = run.Space + ": " + summary
		}
		table.AddRow(
			ui.FormatRowNum(i+1, len(runs)),
			ui.StateSymbol(status)+" "+status,
			shortRunID(run.RunID),
			ui.Ago(run.Started),
			summary,
		)
	}
	printLine(table.Render())
	return nil
}

func outputRunEntries(run audit.Run, entries []audit.Entry) error {
	if isJSONOutput() {
		outputSuccess(map[string]interface{}{
			"run":     run,
			"entries": entries,
		}, &Meta{Count: len(entries), RunID: run.RunID})
		return nil
	}

	printLine(ui.Header("Run " + run.RunID))
	printLine(ui.Hint("started " + ui.Ago(run.Started) + ", " + runStatus(run)))
	if run.Aborted != "" {
		printLine(ui.Warning(run.Aborted))
	}

	var pages []audit.Entry
	for _, e := range entries {
		if e.PageID != "" {
			pages = append(pages, e)
		}
	}
	if len(pages) == 0 {
		printLine(ui.Hint("No pages changed in this run"))
		return nil
	}

	table := ui.NewResultsTable(ui.NewDisplayContext(), ui.ReportLayout).WithHeader()
	for i, e := range pages {
		state := "created"
		if e.Operation == audit.OpFail {
			state = "failed"
		}
		target := e.URL
		if e.Error != "" {
			target = e.Error
		}
		table.AddRow(
			ui.FormatRowNum(i+1, len(pages)),
			ui.StateSymbol(state)+" "+e.Operation,
			e.Title,
			e.PageID,
			target,
		)
	}
	printLine(table.Render())
	return nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
