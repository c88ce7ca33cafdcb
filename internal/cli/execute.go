package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aidanlsb/wikimigrate/internal/audit"
	"github.com/aidanlsb/wikimigrate/internal/buildinfo"
	"github.com/aidanlsb/wikimigrate/internal/config"
	"github.com/aidanlsb/wikimigrate/internal/confluence"
	"github.com/aidanlsb/wikimigrate/internal/executor"
	"github.com/aidanlsb/wikimigrate/internal/logging"
	"github.com/aidanlsb/wikimigrate/internal/pagetree"
	"github.com/aidanlsb/wikimigrate/internal/storage"
	"github.com/aidanlsb/wikimigrate/internal/ui"
)

var (
	executeYes    bool
	executeParent string
)

var executeCmd = &cobra.Command{
	Use:   "execute <space> <plan>",
	Short: "Create the pages of a plan in a Confluence space",
	Long: `Create the pages of a plan directory in a Confluence space.

Pages are placed under the space homepage, or under --parent when given.
A page whose title already exists under the same parent is left alone,
so running execute again after a failure or an interruption only creates
what is still missing. Pages that were created but not yet filled in by
an interrupted run are completed on the next run.

Credentials are read from CONFLUENCE_USERNAME and CONFLUENCE_API_TOKEN.

Examples:
  wikimigrate execute DOCS ./plan
  wikimigrate execute DOCS ./plan --parent 123456 --yes
  wikimigrate execute DOCS ./plan --json --yes`,
	Args: cobra.ExactArgs(2),
	RunE: runExecute,
}

func runExecute(cmd *cobra.Command, args []string) error {
	space, planDir := strings.TrimSpace(args[0]), args[1]

	c := *getConfig()
	c.Confluence.Space = space
	if strings.TrimSpace(executeParent) != "" {
		c.Confluence.ParentPageID = strings.TrimSpace(executeParent)
	}
	if err := c.ValidateRemote(); err != nil {
		return handleError(ErrConfigInvalid, err, "Run 'wikimigrate config show' and check the CONFLUENCE_* environment variables")
	}

	tree, err := readPlan(&c, planDir)
	if err != nil {
		return handleError(errorCode(err), err, errorSuggestion(err))
	}

	client, err := confluence.New(confluence.Config{
		BaseURL:    c.WikiBaseURL(),
		Username:   c.Confluence.Username,
		Token:      c.Confluence.APIToken,
		Space:      c.Confluence.Space,
		TitleMatch: pagetree.TitleMatch(c.Titles.Match),
		Timeout:    c.Timeout(),
		UserAgent:  buildinfo.UserAgent(),
		Logger:     logger(logging.ConfluenceModule),
	})
	if err != nil {
		return handleError(ErrConfigInvalid, err, "")
	}

	if !executeYes {
		if !shouldPromptForConfirm() {
			return handleErrorMsg(ErrConfirmationRequired,
				"execute creates pages in Confluence and needs confirmation",
				"Pass --yes to run without a prompt")
		}
		target := "the homepage of " + space
		if c.Confluence.ParentPageID != "" {
			target = "page " + c.Confluence.ParentPageID
		}
		msg := fmt.Sprintf("Migrate %s into %s under %s?", ui.Plural(tree.Len()-1, "page"), c.WikiBaseURL(), target)
		if !promptForConfirm(msg) {
			printLine(ui.Hint("Aborted."))
			return nil
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return executePlan(ctx, &c, planDir, tree, client)
}

// executePlan runs the executor against rem, journals the run in planDir
// and reports the outcome.
func executePlan(ctx context.Context, c *config.Config, planDir string, tree *pagetree.Tree, rem executor.Remote) error {
	start := time.Now()
	bar := newPhaseProgress()

	runID := uuid.NewString()
	journal := audit.New(planDir, c.JournalEnabled())
	jlog := logger(logging.JournalModule)
	if err := journal.LogRunStart(runID, c.Confluence.Space, c.Confluence.ParentPageID); err != nil {
		jlog.Warn("journal write failed", "error", err.Error())
	}
	progress := func(ev executor.Progress) {
		bar.update(ev)
		if err := journalOutcome(journal, runID, ev); err != nil {
			jlog.Warn("journal write failed", "error", err.Error())
		}
	}

	report, runErr := executor.Run(ctx, tree, rem, executor.Options{
		RootPageID: c.Confluence.ParentPageID,
		Attempts:   c.Retry.Attempts,
		Backoff:    c.Backoff(),
		IndexBody:  executor.IndexBody(c.Export.IndexBody),
		Converter: storage.NewConverter(storage.Options{
			QuoteMacros: c.QuoteMacrosEnabled(),
			CodeTheme:   c.Export.CodeTheme,
			Logger:      logger(logging.StorageModule),
		}),
		IDPattern: c.Export.IDPattern,
		RunID:     runID,
		Progress:  progress,
		Logger:    logger(logging.ExecutorModule),
	})
	bar.done()

	var counts map[string]int
	aborted := ""
	if report != nil {
		counts = report.Counts()
		aborted = report.Aborted
	}
	if runErr != nil && aborted == "" {
		aborted = runErr.Error()
	}
	if err := journal.LogRunEnd(runID, counts, aborted); err != nil {
		jlog.Warn("journal write failed", "error", err.Error())
	}

	if report == nil {
		return handleError(errorCode(runErr), runErr, errorSuggestion(runErr))
	}

	if isJSONOutput() {
		data := map[string]interface{}{
			"run_id":    report.RunID,
			"root_page": report.RootPage,
			"counts":    report.Counts(),
			"outcomes":  report.Outcomes,
		}
		if runErr != nil {
			data["error"] = map[string]string{"code": errorCode(runErr), "message": runErr.Error()}
		}
		outputResult(report.OK() && runErr == nil, data, reportWarnings(report), &Meta{
			Count:     len(report.Outcomes),
			ElapsedMs: time.Since(start).Milliseconds(),
			RunID:     report.RunID,
		})
		if !report.OK() || runErr != nil {
			return &ExitError{Code: 1}
		}
		return nil
	}

	printReport(report)
	if runErr != nil {
		return withCode(errorCode(runErr), runErr, errorSuggestion(runErr))
	}
	if !report.OK() {
		return &ExitError{Code: 1, Err: errors.New("some pages were not migrated; run execute again after fixing the errors above")}
	}
	return nil
}

// journalOutcome records page changes reported by the executor. Skipped
// and blocked pages are only counted in the run_end entry.
func journalOutcome(journal *audit.Logger, runID string, ev executor.Progress) error {
	o := ev.Outcome
	if o == nil {
		return nil
	}
	remoteID, url := "", ""
	if o.Remote != nil {
		remoteID, url = o.Remote.ID, o.Remote.URL
	}

	var op string
	switch {
	case o.State == executor.StateFailed:
		op = audit.OpFail
	case ev.Phase == executor.PhaseIdentity && o.State == executor.StateCreated && o.Resumed:
		op = audit.OpResume
	case ev.Phase == executor.PhaseIdentity && o.State == executor.StateCreated:
		op = audit.OpCreate
	case ev.Phase == executor.PhaseRender && o.Rendered:
		op = audit.OpRender
	default:
		return nil
	}
	return journal.LogPage(runID, op, o.ID, o.Title, remoteID, url, o.Error)
}

// phaseProgress shows one counter per executor phase.
type phaseProgress struct {
	phase string
	bar   *ui.Progress
}

func newPhaseProgress() *phaseProgress {
	return &phaseProgress{}
}

func (p *phaseProgress) update(ev executor.Progress) {
	if isJSONOutput() {
		return
	}
	if ev.Phase != p.phase {
		p.done()
		p.phase = ev.Phase
		label := "Creating pages"
		if ev.Phase == executor.PhaseRender {
			label = "Writing page bodies"
		}
		p.bar = ui.NewProgress(label, ev.Total)
	}
	detail := ""
	if ev.Outcome != nil {
		detail = ui.Hint(ui.TruncateWithEllipsis(ev.Outcome.Title, 40))
	}
	p.bar.Update(ev.Done, detail)
}

func (p *phaseProgress) done() {
	if p.bar != nil {
		p.bar.Done()
		p.bar = nil
	}
}

func printReport(report *executor.Report) {
	table := ui.NewResultsTable(ui.NewDisplayContext(), ui.ReportLayout).WithHeader()
	total := len(report.Outcomes)
	for i, o := range report.Outcomes {
		state := o.State.String()
		if o.Resumed {
			state = "resumed"
		}
		target := ""
		switch {
		case o.Error != "":
			target = o.Error
		case o.BlockedBy != "":
			target = "blocked by " + o.BlockedBy
		case o.Remote != nil:
			target = o.Remote.URL
		}
		table.AddRow(
			ui.FormatRowNum(i+1, total),
			ui.StateSymbol(o.State.String())+" "+state,
			strings.Repeat("  ", o.Depth)+o.Title,
			o.ID,
			target,
		)
	}
	printLine(table.Render())

	counts := report.Counts()
	summary := fmt.Sprintf("%d created, %d skipped, %d failed, %d blocked",
		counts["created"], counts["skipped"], counts["failed"], counts["blocked"])
	if n := counts["pending"]; n > 0 {
		summary += fmt.Sprintf(", %d not reached", n)
	}
	if report.OK() {
		printLine(ui.Success(summary))
	} else {
		printLine(ui.Warning(summary))
	}
	printLine(ui.Hint(fmt.Sprintf("run %s in %s", report.RunID, report.Duration.Round(time.Millisecond))))

	for _, w := range reportWarnings(report) {
		if w.Code == WarnPageFailed || w.Code == WarnPageBlocked {
			continue
		}
		printLine(ui.Warning(w.Message))
	}
}

// reportWarnings lists non-fatal problems worth a second look.
func reportWarnings(report *executor.Report) []Warning {
	var warnings []Warning
	for _, o := range report.Outcomes {
		for _, dest := range o.Unresolved {
			warnings = append(warnings, Warning{
				Code:    WarnUnresolvedLink,
				Message: fmt.Sprintf("%s: link %q does not point at a migrated page", o.Title, dest),
				PageID:  o.ID,
				Ref:     dest,
			})
		}
		for _, dest := range o.Waiting {
			warnings = append(warnings, Warning{
				Code:    WarnLinkWaiting,
				Message: fmt.Sprintf("%s: link %q points at a page that was not migrated; run execute again", o.Title, dest),
				PageID:  o.ID,
				Ref:     dest,
			})
		}
		if o.Fallbacks > 0 {
			warnings = append(warnings, Warning{
				Code:    WarnFallback,
				Message: fmt.Sprintf("%s: %s rendered as plain text", o.Title, ui.Plural(o.Fallbacks, "construct")),
				PageID:  o.ID,
			})
		}
		switch o.State {
		case executor.StateFailed:
			warnings = append(warnings, Warning{Code: WarnPageFailed, Message: o.Error, PageID: o.ID})
		case executor.StateBlocked:
			warnings = append(warnings, Warning{Code: WarnPageBlocked, Message: o.Title + " was not attempted", PageID: o.ID, Ref: o.BlockedBy})
		}
	}
	return warnings
}

func init() {
	executeCmd.Flags().BoolVarP(&executeYes, "yes", "y", false, "Do not ask for confirmation")
	executeCmd.Flags().StringVar(&executeParent, "parent", "", "Create the tree under this page ID instead of the space homepage")
	rootCmd.AddCommand(executeCmd)
}
