package cli

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/wikimigrate/internal/config"
	"github.com/aidanlsb/wikimigrate/internal/export"
	"github.com/aidanlsb/wikimigrate/internal/logging"
	"github.com/aidanlsb/wikimigrate/internal/pagetree"
	"github.com/aidanlsb/wikimigrate/internal/plan"
	"github.com/aidanlsb/wikimigrate/internal/ui"
)

var (
	planOut     string
	planRefresh bool
)

var planCmd = &cobra.Command{
	Use:   "plan <export>",
	Short: "Resolve an export into an editable plan directory",
	Long: `Resolve an exported workspace into a plan directory.

The plan mirrors the page hierarchy as folders and Markdown files:
containers become folders holding an index.md, content pages become
"<title>-<id>.md" files. Edit the plan before running 'execute':

  - rename a file or folder to change the page title
  - delete a file or folder to leave pages out
  - reorder the "order" list in an index.md front matter

Never edit the "-<id>" suffix of a file name or the "id:" front matter
of an index.md. The identifiers connect pages to each other and to
earlier runs; changing them is not supported.

By default the plan is written next to the export, in a "plan" folder.

Examples:
  wikimigrate plan ./export
  wikimigrate plan ./export --out ./migration-plan
  wikimigrate plan ./export --refresh`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	c := getConfig()
	exportDir := args[0]

	outDir := strings.TrimSpace(planOut)
	if outDir == "" {
		outDir = defaultPlanDir(exportDir)
	}

	tree, err := resolveExport(c, exportDir, []string{outDir})
	if err != nil {
		return handleError(errorCode(err), err, errorSuggestion(err))
	}

	result, err := plan.Write(tree, outDir, plan.WriteOptions{
		Refresh: planRefresh,
		Logger:  logger(logging.PlanModule),
	})
	if err != nil {
		code := ErrFileWriteError
		if errors.Is(err, plan.ErrPlanExists) {
			code = ErrPlanExists
		}
		return handleError(code, err, errorSuggestion(err))
	}

	if isJSONOutput() {
		outputSuccess(result, &Meta{Count: result.Pages})
		return nil
	}

	printLine(ui.Successf("Wrote plan to %s", ui.FilePath(result.Dir)))
	printLine(ui.Hint(result.Summary()))
	printLine(ui.Hint("Review the plan, then run: wikimigrate execute <space> " + result.Dir))
	return nil
}

// defaultPlanDir places the plan next to the export.
func defaultPlanDir(exportDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(exportDir)), config.DefaultPlanDirName)
}

// resolveExport resolves an export with the configured identifier pattern
// and title matching, leaving skip out of the traversal.
func resolveExport(c *config.Config, dir string, skip []string) (*pagetree.Tree, error) {
	return export.Resolve(dir, export.Options{
		IDPattern:  c.Export.IDPattern,
		TitleMatch: pagetree.TitleMatch(c.Titles.Match),
		Skip:       skip,
		Logger:     logger(logging.ExportModule),
	})
}

// readPlan reads a plan directory with the configured settings.
func readPlan(c *config.Config, dir string) (*pagetree.Tree, error) {
	return plan.Read(dir, plan.ReadOptions{
		IDPattern:  c.Export.IDPattern,
		TitleMatch: pagetree.TitleMatch(c.Titles.Match),
		Logger:     logger(logging.PlanModule),
	})
}

func init() {
	planCmd.Flags().StringVarP(&planOut, "out", "o", "", "Plan directory (default: \"plan\" next to the export)")
	planCmd.Flags().BoolVar(&planRefresh, "refresh", false, "Replace an existing plan directory")
	rootCmd.AddCommand(planCmd)
}
