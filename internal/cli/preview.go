package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/wikimigrate/internal/logging"
	"github.com/aidanlsb/wikimigrate/internal/storage"
	"github.com/aidanlsb/wikimigrate/internal/ui"
)

var previewStorage bool

var previewCmd = &cobra.Command{
	Use:   "preview <plan> <id>",
	Short: "Preview a planned page",
	Long: `Preview a page of a plan by its identifier.

By default the Markdown body is rendered for the terminal. With --storage
the Confluence storage format that execute would push is printed instead;
links to other pages stay unresolved because they have no URL yet.

Examples:
  wikimigrate preview ./plan 0a1b2c3d
  wikimigrate preview ./plan 0a1b2c3d --storage`,
	Args: cobra.ExactArgs(2),
	RunE: runPreview,
}

func runPreview(cmd *cobra.Command, args []string) error {
	c := getConfig()
	planDir, id := args[0], strings.TrimSpace(args[1])

	tree, err := readPlan(c, planDir)
	if err != nil {
		return handleError(errorCode(err), err, errorSuggestion(err))
	}
	n, ok := tree.Node(id)
	if !ok {
		return handleErrorMsg(ErrPageNotFound, "no page with identifier "+id+" in "+planDir,
			"Run 'wikimigrate tree "+planDir+"' to list identifiers")
	}

	if previewStorage {
		conv := storage.NewConverter(storage.Options{
			QuoteMacros: c.QuoteMacrosEnabled(),
			CodeTheme:   c.Export.CodeTheme,
			Logger:      logger(logging.StorageModule),
		})
		res, err := conv.Render([]byte(n.Body), storage.LinkResolverFunc(func(string) (string, bool) {
			return "", false
		}))
		if err != nil {
			return handleError(ErrInternal, err, "")
		}
		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"id":               n.ID,
				"title":            n.Title,
				"storage":          res.Storage,
				"unresolved_links": res.Unresolved,
				"fallbacks":        res.Fallbacks,
			}, nil)
			return nil
		}
		printLine(res.Storage)
		return nil
	}

	if isJSONOutput() {
		outputSuccess(map[string]interface{}{
			"id":     n.ID,
			"title":  n.Title,
			"kind":   n.Kind.String(),
			"source": n.Source,
			"body":   n.Body,
		}, nil)
		return nil
	}

	display := ui.NewDisplayContext()
	printLine(ui.Header(n.Title) + " " + ui.ID(n.ID))
	printLine(ui.Hint(n.Source))
	if strings.TrimSpace(n.Body) == "" {
		printLine(ui.Hint("(empty page)"))
		return nil
	}
	ui.ConfigureMarkdownCodeTheme(c.Export.CodeTheme)
	rendered, err := ui.RenderMarkdown(n.Body, display.AvailableWidth(ui.MarkdownRenderMargin))
	if err != nil {
		// Fall back to the raw body.
		printLine(n.Body)
		return nil
	}
	printf("%s", rendered)
	return nil
}

func init() {
	previewCmd.Flags().BoolVar(&previewStorage, "storage", false, "Print the Confluence storage format")
	rootCmd.AddCommand(previewCmd)
}
