package cli

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/wikimigrate/internal/pagetree"
	"github.com/aidanlsb/wikimigrate/internal/plan"
	"github.com/aidanlsb/wikimigrate/internal/ui"
)

// treeNodeView is the JSON form of a page in the hierarchy.
type treeNodeView struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Kind     string          `json:"kind"`
	Source   string          `json:"source,omitempty"`
	Children []*treeNodeView `json:"children,omitempty"`
}

var treeCmd = &cobra.Command{
	Use:   "tree <plan-or-export>",
	Short: "Show the page hierarchy of a plan or an export",
	Long: `Show the page hierarchy of a plan or an export directory.

A directory whose index.md starts with front matter is read as a plan;
anything else is resolved as an export.

Examples:
  wikimigrate tree ./export
  wikimigrate tree ./plan --json`,
	Args: cobra.ExactArgs(1),
	RunE: runTree,
}

func runTree(cmd *cobra.Command, args []string) error {
	c := getConfig()
	dir := args[0]

	var (
		tree   *pagetree.Tree
		err    error
		source = "export"
	)
	if isPlanDir(dir) {
		source = "plan"
		tree, err = readPlan(c, dir)
	} else {
		tree, err = resolveExport(c, dir, nil)
	}
	if err != nil {
		return handleError(errorCode(err), err, errorSuggestion(err))
	}

	if isJSONOutput() {
		outputSuccess(map[string]interface{}{
			"source": source,
			"pages":  tree.Len(),
			"root":   treeView(tree, tree.Root()),
		}, &Meta{Count: tree.Len()})
		return nil
	}

	printf("%s\n", ui.RenderTree(treeItem(tree, tree.Root())))
	printLine(ui.Hint(ui.Plural(tree.Len(), "page") + " in " + source + " " + dir))
	return nil
}

// isPlanDir reports whether dir looks like a written plan.
func isPlanDir(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, plan.IndexFile))
	if err != nil {
		return false
	}
	return bytes.HasPrefix(data, []byte("---\n")) || bytes.HasPrefix(data, []byte("---\r\n"))
}

func treeView(tree *pagetree.Tree, n *pagetree.Node) *treeNodeView {
	v := &treeNodeView{ID: n.ID, Title: n.Title, Kind: n.Kind.String(), Source: n.Source}
	for _, child := range tree.Children(n.ID) {
		v.Children = append(v.Children, treeView(tree, child))
	}
	return v
}

func treeItem(tree *pagetree.Tree, n *pagetree.Node) *ui.TreeItem {
	label := n.Title + " " + ui.ID(n.ID)
	if n.IsContainer() {
		label = ui.Bold.Render(n.Title) + " " + ui.ID(n.ID)
	}
	item := &ui.TreeItem{Label: label}
	for _, child := range tree.Children(n.ID) {
		item.Children = append(item.Children, treeItem(tree, child))
	}
	return item
}

func init() {
	rootCmd.AddCommand(treeCmd)
}
