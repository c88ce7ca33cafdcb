package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	builtindocs "github.com/aidanlsb/wikimigrate/docs"
	"github.com/aidanlsb/wikimigrate/internal/ui"
)

const (
	docsRoot      = "guide"
	docsIndexPath = "guide/index.yaml"
)

var (
	docsFS             fs.FS = builtindocs.FS
	docsDisplayContext       = ui.NewDisplayContext
	docsMarkdownRender       = ui.RenderMarkdown
	docsSearchLimit    int
)

type docsIndex struct {
	Title  string          `yaml:"title"`
	Topics []docsTopicView `yaml:"topics"`
}

type docsTopicView struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Path  string `json:"path" yaml:"path"`
}

type docsSearchMatchView struct {
	Topic   string `json:"topic"`
	Title   string `json:"title"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
}

var docsCmd = &cobra.Command{
	Use:   "docs [topic]",
	Short: "Read the migration guide",
	Long: `Read the guide bundled into the wikimigrate binary.

Examples:
  wikimigrate docs
  wikimigrate docs editing-plans
  wikimigrate docs search identifier`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := loadDocsIndex(docsFS)
		if err != nil {
			return handleError(ErrInternal, err, "Rebuild wikimigrate so bundled docs are available")
		}
		if len(args) == 0 {
			return outputDocsTopics(index)
		}
		topic, ok := findDocsTopic(index.Topics, args[0])
		if !ok {
			return handleErrorMsg(ErrInvalidInput,
				fmt.Sprintf("unknown docs topic: %s", args[0]),
				fmt.Sprintf("Run 'wikimigrate docs' to list topics (available: %s)", strings.Join(docsTopicIDs(index.Topics), ", ")))
		}
		return outputDocsTopicContent(topic)
	},
}

var docsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the guide",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return handleErrorMsg(ErrMissingArgument, "specify a search query", "Usage: wikimigrate docs search <query>")
		}
		if docsSearchLimit < 1 {
			return handleErrorMsg(ErrInvalidInput, "--limit must be >= 1", "")
		}
		index, err := loadDocsIndex(docsFS)
		if err != nil {
			return handleError(ErrInternal, err, "")
		}
		matches, err := searchDocs(docsFS, index, query, docsSearchLimit)
		if err != nil {
			return handleError(ErrFileReadError, err, "")
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"query":   query,
				"count":   len(matches),
				"matches": matches,
			}, &Meta{Count: len(matches)})
			return nil
		}
		if len(matches) == 0 {
			printf("No docs matched %q.\n", query)
			return nil
		}
		printf("Matches for %q (%d):\n", query, len(matches))
		for _, m := range matches {
			printf("- %s:%d %s\n", m.Topic, m.Line, m.Snippet)
		}
		return nil
	},
}

func loadDocsIndex(fsys fs.FS) (*docsIndex, error) {
	data, err := fs.ReadFile(fsys, docsIndexPath)
	if err != nil {
		return nil, fmt.Errorf("read docs index: %w", err)
	}
	var index docsIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse docs index: %w", err)
	}
	if len(index.Topics) == 0 {
		return nil, fmt.Errorf("docs index has no topics")
	}
	return &index, nil
}

func findDocsTopic(topics []docsTopicView, id string) (docsTopicView, bool) {
	id = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(id), ".md"))
	for _, t := range topics {
		if t.ID == id {
			return t, true
		}
	}
	return docsTopicView{}, false
}

func docsTopicIDs(topics []docsTopicView) []string {
	ids := make([]string, 0, len(topics))
	for _, t := range topics {
		ids = append(ids, t.ID)
	}
	return ids
}

func outputDocsTopics(index *docsIndex) error {
	if isJSONOutput() {
		outputSuccess(map[string]interface{}{
			"title":  index.Title,
			"topics": index.Topics,
		}, &Meta{Count: len(index.Topics)})
		return nil
	}

	printf("%s topics:\n", index.Title)
	for _, t := range index.Topics {
		printf("  %-36s %s\n", "wikimigrate docs "+t.ID, t.Title)
	}
	printLine()
	printf("  %-36s %s\n", "wikimigrate docs search <query>", "Search the guide")
	printf("  %-36s %s\n", "wikimigrate help <command>", "Command docs")
	return nil
}

func outputDocsTopicContent(topic docsTopicView) error {
	content, err := fs.ReadFile(docsFS, path.Join(docsRoot, topic.Path))
	if err != nil {
		return handleError(ErrFileReadError, err, "")
	}

	if isJSONOutput() {
		outputSuccess(map[string]interface{}{
			"topic":   topic.ID,
			"title":   topic.Title,
			"content": string(content),
		}, nil)
		return nil
	}

	rendered := string(content)
	display := docsDisplayContext()
	if display.IsTTY {
		if out, err := docsMarkdownRender(rendered, display.TermWidth); err == nil {
			rendered = out
		}
	}
	printf("%s", rendered)
	if !strings.HasSuffix(rendered, "\n") {
		printLine()
	}
	return nil
}

func searchDocs(fsys fs.FS, index *docsIndex, query string, limit int) ([]docsSearchMatchView, error) {
	needle := strings.ToLower(query)
	var matches []docsSearchMatchView
	for _, t := range index.Topics {
		content, err := fs.ReadFile(fsys, path.Join(docsRoot, t.Path))
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(bytes.NewReader(content))
		line := 0
		for scanner.Scan() {
			line++
			text := scanner.Text()
			if !strings.Contains(strings.ToLower(text), needle) {
				continue
			}
			matches = append(matches, docsSearchMatchView{
				Topic:   t.ID,
				Title:   t.Title,
				Line:    line,
				Snippet: ui.TruncateWithEllipsis(strings.TrimSpace(text), 100),
			})
			if len(matches) >= limit {
				return matches, nil
			}
		}
	}
	return matches, nil
}

func init() {
	docsSearchCmd.Flags().IntVar(&docsSearchLimit, "limit", 20, "Maximum number of matches")
	docsCmd.AddCommand(docsSearchCmd)
	rootCmd.AddCommand(docsCmd)
}
