package cli

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aidanlsb/wikimigrate/docs"
)

// userCommands returns every runnable command below root, keyed by path
// without the binary name ("config init").
func userCommands(root *cobra.Command) map[string]*cobra.Command {
	out := make(map[string]*cobra.Command)
	var walk func(*cobra.Command)
	walk = func(c *cobra.Command) {
		for _, child := range c.Commands() {
			if child.Hidden || child.Name() == "help" || child.Name() == "completion" {
				continue
			}
			if child.Runnable() {
				path := strings.TrimPrefix(child.CommandPath(), root.Name()+" ")
				out[path] = child
			}
			walk(child)
		}
	}
	walk(root)
	return out
}

func TestEveryFlagHasUsage(t *testing.T) {
	for path, cmd := range userCommands(rootCmd) {
		cmd.LocalFlags().VisitAll(func(flag *pflag.Flag) {
			if flag.Name == "help" {
				return
			}
			if strings.TrimSpace(flag.Usage) == "" {
				t.Errorf("%s: flag --%s has no usage text", path, flag.Name)
			}
		})
	}
	rootCmd.PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		if strings.TrimSpace(flag.Usage) == "" {
			t.Errorf("persistent flag --%s has no usage text", flag.Name)
		}
	})
}

func TestTopLevelCommandsAreInTheGuide(t *testing.T) {
	var guide strings.Builder
	err := fs.WalkDir(docs.FS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return err
		}
		data, err := fs.ReadFile(docs.FS, path)
		if err != nil {
			return err
		}
		guide.Write(data)
		return nil
	})
	if err != nil {
		t.Fatalf("read guide: %v", err)
	}

	allowMissing := map[string]bool{"version": true}
	for path := range userCommands(rootCmd) {
		if strings.Contains(path, " ") || allowMissing[path] {
			continue
		}
		if !strings.Contains(guide.String(), "wikimigrate "+path) {
			t.Errorf("command %q is not mentioned in the guide", path)
		}
	}
}

func TestLongHelpHasExamples(t *testing.T) {
	for path, cmd := range userCommands(rootCmd) {
		if cmd.Long == "" || cmd.Parent() != rootCmd || path == "version" {
			continue
		}
		if !strings.Contains(cmd.Long, "Examples:") {
			t.Errorf("%s: long help has no Examples section", path)
		}
	}
}
