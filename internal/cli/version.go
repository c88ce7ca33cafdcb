package cli

import (
	"github.com/spf13/cobra"

	"github.com/aidanlsb/wikimigrate/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show wikimigrate version and build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.Current()

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"build":      info,
				"user_agent": buildinfo.UserAgent(),
			}, nil)
			return nil
		}

		printf("wikimigrate %s\n", info.Version)
		if info.Commit != "" {
			commit := info.Commit
			if info.Modified {
				commit += " (modified)"
			}
			printf("commit: %s %s\n", commit, info.CommitTime)
		}
		printf("go: %s %s/%s\n", info.GoVersion, info.GOOS, info.GOARCH)
		printf("user agent: %s\n", buildinfo.UserAgent())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
