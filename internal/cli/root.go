// Package cli implements the command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/wikimigrate/internal/config"
	"github.com/aidanlsb/wikimigrate/internal/logging"
	"github.com/aidanlsb/wikimigrate/internal/ui"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string

	// Resolved values
	resolvedConfigPath string
	cfg                *config.Config
	logs               *logging.Provider
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "wikimigrate",
	Short: "Migrate a Nuclino export into a Confluence space",
	Long: `wikimigrate moves an exported Nuclino workspace into Confluence in two steps.

  wikimigrate plan ./export --out ./plan      resolve the export into an editable plan
  wikimigrate execute DOCS ./plan             create the planned pages in space DOCS

The plan is a plain folder of Markdown files. Rename, reorder or delete pages
before executing it; the identifier suffix of every file name must stay intact.
Executing a plan again only creates the pages that are still missing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "completion", "help", "version":
			return nil
		}
		if cmd.Parent() != nil && cmd.Parent().Name() == "completion" {
			return nil
		}
		// config commands must work while the file is missing or broken.
		if cmd == configCmd || cmd.Parent() == configCmd {
			return nil
		}

		var err error
		cfg, resolvedConfigPath, err = loadGlobalConfigWithPath()
		if err != nil {
			return withCode(ErrConfigInvalid, fmt.Errorf("failed to load config: %w", err), "Run 'wikimigrate config show' to inspect it")
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if logFormat != "" {
			cfg.Log.Format = logFormat
		}
		if err := cfg.Validate(); err != nil {
			return withCode(ErrConfigInvalid, err, "")
		}

		// JSON output owns stdout; logs stay off unless asked for.
		if isJSONOutput() && logLevel == "" {
			logs = nil
		} else {
			logs, err = logging.NewProvider(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			if err != nil {
				return withCode(ErrConfigInvalid, err, "")
			}
		}
		ui.ConfigureTheme(cfg.UI.Accent)
		return nil
	},
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil && !isJSONOutput() {
			fmt.Fprintln(os.Stderr, ui.Error(exitErr.Err.Error()))
		}
		return exitErr.Code
	}
	if isJSONOutput() {
		outputErrorFromErr(errorCode(err), err, errorSuggestion(err))
		return 1
	}
	fmt.Fprintln(os.Stderr, ui.Error(err.Error()))
	if hint := errorSuggestion(err); hint != "" {
		fmt.Fprintln(os.Stderr, ui.Hint(hint))
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (for scripts)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console|json|pretty)")
}

// getConfig returns the loaded config.
func getConfig() *config.Config {
	if cfg == nil {
		return (&config.Config{}).WithDefaults()
	}
	return cfg
}

// logger returns the named component logger.
func logger(name string) logging.Logger {
	return logs.Logger(name)
}

func loadGlobalConfigWithPath() (*config.Config, string, error) {
	resolvedPath := config.ResolvePath(configPath)

	var loadedCfg *config.Config
	var err error
	if strings.TrimSpace(configPath) != "" {
		loadedCfg, err = config.LoadFrom(configPath)
	} else {
		loadedCfg, err = config.Load()
	}
	if err != nil {
		return nil, "", err
	}
	if loadedCfg == nil {
		loadedCfg = (&config.Config{}).WithDefaults()
	}
	loadedCfg.ApplyEnv(os.Getenv)

	return loadedCfg, resolvedPath, nil
}
