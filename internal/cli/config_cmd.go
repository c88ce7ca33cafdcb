package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/wikimigrate/internal/config"
)

type globalConfigContext struct {
	cfg          *config.Config
	configPath   string
	configExists bool
}

func loadGlobalConfigContextAllowMissing() (*globalConfigContext, error) {
	path := config.ResolvePath(configPath)
	ctx := &globalConfigContext{configPath: path}

	if _, err := os.Stat(path); err == nil {
		loaded, err := config.LoadFrom(path)
		if err != nil {
			return nil, err
		}
		ctx.cfg = loaded
		ctx.configExists = true
	} else if os.IsNotExist(err) {
		ctx.cfg = (&config.Config{}).WithDefaults()
	} else {
		return nil, err
	}
	ctx.cfg.ApplyEnv(os.Getenv)
	return ctx, nil
}

func configData(ctx *globalConfigContext) map[string]interface{} {
	c := ctx.cfg
	return map[string]interface{}{
		"config_path": ctx.configPath,
		"exists":      ctx.configExists,
		"confluence": map[string]interface{}{
			"base_url":        c.WikiBaseURL(),
			"username":        strings.TrimSpace(c.Confluence.Username),
			"api_token_set":   c.Confluence.APIToken != "",
			"space":           strings.TrimSpace(c.Confluence.Space),
			"parent_page_id":  strings.TrimSpace(c.Confluence.ParentPageID),
			"timeout_seconds": c.Confluence.TimeoutSeconds,
		},
		"retry": map[string]interface{}{
			"attempts":   c.Retry.Attempts,
			"backoff_ms": c.Retry.BackoffMS,
		},
		"export": map[string]interface{}{
			"id_pattern":   c.Export.IDPattern,
			"index_body":   c.Export.IndexBody,
			"quote_macros": c.QuoteMacrosEnabled(),
			"code_theme":   c.Export.CodeTheme,
		},
		"titles": map[string]interface{}{
			"match": c.Titles.Match,
		},
		"log": map[string]interface{}{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
		"journal": map[string]interface{}{
			"enabled": c.JournalEnabled(),
		},
		"ui": map[string]interface{}{
			"accent": strings.TrimSpace(c.UI.Accent),
		},
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	ctx, err := loadGlobalConfigContextAllowMissing()
	if err != nil {
		return handleError(ErrConfigInvalid, err, "")
	}

	if isJSONOutput() {
		outputSuccess(configData(ctx), nil)
		return nil
	}

	if !ctx.configExists {
		printf("Config file does not exist: %s\n", ctx.configPath)
		printLine("Run 'wikimigrate config init' to create it. Showing defaults.")
	} else {
		printf("config: %s\n", ctx.configPath)
	}

	c := ctx.cfg
	token := "(not set)"
	if c.Confluence.APIToken != "" {
		token = "(set)"
	}
	printf("confluence.base_url: %s\n", orNone(c.WikiBaseURL()))
	printf("confluence.username: %s\n", orNone(c.Confluence.Username))
	printf("confluence.api_token: %s\n", token)
	printf("confluence.space: %s\n", orNone(c.Confluence.Space))
	if v := strings.TrimSpace(c.Confluence.ParentPageID); v != "" {
		printf("confluence.parent_page_id: %s\n", v)
	}
	printf("confluence.timeout_seconds: %d\n", c.Confluence.TimeoutSeconds)
	printf("retry.attempts: %d\n", c.Retry.Attempts)
	printf("retry.backoff_ms: %d\n", c.Retry.BackoffMS)
	printf("export.id_pattern: %s\n", orNone(c.Export.IDPattern))
	printf("export.index_body: %s\n", c.Export.IndexBody)
	printf("export.quote_macros: %t\n", c.QuoteMacrosEnabled())
	printf("export.code_theme: %s\n", c.Export.CodeTheme)
	printf("titles.match: %s\n", c.Titles.Match)
	printf("log.level: %s\n", c.Log.Level)
	printf("log.format: %s\n", c.Log.Format)
	printf("journal.enabled: %t\n", c.JournalEnabled())
	if v := strings.TrimSpace(c.UI.Accent); v != "" {
		printf("ui.accent: %s\n", v)
	}
	return nil
}

func orNone(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "(none)"
	}
	return v
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the wikimigrate config.toml",
	Long: `Manage the wikimigrate config.toml.

Credentials are never stored in the file; they are read from
CONFLUENCE_USERNAME and CONFLUENCE_API_TOKEN (or CONFLUENCE_PASSWORD).

Examples:
  wikimigrate config init
  wikimigrate config show --json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config.toml if missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		targetPath := config.ResolvePath(configPath)
		createdPath, created, err := config.CreateDefault(targetPath)
		if err != nil {
			return handleError(ErrFileWriteError, err, "")
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"config_path": createdPath,
				"created":     created,
			}, nil)
			return nil
		}

		if created {
			printf("Created config: %s\n", createdPath)
		} else {
			printf("Config already exists: %s\n", createdPath)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})

	rootCmd.AddCommand(configCmd)
}
