// Package config handles wikimigrate configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aidanlsb/wikimigrate/internal/atomicfile"
)

// Environment variables read by ApplyEnv.
const (
	EnvUsername = "CONFLUENCE_USERNAME"
	EnvPassword = "CONFLUENCE_PASSWORD"
	EnvAPIToken = "CONFLUENCE_API_TOKEN"
	EnvOrgName  = "CONFLUENCE_ORGNAME"
	EnvBaseURL  = "CONFLUENCE_BASE_URL"
)

// Defaults applied by WithDefaults.
const (
	DefaultTimeoutSeconds = 30
	DefaultRetryAttempts  = 3
	DefaultRetryBackoffMS = 500
	DefaultPlanDirName    = "plan"
	DefaultLogLevel       = "warn"
	DefaultLogFormat      = "console"
	DefaultCodeTheme      = "Midnight"
)

// Index body modes.
const (
	IndexBodyKeep     = "keep"     // push the index file's own body
	IndexBodyChildren = "children" // replace it with a children macro
	IndexBodyEmpty    = "empty"    // push an empty page
)

// Config represents the wikimigrate configuration.
type Config struct {
	Confluence ConfluenceConfig `toml:"confluence"`
	Retry      RetryConfig      `toml:"retry"`
	Export     ExportConfig     `toml:"export"`
	Titles     TitlesConfig     `toml:"titles"`
	Log        LogConfig        `toml:"log"`
	Journal    JournalConfig    `toml:"journal"`

	// UI controls optional CLI theming preferences.
	UI UIConfig `toml:"ui"`
}

// ConfluenceConfig describes the destination wiki.
type ConfluenceConfig struct {
	// OrgName is the Atlassian organisation ("acme" -> https://acme.atlassian.net/wiki).
	// If it contains a dot it is treated as a fully qualified host name.
	OrgName string `toml:"orgname"`

	// BaseURL overrides OrgName with an explicit wiki base URL.
	BaseURL string `toml:"base_url"`

	Username string `toml:"username"`

	// APIToken is only read from the environment; it is never persisted.
	APIToken string `toml:"-"`

	// Space is the default destination space key.
	Space string `toml:"space"`

	// ParentPageID places the migrated tree under a page other than the space homepage.
	ParentPageID string `toml:"parent_page_id"`

	TimeoutSeconds int `toml:"timeout_seconds"`
}

// RetryConfig bounds retries of transient remote failures.
type RetryConfig struct {
	Attempts  int `toml:"attempts"`
	BackoffMS int `toml:"backoff_ms"`
}

// ExportConfig controls how exports and plans are interpreted and rendered.
type ExportConfig struct {
	// IDPattern is the regular expression an identifier suffix must match.
	IDPattern string `toml:"id_pattern"`

	// IndexBody is one of keep, children or empty.
	IndexBody string `toml:"index_body"`

	// QuoteMacros renders block quotes as info/note/warning macros.
	QuoteMacros *bool `toml:"quote_macros"`

	// CodeTheme is the theme parameter of generated code macros.
	CodeTheme string `toml:"code_theme"`
}

// TitlesConfig controls title collision handling.
type TitlesConfig struct {
	// Match is "exact" or "fold" (case-insensitive).
	Match string `toml:"match"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// JournalConfig controls the run journal kept inside each plan directory.
type JournalConfig struct {
	Enabled *bool `toml:"enabled"`
}

// UIConfig represents optional CLI theming preferences.
type UIConfig struct {
	// Accent is an optional accent color for CLI output and markdown rendering.
	// Supported values are ANSI color codes ("0" to "255") or hex colors ("#RRGGBB").
	Accent string `toml:"accent"`
}

// WithDefaults fills unset values with defaults and returns c.
func (c *Config) WithDefaults() *Config {
	if c.Confluence.TimeoutSeconds <= 0 {
		c.Confluence.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = DefaultRetryAttempts
	}
	if c.Retry.BackoffMS <= 0 {
		c.Retry.BackoffMS = DefaultRetryBackoffMS
	}
	if c.Export.IndexBody == "" {
		c.Export.IndexBody = IndexBodyKeep
	}
	if c.Export.QuoteMacros == nil {
		enabled := true
		c.Export.QuoteMacros = &enabled
	}
	if c.Export.CodeTheme == "" {
		c.Export.CodeTheme = DefaultCodeTheme
	}
	if c.Titles.Match == "" {
		c.Titles.Match = "exact"
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	return c
}

// ApplyEnv overrides credentials and the wiki location from the environment.
// getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvUsername)); v != "" {
		c.Confluence.Username = v
	}
	if v := getenv(EnvAPIToken); v != "" {
		c.Confluence.APIToken = v
	} else if v := getenv(EnvPassword); v != "" {
		c.Confluence.APIToken = v
	}
	if v := strings.TrimSpace(getenv(EnvOrgName)); v != "" {
		c.Confluence.OrgName = v
	}
	if v := strings.TrimSpace(getenv(EnvBaseURL)); v != "" {
		c.Confluence.BaseURL = v
	}
}

// WikiBaseURL returns the base URL of the wiki, without a trailing slash.
func (c *Config) WikiBaseURL() string {
	if base := strings.TrimSpace(c.Confluence.BaseURL); base != "" {
		return strings.TrimRight(base, "/")
	}
	org := strings.TrimSpace(c.Confluence.OrgName)
	if org == "" {
		return ""
	}
	if strings.Contains(org, ".") {
		return "https://" + strings.TrimRight(org, "/")
	}
	return fmt.Sprintf("https://%s.atlassian.net/wiki", org)
}

// Timeout returns the HTTP timeout for remote calls.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Confluence.TimeoutSeconds) * time.Second
}

// Backoff returns the initial retry backoff.
func (c *Config) Backoff() time.Duration {
	return time.Duration(c.Retry.BackoffMS) * time.Millisecond
}

// QuoteMacrosEnabled reports whether block quotes become macros.
func (c *Config) QuoteMacrosEnabled() bool {
	return c.Export.QuoteMacros == nil || *c.Export.QuoteMacros
}

// JournalEnabled reports whether execute runs are journaled (default: true).
func (c *Config) JournalEnabled() bool {
	return c.Journal.Enabled == nil || *c.Journal.Enabled
}

// Load loads the configuration from the default location.
// Returns a default config if the file doesn't exist.
func Load() (*Config, error) {
	configPath := DefaultPath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return (&Config{}).WithDefaults(), nil
	}

	return LoadFrom(configPath)
}

// LoadFrom loads the configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	var config Config
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return config.WithDefaults(), nil
}

// ResolvePath returns the explicit path when set, otherwise DefaultPath.
func ResolvePath(explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	return DefaultPath()
}

// DefaultPath returns the default config file path.
// Checks ~/.config/wikimigrate/config.toml first (XDG style),
// then falls back to OS-specific location.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		xdgPath := filepath.Join(home, ".config", "wikimigrate", "config.toml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "wikimigrate", "config.toml")
	}

	return filepath.Join(".", "config.toml")
}

// DefaultConfigTemplate is written by CreateDefault.
const DefaultConfigTemplate = `# wikimigrate configuration
#
# Credentials are read from the environment only:
#   CONFLUENCE_USERNAME, CONFLUENCE_API_TOKEN (or CONFLUENCE_PASSWORD)

[confluence]
# Atlassian organisation; "acme" means https://acme.atlassian.net/wiki.
# A value containing a dot is used as the host name.
# orgname = "acme"
#
# Or an explicit base URL:
# base_url = "https://wiki.example.com"
#
# username = "me@example.com"
# space = "DOCS"
# parent_page_id = ""
# timeout_seconds = 30

[retry]
# attempts = 3
# backoff_ms = 500

[export]
# Identifier suffix of exported file names ("Page Title 0a1b2c3d.md").
# id_pattern = "[0-9A-Za-z]*[0-9][0-9A-Za-z]*"
#
# Body of index pages: keep | children | empty
# index_body = "keep"
#
# quote_macros = true
# code_theme = "Midnight"

[titles]
# How sibling titles collide: exact | fold
# match = "exact"

[log]
# level = "warn"
# format = "console"

[journal]
# Record every execute run in <plan>/.wikimigrate/journal.log.
# enabled = true

# [ui]
# accent = "39"
`

// CreateDefault creates a default config file at path if it doesn't exist.
func CreateDefault(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := atomicfile.WriteFile(path, []byte(DefaultConfigTemplate), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}
	return path, true, nil
}
