package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var spaceKeyPattern = regexp.MustCompile(`^~?[A-Za-z0-9_.@-]+$`)

// Validate checks settings that do not depend on the remote wiki.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Retry,
		validation.Field(&c.Retry.Attempts, validation.Min(1), validation.Max(10)),
		validation.Field(&c.Retry.BackoffMS, validation.Min(0), validation.Max(60000)),
	); err != nil {
		return fmt.Errorf("retry: %w", err)
	}

	if err := validation.ValidateStruct(&c.Export,
		validation.Field(&c.Export.IDPattern, validation.By(compiles)),
		validation.Field(&c.Export.IndexBody, validation.In(IndexBodyKeep, IndexBodyChildren, IndexBodyEmpty)),
	); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if err := validation.ValidateStruct(&c.Titles,
		validation.Field(&c.Titles.Match, validation.In("exact", "fold")),
	); err != nil {
		return fmt.Errorf("titles: %w", err)
	}

	if err := validation.ValidateStruct(&c.Log,
		validation.Field(&c.Log.Level, validation.In("trace", "debug", "info", "warn", "warning", "error")),
		validation.Field(&c.Log.Format, validation.In("json", "console", "pretty")),
	); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	return nil
}

// ValidateRemote checks everything needed to talk to the wiki.
func (c *Config) ValidateRemote() error {
	if err := c.Validate(); err != nil {
		return err
	}

	base := c.WikiBaseURL()
	if err := validation.Validate(base,
		validation.Required.Error("orgname or base_url is required"),
		is.URL,
	); err != nil {
		return fmt.Errorf("confluence: %w", err)
	}

	return validation.ValidateStruct(&c.Confluence,
		validation.Field(&c.Confluence.Username, validation.Required.Error("username is required (set "+EnvUsername+")")),
		validation.Field(&c.Confluence.APIToken, validation.Required.Error("API token is required (set "+EnvAPIToken+")")),
		validation.Field(&c.Confluence.Space, validation.Required, validation.Match(spaceKeyPattern)),
		validation.Field(&c.Confluence.TimeoutSeconds, validation.Min(1)),
	)
}

func compiles(value interface{}) error {
	pattern, _ := value.(string)
	if strings.TrimSpace(pattern) == "" {
		return nil
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return errors.New("must be a valid regular expression")
	}
	return nil
}
