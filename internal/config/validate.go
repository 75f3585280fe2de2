package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	logx "jokebot/pkg/logx"
)

// Defaults applied when fields are omitted or zero.
const (
	DefaultMaxProcessed      = 1000
	DefaultStoragePath       = "./data"
	DefaultRequestsPerMinute = 60
	DefaultTrelloRatePerSec  = 10
)

func (c *Config) applyDefaults() {
	if c.MaxProcessed == 0 {
		c.MaxProcessed = DefaultMaxProcessed
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "file"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Reddit.RequestsPerMinute == 0 {
		c.Reddit.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.Trello.RatePerSec == 0 {
		c.Trello.RatePerSec = DefaultTrelloRatePerSec
	}
}

// Validate checks the config for values the bot cannot run with.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	rates := map[string]int{
		"rates.comments": c.Rates.Comments,
		"rates.mentions": c.Rates.Mentions,
		"rates.trello":   c.Rates.Trello,
		"rates.reply":    c.Rates.Reply,
		"rates.io":       c.Rates.IO,
		"rates.uptime":   c.Rates.Uptime,
	}
	for _, k := range []string{"rates.comments", "rates.mentions", "rates.trello", "rates.reply", "rates.io", "rates.uptime"} {
		if rates[k] <= 0 {
			bad("%s must be > 0 seconds", k)
		}
	}

	if c.MaxProcessed < 2 {
		bad("max_processed must be >= 2")
	}
	if c.Logging.File.MaxBackups < 0 {
		bad("logging.file.max_backups: must be >= 0")
	}
	if !logx.ValidLevel(c.Logging.Level) {
		bad("logging.level: unknown level %q", c.Logging.Level)
	}
	for i, p := range c.Patterns {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			bad("patterns[%d]: %w", i, err)
		}
	}
	if len(c.Phrases) == 0 && len(c.Patterns) == 0 {
		bad("at least one of phrases or patterns is required")
	}
	if len(c.ReplyTemplate) == 0 {
		bad("reply_template is required")
	} else if _, err := template.New("reply").Option("missingkey=error").Parse(strings.Join(c.ReplyTemplate, "\n")); err != nil {
		bad("reply_template: %w", err)
	}

	if len(c.Trello.Boards) == 0 {
		bad("trello.boards requires at least one board")
	}
	for i, b := range c.Trello.Boards {
		if strings.TrimSpace(b.ID) == "" {
			bad("trello.boards[%d].id is required", i)
		}
	}
	if c.Trello.Auth.Required && (c.Trello.Auth.Key == "" || c.Trello.Auth.Token == "") {
		bad("trello.auth.key and trello.auth.token are required when trello.auth.required is true")
	}
	if c.Trello.RatePerSec < 0 {
		bad("trello.rate_per_sec must be >= 0")
	}

	if strings.TrimSpace(c.Reddit.UserAgent) == "" {
		bad("reddit.user_agent is required")
	}
	if strings.TrimSpace(c.Reddit.Username) == "" {
		bad("reddit.username is required")
	}
	if len(c.Reddit.Subreddits) == 0 {
		bad("reddit.subreddits requires at least one subreddit")
	}
	if c.Reddit.RequestsPerMinute < 0 {
		bad("reddit.requests_per_minute must be >= 0")
	}

	for path, raw := range map[string]string{
		"task_timeout":         c.TaskTimeout,
		"reddit.timeout":       c.Reddit.Timeout,
		"trello.timeout":       c.Trello.Timeout,
		"storage.busy_timeout": c.Storage.BusyTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "file", "sqlite", "sqlite3":
	default:
		bad("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	return errors.Join(errs...)
}

// IgnoredSet returns the ignored users, always including the bot itself.
func (c *Config) IgnoredSet() []string {
	out := append([]string(nil), c.IgnoredUsers...)
	if u := strings.TrimSpace(c.Reddit.Username); u != "" {
		out = append(out, u)
	}
	return out
}
