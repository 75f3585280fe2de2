package config

import "time"

// Config is the process-wide bot configuration.
//
// It is loaded once at startup and never mutated afterwards; components
// receive the parts they need by value or pointer and must treat them as
// read-only.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`

	// Rates holds per-task cadences in whole seconds.
	Rates RatesConfig `json:"rates"`

	// TaskTimeout bounds a single task invocation (Go duration string).
	// Empty or "0s" disables the bound.
	TaskTimeout string `json:"task_timeout,omitempty"`

	Reddit RedditConfig `json:"reddit"`
	Trello TrelloConfig `json:"trello"`

	IgnoredUsers []string       `json:"ignored_users,omitempty"`
	Phrases      []string       `json:"phrases,omitempty"`
	Patterns     []string       `json:"patterns,omitempty"`
	Mentions     MentionsConfig `json:"mentions,omitempty"`

	// MaxProcessed caps the comments dedup log.
	MaxProcessed int `json:"max_processed"`

	// ReplyTemplate lines are joined with "\n" and parsed as a text/template.
	// Fields: .Joke .Author .Permalink .Body .ID
	ReplyTemplate []string `json:"reply_template"`
}

// RatesConfig maps each periodic task to its interval in seconds.
//
// Tasks sharing a value run on the same timer goroutine.
// Comments is the poll cadence of the live comment stream, which runs on
// the controlling goroutine rather than in a task group.
type RatesConfig struct {
	Comments int `json:"comments"`
	Mentions int `json:"mentions"`
	Trello   int `json:"trello"`
	Reply    int `json:"reply"`
	IO       int `json:"io"`
	Uptime   int `json:"uptime"`
}

type MentionsConfig struct {
	// RequireTrigger makes mentions pass the phrase/pattern filter too.
	RequireTrigger bool `json:"require_trigger,omitempty"`
}

type RedditConfig struct {
	UserAgent    string   `json:"user_agent"`
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Subreddits   []string `json:"subreddits"`

	// Timeout is a Go duration string applied to every API request.
	Timeout           string `json:"timeout,omitempty"`
	RequestsPerMinute int    `json:"requests_per_minute,omitempty"`

	// DryRun logs replies instead of posting them.
	DryRun bool `json:"dry_run,omitempty"`
}

type TrelloConfig struct {
	Auth   TrelloAuth    `json:"auth"`
	Boards []TrelloBoard `json:"boards"`

	// Timeout is a Go duration string applied to every API request.
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type TrelloAuth struct {
	Required bool   `json:"required"`
	Key      string `json:"key,omitempty"`
	Token    string `json:"token,omitempty"`
}

// TrelloBoard selects the jokes of one board.
//
// List is either a list name (matched case-insensitively) or "all".
type TrelloBoard struct {
	ID   string `json:"id"`
	List string `json:"list"`
}

// AllLists reports whether every card of the board is a joke.
func (b TrelloBoard) AllLists() bool { return b.List == "" || equalFold(b.List, "all") }

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	// MaxBackups caps the rotated daily files kept; 0 keeps all.
	MaxBackups int `json:"max_backups"`
}

// StorageConfig controls the persistence backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Interval converts a rate in seconds to a duration.
func Interval(seconds int) time.Duration { return time.Duration(seconds) * time.Second }
