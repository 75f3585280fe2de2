package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	logx "jokebot/pkg/logx"
)

// Environment variables that override secrets from the config file.
const (
	EnvRedditUsername     = "JOKEBOT_REDDIT_USERNAME"
	EnvRedditPassword     = "JOKEBOT_REDDIT_PASSWORD"
	EnvRedditClientID     = "JOKEBOT_REDDIT_CLIENT_ID"
	EnvRedditClientSecret = "JOKEBOT_REDDIT_CLIENT_SECRET"
	EnvTrelloKey          = "JOKEBOT_TRELLO_KEY"
	EnvTrelloToken        = "JOKEBOT_TRELLO_TOKEN"
)

// Manager loads the config once and reports (but never applies) later
// edits of the file.
type Manager struct {
	path    string
	envPath string

	mu   sync.Mutex
	hash uint64

	log logx.Logger
}

func NewManager(path, envPath string) *Manager {
	return &Manager{path: path, envPath: envPath}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

func (m *Manager) Path() string { return m.path }

// Parse reads and strictly decodes the config file without touching the
// committed config.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := toJSON(m.path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// Load parses the file, applies .env and environment overrides, validates,
// and commits the result. It is meant to be called once.
func (m *Manager) Load() (*Config, error) {
	if err := m.loadEnvFile(); err != nil {
		return nil, err
	}
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.hash = m.fileHash()
	m.mu.Unlock()
	return cfg, nil
}

func (m *Manager) loadEnvFile() error {
	p := strings.TrimSpace(m.envPath)
	if p == "" {
		return nil
	}
	// godotenv.Load never overrides variables already set in the process.
	if err := godotenv.Load(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", p, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Reddit.Username, EnvRedditUsername)
	set(&cfg.Reddit.Password, EnvRedditPassword)
	set(&cfg.Reddit.ClientID, EnvRedditClientID)
	set(&cfg.Reddit.ClientSecret, EnvRedditClientSecret)
	set(&cfg.Trello.Auth.Key, EnvTrelloKey)
	set(&cfg.Trello.Auth.Token, EnvTrelloToken)
}

func (m *Manager) fileHash() uint64 {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}

// Watch logs when the config file content changes on disk.
//
// The loaded config is immutable, so a change only produces a warning that
// a restart is required. Watch returns when ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, restartBackoffMax)
		return wait
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	// debounce to avoid reacting to partial writes
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, m.checkChanged)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			m.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}

		backoff = restartBackoffBase
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err != nil {
					m.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
				}
			}
		}

		_ = w.Close()
		wait := nextWait()
		m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir), logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (m *Manager) checkChanged() {
	h := m.fileHash()
	m.mu.Lock()
	changed := h != 0 && h != m.hash
	if changed {
		m.hash = h
	}
	m.mu.Unlock()
	if !changed {
		return
	}
	if _, err := m.Parse(); err != nil {
		m.log.Warn("config changed on disk and does not parse", logx.String("path", m.path), logx.Err(err))
		return
	}
	m.log.Warn("config changed on disk; restart required", logx.String("path", m.path))
}
