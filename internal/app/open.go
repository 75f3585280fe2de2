package app

import (
	"context"

	"jokebot/internal/adapters/reddit"
	"jokebot/internal/config"
	"jokebot/internal/storage"
	"jokebot/internal/trello"
	logx "jokebot/pkg/logx"
)

// Open builds an App with the real storage backend, Trello client, and
// Reddit client described by cfg.
func Open(ctx context.Context, cfg *config.Config, watcher Watcher, log logx.Logger) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	trelloTimeout, err := config.ParseDurationOrDefault("trello.timeout", cfg.Trello.Timeout, 0)
	if err != nil {
		return nil, err
	}
	redditTimeout, err := config.ParseDurationOrDefault("reddit.timeout", cfg.Reddit.Timeout, 0)
	if err != nil {
		return nil, err
	}

	rc, err := reddit.New(reddit.Config{
		UserAgent:         cfg.Reddit.UserAgent,
		Username:          cfg.Reddit.Username,
		Password:          cfg.Reddit.Password,
		ClientID:          cfg.Reddit.ClientID,
		ClientSecret:      cfg.Reddit.ClientSecret,
		Timeout:           redditTimeout,
		RequestsPerMinute: cfg.Reddit.RequestsPerMinute,
	}, log.With(logx.String("comp", "reddit")))
	if err != nil {
		return nil, err
	}

	tc := trello.New(trello.Config{
		AuthRequired: cfg.Trello.Auth.Required,
		Key:          cfg.Trello.Auth.Key,
		Token:        cfg.Trello.Auth.Token,
		Timeout:      trelloTimeout,
		RatePerSec:   cfg.Trello.RatePerSec,
	}, log.With(logx.String("comp", "trello.client")))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	return New(ctx, cfg, Deps{
		Backend:  backend,
		Boards:   tc,
		Mentions: rc,
		Stream:   rc.Stream(cfg.Reddit.Subreddits, config.Interval(cfg.Rates.Comments)),
		Watcher:  watcher,
	}, log)
}
