package app

import (
	"context"

	"jokebot/internal/config"
	"jokebot/internal/dedup"
	"jokebot/internal/jokes"
	"jokebot/internal/reply"
	"jokebot/internal/storage"
	logx "jokebot/pkg/logx"
)

// State is the shared bot state. It is built once; tasks receive only the
// parts they use.
type State struct {
	Config   *config.Config
	Store    *storage.Store
	Ledger   *dedup.Ledger
	Catalog  *jokes.Catalog
	Snapshot *storage.StringMap
	Queue    *reply.Queue
}

// NewState registers every persisted document with a new store over
// backend, loading what was saved before.
func NewState(ctx context.Context, cfg *config.Config, backend storage.Backend, log logx.Logger) (*State, error) {
	store := storage.New(backend, log)
	st := &State{
		Config:   cfg,
		Store:    store,
		Ledger:   dedup.New(cfg.MaxProcessed, store),
		Catalog:  jokes.NewCatalog(store),
		Snapshot: jokes.NewSnapshot(store),
		Queue:    reply.NewQueue(),
	}
	for _, doc := range []storage.Document{st.Ledger, st.Catalog, st.Snapshot} {
		if err := store.Register(ctx, doc); err != nil {
			return nil, err
		}
	}
	return st, nil
}
