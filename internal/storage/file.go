package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "jokebot/pkg/logx"
)

// fileBackend keeps each document in <dir>/<key>.json.
//
// Saves write a temp file and rename it over the target, so a reader never
// observes a half-written document.
type fileBackend struct {
	log logx.Logger
	dir string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Backend, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileBackend{log: log, dir: dir}, nil
}

func (b *fileBackend) path(key string) string {
	return filepath.Join(b.dir, key+".json")
}

func (b *fileBackend) Load(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (b *fileBackend) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	target := b.path(key)
	tmp := target + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

func (b *fileBackend) Close() error { return nil }
