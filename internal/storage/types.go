package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Backend.Load when a key was never saved.
	ErrNotFound = errors.New("storage: document not found")
	// ErrSealed is returned when registering a document after Seal.
	ErrSealed = errors.New("storage: store sealed")
	// ErrUnknownKey is returned for keys that were never registered.
	ErrUnknownKey = errors.New("storage: unknown document key")
	// ErrDuplicateKey is returned when two documents share a key.
	ErrDuplicateKey = errors.New("storage: duplicate document key")
)

// Config configures the backend.
//
// Driver values:
//   - "file": Path is a directory
//   - "sqlite": Path is a database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Backend stores whole document blobs by key.
type Backend interface {
	// Load returns ErrNotFound when the key has no stored blob.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save overwrites the blob stored under key.
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

// Document is an in-memory value persisted under a fixed key.
//
// Implementations guard their own state; MarshalDocument must return a
// consistent snapshot even while other goroutines mutate the value.
type Document interface {
	Key() string
	MarshalDocument() ([]byte, error)
	UnmarshalDocument(data []byte) error
	// Reset replaces the value with the empty default of its shape.
	Reset()
}

// DirtyMarker is the part of Store that document owners need.
type DirtyMarker interface {
	MarkDirty(key string)
}
