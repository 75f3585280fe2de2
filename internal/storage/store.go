package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	logx "jokebot/pkg/logx"
)

// Store tracks a fixed set of documents and their dirty flags.
//
// Dirty-flag protocol: Flush clears a flag (CAS true->false) before it
// marshals the value. A MarkDirty racing with the flush either lands before
// the clear (its change is in the marshaled value) or after it (the flag is
// set again and the next Flush writes it). A failed write re-sets the flag.
type Store struct {
	backend Backend
	log     logx.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	sealed  bool

	// flushMu serializes Flush/Close; lastHash fields are guarded by it.
	flushMu sync.Mutex
	writes  atomic.Uint64
}

type entry struct {
	doc   Document
	dirty atomic.Bool

	lastHash uint64
	hasHash  bool
}

func New(backend Backend, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		backend: backend,
		log:     log,
		entries: map[string]*entry{},
	}
}

// Register loads doc from the backend and starts tracking it.
//
// A missing or unreadable document is replaced by its empty default,
// which is written back immediately.
func (s *Store) Register(ctx context.Context, doc Document) error {
	key := doc.Key()
	s.mu.RLock()
	sealed := s.sealed
	_, dup := s.entries[key]
	s.mu.RUnlock()
	if sealed {
		return fmt.Errorf("register %q: %w", key, ErrSealed)
	}
	if dup {
		return fmt.Errorf("register %q: %w", key, ErrDuplicateKey)
	}

	e := &entry{doc: doc}
	data, err := s.backend.Load(ctx, key)
	switch {
	case err == nil:
		if uerr := doc.UnmarshalDocument(data); uerr != nil {
			s.log.Warn("document corrupt; starting empty", logx.String("key", key), logx.Err(uerr))
			err = uerr
		} else {
			e.lastHash, e.hasHash = xxhash.Sum64(data), true
		}
	case errors.Is(err, ErrNotFound):
		s.log.Info("document missing; starting empty", logx.String("key", key))
	default:
		s.log.Warn("document unreadable; starting empty", logx.String("key", key), logx.Err(err))
	}
	if err != nil {
		doc.Reset()
		if werr := s.write(ctx, e); werr != nil {
			return fmt.Errorf("register %q: persist default: %w", key, werr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return fmt.Errorf("register %q: %w", key, ErrSealed)
	}
	if _, ok := s.entries[key]; ok {
		return fmt.Errorf("register %q: %w", key, ErrDuplicateKey)
	}
	s.entries[key] = e
	s.order = append(s.order, key)
	return nil
}

// Seal freezes the key set. Later Register calls fail with ErrSealed.
func (s *Store) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Get returns the in-memory document for key.
func (s *Store) Get(key string) (Document, error) {
	e := s.lookup(key)
	if e == nil {
		return nil, fmt.Errorf("get %q: %w", key, ErrUnknownKey)
	}
	return e.doc, nil
}

// MarkDirty flags key for the next Flush. Marking an already dirty key is a no-op.
func (s *Store) MarkDirty(key string) {
	e := s.lookup(key)
	if e == nil {
		s.log.Warn("mark dirty on unknown document", logx.String("key", key))
		return
	}
	e.dirty.Store(true)
}

// Dirty reports whether key has changes that were not flushed yet.
func (s *Store) Dirty(key string) bool {
	e := s.lookup(key)
	return e != nil && e.dirty.Load()
}

// Keys returns the registered keys in registration order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Writes returns the number of successful backend writes.
func (s *Store) Writes() uint64 { return s.writes.Load() }

// Flush writes every dirty document and clears its flag.
// It keeps going after a failed document and returns all errors joined.
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	var errs []error
	for _, key := range s.Keys() {
		e := s.lookup(key)
		if e == nil || !e.dirty.CompareAndSwap(true, false) {
			continue
		}
		if err := s.write(ctx, e); err != nil {
			e.dirty.Store(true)
			s.log.Error("document flush failed", logx.String("key", key), logx.Err(err))
			errs = append(errs, fmt.Errorf("flush %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// write marshals and saves one document unless its content matches the
// last successful write.
func (s *Store) write(ctx context.Context, e *entry) error {
	data, err := e.doc.MarshalDocument()
	if err != nil {
		return err
	}
	h := xxhash.Sum64(data)
	if e.hasHash && h == e.lastHash {
		return nil
	}
	if err := s.backend.Save(ctx, e.doc.Key(), data); err != nil {
		return err
	}
	e.lastHash, e.hasHash = h, true
	s.writes.Add(1)
	s.log.Debug("document written", logx.String("key", e.doc.Key()), logx.Int("bytes", len(data)))
	return nil
}

// Close flushes pending changes and closes the backend.
func (s *Store) Close(ctx context.Context) error {
	ferr := s.Flush(ctx)
	return errors.Join(ferr, s.backend.Close())
}

func (s *Store) lookup(key string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key]
}
