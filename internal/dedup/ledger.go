// Package dedup remembers which platform items the bot already handled.
package dedup

import (
	"bytes"
	"encoding/json"
	"sync"

	"jokebot/internal/storage"
)

// Key is the storage key of the ledger document.
const Key = "processed"

// Kind selects one of the ledger's logs.
type Kind string

const (
	Mentions Kind = "mentions"
	Comments Kind = "comments"
)

// Ledger holds two append-ordered id logs.
//
// Only the comments log is capped: once it grows past max, the oldest
// entries are dropped so the newest max-max/2 remain. Append and truncation
// happen under one lock, so readers never see an intermediate length.
type Ledger struct {
	max    int
	marker storage.DirtyMarker

	mu    sync.RWMutex
	logs  map[Kind][]string
	index map[Kind]map[string]int // id -> occurrences in the log
}

type ledgerDoc struct {
	Mentions []string `json:"mentions"`
	Comments []string `json:"comments"`
}

func New(maxComments int, marker storage.DirtyMarker) *Ledger {
	if maxComments < 2 {
		maxComments = 2
	}
	l := &Ledger{max: maxComments, marker: marker}
	l.reset(nil, nil)
	return l
}

func (l *Ledger) reset(mentions, comments []string) {
	l.logs = map[Kind][]string{
		Mentions: append([]string{}, mentions...),
		Comments: append([]string{}, comments...),
	}
	l.index = map[Kind]map[string]int{}
	for k, ids := range l.logs {
		idx := make(map[string]int, len(ids))
		for _, id := range ids {
			idx[id]++
		}
		l.index[k] = idx
	}
}

// Seen reports whether id is in the kind's log.
func (l *Ledger) Seen(kind Kind, id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.index[kind][id] > 0
}

// Record appends id to the kind's log and marks the ledger dirty.
func (l *Ledger) Record(kind Kind, id string) {
	l.mu.Lock()
	ids := append(l.logs[kind], id)
	idx := l.index[kind]
	if idx == nil {
		idx = map[string]int{}
		l.index[kind] = idx
	}
	idx[id]++

	if kind == Comments && len(ids) > l.max {
		keep := l.max - l.max/2
		drop := len(ids) - keep
		for _, old := range ids[:drop] {
			if idx[old]--; idx[old] <= 0 {
				delete(idx, old)
			}
		}
		ids = append([]string(nil), ids[drop:]...)
	}
	l.logs[kind] = ids
	l.mu.Unlock()

	if l.marker != nil {
		l.marker.MarkDirty(Key)
	}
}

// Len returns the length of the kind's log.
func (l *Ledger) Len(kind Kind) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.logs[kind])
}

// IDs returns a copy of the kind's log, oldest first.
func (l *Ledger) IDs(kind Kind) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.logs[kind]...)
}

func (l *Ledger) Key() string { return Key }

func (l *Ledger) MarshalDocument() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return json.Marshal(ledgerDoc{Mentions: l.logs[Mentions], Comments: l.logs[Comments]})
}

// UnmarshalDocument accepts the two-log object, or a bare array which is
// read as the comments log.
func (l *Ledger) UnmarshalDocument(data []byte) error {
	var doc ledgerDoc
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &doc.Comments); err != nil {
			return err
		}
	} else if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if len(doc.Comments) > l.max {
		doc.Comments = doc.Comments[len(doc.Comments)-(l.max-l.max/2):]
	}
	l.mu.Lock()
	l.reset(doc.Mentions, doc.Comments)
	l.mu.Unlock()
	return nil
}

func (l *Ledger) Reset() {
	l.mu.Lock()
	l.reset(nil, nil)
	l.mu.Unlock()
}
