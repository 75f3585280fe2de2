// Package jokes keeps the joke catalog in sync with the Trello boards.
package jokes

import (
	"errors"
	"math/rand/v2"
	"sync"

	"jokebot/internal/storage"
)

// Storage keys.
const (
	CatalogKey  = "jokes"
	SnapshotKey = "trello"
)

// ErrEmptyCatalog is returned by Random when no jokes are loaded yet.
var ErrEmptyCatalog = errors.New("jokes: catalog is empty")

// Catalog maps card ids to joke text. Entries are never deleted.
type Catalog struct {
	*storage.StringMap

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewCatalog(marker storage.DirtyMarker) *Catalog {
	return &Catalog{
		StringMap: storage.NewStringMap(CatalogKey, marker),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Upsert stores text under the card id and reports whether anything changed.
func (c *Catalog) Upsert(id, text string) bool { return c.Set(id, text) }

// Random returns a uniformly chosen joke.
func (c *Catalog) Random() (string, error) {
	jokes := c.Values()
	if len(jokes) == 0 {
		return "", ErrEmptyCatalog
	}
	c.rngMu.Lock()
	i := c.rng.IntN(len(jokes))
	c.rngMu.Unlock()
	return jokes[i], nil
}
