package jokes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"jokebot/internal/config"
	"jokebot/internal/storage"
	"jokebot/internal/trello"
	logx "jokebot/pkg/logx"
)

// BoardAPI is the subset of the Trello client the syncer uses.
type BoardAPI interface {
	LastActivity(ctx context.Context, boardID string) (string, error)
	BoardCards(ctx context.Context, boardID string) ([]trello.Card, error)
	BoardLists(ctx context.Context, boardID string) ([]trello.List, error)
	ListCards(ctx context.Context, listID string) ([]trello.Card, error)
}

// maxParallelFetches bounds concurrent board API calls in one pass.
const maxParallelFetches = 4

// Syncer refreshes the catalog when a board shows new activity.
type Syncer struct {
	api      BoardAPI
	boards   []config.TrelloBoard
	snapshot *storage.StringMap
	catalog  *Catalog
	log      logx.Logger
}

func NewSyncer(api BoardAPI, boards []config.TrelloBoard, snapshot *storage.StringMap, catalog *Catalog, log logx.Logger) *Syncer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Syncer{api: api, boards: boards, snapshot: snapshot, catalog: catalog, log: log}
}

// NewSnapshot returns the board-activity document.
func NewSnapshot(marker storage.DirtyMarker) *storage.StringMap {
	return storage.NewStringMap(SnapshotKey, marker)
}

// Run is the periodic sync task.
func (s *Syncer) Run(ctx context.Context) error {
	// A change already written to the snapshot must be synced in the same
	// pass, even when another board failed its check.
	changed, checkErr := s.BoardChanged(ctx)
	if !changed {
		if checkErr == nil {
			s.log.Debug("boards unchanged")
		}
		return checkErr
	}
	s.log.Info("board change detected")
	n, err := s.SyncJokes(ctx)
	if err != nil {
		return errors.Join(checkErr, err)
	}
	if n > 0 {
		s.log.Info("jokes updated", logx.Int("changed", n), logx.Int("total", s.catalog.Len()))
	}
	return checkErr
}

// BoardChanged compares every board's last activity with the snapshot.
//
// Every configured board is checked. Each first-seen or different timestamp
// is written to the snapshot, which is marked dirty whenever anything
// changed, independent of whether a later catalog sync succeeds.
func (s *Syncer) BoardChanged(ctx context.Context) (bool, error) {
	stamps := make([]string, len(s.boards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, b := range s.boards {
		g.Go(func() error {
			ts, err := s.api.LastActivity(gctx, b.ID)
			if err != nil {
				return fmt.Errorf("board %s: last activity: %w", b.ID, err)
			}
			stamps[i] = ts
			return nil
		})
	}
	err := g.Wait()

	changed := false
	for i, b := range s.boards {
		if stamps[i] == "" {
			continue
		}
		prev, seen := s.snapshot.Get(b.ID)
		if seen && prev == stamps[i] {
			continue
		}
		s.snapshot.Set(b.ID, stamps[i])
		s.log.Debug("board activity changed", logx.String("board", b.ID), logx.String("prev", prev), logx.String("now", stamps[i]))
		changed = true
	}
	if changed {
		s.snapshot.MarkDirty()
	}
	return changed, err
}

// SyncJokes fetches the cards of every configured board and upserts them.
// It returns how many catalog entries were inserted or changed.
func (s *Syncer) SyncJokes(ctx context.Context) (int, error) {
	cards, err := s.fetchCards(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, c := range cards {
		text := strings.TrimSpace(c.Desc)
		if text == "" {
			continue
		}
		if s.catalog.Upsert(c.ID, text) {
			changed++
		}
	}
	if changed > 0 {
		s.catalog.MarkDirty()
	}
	return changed, nil
}

// fetchCards returns cards in board order, and in list order within a board.
func (s *Syncer) fetchCards(ctx context.Context) ([]trello.Card, error) {
	perBoard := make([][]trello.Card, len(s.boards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, b := range s.boards {
		g.Go(func() error {
			cards, err := s.boardCards(gctx, b)
			if err != nil {
				return fmt.Errorf("board %s: %w", b.ID, err)
			}
			perBoard[i] = cards
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []trello.Card
	for _, cards := range perBoard {
		out = append(out, cards...)
	}
	return out, nil
}

func (s *Syncer) boardCards(ctx context.Context, b config.TrelloBoard) ([]trello.Card, error) {
	if b.AllLists() {
		return s.api.BoardCards(ctx, b.ID)
	}
	lists, err := s.api.BoardLists(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	var out []trello.Card
	for _, l := range lists {
		if !strings.EqualFold(strings.TrimSpace(l.Name), strings.TrimSpace(b.List)) {
			continue
		}
		cards, err := s.api.ListCards(ctx, l.ID)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", l.ID, err)
		}
		out = append(out, cards...)
	}
	if len(out) == 0 {
		s.log.Warn("no cards in target list", logx.String("board", b.ID), logx.String("list", b.List))
	}
	return out, nil
}
