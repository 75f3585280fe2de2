package reply

import (
	"context"
	"fmt"

	"jokebot/internal/dedup"
	"jokebot/internal/platform"
	logx "jokebot/pkg/logx"
)

// Scanner feeds the queue from the comment stream and the mention inbox.
type Scanner struct {
	ledger   *dedup.Ledger
	queue    *Queue
	filter   *Filter
	mentions platform.MentionSource

	// RequireTrigger makes mentions pass the phrase/pattern check too.
	RequireTrigger bool

	log logx.Logger
}

func NewScanner(ledger *dedup.Ledger, queue *Queue, filter *Filter, mentions platform.MentionSource, log logx.Logger) *Scanner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scanner{ledger: ledger, queue: queue, filter: filter, mentions: mentions, log: log}
}

// ScanComment records a streamed comment and queues it when it matches.
// Already-seen comments are ignored. It reports whether the item was queued.
func (s *Scanner) ScanComment(t platform.Target) bool {
	if s.ledger.Seen(dedup.Comments, t.ID) {
		return false
	}
	s.ledger.Record(dedup.Comments, t.ID)
	if !s.filter.Match(t) {
		return false
	}
	s.queue.Push(t)
	s.log.Debug("comment queued", logx.String("id", t.ID), logx.String("author", t.Author))
	return true
}

// ScanMentions polls the inbox once and queues every new mention whose
// author is not ignored.
func (s *Scanner) ScanMentions(ctx context.Context) error {
	if s.mentions == nil {
		return nil
	}
	items, err := s.mentions.Mentions(ctx)
	if err != nil {
		return fmt.Errorf("fetch mentions: %w", err)
	}
	queued := 0
	for _, t := range items {
		if s.ledger.Seen(dedup.Mentions, t.ID) {
			continue
		}
		s.ledger.Record(dedup.Mentions, t.ID)
		if s.filter.Ignored(t.Author) {
			continue
		}
		if s.RequireTrigger && !s.filter.Triggered(t.Body) {
			continue
		}
		s.queue.Push(t)
		queued++
	}
	if queued > 0 {
		s.log.Info("mentions queued", logx.Int("count", queued))
	}
	return nil
}
