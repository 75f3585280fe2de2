package reply

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"jokebot/internal/dedup"
	logx "jokebot/pkg/logx"
)

// JokeSource supplies a random joke per reply.
type JokeSource interface {
	Random() (string, error)
}

// Dispatcher drains the queue and posts one reply per item.
//
// Delivery is at-most-once: an item is never queued again after a reply
// was attempted for it.
type Dispatcher struct {
	queue  *Queue
	jokes  JokeSource
	tmpl   *Template
	ledger *dedup.Ledger

	// DryRun logs rendered replies instead of posting them.
	DryRun bool

	log logx.Logger

	replied atomic.Uint64
	failed  atomic.Uint64
}

func NewDispatcher(queue *Queue, jokes JokeSource, tmpl *Template, ledger *dedup.Ledger, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{queue: queue, jokes: jokes, tmpl: tmpl, ledger: ledger, log: log}
}

// Flush answers everything currently queued, oldest first.
//
// When no joke can be drawn, or ctx ends, the items not yet attempted go
// back to the head of the queue and the cause is returned. Reply failures
// are logged and joined into the returned error.
func (d *Dispatcher) Flush(ctx context.Context) error {
	items := d.queue.Drain()
	if len(items) == 0 {
		return nil
	}

	var errs []error
	for i, t := range items {
		if err := ctx.Err(); err != nil {
			d.queue.Requeue(items[i:])
			return errors.Join(append(errs, err)...)
		}
		joke, err := d.jokes.Random()
		if err != nil {
			d.queue.Requeue(items[i:])
			d.log.Warn("no joke available; replies postponed", logx.Int("pending", len(items)-i), logx.Err(err))
			return errors.Join(append(errs, err)...)
		}

		text, err := d.tmpl.Render(joke, t)
		if err != nil {
			d.failed.Add(1)
			errs = append(errs, fmt.Errorf("%s: %w", t.ID, err))
			continue
		}

		if d.DryRun {
			d.log.Info("dry run reply", logx.String("to", t.ID), logx.String("author", t.Author), logx.String("text", text))
			continue
		}

		id, err := t.Reply(ctx, text)
		if err != nil {
			d.failed.Add(1)
			d.log.Warn("reply failed", logx.String("to", t.ID), logx.String("author", t.Author), logx.Err(err))
			errs = append(errs, fmt.Errorf("reply to %s: %w", t.ID, err))
			continue
		}
		d.replied.Add(1)
		if id != "" {
			d.ledger.Record(dedup.Comments, id)
		}
		d.log.Info("replied", logx.String("to", t.ID), logx.String("author", t.Author), logx.String("reply_id", id))
	}
	return errors.Join(errs...)
}

// Stats returns the number of successful and failed replies so far.
func (d *Dispatcher) Stats() (replied, failed uint64) {
	return d.replied.Load(), d.failed.Load()
}
