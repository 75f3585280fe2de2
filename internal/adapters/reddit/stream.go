package reddit

import (
	"context"
	"io"
	"sync"
	"time"

	"jokebot/internal/platform"
	logx "jokebot/pkg/logx"
)

const (
	streamPageSize = 100
	// ids remembered across polls to drop overlap between pages
	streamSeenCap = 1000
)

// Stream polls the comment listing of a set of subreddits and yields new
// comments oldest first. Poll failures are logged and retried on the next
// tick; only Close or the caller's context end the stream.
type Stream struct {
	c          *Client
	subreddits []string
	interval   time.Duration
	log        logx.Logger

	pending []platform.Target
	seen    map[string]struct{}
	order   []string
	polled  bool

	closeOnce sync.Once
	closed    chan struct{}
}

var _ platform.Stream = (*Stream)(nil)

func (c *Client) Stream(subreddits []string, interval time.Duration) *Stream {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Stream{
		c:          c,
		subreddits: append([]string(nil), subreddits...),
		interval:   interval,
		log:        c.log.With(logx.String("comp", "reddit.stream")),
		seen:       make(map[string]struct{}, streamSeenCap),
		closed:     make(chan struct{}),
	}
}

// Next blocks until a new comment arrives. It returns io.EOF after
// Close and ctx.Err() when ctx ends.
func (s *Stream) Next(ctx context.Context) (platform.Target, error) {
	for len(s.pending) == 0 {
		if s.polled {
			t := time.NewTimer(s.interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return platform.Target{}, ctx.Err()
			case <-s.closed:
				t.Stop()
				return platform.Target{}, io.EOF
			case <-t.C:
			}
		}
		select {
		case <-ctx.Done():
			return platform.Target{}, ctx.Err()
		case <-s.closed:
			return platform.Target{}, io.EOF
		default:
		}
		s.polled = true
		s.poll(ctx)
	}
	t := s.pending[0]
	s.pending = s.pending[1:]
	return t, nil
}

func (s *Stream) poll(ctx context.Context) {
	items, err := s.c.NewComments(ctx, s.subreddits, streamPageSize)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("comment poll failed", logx.Err(err))
		}
		return
	}
	// listing is newest first
	for i := len(items) - 1; i >= 0; i-- {
		id := items[i].ID
		if _, dup := s.seen[id]; dup {
			continue
		}
		s.remember(id)
		s.pending = append(s.pending, items[i])
	}
}

func (s *Stream) remember(id string) {
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > streamSeenCap {
		drop := len(s.order) - streamSeenCap/2
		for _, old := range s.order[:drop] {
			delete(s.seen, old)
		}
		s.order = append([]string(nil), s.order[drop:]...)
	}
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
