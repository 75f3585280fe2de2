// Package reply turns scanned comments and mentions into joke replies.
package reply

import (
	"sync"

	"jokebot/internal/platform"
)

// Queue is an unbounded FIFO of pending reply targets, safe for concurrent
// producers and a single draining consumer.
type Queue struct {
	mu    sync.Mutex
	items []platform.Target
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) Push(t platform.Target) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
}

// Drain removes and returns every queued item, oldest first.
func (q *Queue) Drain() []platform.Target {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Requeue puts items back at the head of the queue, keeping their order.
func (q *Queue) Requeue(items []platform.Target) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]platform.Target, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	q.items = append(merged, q.items...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
