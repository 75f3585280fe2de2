// Package platform describes the discussion-platform collaborators the bot
// consumes: a live comment stream, a mention inbox, and reply posting.
package platform

import (
	"context"
	"errors"
)

type Kind string

const (
	KindComment Kind = "comment"
	KindMention Kind = "mention"
)

// ErrNoReplier is returned by Target.Reply when the target was built
// without a way to answer it.
var ErrNoReplier = errors.New("platform: target has no replier")

// Replier posts text as a reply to a target and returns the new item's id.
type Replier interface {
	Reply(ctx context.Context, to Target, text string) (string, error)
}

// Target is a comment or mention the bot may answer.
type Target struct {
	Kind      Kind
	ID        string
	Fullname  string // platform-qualified id, e.g. "t1_abc123"
	Author    string
	Body      string
	Permalink string
	Subreddit string

	Replier Replier
}

func (t Target) Reply(ctx context.Context, text string) (string, error) {
	if t.Replier == nil {
		return "", ErrNoReplier
	}
	return t.Replier.Reply(ctx, t, text)
}

// Stream yields new comments one at a time. Next blocks until an item is
// available, the context is done, or the stream ends with io.EOF.
type Stream interface {
	Next(ctx context.Context) (Target, error)
	Close() error
}

// MentionSource returns the current batch of unread mentions.
type MentionSource interface {
	Mentions(ctx context.Context) ([]Target, error)
}
