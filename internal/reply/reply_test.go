package reply

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jokebot/internal/dedup"
	"jokebot/internal/jokes"
	"jokebot/internal/platform"
	logx "jokebot/pkg/logx"
)

type fakeReplier struct {
	mu    sync.Mutex
	sent  map[string]string
	fail  map[string]error
	calls int
}

func (r *fakeReplier) Reply(_ context.Context, to platform.Target, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err := r.fail[to.ID]; err != nil {
		return "", err
	}
	if r.sent == nil {
		r.sent = map[string]string{}
	}
	r.sent[to.ID] = text
	return "r_" + to.ID, nil
}

type fakeMentions struct {
	items []platform.Target
	err   error
}

func (m *fakeMentions) Mentions(context.Context) ([]platform.Target, error) { return m.items, m.err }

func mustFilter(t *testing.T, ignored, phrases, patterns []string) *Filter {
	t.Helper()
	f, err := NewFilter(ignored, phrases, patterns)
	require.NoError(t, err)
	return f
}

func TestFilter(t *testing.T) {
	f := mustFilter(t, []string{"grumpy", "u/Bot"}, []string{"Joke"}, []string{`\bpun(s)?\b`})

	assert.True(t, f.Triggered("tell me a JOKE please"))
	assert.True(t, f.Triggered("got any Puns?"))
	assert.False(t, f.Triggered("nothing to see"))

	assert.True(t, f.Ignored("Grumpy"))
	assert.True(t, f.Ignored("bot"))
	assert.False(t, f.Ignored("alice"))

	assert.True(t, f.Match(platform.Target{Author: "alice", Body: "joke time"}))
	assert.False(t, f.Match(platform.Target{Author: "grumpy", Body: "joke time"}))
}

func TestNewFilterBadPattern(t *testing.T) {
	_, err := NewFilter(nil, nil, []string{"("})
	require.Error(t, err)
}

func TestScanCommentFiltersAndRecordsOnce(t *testing.T) {
	ledger := dedup.New(100, nil)
	q := NewQueue()
	s := NewScanner(ledger, q, mustFilter(t, []string{"grumpy"}, []string{"joke"}, nil), nil, logx.Nop())

	in := platform.Target{ID: "c1", Author: "alice", Body: "tell me a joke please"}
	assert.True(t, s.ScanComment(in))
	assert.False(t, s.ScanComment(in), "second sighting is skipped")
	assert.Equal(t, 1, q.Len())

	out := platform.Target{ID: "c2", Author: "grumpy", Body: "tell me a joke please"}
	assert.False(t, s.ScanComment(out))
	assert.False(t, s.ScanComment(out))
	assert.Equal(t, 1, q.Len())

	assert.Equal(t, []string{"c1", "c2"}, ledger.IDs(dedup.Comments))
}

func TestScanMentions(t *testing.T) {
	ledger := dedup.New(100, nil)
	q := NewQueue()
	src := &fakeMentions{items: []platform.Target{
		{ID: "m1", Author: "alice", Body: "hey bot"},
		{ID: "m2", Author: "grumpy", Body: "joke"},
		{ID: "m3", Author: "bob", Body: "a joke pls"},
	}}
	s := NewScanner(ledger, q, mustFilter(t, []string{"grumpy"}, []string{"joke"}, nil), src, logx.Nop())

	require.NoError(t, s.ScanMentions(context.Background()))
	got := q.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m3", got[1].ID)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ledger.IDs(dedup.Mentions))
	assert.Empty(t, ledger.IDs(dedup.Comments))

	require.NoError(t, s.ScanMentions(context.Background()))
	assert.Zero(t, q.Len(), "mentions are answered once")

	s.RequireTrigger = true
	src.items = append(src.items, platform.Target{ID: "m4", Author: "carol", Body: "hello"})
	require.NoError(t, s.ScanMentions(context.Background()))
	assert.Zero(t, q.Len())
}

func TestScanMentionsError(t *testing.T) {
	s := NewScanner(dedup.New(10, nil), NewQueue(), mustFilter(t, nil, []string{"x"}, nil), &fakeMentions{err: errors.New("down")}, logx.Nop())
	require.Error(t, s.ScanMentions(context.Background()))
}

func TestQueueConcurrentPush(t *testing.T) {
	const producers, each = 8, 250
	q := NewQueue()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Push(platform.Target{ID: fmt.Sprintf("%d-%d", p, i)})
			}
		}()
	}
	wg.Wait()

	items := q.Drain()
	require.Len(t, items, producers*each)
	seen := map[string]bool{}
	last := map[int]int{}
	for _, it := range items {
		require.False(t, seen[it.ID], "duplicate %s", it.ID)
		seen[it.ID] = true
		var p, i int
		_, err := fmt.Sscanf(it.ID, "%d-%d", &p, &i)
		require.NoError(t, err)
		if prev, ok := last[p]; ok {
			require.Greater(t, i, prev, "per-producer order")
		}
		last[p] = i
	}
	assert.Zero(t, q.Len())
}

func TestQueueRequeueAtHead(t *testing.T) {
	q := NewQueue()
	q.Push(platform.Target{ID: "c"})
	q.Requeue([]platform.Target{{ID: "a"}, {ID: "b"}})
	got := q.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func newDispatcher(t *testing.T, cat *jokes.Catalog) (*Dispatcher, *Queue, *dedup.Ledger) {
	t.Helper()
	tmpl, err := ParseTemplate([]string{"Hi {{.Author}}!", "{{.Joke}}"})
	require.NoError(t, err)
	q := NewQueue()
	ledger := dedup.New(100, nil)
	return NewDispatcher(q, cat, tmpl, ledger, logx.Nop()), q, ledger
}

func TestFlushRepliesInOrderAndRecordsIDs(t *testing.T) {
	cat := jokes.NewCatalog(nil)
	cat.Upsert("C1", "knock knock")
	d, q, ledger := newDispatcher(t, cat)

	r := &fakeReplier{}
	q.Push(platform.Target{ID: "a", Author: "alice", Replier: r})
	q.Push(platform.Target{ID: "b", Author: "bob", Replier: r})

	require.NoError(t, d.Flush(context.Background()))
	assert.Equal(t, "Hi alice!\nknock knock", r.sent["a"])
	assert.Equal(t, "Hi bob!\nknock knock", r.sent["b"])
	assert.Equal(t, []string{"r_a", "r_b"}, ledger.IDs(dedup.Comments))
	assert.Zero(t, q.Len())

	replied, failed := d.Stats()
	assert.Equal(t, uint64(2), replied)
	assert.Zero(t, failed)
}

func TestFlushFailureIsSurfacedNotRequeued(t *testing.T) {
	cat := jokes.NewCatalog(nil)
	cat.Upsert("C1", "joke")
	d, q, ledger := newDispatcher(t, cat)

	boom := errors.New("rate limited")
	r := &fakeReplier{fail: map[string]error{"a": boom}}
	q.Push(platform.Target{ID: "a", Author: "alice", Replier: r})
	q.Push(platform.Target{ID: "b", Author: "bob", Replier: r})

	err := d.Flush(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Zero(t, q.Len())
	assert.Equal(t, 2, r.calls)
	assert.Equal(t, []string{"r_b"}, ledger.IDs(dedup.Comments))

	require.NoError(t, d.Flush(context.Background()))
	assert.Equal(t, 2, r.calls)
}

func TestFlushEmptyCatalogRequeues(t *testing.T) {
	cat := jokes.NewCatalog(nil)
	d, q, _ := newDispatcher(t, cat)

	r := &fakeReplier{}
	q.Push(platform.Target{ID: "a", Replier: r})
	q.Push(platform.Target{ID: "b", Replier: r})

	err := d.Flush(context.Background())
	require.ErrorIs(t, err, jokes.ErrEmptyCatalog)
	assert.Zero(t, r.calls)
	assert.Equal(t, 2, q.Len())

	cat.Upsert("C1", "finally")
	require.NoError(t, d.Flush(context.Background()))
	assert.Equal(t, 2, r.calls)
}

func TestFlushDryRun(t *testing.T) {
	cat := jokes.NewCatalog(nil)
	cat.Upsert("C1", "joke")
	d, q, ledger := newDispatcher(t, cat)
	d.DryRun = true

	r := &fakeReplier{}
	q.Push(platform.Target{ID: "a", Replier: r})
	require.NoError(t, d.Flush(context.Background()))
	assert.Zero(t, r.calls)
	assert.Zero(t, q.Len())
	assert.Empty(t, ledger.IDs(dedup.Comments))
}

func TestTemplateFields(t *testing.T) {
	tmpl, err := ParseTemplate([]string{"{{.ID}} {{.Author}} {{.Permalink}}", "> {{.Body}}", "{{.Joke}}"})
	require.NoError(t, err)
	got, err := tmpl.Render("ha", platform.Target{ID: "x1", Author: "al", Permalink: "/r/a/1", Body: "joke?"})
	require.NoError(t, err)
	assert.Equal(t, "x1 al /r/a/1\n> joke?\nha", got)

	_, err = ParseTemplate([]string{"{{.Joke"})
	require.Error(t, err)
}
