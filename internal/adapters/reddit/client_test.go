package reddit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jokebot/internal/platform"
	logx "jokebot/pkg/logx"
)

type fakeReddit struct {
	t *testing.T

	tokenCalls atomic.Int32
	rejectNext atomic.Bool

	mu       sync.Mutex
	comments []string // listing pages returned in order
	page     int
	replies  []string
}

func (f *fakeReddit) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(f.t, ok)
		assert.Equal(f.t, "cid", user)
		assert.Equal(f.t, "secret", pass)
		assert.NoError(f.t, r.ParseForm())
		assert.Equal(f.t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(f.t, "jokebot", r.PostForm.Get("username"))
		n := f.tokenCalls.Add(1)
		fmt.Fprintf(w, `{"access_token":"tok%d","token_type":"bearer","expires_in":3600}`, n)
	})
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(f.t, "test-agent", r.Header.Get("User-Agent"))
			if f.rejectNext.CompareAndSwap(true, false) || !strings.HasPrefix(r.Header.Get("Authorization"), "bearer tok") {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/message/mentions", auth(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"kind":"Listing","data":{"children":[
			{"kind":"t1","data":{"id":"m2","name":"t1_m2","author":"bob","body":"u/jokebot joke","context":"/r/x/comments/p/t/m2/?context=3","subreddit":"x"}},
			{"kind":"t4","data":{"id":"pm","name":"t4_pm","author":"carol","body":"dm"}}
		]}}`)
	}))
	mux.HandleFunc("/r/a+b/comments", auth(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.page >= len(f.comments) {
			io.WriteString(w, `{"kind":"Listing","data":{"children":[]}}`)
			return
		}
		io.WriteString(w, f.comments[f.page])
		f.page++
	}))
	mux.HandleFunc("/api/comment", auth(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(f.t, r.ParseForm())
		f.mu.Lock()
		f.replies = append(f.replies, r.PostForm.Get("thing_id")+"|"+r.PostForm.Get("text"))
		f.mu.Unlock()
		if r.PostForm.Get("thing_id") == "t1_locked" {
			io.WriteString(w, `{"json":{"errors":[["THREAD_LOCKED","that thread is locked","parent"]]}}`)
			return
		}
		io.WriteString(w, `{"json":{"errors":[],"data":{"things":[{"kind":"t1","data":{"id":"new1","name":"t1_new1"}}]}}}`)
	}))
	return mux
}

func newTestClient(t *testing.T, f *fakeReddit) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c, err := New(Config{
		APIURL:       srv.URL,
		AuthURL:      srv.URL + "/api/v1/access_token",
		UserAgent:    "test-agent",
		Username:     "jokebot",
		Password:     "pw",
		ClientID:     "cid",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
	}, logx.Nop())
	require.NoError(t, err)
	return c
}

func listingOf(ids ...string) string {
	var parts []string
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf(`{"kind":"t1","data":{"id":%q,"name":"t1_%s","author":"u%s","body":"b%s","permalink":"/r/a/comments/p/t/%s/"}}`, id, id, id, id, id))
	}
	return `{"kind":"Listing","data":{"children":[` + strings.Join(parts, ",") + `]}}`
}

func TestNewRequiresUserAgent(t *testing.T) {
	_, err := New(Config{}, logx.Nop())
	require.Error(t, err)
}

func TestMentions(t *testing.T) {
	f := &fakeReddit{t: t}
	c := newTestClient(t, f)

	got, err := c.Mentions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	m := got[0]
	assert.Equal(t, platform.KindMention, m.Kind)
	assert.Equal(t, "m2", m.ID)
	assert.Equal(t, "t1_m2", m.Fullname)
	assert.Equal(t, "bob", m.Author)
	assert.Equal(t, WebURL+"/r/x/comments/p/t/m2/?context=3", m.Permalink)
	assert.Same(t, c, m.Replier)

	_, err = c.Mentions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load(), "token is cached")
}

func TestUnauthorizedRefreshesToken(t *testing.T) {
	f := &fakeReddit{t: t}
	c := newTestClient(t, f)
	_, err := c.Mentions(context.Background())
	require.NoError(t, err)

	f.rejectNext.Store(true)
	_, err = c.Mentions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestTokenExpiry(t *testing.T) {
	f := &fakeReddit{t: t}
	c := newTestClient(t, f)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.Mentions(context.Background())
	require.NoError(t, err)
	now = now.Add(59 * time.Minute)
	_, err = c.Mentions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestReply(t *testing.T) {
	f := &fakeReddit{t: t}
	c := newTestClient(t, f)

	id, err := platform.Target{ID: "abc", Replier: c}.Reply(context.Background(), "ha")
	require.NoError(t, err)
	assert.Equal(t, "new1", id)

	_, err = c.Reply(context.Background(), platform.Target{ID: "locked", Fullname: "t1_locked"}, "ha")
	require.ErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "THREAD_LOCKED")

	assert.Equal(t, []string{"t1_abc|ha", "t1_locked|ha"}, f.replies)
}

func TestStatusAndDecodeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			io.WriteString(w, `{"access_token":"tok","expires_in":3600}`)
		case "/message/mentions":
			io.WriteString(w, `<html>`)
		default:
			http.Error(w, "nope", http.StatusForbidden)
		}
	}))
	t.Cleanup(srv.Close)
	c, err := New(Config{APIURL: srv.URL, AuthURL: srv.URL + "/token", UserAgent: "ua"}, logx.Nop())
	require.NoError(t, err)

	_, err = c.Mentions(context.Background())
	require.ErrorIs(t, err, ErrDecode)

	_, err = c.NewComments(context.Background(), []string{"a"}, 10)
	require.ErrorIs(t, err, ErrStatus)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
}

func TestStreamYieldsOldestFirstWithoutDuplicates(t *testing.T) {
	f := &fakeReddit{t: t, comments: []string{
		listingOf("c3", "c2", "c1"),
		listingOf("c5", "c4", "c3"),
	}}
	c := newTestClient(t, f)
	s := c.Stream([]string{"a", "b"}, 10*time.Millisecond)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ids []string
	for len(ids) < 5 {
		it, err := s.Next(ctx)
		require.NoError(t, err)
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"c1", "c2", "c3", "c4", "c5"}, ids)
}

func TestStreamCloseAndCancel(t *testing.T) {
	f := &fakeReddit{t: t}
	c := newTestClient(t, f)

	s := c.Stream([]string{"a", "b"}, time.Hour)
	require.NoError(t, s.Close())
	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	s2 := c.Stream([]string{"a", "b"}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s2.Next(ctx)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not return after cancel")
	}
}
