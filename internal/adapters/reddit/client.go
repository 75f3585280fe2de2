// Package reddit is the Reddit collaborator: an OAuth2 "script" app client
// that polls comments and mentions and posts replies.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"jokebot/internal/platform"
	logx "jokebot/pkg/logx"
)

const (
	DefaultAPIURL  = "https://oauth.reddit.com"
	DefaultAuthURL = "https://www.reddit.com/api/v1/access_token"
	WebURL         = "https://www.reddit.com"

	maxBodyBytes = 8 << 20
	// tokens are refreshed this long before they expire
	tokenSlack = time.Minute
)

type Config struct {
	APIURL  string
	AuthURL string

	UserAgent    string
	Username     string
	Password     string
	ClientID     string
	ClientSecret string

	// Timeout bounds each request. 0 means 15s.
	Timeout time.Duration
	// RequestsPerMinute limits outgoing API calls. <=0 disables limiting.
	RequestsPerMinute int

	HTTPClient *http.Client
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	tokMu   sync.Mutex
	token   string
	expires time.Time

	now func() time.Time
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, errors.New("reddit: user agent is empty")
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	var lim *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: hc, limiter: lim, log: log, now: time.Now}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// accessToken returns a cached bearer token, fetching a new one with the
// password grant when none is cached or it is about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokMu.Lock()
	defer c.tokMu.Unlock()
	if c.token != "" && c.now().Add(tokenSlack).Before(c.expires) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tr tokenResponse
	if err := c.send(req, "oauth.token", &tr); err != nil {
		return "", err
	}
	if tr.Error != "" {
		return "", &APIError{Op: "oauth.token", Messages: []string{tr.Error}}
	}
	if tr.AccessToken == "" {
		return "", &DecodeError{Op: "oauth.token", Err: errors.New("empty access_token")}
	}
	c.token = tr.AccessToken
	c.expires = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	c.log.Debug("reddit token refreshed", logx.Time("expires", c.expires))
	return c.token, nil
}

func (c *Client) dropToken() {
	c.tokMu.Lock()
	c.token = ""
	c.tokMu.Unlock()
}

// call performs an authenticated API request. A 401 drops the cached token
// and retries once.
func (c *Client) call(ctx context.Context, op, method, path string, q url.Values, form url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		tok, err := c.accessToken(ctx)
		if err != nil {
			return err
		}
		u := c.cfg.APIURL + path
		if len(q) > 0 {
			u += "?" + q.Encode()
		}
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "bearer "+tok)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		err = c.send(req, op, out)
		var se *StatusError
		if attempt == 0 && errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
			c.dropToken()
			continue
		}
		return err
	}
}

func (c *Client) send(req *http.Request, op string, out any) error {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body), 300)}
		c.log.Error("reddit request failed", logx.String("op", op), logx.Int("status", resp.StatusCode), logx.String("body", se.Body))
		return se
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.log.Error("reddit response malformed", logx.String("op", op), logx.Err(err))
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}

type listing struct {
	Data struct {
		Children []thing `json:"children"`
		After    string  `json:"after"`
	} `json:"data"`
}

type thing struct {
	Kind string    `json:"kind"`
	Data thingData `json:"data"`
}

type thingData struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	Permalink string `json:"permalink"`
	Context   string `json:"context"`
	Subreddit string `json:"subreddit"`
}

func (c *Client) target(kind platform.Kind, d thingData) platform.Target {
	link := d.Permalink
	if link == "" {
		link = d.Context
	}
	if strings.HasPrefix(link, "/") {
		link = WebURL + link
	}
	name := d.Name
	if name == "" && d.ID != "" {
		name = "t1_" + d.ID
	}
	return platform.Target{
		Kind:      kind,
		ID:        d.ID,
		Fullname:  name,
		Author:    d.Author,
		Body:      d.Body,
		Permalink: link,
		Subreddit: d.Subreddit,
		Replier:   c,
	}
}

// Mentions returns the current username mentions, newest first.
func (c *Client) Mentions(ctx context.Context) ([]platform.Target, error) {
	var l listing
	q := url.Values{"limit": {"25"}, "raw_json": {"1"}}
	if err := c.call(ctx, "message.mentions", http.MethodGet, "/message/mentions", q, nil, &l); err != nil {
		return nil, err
	}
	out := make([]platform.Target, 0, len(l.Data.Children))
	for _, t := range l.Data.Children {
		if t.Kind != "t1" || t.Data.ID == "" {
			continue
		}
		out = append(out, c.target(platform.KindMention, t.Data))
	}
	return out, nil
}

// NewComments returns the latest comments across subreddits, newest first.
func (c *Client) NewComments(ctx context.Context, subreddits []string, limit int) ([]platform.Target, error) {
	if len(subreddits) == 0 {
		return nil, errors.New("reddit: no subreddits")
	}
	var l listing
	q := url.Values{"limit": {fmt.Sprint(limit)}, "raw_json": {"1"}}
	path := "/r/" + strings.Join(subreddits, "+") + "/comments"
	if err := c.call(ctx, "subreddit.comments", http.MethodGet, path, q, nil, &l); err != nil {
		return nil, err
	}
	out := make([]platform.Target, 0, len(l.Data.Children))
	for _, t := range l.Data.Children {
		if t.Kind != "t1" || t.Data.ID == "" {
			continue
		}
		out = append(out, c.target(platform.KindComment, t.Data))
	}
	return out, nil
}

type commentResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Things []thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// Reply posts text under the target and returns the new comment id.
func (c *Client) Reply(ctx context.Context, to platform.Target, text string) (string, error) {
	parent := to.Fullname
	if parent == "" {
		parent = "t1_" + to.ID
	}
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {parent},
		"text":     {text},
	}
	var cr commentResponse
	if err := c.call(ctx, "comment.reply", http.MethodPost, "/api/comment", nil, form, &cr); err != nil {
		return "", err
	}
	if len(cr.JSON.Errors) > 0 {
		msgs := make([]string, 0, len(cr.JSON.Errors))
		for _, e := range cr.JSON.Errors {
			parts := make([]string, 0, len(e))
			for _, p := range e {
				if s, ok := p.(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
			msgs = append(msgs, strings.Join(parts, ": "))
		}
		return "", &APIError{Op: "comment.reply", Messages: msgs}
	}
	if len(cr.JSON.Data.Things) == 0 {
		return "", &DecodeError{Op: "comment.reply", Err: errors.New("no comment in response")}
	}
	return cr.JSON.Data.Things[0].Data.ID, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
