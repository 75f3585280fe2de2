// Package trello is a small read-only client for the Trello REST API.
package trello

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "jokebot/pkg/logx"
)

const DefaultBaseURL = "https://api.trello.com/1"

const maxBodyBytes = 8 << 20

type Config struct {
	BaseURL string

	AuthRequired bool
	Key          string
	Token        string

	// Timeout bounds each request. 0 means 15s.
	Timeout time.Duration
	// RatePerSec limits outgoing requests. <=0 disables limiting.
	RatePerSec int

	HTTPClient *http.Client
}

type Card struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Desc   string `json:"desc"`
	IDList string `json:"idList"`
}

type List struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
}

type boardActivity struct {
	ID               string `json:"id"`
	DateLastActivity string `json:"dateLastActivity"`
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: hc, limiter: lim, log: log}
}

// LastActivity returns the board's dateLastActivity timestamp as sent by the API.
func (c *Client) LastActivity(ctx context.Context, boardID string) (string, error) {
	var b boardActivity
	q := url.Values{"fields": {"dateLastActivity"}}
	if err := c.getJSON(ctx, "board.last_activity", "/boards/"+url.PathEscape(boardID), q, &b); err != nil {
		return "", err
	}
	return b.DateLastActivity, nil
}

func (c *Client) BoardCards(ctx context.Context, boardID string) ([]Card, error) {
	var out []Card
	err := c.getJSON(ctx, "board.cards", "/boards/"+url.PathEscape(boardID)+"/cards", nil, &out)
	return out, err
}

func (c *Client) BoardLists(ctx context.Context, boardID string) ([]List, error) {
	var out []List
	err := c.getJSON(ctx, "board.lists", "/boards/"+url.PathEscape(boardID)+"/lists", nil, &out)
	return out, err
}

func (c *Client) ListCards(ctx context.Context, listID string) ([]Card, error) {
	var out []Card
	err := c.getJSON(ctx, "list.cards", "/lists/"+url.PathEscape(listID)+"/cards", nil, &out)
	return out, err
}

// getJSON is the single call helper every endpoint goes through.
// Non-2xx answers become *StatusError, undecodable bodies *DecodeError.
func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if q == nil {
		q = url.Values{}
	}
	redacted := c.cfg.BaseURL + path
	if len(q) > 0 {
		redacted += "?" + q.Encode()
	}
	if c.cfg.AuthRequired {
		q.Set("key", c.cfg.Key)
		q.Set("token", c.cfg.Token)
	}
	u := c.cfg.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error embeds the full URL; strip it so credentials stay out of logs.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redacted
		}
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Op: op, URL: redacted, StatusCode: resp.StatusCode, Body: truncate(string(body), 300)}
		c.log.Error("trello request failed", logx.String("op", op), logx.Int("status", resp.StatusCode), logx.String("body", se.Body))
		return se
	}
	if err := json.Unmarshal(body, out); err != nil {
		de := &DecodeError{Op: op, URL: redacted, Err: err}
		c.log.Error("trello response malformed", logx.String("op", op), logx.Err(err))
		return de
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
