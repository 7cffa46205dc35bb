package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rahul/contentpilot/internal/cache"
	"github.com/rahul/contentpilot/internal/store"
)

var (
	ErrUnauthorized = errors.New("analytics: unauthorized")
	ErrNotFound     = errors.New("analytics: not found")
)

// StatusError is a non-2xx answer that is neither an auth failure nor a
// missing resource.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Caches groups the caches used by the client. Dashboards aggregate stored
// usage and are kept for hours; health and alerts only briefly.
type Caches struct {
	Dashboards *cache.Cache[Dashboard]
	Health     *cache.Cache[SystemHealth]
	Alerts     *cache.Cache[[]UsageAlert]
}

func NewCaches(kv store.KV, opts ...cache.Option) (*Caches, error) {
	dashboards, err := cache.New[Dashboard](kv, "analytics", cache.DurablePolicy(), opts...)
	if err != nil {
		return nil, err
	}
	health, err := cache.New[SystemHealth](kv, "health", cache.SnapshotPolicy(), opts...)
	if err != nil {
		return nil, err
	}
	alerts, err := cache.New[[]UsageAlert](kv, "alerts", cache.SnapshotPolicy(), opts...)
	if err != nil {
		return nil, err
	}
	return &Caches{Dashboards: dashboards, Health: health, Alerts: alerts}, nil
}

// Client reads billing aggregates. Requests are retried with exponential
// backoff on transient failures only.
type Client struct {
	BaseURL    string
	Token      string
	HTTP       *http.Client
	NewBackoff func() backoff.BackOff
	Now        func() time.Time

	caches *Caches
}

type Option func(*Client)

func WithCaches(c *Caches) Option {
	return func(cl *Client) { cl.caches = c }
}

func WithBackoff(newBackoff func() backoff.BackOff) Option {
	return func(cl *Client) { cl.NewBackoff = newBackoff }
}

func WithHTTPClient(h *http.Client) Option {
	return func(cl *Client) { cl.HTTP = h }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		NewBackoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(200*time.Millisecond),
				backoff.WithMaxInterval(2*time.Second),
				backoff.WithMaxElapsedTime(10*time.Second),
			)
		},
		Now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dashboard returns the usage dashboard for the current period.
func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	load := func(ctx context.Context) (Dashboard, error) {
		var d Dashboard
		if err := c.get(ctx, "dashboard", "/api/billing/dashboard", &d); err != nil {
			return Dashboard{}, err
		}
		d.Normalize(c.Now())
		return d, nil
	}
	if c.caches == nil {
		return load(ctx)
	}
	return c.caches.Dashboards.GetOrLoad(ctx, c.lookup("dashboard"), load)
}

func (c *Client) SystemHealth(ctx context.Context) (SystemHealth, error) {
	load := func(ctx context.Context) (SystemHealth, error) {
		var h SystemHealth
		if err := c.get(ctx, "system health", "/api/billing/health", &h); err != nil {
			return SystemHealth{}, err
		}
		h.Normalize(c.Now())
		return h, nil
	}
	if c.caches == nil {
		return load(ctx)
	}
	return c.caches.Health.GetOrLoad(ctx, c.lookup("health"), load)
}

// UsageAlerts returns unread alerts first, newest first within each group.
func (c *Client) UsageAlerts(ctx context.Context) ([]UsageAlert, error) {
	load := func(ctx context.Context) ([]UsageAlert, error) {
		var resp struct {
			Alerts []UsageAlert `json:"alerts"`
		}
		if err := c.get(ctx, "usage alerts", "/api/billing/alerts", &resp); err != nil {
			return nil, err
		}
		now := c.Now()
		alerts := resp.Alerts
		if alerts == nil {
			alerts = []UsageAlert{}
		}
		for i := range alerts {
			alerts[i].Normalize(now)
		}
		sortAlerts(alerts)
		return alerts, nil
	}
	if c.caches == nil {
		return load(ctx)
	}
	return c.caches.Alerts.GetOrLoad(ctx, c.lookup("alerts"), load)
}

func (c *Client) lookup(endpoint string) cache.Lookup {
	return cache.Lookup{"endpoint": endpoint, "base": c.BaseURL}
}

func (c *Client) get(ctx context.Context, op, path string, out any) error {
	attempt := func() ([]byte, error) {
		body, err := c.fetch(ctx, op, path)
		if err == nil {
			return body, nil
		}
		var se *StatusError
		switch {
		case errors.As(err, &se) && !se.Temporary():
			return nil, backoff.Permanent(err)
		case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNotFound), ctx.Err() != nil:
			return nil, backoff.Permanent(err)
		}
		log.Printf("[analytics] retrying %s: %v", op, err)
		return nil, err
	}

	body, err := backoff.RetryWithData(attempt, backoff.WithContext(c.NewBackoff(), ctx))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, op, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
