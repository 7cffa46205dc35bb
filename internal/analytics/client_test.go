package analytics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rahul/contentpilot/internal/store"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quickRetry() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
}

func newTestClient(url string, opts ...Option) *Client {
	opts = append([]Option{WithBackoff(quickRetry)}, opts...)
	c := NewClient(url, "tok", opts...)
	c.Now = func() time.Time { return fixedNow }
	return c
}

func TestDashboard_DefaultsAreFilled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		w.Write([]byte(`{"summary":{"monthly_budget":50},"providers":[{"provider":"openai","calls":10,"tokens":1000,"cost":5},{"calls":2,"cost":20}]}`))
	}))
	defer srv.Close()

	d, err := newTestClient(srv.URL).Dashboard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if d.Period != DefaultPeriod || !d.GeneratedAt.Equal(fixedNow) {
		t.Errorf("period/timestamp not defaulted: %+v", d)
	}
	if d.Daily == nil {
		t.Error("daily series should be an empty slice")
	}
	if d.Providers[0].Provider != ProviderUnknown || d.Providers[0].Cost != 20 {
		t.Errorf("providers should be sorted by cost with names filled: %+v", d.Providers)
	}
	if d.Summary.TotalCalls != 12 || d.Summary.TotalCost != 25 {
		t.Errorf("summary should be derived from providers: %+v", d.Summary)
	}
	if d.Summary.BudgetUsedPercent != 50 {
		t.Errorf("expected 50%% budget used, got %v", d.Summary.BudgetUsedPercent)
	}
}

func TestSystemHealth_Normalize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"services":{"db":"ok","llm":""}}`))
	}))
	defer srv.Close()

	h, err := newTestClient(srv.URL).SystemHealth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != StatusUnknown || h.Services["llm"] != StatusUnknown || h.Services["db"] != "ok" {
		t.Errorf("unexpected health: %+v", h)
	}
}

func TestUsageAlerts_Ordering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"alerts":[
			{"id":"old-read","read":true,"created_at":"2026-02-01T00:00:00Z"},
			{"id":"old","created_at":"2026-02-01T00:00:00Z","severity":"warning"},
			{"id":"new","created_at":"2026-02-10T00:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	alerts, err := newTestClient(srv.URL).UsageAlerts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 3 || alerts[0].ID != "new" || alerts[1].ID != "old" || alerts[2].ID != "old-read" {
		t.Errorf("unexpected order: %+v", alerts)
	}
	if alerts[0].Severity != SeverityInfo || alerts[1].Severity != "warning" {
		t.Errorf("severity defaults wrong: %+v", alerts)
	}
}

func TestUsageAlerts_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	alerts, err := newTestClient(srv.URL).UsageAlerts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if alerts == nil || len(alerts) != 0 {
		t.Errorf("expected empty, non-nil list, got %#v", alerts)
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	h, err := newTestClient(srv.URL).SystemHealth(context.Background())
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if h.Status != "ok" || calls.Load() != 3 {
		t.Errorf("status=%q calls=%d", h.Status, calls.Load())
	}
}

func TestRetry_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Dashboard(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway {
		t.Fatalf("expected StatusError 502, got %v", err)
	}
	if calls.Load() != 4 {
		t.Errorf("expected 1 attempt + 3 retries, got %d", calls.Load())
	}
}

func TestNoRetry_OnPermanentErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tc := range cases {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(tc.status)
		}))

		_, err := newTestClient(srv.URL).Dashboard(context.Background())
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		if calls.Load() != 1 {
			t.Errorf("status %d: expected a single attempt, got %d", tc.status, calls.Load())
		}
	}

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()
	_, err := newTestClient(srv.URL).Dashboard(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Temporary() || calls.Load() != 1 {
		t.Errorf("400 must not be retried: err=%v calls=%d", err, calls.Load())
	}
}

func TestCachedReads(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"period":"week","summary":{"total_calls":3}}`))
	}))
	defer srv.Close()

	caches, err := NewCaches(store.NewMemoryKV())
	if err != nil {
		t.Fatal(err)
	}
	c := newTestClient(srv.URL, WithCaches(caches))

	for i := 0; i < 3; i++ {
		d, err := c.Dashboard(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if d.Period != "week" || d.Summary.TotalCalls != 3 {
			t.Fatalf("unexpected dashboard: %+v", d)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected one backend call, got %d", calls.Load())
	}
	if s := caches.Dashboards.Stats(); s.Hits != 2 || s.Misses != 1 {
		t.Errorf("unexpected cache stats: %+v", s)
	}
}

func TestFailuresAreNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	caches, err := NewCaches(store.NewMemoryKV())
	if err != nil {
		t.Fatal(err)
	}
	c := newTestClient(srv.URL, WithCaches(caches))
	if _, err := c.SystemHealth(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	h, err := c.SystemHealth(context.Background())
	if err != nil || h.Status != "ok" {
		t.Errorf("expected fresh fetch after failure, got %+v %v", h, err)
	}
}
