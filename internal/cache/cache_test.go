package cache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rahul/contentpilot/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type research struct {
	Summary     string   `json:"summary"`
	Competitors []string `json:"competitors"`
}

func newTestCache[T any](t *testing.T, kv store.KV, policy Policy, clock *fakeClock) *Cache[T] {
	t.Helper()
	c, err := New[T](kv, "research", policy, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestCache_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache[research](t, store.NewMemoryKV(), DefaultPolicy(), clock)

	lookup := Lookup{"keywords": []string{"seo", "ads"}, "industry": "SaaS"}
	want := research{Summary: "crowded market", Competitors: []string{"a.com", "b.com"}}

	if _, ok := c.Get(lookup); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.SetTTL(lookup, want, time.Minute)

	got, ok := c.Get(lookup)
	if !ok {
		t.Fatal("expected hit right after Set")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestCache_KeyNormalization(t *testing.T) {
	c := newTestCache[string](t, store.NewMemoryKV(), DefaultPolicy(), newFakeClock())

	a := Lookup{"keywords": []string{"SEO", "ads", "seo"}, "industry": " SaaS ", "audience": "Founders"}
	b := Lookup{"audience": "founders", "industry": "saas", "keywords": []any{"ads ", "seo"}}
	if c.Key(a) != c.Key(b) {
		t.Errorf("equivalent lookups produced different keys: %s vs %s", c.Key(a), c.Key(b))
	}

	other := Lookup{"keywords": []string{"seo"}, "industry": "saas", "audience": "founders"}
	if c.Key(a) == c.Key(other) {
		t.Error("different keyword sets must not share a key")
	}
}

func TestCache_ExpiryEvictsFromStore(t *testing.T) {
	clock := newFakeClock()
	kv := store.NewMemoryKV()
	c := newTestCache[string](t, kv, DefaultPolicy(), clock)

	c.SetTTL(Lookup{"k": "k"}, "v", 1000*time.Millisecond)
	c.Set(Lookup{"k": "other"}, "w")
	if n := c.Stats().Entries; n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}

	clock.Advance(1500 * time.Millisecond)

	if _, ok := c.Get(Lookup{"k": "k"}); ok {
		t.Fatal("expected expired entry to be absent")
	}
	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("expected expired entry to be removed from the store, %d entries left", stats.Entries)
	}
	if stats.Expired != 1 {
		t.Errorf("expected 1 expiration, got %d", stats.Expired)
	}
}

func TestCache_ExpiryIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache[int](t, store.NewMemoryKV(), DefaultPolicy(), clock)
	lookup := Lookup{"id": 7}

	c.SetTTL(lookup, 42, 10*time.Second)
	for i := 0; i < 5; i++ {
		if v, ok := c.Get(lookup); !ok || v != 42 {
			t.Fatalf("read %d before expiry: got %d, %v", i, v, ok)
		}
		clock.Advance(time.Second)
	}

	clock.Advance(5 * time.Second) // now exactly at expiresAt
	for i := 0; i < 3; i++ {
		if _, ok := c.Get(lookup); ok {
			t.Fatalf("read %d at/after expiry returned a value", i)
		}
	}
}

func TestCache_CapacityEvictsOldest(t *testing.T) {
	clock := newFakeClock()
	const capacity = 3
	c := newTestCache[int](t, store.NewMemoryKV(), Policy{TTL: time.Hour, Capacity: capacity}, clock)

	for i := 0; i <= capacity; i++ {
		c.Set(Lookup{"i": i}, i)
		clock.Advance(time.Second)
	}

	if _, ok := c.Get(Lookup{"i": 0}); ok {
		t.Error("oldest entry should have been evicted")
	}
	for i := 1; i <= capacity; i++ {
		if v, ok := c.Get(Lookup{"i": i}); !ok || v != i {
			t.Errorf("entry %d should be present, got %d, %v", i, v, ok)
		}
	}
	if s := c.Stats(); s.Entries != capacity || s.Evictions != 1 {
		t.Errorf("unexpected stats after overflow: %+v", s)
	}
}

func TestCache_CapacityEvictsOldestWithinMillisecond(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache[string](t, store.NewMemoryKV(), Policy{TTL: time.Hour, Capacity: 2}, clock)

	// The first key sorts after the second so key order cannot break a tie.
	first, second := Lookup{"k": "a"}, Lookup{"k": "b"}
	if c.Key(first) < c.Key(second) {
		first, second = second, first
	}
	c.Set(first, "first")
	clock.Advance(time.Microsecond)
	c.Set(second, "second")
	clock.Advance(time.Microsecond)
	c.Set(Lookup{"k": "c"}, "third")

	if _, ok := c.Get(first); ok {
		t.Error("first inserted entry should have been evicted")
	}
	if v, ok := c.Get(second); !ok || v != "second" {
		t.Errorf("second entry should be present, got %q, %v", v, ok)
	}
	if v, ok := c.Get(Lookup{"k": "c"}); !ok || v != "third" {
		t.Errorf("third entry should be present, got %q, %v", v, ok)
	}
}

func TestCache_OverwriteAtCapacityKeepsOthers(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache[int](t, store.NewMemoryKV(), Policy{TTL: time.Hour, Capacity: 2}, clock)

	c.Set(Lookup{"i": 1}, 1)
	clock.Advance(time.Second)
	c.Set(Lookup{"i": 2}, 2)
	clock.Advance(time.Second)
	c.Set(Lookup{"i": 1}, 10)

	if v, ok := c.Get(Lookup{"i": 2}); !ok || v != 2 {
		t.Errorf("overwriting an existing key must not evict, got %d, %v", v, ok)
	}
	if v, _ := c.Get(Lookup{"i": 1}); v != 10 {
		t.Errorf("expected overwritten value 10, got %d", v)
	}
}

func TestCache_Invalidate(t *testing.T) {
	clock := newFakeClock()
	kv := store.NewMemoryKV()
	c := newTestCache[string](t, kv, DefaultPolicy(), clock)
	analytics, err := New[string](kv, "analytics", DefaultPolicy(), WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}

	c.Set(Lookup{"q": "a"}, "a")
	c.Set(Lookup{"q": "b"}, "b")
	analytics.Set(Lookup{"q": "a"}, "kept")

	key := c.Key(Lookup{"q": "a"})
	if n := c.Invalidate(key[len(key)-8:]); n != 1 {
		t.Errorf("expected pattern to remove 1 entry, removed %d", n)
	}
	if _, ok := c.Get(Lookup{"q": "b"}); !ok {
		t.Error("non-matching entry must survive pattern invalidation")
	}

	if n := c.Invalidate(""); n != 1 {
		t.Errorf("expected full invalidation to remove 1 entry, removed %d", n)
	}
	if v, ok := analytics.Get(Lookup{"q": "a"}); !ok || v != "kept" {
		t.Error("invalidation must not leave its namespace")
	}
}

func TestCache_Cleanup(t *testing.T) {
	clock := newFakeClock()
	kv := store.NewMemoryKV()
	c := newTestCache[string](t, kv, DefaultPolicy(), clock)

	c.SetTTL(Lookup{"a": 1}, "short", time.Minute)
	c.SetTTL(Lookup{"a": 2}, "short", time.Minute)
	c.SetTTL(Lookup{"a": 3}, "long", time.Hour)
	_ = kv.Set(DefaultKeyPrefix+"research:garbage", "{not json")

	clock.Advance(2 * time.Minute)
	if n := c.Cleanup(); n != 2 {
		t.Errorf("expected 2 expired entries swept, got %d", n)
	}
	s := c.Stats()
	if s.Entries != 1 || s.Corrupt != 1 {
		t.Errorf("unexpected stats after cleanup: %+v", s)
	}
}

func TestCache_CorruptEntryIsMissAndDeleted(t *testing.T) {
	kv := store.NewMemoryKV()
	c := newTestCache[research](t, kv, DefaultPolicy(), newFakeClock())
	lookup := Lookup{"keywords": []string{"x"}}

	_ = kv.Set(c.Key(lookup), `{"value": 12`)
	if _, ok := c.Get(lookup); ok {
		t.Fatal("corrupt entry must read as a miss")
	}
	if _, ok, _ := kv.Get(c.Key(lookup)); ok {
		t.Error("corrupt entry must be deleted")
	}
	if s := c.Stats(); s.Corrupt != 1 || s.Misses != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

type failingKV struct{}

var errQuota = errors.New("quota exceeded")

func (failingKV) Get(string) (string, bool, error) { return "", false, errQuota }
func (failingKV) Set(string, string) error         { return errQuota }
func (failingKV) Remove(string) error              { return errQuota }
func (failingKV) Keys(string) ([]string, error)    { return nil, errQuota }

func TestCache_StoreErrorsAreAbsorbed(t *testing.T) {
	c := newTestCache[string](t, failingKV{}, DefaultPolicy(), newFakeClock())

	c.Set(Lookup{"a": 1}, "v")
	if _, ok := c.Get(Lookup{"a": 1}); ok {
		t.Error("expected miss when the store fails")
	}
	if n := c.Invalidate(""); n != 0 {
		t.Errorf("expected nothing invalidated, got %d", n)
	}
	if n := c.Cleanup(); n != 0 {
		t.Errorf("expected nothing cleaned, got %d", n)
	}
}

func TestCache_GetOrLoad(t *testing.T) {
	c := newTestCache[string](t, store.NewMemoryKV(), DefaultPolicy(), newFakeClock())
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return "loaded", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(ctx, Lookup{"a": 1}, load)
		if err != nil || v != "loaded" {
			t.Fatalf("GetOrLoad returned %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected loader to run once, ran %d times", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrLoad(ctx, Lookup{"a": 2}, func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Errorf("expected loader error, got %v", err)
	}
	if _, ok := c.Get(Lookup{"a": 2}); ok {
		t.Error("failed loads must not be cached")
	}
}

func TestCache_RunStopsOnCancel(t *testing.T) {
	c := newTestCache[string](t, store.NewMemoryKV(), DefaultPolicy(), newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCache_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New[string](store.NewMemoryKV(), "research", DefaultPolicy(), WithMetrics(reg))
	if err != nil {
		t.Fatal(err)
	}
	c.Set(Lookup{"a": 1}, "v")
	c.Get(Lookup{"a": 1})
	c.Get(Lookup{"a": 2})

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) == 0 {
		t.Error("expected cache metrics to be registered")
	}

	if _, err := New[string](store.NewMemoryKV(), "research", DefaultPolicy(), WithMetrics(reg)); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestNew_Validation(t *testing.T) {
	kv := store.NewMemoryKV()
	cases := map[string]struct {
		kv        store.KV
		namespace string
		policy    Policy
	}{
		"nil store":      {nil, "research", DefaultPolicy()},
		"empty name":     {kv, "", DefaultPolicy()},
		"colon in name":  {kv, "a:b", DefaultPolicy()},
		"zero ttl":       {kv, "research", Policy{Capacity: 1}},
		"zero capacity":  {kv, "research", Policy{TTL: time.Second}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := New[string](tc.kv, tc.namespace, tc.policy); err == nil {
				t.Error("expected error")
			}
		})
	}
}
