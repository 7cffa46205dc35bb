package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultCleanupInterval is how often Run sweeps expired entries.
	DefaultCleanupInterval = 5 * time.Minute
	// DefaultKeyPrefix scopes every cache namespace inside a shared store.
	DefaultKeyPrefix = "cp:"
)

// Policy bounds the lifetime and number of entries of a cache.
type Policy struct {
	TTL      time.Duration
	Capacity int
}

// DefaultPolicy suits general lookups such as competitor research.
func DefaultPolicy() Policy {
	return Policy{TTL: 30 * time.Minute, Capacity: 100}
}

// DurablePolicy suits values that are durably stored server side and rarely
// change, so refetching them early only costs round trips.
func DurablePolicy() Policy {
	return Policy{TTL: 6 * time.Hour, Capacity: 50}
}

// SnapshotPolicy suits short-lived bootstrap snapshots that only need to
// absorb repeated fetches within a few seconds.
func SnapshotPolicy() Policy {
	return Policy{TTL: 30 * time.Second, Capacity: 10}
}

// Option configures a cache.
type Option func(*options)

type options struct {
	clock      func() time.Time
	keyPrefix  string
	registerer prometheus.Registerer
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithMetrics exports the cache counters to reg. A nil registerer is ignored.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		clock:     time.Now,
		keyPrefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
