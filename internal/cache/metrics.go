package cache

import "github.com/prometheus/client_golang/prometheus"

// cacheMetrics mirrors Statistics as Prometheus collectors. All methods are
// safe on a nil receiver so callers need no "metrics enabled" checks.
type cacheMetrics struct {
	ops     *prometheus.CounterVec
	entries prometheus.Gauge
}

func newCacheMetrics(reg prometheus.Registerer, name string) (*cacheMetrics, error) {
	m := &cacheMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "contentpilot",
			Subsystem:   "cache",
			Name:        "operations_total",
			Help:        "Cache operations by outcome.",
			ConstLabels: prometheus.Labels{"cache": name},
		}, []string{"op"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "contentpilot",
			Subsystem:   "cache",
			Name:        "entries",
			Help:        "Entries currently stored.",
			ConstLabels: prometheus.Labels{"cache": name},
		}),
	}
	if err := reg.Register(m.ops); err != nil {
		return nil, err
	}
	if err := reg.Register(m.entries); err != nil {
		reg.Unregister(m.ops)
		return nil, err
	}
	return m, nil
}

func (m *cacheMetrics) inc(op string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op).Inc()
}

func (m *cacheMetrics) hit()     { m.inc("hit") }
func (m *cacheMetrics) miss()    { m.inc("miss") }
func (m *cacheMetrics) set()     { m.inc("set") }
func (m *cacheMetrics) deleted() { m.inc("delete") }
func (m *cacheMetrics) evicted() { m.inc("evict") }
func (m *cacheMetrics) expired() { m.inc("expire") }

func (m *cacheMetrics) size(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}
