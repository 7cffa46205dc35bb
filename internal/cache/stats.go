package cache

import "sync/atomic"

// Statistics holds the running counters of a cache.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
	expired   atomic.Int64
	corrupt   atomic.Int64
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Evictions int64 `json:"evictions"` // capacity evictions
	Expired   int64 `json:"expired"`
	Corrupt   int64 `json:"corrupt"`
}

// HitRatio returns hits / (hits + misses), or 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s *Statistics) snapshot() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Sets:      s.sets.Load(),
		Evictions: s.evictions.Load(),
		Expired:   s.expired.Load(),
		Corrupt:   s.corrupt.Load(),
	}
}
