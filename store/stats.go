package store

// Stats is a point-in-time view of the store counters
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Inserts   uint64 `json:"inserts"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}

// collector holds the counters. It has no lock of its own: every update
// happens inside the Store critical section that caused it.
type collector struct {
	hits      uint64
	misses    uint64
	inserts   uint64
	evictions uint64
}

func (c *collector) snapshot(size int) Stats {
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Inserts:   c.inserts,
		Evictions: c.evictions,
		Size:      size,
	}
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
