// Package perf keeps a bounded in-memory history of request and query
// latencies for GET /api/admin/perf.
package perf

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 10000

// Kind separates HTTP requests from database queries.
type Kind uint8

const (
	KindRequest Kind = iota
	KindQuery
)

// Entry is one timing record.
type Entry struct {
	Kind     Kind
	Key      string // route pattern for requests, "table.operation" for queries
	Status   int    // HTTP status, 0 for queries
	Duration time.Duration
	At       time.Time
}

// Collector is a fixed-size ring of entries. When full the oldest entry is
// overwritten. All aggregation happens in Snapshot.
// INVARIANT: pos < len(ring)
type Collector struct {
	mu   sync.Mutex
	ring []Entry
	pos  int

	lifetime [2]atomic.Int64
}

// NewCollector returns a collector holding at most size entries.
// size <= 0 selects DefaultRingSize.
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{ring: make([]Entry, size)}
}

// Record stores e. A nil collector ignores it.
func (c *Collector) Record(e Entry) {
	if c == nil || int(e.Kind) >= len(c.lifetime) {
		return
	}
	c.mu.Lock()
	c.ring[c.pos] = e
	c.pos = (c.pos + 1) % len(c.ring)
	c.mu.Unlock()
	c.lifetime[e.Kind].Add(1)
}

// Snapshot aggregates the entries recorded in a window.
type Snapshot struct {
	Since        time.Time `json:"since"`
	Requests     Summary   `json:"requests"`
	Queries      Summary   `json:"queries"`
	ClientErrors int       `json:"client_errors"`
	ServerErrors int       `json:"server_errors"`
}

// Summary describes one kind of entry.
type Summary struct {
	Lifetime int64      `json:"lifetime"` // recorded since start, including entries already overwritten
	Count    int        `json:"count"`    // in the window
	P50Ms    float64    `json:"p50_ms"`
	P95Ms    float64    `json:"p95_ms"`
	P99Ms    float64    `json:"p99_ms"`
	Slowest  []KeyStats `json:"slowest"`
}

// KeyStats aggregates one route or query.
type KeyStats struct {
	Key   string  `json:"key"`
	Count int     `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	MaxMs float64 `json:"max_ms"`

	total time.Duration
	max   time.Duration
}

type bucket struct {
	durations []time.Duration
	byKey     map[string]*KeyStats
}

func (b *bucket) add(e Entry) {
	b.durations = append(b.durations, e.Duration)
	s, ok := b.byKey[e.Key]
	if !ok {
		s = &KeyStats{Key: e.Key}
		b.byKey[e.Key] = s
	}
	s.Count++
	s.total += e.Duration
	s.max = max(s.max, e.Duration)
}

func (b *bucket) summarize(lifetime int64, topN int) Summary {
	sum := Summary{Lifetime: lifetime, Count: len(b.durations), Slowest: []KeyStats{}}
	if len(b.durations) == 0 {
		return sum
	}
	slices.Sort(b.durations)
	sum.P50Ms = millis(nearestRank(b.durations, 50))
	sum.P95Ms = millis(nearestRank(b.durations, 95))
	sum.P99Ms = millis(nearestRank(b.durations, 99))

	for _, s := range b.byKey {
		s.AvgMs = millis(s.total / time.Duration(s.Count))
		s.MaxMs = millis(s.max)
		sum.Slowest = append(sum.Slowest, *s)
	}
	slices.SortFunc(sum.Slowest, func(a, b KeyStats) int {
		if c := cmp.Compare(b.AvgMs, a.AvgMs); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if len(sum.Slowest) > topN {
		sum.Slowest = sum.Slowest[:topN]
	}
	return sum
}

// Snapshot aggregates entries recorded at or after since, keeping the topN
// slowest keys of each kind by average duration.
// PRE: topN > 0
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	entries := slices.Clone(c.ring)
	c.mu.Unlock()

	requests := bucket{byKey: map[string]*KeyStats{}}
	queries := bucket{byKey: map[string]*KeyStats{}}
	snap := Snapshot{Since: since}
	for _, e := range entries {
		if e.At.IsZero() || e.At.Before(since) {
			continue
		}
		if e.Kind == KindQuery {
			queries.add(e)
			continue
		}
		requests.add(e)
		switch {
		case e.Status >= 500:
			snap.ServerErrors++
		case e.Status >= 400:
			snap.ClientErrors++
		}
	}
	snap.Requests = requests.summarize(c.lifetime[KindRequest].Load(), topN)
	snap.Queries = queries.summarize(c.lifetime[KindQuery].Load(), topN)
	return snap
}

// nearestRank returns the p-th percentile of a sorted, non-empty slice.
func nearestRank(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	return sorted[min(max(rank, 1), len(sorted))-1]
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
