package store

import (
	"sync"
	"time"

	"oraclecache/internal/metrics"
	"oraclecache/internal/price"
)

// DefaultTTL is the freshness window. TTL governs freshness, not eviction:
// expired records stay readable and are tagged Stale so consumers can tell
// "no data" from "old data".
const DefaultTTL = 10 * time.Second

// Store is the concurrency-safe home of the latest record per symbol.
// Readers share an RLock held only long enough to copy; writers are
// exclusive, so a snapshot never observes a half-applied commit.
type Store struct {
	ttl time.Duration
	met *metrics.Set

	mu               sync.RWMutex
	prices           map[string]price.Record
	lastCycle        uint64
	lastCycleEndedAt int64 // unix seconds of the last non-empty commit
}

func New(ttl time.Duration, met *metrics.Set) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:    ttl,
		met:    met,
		prices: make(map[string]price.Record),
	}
}

func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) freshness(rec price.Record) price.Freshness {
	if time.Since(rec.ObservedAt) < s.ttl {
		return price.Fresh
	}
	return price.Stale
}

// Get returns a copy of the current record for symbol with its freshness.
func (s *Store) Get(symbol string) (price.Record, price.Freshness, bool) {
	s.mu.RLock()
	rec, ok := s.prices[price.Canonical(symbol)]
	s.mu.RUnlock()
	if !ok {
		return price.Record{}, price.Stale, false
	}
	f := s.freshness(rec)
	s.met.Read(f)
	return rec, f, true
}

// Snapshot returns a consistent point-in-time copy of every record plus
// the wall time of the most recent completed cycle.
func (s *Store) Snapshot() (map[string]price.Record, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]price.Record, len(s.prices))
	for sym, rec := range s.prices {
		out[sym] = rec
	}
	return out, s.lastCycleEndedAt
}

// Len reports the number of cached symbols.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prices)
}

// CommitCycle atomically merges updates into the store: listed symbols are
// replaced, everything else is preserved. Empty update sets and cycle ids
// at or below the last committed one are ignored, so late cycles can never
// roll a symbol back. Returns whether the commit was applied.
func (s *Store) CommitCycle(updates map[string]price.Record, cycleID uint64) bool {
	if len(updates) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cycleID <= s.lastCycle {
		return false
	}
	for sym, rec := range updates {
		key := price.Canonical(sym)
		if cur, ok := s.prices[key]; ok && cur.ObservedAt.After(rec.ObservedAt) {
			// observed_at is monotonic per symbol
			continue
		}
		s.prices[key] = rec
	}
	s.lastCycle = cycleID
	s.lastCycleEndedAt = time.Now().Unix()
	s.publishFreshness()
	return true
}

// Upsert stores a single record from an on-demand resolution. The same
// per-symbol monotonicity rule applies; cycle bookkeeping is untouched.
func (s *Store) Upsert(rec price.Record) bool {
	key := price.Canonical(rec.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.prices[key]; ok && cur.ObservedAt.After(rec.ObservedAt) {
		return false
	}
	s.prices[key] = rec
	s.publishFreshness()
	return true
}

// Invalidate removes the record for symbol, e.g. when a config reload
// drops it from the universe.
func (s *Store) Invalidate(symbol string) {
	s.mu.Lock()
	delete(s.prices, price.Canonical(symbol))
	s.publishFreshness()
	s.mu.Unlock()
}

// publishFreshness pushes the fresh/stale split to metrics. Caller holds
// the write lock.
func (s *Store) publishFreshness() {
	if s.met == nil {
		return
	}
	fresh := 0
	for _, rec := range s.prices {
		if time.Since(rec.ObservedAt) < s.ttl {
			fresh++
		}
	}
	s.met.SetFreshness(fresh, len(s.prices)-fresh)
}
