package cache

import (
	"hash/fnv"
	"sync"

	"market-pulse/src/models"
)

// -----------------------------------------------------------------------------
// TickCache holds the latest snapshot per symbol. Sharded so one busy symbol
// never contends with readers of another.
// -----------------------------------------------------------------------------

const tickCacheShards = 16

type tickShard struct {
	mu     sync.RWMutex
	snaps  map[string]models.MTickSnapshot
	klines map[string]models.MKline
}

type TickCache struct {
	shards [tickCacheShards]*tickShard
}

// -----------------------------------------------------------------------------

// NewTickCache creates an empty cache.
func NewTickCache() *TickCache {
	tc := &TickCache{}
	for i := range tc.shards {
		tc.shards[i] = &tickShard{
			snaps:  make(map[string]models.MTickSnapshot),
			klines: make(map[string]models.MKline),
		}
	}
	return tc
}

// -----------------------------------------------------------------------------

func (tc *TickCache) shardFor(symbol string) *tickShard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return tc.shards[h.Sum32()%tickCacheShards]
}

// -----------------------------------------------------------------------------

// Put atomically replaces the snapshot for a symbol. Last write wins; no
// partial state is ever observable.
func (tc *TickCache) Put(symbol string, snap models.MTickSnapshot) {
	s := tc.shardFor(symbol)
	s.mu.Lock()
	s.snaps[symbol] = snap
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Get returns the latest snapshot and whether one exists.
func (tc *TickCache) Get(symbol string) (models.MTickSnapshot, bool) {
	s := tc.shardFor(symbol)
	s.mu.RLock()
	snap, ok := s.snaps[symbol]
	s.mu.RUnlock()
	return snap, ok
}

// -----------------------------------------------------------------------------

// Delete removes a symbol's snapshot and kline. Called when the last
// subscriber of a symbol leaves.
func (tc *TickCache) Delete(symbol string) {
	s := tc.shardFor(symbol)
	s.mu.Lock()
	delete(s.snaps, symbol)
	delete(s.klines, symbol)
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

// PutKline stores the latest one-minute kline for a symbol.
func (tc *TickCache) PutKline(symbol string, kline models.MKline) {
	s := tc.shardFor(symbol)
	s.mu.Lock()
	s.klines[symbol] = kline
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

// GetKline returns the latest one-minute kline and whether one exists.
func (tc *TickCache) GetKline(symbol string) (models.MKline, bool) {
	s := tc.shardFor(symbol)
	s.mu.RLock()
	kline, ok := s.klines[symbol]
	s.mu.RUnlock()
	return kline, ok
}

// -----------------------------------------------------------------------------

// Snapshot returns a copy of every stored snapshot keyed by symbol.
func (tc *TickCache) Snapshot() map[string]models.MTickSnapshot {
	result := make(map[string]models.MTickSnapshot)
	for _, s := range tc.shards {
		s.mu.RLock()
		for sym, snap := range s.snaps {
			result[sym] = snap
		}
		s.mu.RUnlock()
	}
	return result
}

// -----------------------------------------------------------------------------

// Size returns the number of symbols currently cached.
func (tc *TickCache) Size() int {
	n := 0
	for _, s := range tc.shards {
		s.mu.RLock()
		n += len(s.snaps)
		s.mu.RUnlock()
	}
	return n
}
