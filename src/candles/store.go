package candles

import (
	"sync"

	"market-pulse/src/models"
	"market-pulse/src/utils"
)

// -----------------------------------------------------------------------------
// Store holds the bounded candle history per symbol. Histories are created
// lazily on first append and destroyed when the symbol's last subscriber
// leaves, so a resubscribed symbol always starts a fresh window.
// -----------------------------------------------------------------------------

type Store struct {
	Histories map[string]*utils.CandleRing
	Capacity  int
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = utils.DefaultCandleHistorySize
	}
	return &Store{
		Histories: make(map[string]*utils.CandleRing),
		Capacity:  capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds a candle to the symbol's history, evicting the oldest entry
// once the window is full.
func (s *Store) Append(symbol string, candle models.MCandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.Histories[symbol]
	if !ok {
		ring = utils.NewCandleRing(s.Capacity)
		s.Histories[symbol] = ring
	}
	ring.Append(candle)
}

// -----------------------------------------------------------------------------

// Last returns the most recent candle for a symbol.
func (s *Store) Last(symbol string) (models.MCandle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.Histories[symbol]
	if !ok {
		return models.MCandle{}, false
	}
	return ring.Last()
}

// -----------------------------------------------------------------------------

// History returns the symbol's candles oldest to newest.
func (s *Store) History(symbol string) []models.MCandle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.Histories[symbol]
	if !ok {
		return []models.MCandle{}
	}
	return ring.GetAll()
}

// -----------------------------------------------------------------------------

// Size returns how many candles the symbol currently holds.
func (s *Store) Size(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.Histories[symbol]
	if !ok {
		return 0
	}
	return ring.Size()
}

// -----------------------------------------------------------------------------

// Reset discards the symbol's history entirely.
func (s *Store) Reset(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Histories, symbol)
}

// -----------------------------------------------------------------------------

// SymbolCount returns how many symbols hold history.
func (s *Store) SymbolCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Histories)
}
