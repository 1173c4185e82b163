package utils

import (
	"market-pulse/src/models"
)

// -----------------------------------------------------------------------------
// CandleRing is a fixed-size circular buffer of synthetic candles.
// True ring buffer - no resizing allowed!
// -----------------------------------------------------------------------------

type CandleRing struct {
	data     []models.MCandle
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewCandleRing creates a new ring with fixed capacity
func NewCandleRing(capacity int) *CandleRing {
	if capacity <= 0 {
		capacity = DefaultCandleHistorySize
	}

	return &CandleRing{
		data:     make([]models.MCandle, capacity),
		capacity: capacity,
		index:    0,
		size:     0,
	}
}

// -----------------------------------------------------------------------------

// Append adds a candle, evicting the oldest when full
func (cr *CandleRing) Append(candle models.MCandle) {
	cr.data[cr.index] = candle
	cr.index = (cr.index + 1) % cr.capacity

	// Update size (never exceeds capacity)
	if cr.size < cr.capacity {
		cr.size++
	}
}

// -----------------------------------------------------------------------------

// Last returns the most recently appended candle, if any
func (cr *CandleRing) Last() (models.MCandle, bool) {
	if cr.size == 0 {
		return models.MCandle{}, false
	}
	idx := (cr.index - 1 + cr.capacity) % cr.capacity
	return cr.data[idx], true
}

// -----------------------------------------------------------------------------

// GetLatest returns the n latest candles in insertion order
func (cr *CandleRing) GetLatest(n int) []models.MCandle {
	if cr.size == 0 || n <= 0 {
		return []models.MCandle{}
	}

	count := n
	if n > cr.size {
		count = cr.size
	}

	result := make([]models.MCandle, count)

	// Latest data ends at index-1
	startIdx := (cr.index - count + cr.capacity) % cr.capacity

	for i := 0; i < count; i++ {
		idx := (startIdx + i) % cr.capacity
		result[i] = cr.data[idx]
	}

	return result
}

// -----------------------------------------------------------------------------

// GetAll returns all candles in insertion order (oldest to newest)
func (cr *CandleRing) GetAll() []models.MCandle {
	if cr.size == 0 {
		return []models.MCandle{}
	}

	result := make([]models.MCandle, cr.size)

	// Oldest element is at the write index once the ring has wrapped
	var startIdx int
	if cr.size == cr.capacity {
		startIdx = cr.index
	} else {
		startIdx = 0
	}

	for i := 0; i < cr.size; i++ {
		idx := (startIdx + i) % cr.capacity
		result[i] = cr.data[idx]
	}

	return result
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (cr *CandleRing) Size() int {
	return cr.size
}

// -----------------------------------------------------------------------------

// Capacity returns ring capacity (fixed)
func (cr *CandleRing) Capacity() int {
	return cr.capacity
}

// -----------------------------------------------------------------------------

// IsFull returns whether the ring is full
func (cr *CandleRing) IsFull() bool {
	return cr.size == cr.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the ring
func (cr *CandleRing) Clear() {
	cr.index = 0
	cr.size = 0
}
