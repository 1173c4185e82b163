package interfaces

import "market-pulse/src/models"

// -----------------------------------------------------------------------------
// ITickCache is the process-wide store of the latest snapshot per symbol.
// -----------------------------------------------------------------------------

type ITickCache interface {

	// -----------------------------------------------------------------------------

	// Put atomically replaces the snapshot for a symbol.
	Put(symbol string, snap models.MTickSnapshot)

	// -----------------------------------------------------------------------------

	// Get returns the latest snapshot and whether one exists.
	Get(symbol string) (models.MTickSnapshot, bool)

	// -----------------------------------------------------------------------------

	// Delete removes a symbol's snapshot and kline once nothing subscribes
	// to it anymore.
	Delete(symbol string)

	// -----------------------------------------------------------------------------

	// PutKline stores the latest one-minute kline for a symbol.
	PutKline(symbol string, kline models.MKline)

	// -----------------------------------------------------------------------------

	// GetKline returns the latest one-minute kline and whether one exists.
	GetKline(symbol string) (models.MKline, bool)

	// -----------------------------------------------------------------------------

	// Snapshot returns a copy of every stored snapshot keyed by symbol.
	Snapshot() map[string]models.MTickSnapshot
}
