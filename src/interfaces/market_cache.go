package interfaces

import (
	"context"

	"market-pulse/src/models"
)

// -----------------------------------------------------------------------------
// IMarketCache is the shared TTL cache for ticker payloads so other processes
// and the REST surface read the same data the streams produce.
// -----------------------------------------------------------------------------

type IMarketCache interface {

	// -----------------------------------------------------------------------------

	// SetTicker stores a formatted ticker under the market TTL class.
	SetTicker(ctx context.Context, symbol string, ticker *models.MTicker) error

	// -----------------------------------------------------------------------------

	// GetTicker returns the cached ticker or nil on miss.
	GetTicker(ctx context.Context, symbol string) (*models.MTicker, error)

	// -----------------------------------------------------------------------------

	// SetPrice stores a tick snapshot under the short price TTL class.
	SetPrice(ctx context.Context, symbol string, snap models.MTickSnapshot) error

	// -----------------------------------------------------------------------------

	// GetPrice returns the cached snapshot and whether one was present.
	GetPrice(ctx context.Context, symbol string) (models.MTickSnapshot, bool, error)

	// -----------------------------------------------------------------------------

	// Close releases the underlying connection.
	Close() error
}
