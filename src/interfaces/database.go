package interfaces

import "market-pulse/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for portfolio persistence.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// LoadPortfolio returns the stored portfolio with holdings for a user,
	// or nil when the user has none.
	LoadPortfolio(userID string) (*models.MPortfolioState, error)

	// -----------------------------------------------------------------------------

	// SaveValuation upserts the portfolio totals and the per-holding computed
	// values after a valuation cycle.
	SaveValuation(state *models.MPortfolioState) error

	// -----------------------------------------------------------------------------

	// SaveAssetPrices upserts the latest observed prices for the given symbols.
	SaveAssetPrices(snapshots []models.MTickSnapshot) error

	// -----------------------------------------------------------------------------

	// CleanupOldData removes persisted prices older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
