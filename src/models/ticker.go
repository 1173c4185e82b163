package models

// MTicker is the formatted 24h ticker used for initial snapshots and the REST
// API. Field names match what the frontend consumes.
type MTicker struct {
	Symbol             string  `json:"symbol"`
	Name               string  `json:"name"`
	CurrentPrice       float64 `json:"current_price"`
	PriceChange24h     float64 `json:"price_change_24h"`
	PriceChangePct24h  float64 `json:"price_change_percentage_24h"`
	Volume24h          float64 `json:"volume_24h"`
	QuoteVolume24h     float64 `json:"quote_volume_24h"`
	High24h            float64 `json:"high_24h"`
	Low24h             float64 `json:"low_24h"`
	OpenPrice          float64 `json:"open_price"`
	PrevClosePrice     float64 `json:"prev_close_price"`
	BidPrice           float64 `json:"bid_price"`
	AskPrice           float64 `json:"ask_price"`
	LastUpdated        string  `json:"last_updated"`
}

// -----------------------------------------------------------------------------

// MMarketOverview wraps the top-of-market ticker list sent as initial data on
// the multiplexed stream.
type MMarketOverview struct {
	TrendingAssets []MTicker `json:"trending_assets"`
}
