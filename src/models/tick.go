package models

// MTickSnapshot is the latest observed state for one symbol. It is replaced
// wholesale on every upstream update; no history is kept here.
type MTickSnapshot struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Change24h   float64 `json:"change_24h"`
	Volume24h   float64 `json:"volume_24h"`
	High24h     float64 `json:"high_24h"`
	Low24h      float64 `json:"low_24h"`
	Timestamp   float64 `json:"timestamp"`
	UpdateCount int64   `json:"update_count"`
}

// -----------------------------------------------------------------------------

// MPriceUpdate is the per-symbol payload of price_update and batch_updates
// messages on the market stream.
type MPriceUpdate struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	Volume24h float64 `json:"volume_24h"`
	Timestamp float64 `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MKline is a one-minute kline as delivered by the upstream stream or the
// historical REST endpoint.
type MKline struct {
	Symbol      string  `json:"symbol,omitempty"`
	OpenTime    int64   `json:"open_time"`
	CloseTime   int64   `json:"close_time"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	QuoteVolume float64 `json:"quote_volume,omitempty"`
	Trades      int     `json:"trades,omitempty"`
	IsClosed    bool    `json:"is_closed"`
}
