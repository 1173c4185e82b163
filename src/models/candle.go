package models

// MCandle is a synthetic fixed-interval candle produced on the 200ms timer.
// Open always equals the previous candle's close (or the sampled price when no
// previous candle exists); high and low are derived strictly from the two
// sampled endpoints. Immutable once created.
type MCandle struct {
	Symbol             string  `json:"symbol"`
	OpenTime           int64   `json:"open_time"`
	CloseTime          int64   `json:"close_time"`
	Open               float64 `json:"open"`
	High               float64 `json:"high"`
	Low                float64 `json:"low"`
	Close              float64 `json:"close"`
	Volume             float64 `json:"volume"`
	IsClosed           bool    `json:"is_closed"`
	Timestamp          float64 `json:"timestamp"`
	CandleID           int64   `json:"candle_id"`
	Interval           string  `json:"interval"`
	PriceChange        float64 `json:"price_change"`
	PriceChangePercent float64 `json:"price_change_percent"`
}

// -----------------------------------------------------------------------------

// MCandleHistory is the bounded rolling window broadcast alongside each new
// candle so charts can redraw without keeping client-side state.
type MCandleHistory struct {
	Symbol       string    `json:"symbol"`
	Candles      []MCandle `json:"candles"`
	Timestamp    float64   `json:"timestamp"`
	TotalCandles int       `json:"total_candles"`
	Interval     string    `json:"interval"`
	TimeWindow   string    `json:"time_window"`
}

// -----------------------------------------------------------------------------

// MLiveTick is the per-interval price sample pushed for immediate UI updates.
type MLiveTick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
	Volume    float64 `json:"volume"`
	TickID    int64   `json:"tick_id"`
	CandleID  int64   `json:"candle_id"`
}

// MMiniTick carries the same sample plus interval progress metadata for
// smooth client-side animation between candles.
type MMiniTick struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Timestamp   int64   `json:"timestamp"`
	Volume      float64 `json:"volume"`
	TickID      int64   `json:"tick_id"`
	CandleID    int64   `json:"candle_id"`
	ProgressMs  int     `json:"progress_ms"`
	PriceChange float64 `json:"price_change"`
}
