package models

// -----------------------------------------------------------------------------
// Wire protocol (Server -> Client)
// -----------------------------------------------------------------------------

// Message types carried in the envelope.
const (
	MsgInitialData          = "initial_data"
	MsgInitialSymbolData    = "initial_symbol_data"
	MsgInitialPortfolioData = "initial_portfolio_data"
	MsgPriceUpdate          = "price_update"
	MsgBatchUpdates         = "batch_updates"
	MsgNewCandle            = "new_200ms_candle"
	MsgCandleHistory        = "candle_history"
	MsgLiveTick             = "live_tick"
	MsgMiniTick             = "mini_tick"
	MsgPortfolioUpdate      = "portfolio_update"
	MsgPong                 = "pong"
	MsgError                = "error"
)

// Client -> Server plain-text signals.
const (
	SignalPing             = "ping"
	SignalPortfolioChanged = "portfolio_changed"
)

// -----------------------------------------------------------------------------
// Subscription keys
// -----------------------------------------------------------------------------

// KeyMarket is the subscription key for the multiplexed market universe.
const KeyMarket = "market"

// SymbolKey returns the subscription key for one symbol's candle stream.
func SymbolKey(symbol string) string {
	return "sym:" + symbol
}

// UserKey returns the subscription key for one user's portfolio stream.
func UserKey(userID string) string {
	return "user:" + userID
}

// -----------------------------------------------------------------------------

// MWireMessage is the envelope for every server-to-client message. Symbol,
// Data, Ticker and Klines are populated per message type; the initial symbol
// snapshot carries Ticker and Klines at the top level instead of Data.
type MWireMessage struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Ticker    *MTicker    `json:"ticker,omitempty"`
	Klines    []MKline    `json:"klines,omitempty"`
	Timestamp float64     `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MAuthMessage is the inline credential a portfolio-mode client must send
// within the handshake deadline when no token came via query parameter.
type MAuthMessage struct {
	Token string `json:"token"`
}
