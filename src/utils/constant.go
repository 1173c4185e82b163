package utils

import "time"

// -----------------------------------------------------------------------------

// Streaming cadence and history bounds.
// 600 candles at 200 ms resolution cover a 2 minute chart window.
const (
	DefaultCandleIntervalMs    = 200
	DefaultCandleHistorySize   = 600
	DefaultBatchIntervalMs     = 200
	DefaultInitialKlineLimit   = 100
	DefaultSendBufferSize      = 256
	DefaultAuthTimeoutSeconds  = 10
	DefaultRetentionDays       = 7
	DefaultSignificantChange   = 0.5
	DefaultPollIntervalSeconds = 1
	DefaultMarketUniverseSize  = 50

	// The 24h rolling volume is distributed evenly over synthesized candles.
	VolumeShareDivisor = 300.0
)

// -----------------------------------------------------------------------------

// CandleCapacityFor returns how many candles of the given interval fit into
// the chart window.
func CandleCapacityFor(window time.Duration, intervalMs int) int {
	if intervalMs <= 0 {
		return DefaultCandleHistorySize
	}
	n := int(window.Milliseconds()) / intervalMs
	if n <= 0 {
		return 1
	}
	return n
}

// -----------------------------------------------------------------------------

// EpochSeconds returns the current time as fractional epoch seconds, the
// timestamp format used on the wire.
func EpochSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
