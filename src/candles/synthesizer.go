package candles

import (
	"context"
	"math"
	"time"

	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/models"
	"market-pulse/src/utils"
)

// -----------------------------------------------------------------------------
// Synthesizer drives one symbol's fixed-interval candle pipeline. Every timer
// fire it samples the latest TickSnapshot, closes a candle spanning the
// interval, appends it to the history window and pushes the full update
// sequence to the symbol's subscribers. One synthesizer per symbol, one
// goroutine per synthesizer; counters are goroutine-local so sequences are
// gap-free by construction.
// -----------------------------------------------------------------------------

type Synthesizer struct {
	Symbol     string
	IntervalMs int
	Cache      interfaces.ITickCache
	Store      *Store
	Dispatcher interfaces.IDispatcher
	Logger     *logger.Logger

	candleSeq int64
	tickSeq   int64
	prevClose float64
	havePrev  bool
}

// -----------------------------------------------------------------------------

func NewSynthesizer(symbol string, cfg *models.MConfig, cache interfaces.ITickCache, store *Store, dispatcher interfaces.IDispatcher, log *logger.Logger) *Synthesizer {
	intervalMs := cfg.Stream.CandleIntervalMs
	if intervalMs <= 0 {
		intervalMs = utils.DefaultCandleIntervalMs
	}
	return &Synthesizer{
		Symbol:     symbol,
		IntervalMs: intervalMs,
		Cache:      cache,
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     log,
	}
}

// -----------------------------------------------------------------------------

// Run fires on the candle cadence until the context is cancelled. Fires
// before the first tick arrives are skipped so no zero-price candle is ever
// produced.
func (s *Synthesizer) Run(ctx context.Context) {
	s.Logger.Info("Synthesizer started for %s (%dms candles)", s.Symbol, s.IntervalMs)

	ticker := time.NewTicker(time.Duration(s.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("Synthesizer stopped for %s after %d candles", s.Symbol, s.candleSeq)
			return
		case <-ticker.C:
			s.fire()
		}
	}
}

// -----------------------------------------------------------------------------

// fire produces one candle and broadcasts the update sequence: price_update,
// new candle, full history, live tick, mini tick.
func (s *Synthesizer) fire() {
	snap, ok := s.Cache.Get(s.Symbol)
	if !ok {
		return
	}

	s.tickSeq++
	s.candleSeq++

	now := time.Now()
	nowMs := now.UnixMilli()
	nowSec := float64(now.UnixNano()) / 1e9

	snap.Timestamp = nowSec
	snap.UpdateCount = s.tickSeq

	openPrice := snap.Price
	if s.havePrev {
		openPrice = s.prevClose
	}
	closePrice := snap.Price

	candle := models.MCandle{
		Symbol:             s.Symbol,
		OpenTime:           nowMs - int64(s.IntervalMs),
		CloseTime:          nowMs,
		Open:               openPrice,
		High:               math.Max(openPrice, closePrice),
		Low:                math.Min(openPrice, closePrice),
		Close:              closePrice,
		Volume:             snap.Volume24h / utils.VolumeShareDivisor,
		IsClosed:           true,
		Timestamp:          nowSec,
		CandleID:           s.candleSeq,
		Interval:           "200ms",
		PriceChange:        closePrice - openPrice,
		PriceChangePercent: utils.CalculateChangePercent(closePrice, openPrice),
	}

	s.prevClose = closePrice
	s.havePrev = true
	s.Store.Append(s.Symbol, candle)

	history := s.Store.History(s.Symbol)

	key := models.SymbolKey(s.Symbol)
	s.send(key, models.MsgPriceUpdate, snap)
	s.send(key, models.MsgNewCandle, candle)
	s.send(key, models.MsgCandleHistory, models.MCandleHistory{
		Symbol:       s.Symbol,
		Candles:      history,
		Timestamp:    nowSec,
		TotalCandles: len(history),
		Interval:     "200ms",
		TimeWindow:   "2_minutes",
	})
	s.send(key, models.MsgLiveTick, models.MLiveTick{
		Symbol:    s.Symbol,
		Price:     closePrice,
		Timestamp: nowMs,
		Volume:    snap.Volume24h,
		TickID:    s.tickSeq,
		CandleID:  s.candleSeq,
	})
	s.send(key, models.MsgMiniTick, models.MMiniTick{
		Symbol:      s.Symbol,
		Price:       closePrice,
		Timestamp:   nowMs,
		Volume:      snap.Volume24h,
		TickID:      s.tickSeq,
		CandleID:    s.candleSeq,
		ProgressMs:  s.IntervalMs,
		PriceChange: closePrice - openPrice,
	})

	s.Logger.Debug("Candle #%d for %s: %.6f -> %.6f", s.candleSeq, s.Symbol, openPrice, closePrice)
}

// -----------------------------------------------------------------------------

func (s *Synthesizer) send(key, msgType string, data interface{}) {
	s.Dispatcher.Broadcast(key, &models.MWireMessage{
		Type:      msgType,
		Symbol:    s.Symbol,
		Data:      data,
		Timestamp: utils.EpochSeconds(),
	})
}
