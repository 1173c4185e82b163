package upstream

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/models"
	"market-pulse/src/upstream/binance"
	"market-pulse/src/utils"
)

// -----------------------------------------------------------------------------
// FeedManager supervises every upstream connection: one combined stream per
// actively-subscribed symbol, one multiplexed stream for the market universe,
// and a REST poller covering portfolio symbols nobody streams. Each feed is
// its own goroutine; the Tick Cache is the only state they share.
// -----------------------------------------------------------------------------

type FeedManager struct {
	Config     *models.MConfig
	Cache      interfaces.ITickCache
	Market     interfaces.IMarketCache
	Dispatcher interfaces.IDispatcher
	Rest       *binance.RestClient
	Logger     *logger.Logger

	mu           sync.Mutex
	ctx          context.Context
	cancelFunc   context.CancelFunc
	wg           sync.WaitGroup
	feeds        map[string]context.CancelFunc
	tracked      map[string]map[string]struct{}
	universe     []string
	marketCancel context.CancelFunc

	batchMu sync.Mutex
	pending map[string]models.MPriceUpdate

	ticksReceived atomic.Int64
}

// -----------------------------------------------------------------------------

func NewFeedManager(cfg *models.MConfig, cache interfaces.ITickCache, market interfaces.IMarketCache, dispatcher interfaces.IDispatcher, rest *binance.RestClient, log *logger.Logger) *FeedManager {
	return &FeedManager{
		Config:     cfg,
		Cache:      cache,
		Market:     market,
		Dispatcher: dispatcher,
		Rest:       rest,
		Logger:     log,
		feeds:      make(map[string]context.CancelFunc),
		tracked:    make(map[string]map[string]struct{}),
		pending:    make(map[string]models.MPriceUpdate),
	}
}

// -----------------------------------------------------------------------------

// Start derives the manager lifecycle context and launches the REST poller.
func (m *FeedManager) Start(parentCtx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return fmt.Errorf("FeedManager is already running")
	}

	ctx, cancel := context.WithCancel(parentCtx)
	m.ctx = ctx
	m.cancelFunc = cancel

	m.wg.Add(1)
	go m.pollLoop(ctx)

	m.Logger.Info("FeedManager started")
	return nil
}

// -----------------------------------------------------------------------------

// Stop cancels every feed and waits for their goroutines to drain.
func (m *FeedManager) Stop() error {
	m.mu.Lock()
	if m.ctx == nil {
		m.mu.Unlock()
		return nil
	}

	m.Logger.Info("Stopping FeedManager...")
	m.cancelFunc()
	m.ctx = nil
	m.cancelFunc = nil
	m.marketCancel = nil
	m.feeds = make(map[string]context.CancelFunc)
	m.universe = nil
	m.mu.Unlock()

	m.wg.Wait()

	m.batchMu.Lock()
	m.pending = make(map[string]models.MPriceUpdate)
	m.batchMu.Unlock()

	m.Logger.Info("FeedManager stopped")
	return nil
}

// -----------------------------------------------------------------------------

// StartSymbol opens the supervised combined stream for one base symbol. It is
// a no-op when the feed already exists.
func (m *FeedManager) StartSymbol(symbol string) error {
	base := strings.ToUpper(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return fmt.Errorf("FeedManager is not running")
	}
	if _, exists := m.feeds[base]; exists {
		return nil
	}

	feedCtx, cancel := context.WithCancel(m.ctx)
	m.feeds[base] = cancel

	reconnect := time.Duration(m.Config.Upstream.ReconnectDelayMs) * time.Millisecond
	stream := &binance.Stream{
		URL:            binance.StreamURL(m.Config.Upstream.StreamURL, binance.SymbolStreams(base, m.Config.Upstream.QuoteAsset)),
		ReconnectDelay: reconnect,
		ErrorDelay:     2 * reconnect,
		Logger:         m.Logger.Named("feed:" + base),
		OnSnapshot: func(snap models.MTickSnapshot, _ *models.MTicker) {
			snap.Symbol = base
			m.ticksReceived.Add(1)
			m.Cache.Put(base, snap)
			if err := m.Market.SetPrice(feedCtx, base, snap); err != nil {
				m.Logger.Debug("Price cache write failed for %s: %v", base, err)
			}
		},
		OnKline: func(kline models.MKline) {
			kline.Symbol = base
			m.Cache.PutKline(base, kline)
		},
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		stream.Run(feedCtx)
	}()

	m.Logger.Info("Started feed for %s", base)
	return nil
}

// -----------------------------------------------------------------------------

// StopSymbol signals the symbol's feed to exit. Idempotent.
func (m *FeedManager) StopSymbol(symbol string) {
	base := strings.ToUpper(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	cancel, exists := m.feeds[base]
	if !exists {
		return
	}
	cancel()
	delete(m.feeds, base)
	m.Logger.Info("Stopped feed for %s", base)
}

// -----------------------------------------------------------------------------

// HasFeed reports whether a live stream exists for the base symbol.
func (m *FeedManager) HasFeed(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.feeds[strings.ToUpper(symbol)]
	return exists
}

// -----------------------------------------------------------------------------

// ActiveFeeds counts running per-symbol streams plus the market stream.
func (m *FeedManager) ActiveFeeds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.feeds)
	if m.marketCancel != nil {
		n++
	}
	return n
}

// -----------------------------------------------------------------------------

// TicksReceived returns how many upstream updates reached the Tick Cache.
func (m *FeedManager) TicksReceived() int64 {
	return m.ticksReceived.Load()
}

// -----------------------------------------------------------------------------
// Multiplexed market feed
// -----------------------------------------------------------------------------

// StartMarket resolves the top-volume universe and opens one combined ticker
// stream covering all of it, plus the batch flusher. Falls back to the
// configured symbol list when the universe fetch fails.
func (m *FeedManager) StartMarket() error {
	m.mu.Lock()
	if m.ctx == nil {
		m.mu.Unlock()
		return fmt.Errorf("FeedManager is not running")
	}
	if m.marketCancel != nil {
		m.mu.Unlock()
		return nil
	}
	ctx := m.ctx
	m.mu.Unlock()

	pairs := m.resolveUniverse(ctx)
	if len(pairs) == 0 {
		return fmt.Errorf("market universe is empty")
	}

	m.mu.Lock()
	if m.marketCancel != nil {
		m.mu.Unlock()
		return nil
	}
	marketCtx, cancel := context.WithCancel(ctx)
	m.marketCancel = cancel
	m.universe = pairs
	m.mu.Unlock()

	reconnect := time.Duration(m.Config.Upstream.MarketReconnectDelayMs) * time.Millisecond
	stream := &binance.Stream{
		URL:            binance.StreamURL(m.Config.Upstream.StreamURL, binance.MarketStreams(pairs)),
		ReconnectDelay: reconnect,
		ErrorDelay:     5 * reconnect,
		Logger:         m.Logger.Named("feed:market"),
		OnSnapshot: func(snap models.MTickSnapshot, ticker *models.MTicker) {
			m.onMarketTick(marketCtx, snap, ticker)
		},
	}

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		stream.Run(marketCtx)
	}()
	go m.flushLoop(marketCtx)

	m.Logger.Info("Market feed started with %d pairs", len(pairs))
	return nil
}

// -----------------------------------------------------------------------------

// StopMarket signals the market stream and flusher to exit. Idempotent.
func (m *FeedManager) StopMarket() {
	m.mu.Lock()
	cancel := m.marketCancel
	m.marketCancel = nil
	m.universe = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	m.batchMu.Lock()
	m.pending = make(map[string]models.MPriceUpdate)
	m.batchMu.Unlock()

	m.Logger.Info("Market feed stopped")
}

// -----------------------------------------------------------------------------

// Universe returns the trading pairs the market feed currently follows.
func (m *FeedManager) Universe() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.universe))
	copy(out, m.universe)
	return out
}

// -----------------------------------------------------------------------------

func (m *FeedManager) resolveUniverse(ctx context.Context) []string {
	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	tickers, err := m.Rest.TopByVolume(fetchCtx, utils.DefaultMarketUniverseSize)
	if err != nil || len(tickers) == 0 {
		m.Logger.Warning("Universe fetch failed, using configured symbols: %v", err)
		return append([]string(nil), m.Config.Upstream.MarketSymbols...)
	}

	pairs := make([]string, 0, len(tickers))
	for _, t := range tickers {
		pairs = append(pairs, m.Rest.Pair(t.Symbol))
	}
	return pairs
}

// -----------------------------------------------------------------------------

// onMarketTick caches the update, broadcasts immediately past the significant
// change threshold, and queues it for the next batch flush.
func (m *FeedManager) onMarketTick(ctx context.Context, snap models.MTickSnapshot, ticker *models.MTicker) {
	m.ticksReceived.Add(1)
	m.Cache.Put(snap.Symbol, snap)

	if err := m.Market.SetPrice(ctx, snap.Symbol, snap); err != nil {
		m.Logger.Debug("Price cache write failed for %s: %v", snap.Symbol, err)
	}
	if ticker != nil {
		if err := m.Market.SetTicker(ctx, snap.Symbol, ticker); err != nil {
			m.Logger.Debug("Ticker cache write failed for %s: %v", snap.Symbol, err)
		}
	}

	update := models.MPriceUpdate{
		Symbol:    snap.Symbol,
		Price:     snap.Price,
		Change24h: snap.Change24h,
		Volume24h: snap.Volume24h,
		Timestamp: snap.Timestamp,
	}

	if math.Abs(snap.Change24h) > m.Config.Stream.SignificantChangePct {
		m.Dispatcher.Broadcast(models.KeyMarket, &models.MWireMessage{
			Type:      models.MsgPriceUpdate,
			Symbol:    snap.Symbol,
			Data:      update,
			Timestamp: utils.EpochSeconds(),
		})
	}

	m.batchMu.Lock()
	m.pending[snap.Symbol] = update
	m.batchMu.Unlock()
}

// -----------------------------------------------------------------------------

// flushLoop drains the batch accumulator on the batch cadence. The map is
// swapped out under the lock so the broadcast happens outside it.
func (m *FeedManager) flushLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := time.Duration(m.Config.Stream.BatchIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.batchMu.Lock()
		if len(m.pending) == 0 {
			m.batchMu.Unlock()
			continue
		}
		batch := m.pending
		m.pending = make(map[string]models.MPriceUpdate)
		m.batchMu.Unlock()

		m.Dispatcher.Broadcast(models.KeyMarket, &models.MWireMessage{
			Type:      models.MsgBatchUpdates,
			Data:      batch,
			Timestamp: utils.EpochSeconds(),
		})
	}
}

// -----------------------------------------------------------------------------
// REST poller
// -----------------------------------------------------------------------------

// TrackSymbols registers an owner's symbols with the poller, replacing any
// previous set for that owner.
func (m *FeedManager) TrackSymbols(owner string, symbols []string) {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(s)] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(set) == 0 {
		delete(m.tracked, owner)
		return
	}
	m.tracked[owner] = set
}

// -----------------------------------------------------------------------------

// Untrack removes an owner's symbols from the poller.
func (m *FeedManager) Untrack(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracked, owner)
}

// -----------------------------------------------------------------------------

// pollTargets is the union of tracked symbols that have no live stream.
func (m *FeedManager) pollTargets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := make(map[string]struct{})
	for _, symbols := range m.tracked {
		for s := range symbols {
			if _, live := m.feeds[s]; live {
				continue
			}
			set[s] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------

// pollLoop fetches snapshots for poll targets once per poll interval so
// valuation always has a price even when nobody streams the symbol.
func (m *FeedManager) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	seconds := m.Config.Upstream.PollIntervalSeconds
	if seconds <= 0 {
		seconds = utils.DefaultPollIntervalSeconds
	}
	ticker := time.NewTicker(time.Duration(seconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		targets := m.pollTargets()
		if len(targets) == 0 {
			continue
		}

		for symbol, snap := range m.Rest.FetchSnapshots(ctx, targets) {
			m.ticksReceived.Add(1)
			m.Cache.Put(symbol, snap)
			if err := m.Market.SetPrice(ctx, symbol, snap); err != nil {
				m.Logger.Debug("Price cache write failed for %s: %v", symbol, err)
			}
		}
	}
}
