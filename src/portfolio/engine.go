package portfolio

import (
	"context"
	"sync"
	"time"

	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/models"
	"market-pulse/src/utils"
)

// -----------------------------------------------------------------------------
// Engine revalues one user's portfolio on the streaming cadence. The state is
// owned by the engine goroutine; other goroutines reach it only through
// State() copies and the Refresh() signal. Persistence failures never block a
// broadcast.
// -----------------------------------------------------------------------------

// SymbolTracker registers a portfolio's symbols with the REST price poller so
// holdings keep a price even when nobody streams the symbol.
type SymbolTracker interface {
	TrackSymbols(owner string, symbols []string)
	Untrack(owner string)
}

type Engine struct {
	UserID     string
	IntervalMs int
	Cache      interfaces.ITickCache
	DB         interfaces.IDatabase
	Dispatcher interfaces.IDispatcher
	Tracker    SymbolTracker
	Logger     *logger.Logger

	mu      sync.Mutex
	state   *models.MPortfolioState
	refresh chan struct{}
}

// -----------------------------------------------------------------------------

func NewEngine(userID string, cfg *models.MConfig, cache interfaces.ITickCache, db interfaces.IDatabase, dispatcher interfaces.IDispatcher, tracker SymbolTracker, log *logger.Logger) *Engine {
	intervalMs := cfg.Stream.CandleIntervalMs
	if intervalMs <= 0 {
		intervalMs = utils.DefaultCandleIntervalMs
	}
	return &Engine{
		UserID:     userID,
		IntervalMs: intervalMs,
		Cache:      cache,
		DB:         db,
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Logger:     log,
		refresh:    make(chan struct{}, 1),
	}
}

// -----------------------------------------------------------------------------

// Bootstrap loads the stored portfolio, registers its symbols with the price
// poller and runs one valuation pass so the initial snapshot carries fresh
// prices. A user without a stored portfolio gets an empty state, not an error.
func (e *Engine) Bootstrap() error {
	if err := e.reload(); err != nil {
		return err
	}
	e.revalue()
	return nil
}

// -----------------------------------------------------------------------------

// Run drives the valuation cycle until the context is cancelled. A refresh
// signal reloads holdings from storage and broadcasts outside the timer.
func (e *Engine) Run(ctx context.Context) {
	e.Logger.Info("Valuation engine started for user %s (%dms interval)", e.UserID, e.IntervalMs)

	ticker := time.NewTicker(time.Duration(e.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Logger.Info("Valuation engine stopped for user %s", e.UserID)
			return
		case <-e.refresh:
			if err := e.reload(); err != nil {
				e.Logger.Error("Portfolio reload failed for user %s: %v", e.UserID, err)
				continue
			}
			e.cycle()
		case <-ticker.C:
			e.cycle()
		}
	}
}

// -----------------------------------------------------------------------------

// Refresh signals a holdings change. Non-blocking; coalesces when a reload is
// already pending.
func (e *Engine) Refresh() {
	select {
	case e.refresh <- struct{}{}:
	default:
	}
}

// -----------------------------------------------------------------------------

// State returns a copy of the current portfolio state.
func (e *Engine) State() *models.MPortfolioState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return models.EmptyPortfolioState(e.UserID)
	}
	return e.state.Clone()
}

// -----------------------------------------------------------------------------

// reload replaces the in-memory state from storage and re-registers the
// holding symbols with the poller.
func (e *Engine) reload() error {
	p, err := e.DB.LoadPortfolio(e.UserID)
	if err != nil {
		return err
	}
	if p == nil {
		e.Logger.Warning("No portfolio found for user %s", e.UserID)
		p = models.EmptyPortfolioState(e.UserID)
	}

	e.mu.Lock()
	e.state = p
	symbols := p.Symbols()
	e.mu.Unlock()

	e.Tracker.TrackSymbols(models.UserKey(e.UserID), symbols)
	e.Logger.Info("Loaded portfolio for user %s: %d holdings", e.UserID, len(p.Holdings))
	return nil
}

// -----------------------------------------------------------------------------

// cycle revalues, persists and broadcasts the portfolio. Storage errors are
// logged and the broadcast still goes out.
func (e *Engine) cycle() {
	state, snaps := e.revalue()
	if state == nil {
		return
	}

	if err := e.DB.SaveValuation(state); err != nil {
		e.Logger.Error("Failed to persist valuation for user %s: %v", e.UserID, err)
	}
	if len(snaps) > 0 {
		if err := e.DB.SaveAssetPrices(snaps); err != nil {
			e.Logger.Error("Failed to persist asset prices for user %s: %v", e.UserID, err)
		}
	}

	e.Dispatcher.Broadcast(models.UserKey(e.UserID), &models.MWireMessage{
		Type:      models.MsgPortfolioUpdate,
		Data:      state,
		Timestamp: utils.EpochSeconds(),
	})
}

// -----------------------------------------------------------------------------

// revalue recomputes every holding from the latest cached prices. A holding
// whose symbol has no snapshot yet keeps its previous price. Returns a copy
// of the state and the snapshots used.
func (e *Engine) revalue() (*models.MPortfolioState, []models.MTickSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.state
	if state == nil {
		return nil, nil
	}

	var totalValue, totalCost float64
	snaps := make([]models.MTickSnapshot, 0, len(state.Holdings))

	for i := range state.Holdings {
		h := &state.Holdings[i]

		price := h.CurrentPrice
		if snap, ok := e.Cache.Get(h.Symbol); ok {
			price = snap.Price
			snaps = append(snaps, snap)
		}

		cost := h.Quantity * h.AveragePrice
		h.CurrentPrice = price
		h.TotalValue = h.Quantity * price
		h.GainLoss = h.TotalValue - cost
		if cost > 0 {
			h.GainLossPercent = h.GainLoss / cost * 100
		} else {
			h.GainLossPercent = 0
		}

		totalValue += h.TotalValue
		totalCost += cost
	}

	state.TotalValue = totalValue
	state.TotalGainLoss = totalValue - totalCost
	if totalCost > 0 {
		state.TotalGainLossPercent = state.TotalGainLoss / totalCost * 100
	} else {
		state.TotalGainLossPercent = 0
	}

	for i := range state.Holdings {
		h := &state.Holdings[i]
		if totalValue > 0 {
			h.Allocation = h.TotalValue / totalValue * 100
		} else {
			h.Allocation = 0
		}
	}

	return state.Clone(), snaps
}
