package portfolio

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-pulse/src/cache"
	"market-pulse/src/logger"
	"market-pulse/src/models"
)

// -----------------------------------------------------------------------------
// Test doubles
// -----------------------------------------------------------------------------

type fakeDB struct {
	mu        sync.Mutex
	portfolio *models.MPortfolioState
	loadErr   error
	saveErr   error

	savedValuations []*models.MPortfolioState
	savedPrices     [][]models.MTickSnapshot
}

func (f *fakeDB) Initialize() error { return nil }
func (f *fakeDB) Close() error      { return nil }

func (f *fakeDB) LoadPortfolio(string) (*models.MPortfolioState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.portfolio == nil {
		return nil, nil
	}
	// The engine mutates its state in place; hand out copies like a real store.
	return f.portfolio.Clone(), nil
}

func (f *fakeDB) SaveValuation(state *models.MPortfolioState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedValuations = append(f.savedValuations, state.Clone())
	return nil
}

func (f *fakeDB) SaveAssetPrices(snaps []models.MTickSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedPrices = append(f.savedPrices, snaps)
	return nil
}

func (f *fakeDB) CleanupOldData() error { return nil }

func (f *fakeDB) valuations() []*models.MPortfolioState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.MPortfolioState, len(f.savedValuations))
	copy(out, f.savedValuations)
	return out
}

// -----------------------------------------------------------------------------

type fakeTracker struct {
	mu        sync.Mutex
	tracked   map[string][]string
	untracked []string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{tracked: make(map[string][]string)}
}

func (f *fakeTracker) TrackSymbols(owner string, symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked[owner] = symbols
}

func (f *fakeTracker) Untrack(owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.untracked = append(f.untracked, owner)
}

// -----------------------------------------------------------------------------

type fakeDispatcher struct {
	mu       sync.Mutex
	messages []*models.MWireMessage
	keys     []string
}

func (f *fakeDispatcher) Broadcast(key string, msg *models.MWireMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.messages = append(f.messages, msg)
}

func (f *fakeDispatcher) SubscriberCount(string) int { return 1 }

func (f *fakeDispatcher) recorded() []*models.MWireMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.MWireMessage, len(f.messages))
	copy(out, f.messages)
	return out
}

// -----------------------------------------------------------------------------
// Fixtures
// -----------------------------------------------------------------------------

func testPortfolio(userID string) *models.MPortfolioState {
	return &models.MPortfolioState{
		ID:     "p1",
		Name:   "Main",
		UserID: userID,
		Holdings: []models.MHolding{
			{ID: "h1", Symbol: "BTC", Quantity: 2, AveragePrice: 100},
		},
	}
}

func testEngineConfig() *models.MConfig {
	return &models.MConfig{Stream: models.MStreamConfig{CandleIntervalMs: 200}}
}

func newTestEngine(db *fakeDB) (*Engine, *cache.TickCache, *fakeDispatcher, *fakeTracker) {
	tickCache := cache.NewTickCache()
	dispatcher := &fakeDispatcher{}
	tracker := newFakeTracker()
	engine := NewEngine("u1", testEngineConfig(), tickCache, db, dispatcher, tracker, logger.NewLogger("engine-test"))
	return engine, tickCache, dispatcher, tracker
}

// -----------------------------------------------------------------------------
// Engine tests
// -----------------------------------------------------------------------------

func TestEngine_BootstrapValuation(t *testing.T) {
	db := &fakeDB{portfolio: testPortfolio("u1")}
	engine, tickCache, dispatcher, tracker := newTestEngine(db)

	tickCache.Put("BTC", models.MTickSnapshot{Symbol: "BTC", Price: 150})

	require.NoError(t, engine.Bootstrap())

	state := engine.State()
	require.Len(t, state.Holdings, 1)
	h := state.Holdings[0]
	assert.Equal(t, 150.0, h.CurrentPrice)
	assert.Equal(t, 300.0, h.TotalValue)
	assert.Equal(t, 100.0, h.GainLoss)
	assert.InDelta(t, 50.0, h.GainLossPercent, 1e-9)
	assert.InDelta(t, 100.0, h.Allocation, 1e-9)

	assert.Equal(t, 300.0, state.TotalValue)
	assert.Equal(t, 100.0, state.TotalGainLoss)
	assert.InDelta(t, 50.0, state.TotalGainLossPercent, 1e-9)

	// Bootstrap neither persists nor broadcasts; it only primes the state.
	assert.Empty(t, db.valuations())
	assert.Empty(t, dispatcher.recorded())

	// Holding symbols are registered with the price poller.
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	assert.Equal(t, []string{"BTC"}, tracker.tracked["user:u1"])
}

func TestEngine_BootstrapWithoutPortfolio(t *testing.T) {
	engine, _, _, _ := newTestEngine(&fakeDB{})

	require.NoError(t, engine.Bootstrap())

	state := engine.State()
	assert.Equal(t, "Portfolio", state.Name)
	assert.Empty(t, state.Holdings)
	assert.Equal(t, 0.0, state.TotalValue)
}

func TestEngine_BootstrapLoadError(t *testing.T) {
	engine, _, _, _ := newTestEngine(&fakeDB{loadErr: fmt.Errorf("db down")})

	err := engine.Bootstrap()
	assert.Error(t, err)
}

func TestEngine_CyclePersistsAndBroadcasts(t *testing.T) {
	db := &fakeDB{portfolio: testPortfolio("u1")}
	engine, tickCache, dispatcher, _ := newTestEngine(db)
	tickCache.Put("BTC", models.MTickSnapshot{Symbol: "BTC", Price: 150})

	require.NoError(t, engine.Bootstrap())
	engine.cycle()

	valuations := db.valuations()
	require.Len(t, valuations, 1)
	assert.Equal(t, 300.0, valuations[0].TotalValue)

	db.mu.Lock()
	require.Len(t, db.savedPrices, 1)
	require.Len(t, db.savedPrices[0], 1)
	assert.Equal(t, "BTC", db.savedPrices[0][0].Symbol)
	db.mu.Unlock()

	msgs := dispatcher.recorded()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MsgPortfolioUpdate, msgs[0].Type)

	state, ok := msgs[0].Data.(*models.MPortfolioState)
	require.True(t, ok)
	assert.Equal(t, 300.0, state.TotalValue)
}

func TestEngine_CycleBroadcastsDespiteStorageFailure(t *testing.T) {
	db := &fakeDB{portfolio: testPortfolio("u1"), saveErr: fmt.Errorf("disk full")}
	engine, tickCache, dispatcher, _ := newTestEngine(db)
	tickCache.Put("BTC", models.MTickSnapshot{Symbol: "BTC", Price: 150})

	require.NoError(t, engine.Bootstrap())
	engine.cycle()

	msgs := dispatcher.recorded()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MsgPortfolioUpdate, msgs[0].Type)
}

func TestEngine_HeldPriceWhenNoSnapshot(t *testing.T) {
	p := testPortfolio("u1")
	p.Holdings[0].CurrentPrice = 120 // stored from an earlier session
	p.Holdings = append(p.Holdings, models.MHolding{
		ID: "h2", Symbol: "ETH", Quantity: 10, AveragePrice: 20,
	})
	db := &fakeDB{portfolio: p}
	engine, tickCache, _, _ := newTestEngine(db)

	// Only ETH has a live price; BTC keeps its stored one.
	tickCache.Put("ETH", models.MTickSnapshot{Symbol: "ETH", Price: 30})

	require.NoError(t, engine.Bootstrap())
	engine.cycle()

	state := engine.State()
	require.Len(t, state.Holdings, 2)
	assert.Equal(t, 120.0, state.Holdings[0].CurrentPrice)
	assert.Equal(t, 240.0, state.Holdings[0].TotalValue)
	assert.Equal(t, 30.0, state.Holdings[1].CurrentPrice)
	assert.Equal(t, 300.0, state.Holdings[1].TotalValue)
	assert.Equal(t, 540.0, state.TotalValue)

	allocSum := 0.0
	for _, h := range state.Holdings {
		allocSum += h.Allocation
	}
	assert.InDelta(t, 100.0, allocSum, 1e-9)

	// Only live snapshots are persisted as asset prices.
	db.mu.Lock()
	defer db.mu.Unlock()
	require.NotEmpty(t, db.savedPrices)
	require.Len(t, db.savedPrices[0], 1)
	assert.Equal(t, "ETH", db.savedPrices[0][0].Symbol)
}

func TestEngine_StateReturnsCopy(t *testing.T) {
	db := &fakeDB{portfolio: testPortfolio("u1")}
	engine, _, _, _ := newTestEngine(db)
	require.NoError(t, engine.Bootstrap())

	state := engine.State()
	state.Holdings[0].Quantity = 9999
	state.TotalValue = -1

	fresh := engine.State()
	assert.Equal(t, 2.0, fresh.Holdings[0].Quantity)
	assert.NotEqual(t, -1.0, fresh.TotalValue)
}

func TestEngine_RefreshCoalesces(t *testing.T) {
	engine, _, _, _ := newTestEngine(&fakeDB{})

	engine.Refresh()
	engine.Refresh()
	engine.Refresh()

	assert.Len(t, engine.refresh, 1)
}

func TestEngine_RunReloadsOnRefresh(t *testing.T) {
	db := &fakeDB{portfolio: testPortfolio("u1")}
	engine, tickCache, dispatcher, _ := newTestEngine(db)
	tickCache.Put("BTC", models.MTickSnapshot{Symbol: "BTC", Price: 150})
	require.NoError(t, engine.Bootstrap())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	// Simulate a trade landing in storage, then nudge the engine.
	db.mu.Lock()
	db.portfolio.Holdings = append(db.portfolio.Holdings, models.MHolding{
		ID: "h2", Symbol: "ETH", Quantity: 1, AveragePrice: 10,
	})
	db.mu.Unlock()
	engine.Refresh()

	require.Eventually(t, func() bool {
		for _, msg := range dispatcher.recorded() {
			state, ok := msg.Data.(*models.MPortfolioState)
			if ok && len(state.Holdings) == 2 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop after cancel")
	}
}

// -----------------------------------------------------------------------------
// Manager tests
// -----------------------------------------------------------------------------

func newTestManager(db *fakeDB) (*Manager, *fakeTracker) {
	tracker := newFakeTracker()
	m := NewManager(testEngineConfig(), cache.NewTickCache(), db, &fakeDispatcher{}, tracker, logger.NewLogger("manager-test"))
	return m, tracker
}

func TestManager_StartUserIsIdempotent(t *testing.T) {
	m, _ := newTestManager(&fakeDB{portfolio: testPortfolio("u1")})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, m.StartUser(ctx, "u1"))
	require.NoError(t, m.StartUser(ctx, "u1"))

	assert.Equal(t, 1, m.EngineCount())

	state, ok := m.State("u1")
	require.True(t, ok)
	assert.Len(t, state.Holdings, 1)
}

func TestManager_UnknownUser(t *testing.T) {
	m, _ := newTestManager(&fakeDB{})

	_, ok := m.State("ghost")
	assert.False(t, ok)
	assert.False(t, m.Refresh("ghost"))
	assert.Equal(t, 0, m.EngineCount())

	// StopUser on an unknown user is harmless.
	m.StopUser("ghost")
}

func TestManager_StopUser(t *testing.T) {
	m, tracker := newTestManager(&fakeDB{portfolio: testPortfolio("u1")})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, m.StartUser(ctx, "u1"))
	require.True(t, m.Refresh("u1"))

	m.StopUser("u1")

	assert.Equal(t, 0, m.EngineCount())
	assert.False(t, m.Refresh("u1"))

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	assert.Contains(t, tracker.untracked, "user:u1")
}

func TestManager_StartUserBootstrapFailure(t *testing.T) {
	m, _ := newTestManager(&fakeDB{loadErr: fmt.Errorf("db down")})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	err := m.StartUser(ctx, "u1")
	assert.Error(t, err)
	assert.Equal(t, 0, m.EngineCount())
}
