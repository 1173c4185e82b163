package portfolio

import (
	"context"
	"sync"

	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/models"
)

// -----------------------------------------------------------------------------
// Manager owns one valuation engine per connected user. Engines start on the
// user's first connection and stop on the last close; users never share
// state.
// -----------------------------------------------------------------------------

type Manager struct {
	Config     *models.MConfig
	Cache      interfaces.ITickCache
	DB         interfaces.IDatabase
	Dispatcher interfaces.IDispatcher
	Tracker    SymbolTracker
	Logger     *logger.Logger

	mu      sync.Mutex
	engines map[string]*Engine
}

// -----------------------------------------------------------------------------

func NewManager(cfg *models.MConfig, cache interfaces.ITickCache, db interfaces.IDatabase, dispatcher interfaces.IDispatcher, tracker SymbolTracker, log *logger.Logger) *Manager {
	return &Manager{
		Config:     cfg,
		Cache:      cache,
		DB:         db,
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Logger:     log,
		engines:    make(map[string]*Engine),
	}
}

// -----------------------------------------------------------------------------

// StartUser bootstraps and launches the user's engine. The engine goroutine
// exits when ctx is cancelled. A second call for a running user is a no-op.
func (m *Manager) StartUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[userID]; exists {
		return nil
	}

	engine := NewEngine(userID, m.Config, m.Cache, m.DB, m.Dispatcher, m.Tracker, m.Logger.Named("engine:"+userID))
	if err := engine.Bootstrap(); err != nil {
		return err
	}

	m.engines[userID] = engine
	go engine.Run(ctx)
	return nil
}

// -----------------------------------------------------------------------------

// StopUser drops the user's engine and poller registration. The engine
// goroutine itself exits through its context.
func (m *Manager) StopUser(userID string) {
	m.mu.Lock()
	_, exists := m.engines[userID]
	delete(m.engines, userID)
	m.mu.Unlock()

	if exists {
		m.Tracker.Untrack(models.UserKey(userID))
	}
}

// -----------------------------------------------------------------------------

// State returns a copy of the user's current portfolio state.
func (m *Manager) State(userID string) (*models.MPortfolioState, bool) {
	m.mu.Lock()
	engine, exists := m.engines[userID]
	m.mu.Unlock()

	if !exists {
		return nil, false
	}
	return engine.State(), true
}

// -----------------------------------------------------------------------------

// Refresh signals the user's engine that holdings changed out-of-band.
func (m *Manager) Refresh(userID string) bool {
	m.mu.Lock()
	engine, exists := m.engines[userID]
	m.mu.Unlock()

	if !exists {
		return false
	}
	engine.Refresh()
	return true
}

// -----------------------------------------------------------------------------

// EngineCount returns how many engines are running.
func (m *Manager) EngineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.engines)
}
