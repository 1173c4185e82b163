package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-pulse/src/auth"
	"market-pulse/src/cache"
	"market-pulse/src/candles"
	"market-pulse/src/logger"
	"market-pulse/src/models"
	"market-pulse/src/network"
	"market-pulse/src/portfolio"
	"market-pulse/src/upstream"
	"market-pulse/src/upstream/binance"
)

// stubDB satisfies the persistence contract without touching disk.
type stubDB struct{}

func (stubDB) Initialize() error                                     { return nil }
func (stubDB) LoadPortfolio(string) (*models.MPortfolioState, error) { return nil, nil }
func (stubDB) SaveValuation(*models.MPortfolioState) error           { return nil }
func (stubDB) SaveAssetPrices([]models.MTickSnapshot) error          { return nil }
func (stubDB) CleanupOldData() error                                 { return nil }
func (stubDB) Close() error                                          { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &models.MConfig{
		Name:     "market-pulse-test",
		Host:     "127.0.0.1",
		Port:     0,
		LogLevel: "ERROR",
		Network:  models.MNetworkConfig{RequestTimeout: 1, ConcurrentRequests: 2},
		Upstream: models.MUpstreamConfig{
			StreamURL:  "wss://example.invalid/stream",
			RestURL:    "https://example.invalid",
			QuoteAsset: "USDT",
		},
		Stream: models.MStreamConfig{
			CandleIntervalMs:  200,
			CandleHistorySize: 10,
			SendBufferSize:    16,
		},
	}

	appLogger := logger.NewLogger("server-test")
	registry := NewRegistry(context.Background(), appLogger)
	dispatcher := NewDispatcher(registry, appLogger)
	tickCache := cache.NewTickCache()
	market := cache.NoopMarketCache{}
	store := candles.NewStore(cfg.Stream.CandleHistorySize)
	rest := binance.NewRestClient(cfg, network.NewNetworkManager(cfg, appLogger), appLogger)
	feeds := upstream.NewFeedManager(cfg, tickCache, market, dispatcher, rest, appLogger)
	portfolios := portfolio.NewManager(cfg, tickCache, stubDB{}, dispatcher, feeds, appLogger)

	return NewServer(context.Background(), cfg, ServerDeps{
		Registry:   registry,
		Dispatcher: dispatcher,
		Cache:      tickCache,
		Market:     market,
		Store:      store,
		Feeds:      feeds,
		Rest:       rest,
		Verifier:   auth.NewVerifier("test-secret"),
		Portfolios: portfolios,
	}, appLogger)
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.engine.ServeHTTP(w, req)
	return w
}

func TestServer_GetHealth(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime_seconds")
	assert.Contains(t, body, "system_memory_mb")
	assert.EqualValues(t, 0, body["connections"])
	assert.EqualValues(t, 0, body["active_feeds"])
	assert.EqualValues(t, 0, body["active_synthesizers"])
	assert.EqualValues(t, 0, body["active_engines"])
}

func TestServer_GetMetrics(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	var metrics models.MStreamMetrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))

	assert.Equal(t, int64(0), metrics.TicksReceived)
	assert.Equal(t, int64(0), metrics.MessagesBroadcast)
	assert.Equal(t, 0, metrics.ActiveConnections)
	assert.GreaterOrEqual(t, metrics.UptimeSeconds, 0.0)
}

func TestServer_GetSymbols(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/symbols")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Universe          []string       `json:"universe"`
		Streaming         map[string]int `json:"streaming"`
		MarketSubscribers int            `json:"market_subscribers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Empty(t, body.Universe)
	assert.Empty(t, body.Streaming)
	assert.Equal(t, 0, body.MarketSubscribers)
}

func TestServer_GetSymbol(t *testing.T) {
	s := newTestServer(t)

	// Untracked symbol.
	w := doRequest(t, s, http.MethodGet, "/api/symbols/XRP")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Tracked via the tick cache; the path parameter is case-insensitive.
	s.Cache.Put("BTC", models.MTickSnapshot{Symbol: "BTC", Price: 50000})
	w = doRequest(t, s, http.MethodGet, "/api/symbols/btc")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "BTC", body["symbol"])
	require.Contains(t, body, "price")
	price := body["price"].(map[string]interface{})
	assert.Equal(t, 50000.0, price["price"])
}

func TestServer_PostPortfolioRefresh(t *testing.T) {
	s := newTestServer(t)

	// No engine is running for the user.
	w := doRequest(t, s, http.MethodPost, "/api/internal/portfolio/u1/refresh")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "no active engine for user", body["error"])
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	req.Header.Set("Origin", "http://127.0.0.1:3000")
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://127.0.0.1:3000", w.Header().Get("Access-Control-Allow-Origin"))

	// Foreign origins are not echoed back.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
