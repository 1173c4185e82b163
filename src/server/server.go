package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"market-pulse/src/candles"
	"market-pulse/src/helpers"
	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/models"
	"market-pulse/src/portfolio"
	"market-pulse/src/upstream"
	"market-pulse/src/upstream/binance"
	"market-pulse/src/utils"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

type Server struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine

	// Subscription plumbing
	Registry   *Registry
	Dispatcher *Dispatcher

	// Collaborators
	Cache      interfaces.ITickCache
	Market     interfaces.IMarketCache
	Store      *candles.Store
	Feeds      *upstream.FeedManager
	Rest       *binance.RestClient
	Verifier   interfaces.ITokenVerifier
	Portfolios *portfolio.Manager

	baseCtx   context.Context
	startTime time.Time
}

// ServerDeps bundles the wired collaborators so the constructor signature
// stays readable.
type ServerDeps struct {
	Registry   *Registry
	Dispatcher *Dispatcher
	Cache      interfaces.ITickCache
	Market     interfaces.IMarketCache
	Store      *candles.Store
	Feeds      *upstream.FeedManager
	Rest       *binance.RestClient
	Verifier   interfaces.ITokenVerifier
	Portfolios *portfolio.Manager
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewServer(ctx context.Context, cfg *models.MConfig, deps ServerDeps, logger *logger.Logger) *Server {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Config:     cfg,
		Logger:     logger,
		engine:     gin.Default(),
		Registry:   deps.Registry,
		Dispatcher: deps.Dispatcher,
		Cache:      deps.Cache,
		Market:     deps.Market,
		Store:      deps.Store,
		Feeds:      deps.Feeds,
		Rest:       deps.Rest,
		Verifier:   deps.Verifier,
		Portfolios: deps.Portfolios,
		baseCtx:    ctx,
		startTime:  time.Now(),
	}

	// Resource lifecycle follows subscription counts
	s.Registry.OnFirst = s.onFirstSubscriber
	s.Registry.OnLast = s.onLastSubscriber

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/metrics", s.getMetrics)
	s.engine.GET("/api/symbols", s.getSymbols)
	s.engine.GET("/api/symbols/:symbol", s.getSymbol)
	s.engine.POST("/api/internal/portfolio/:user_id/refresh", s.postPortfolioRefresh)

	// WebSocket endpoints
	s.engine.GET("/ws/market", s.handleMarketWS)
	s.engine.GET("/ws/crypto/:symbol", s.handleSymbolWS)
	s.engine.GET("/ws/portfolio", s.handlePortfolioWS)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------
// Subscription hooks
// -----------------------------------------------------------------------------

// onFirstSubscriber brings up the resource behind a subscription key. The
// context is cancelled when the key's last subscriber leaves.
func (s *Server) onFirstSubscriber(ctx context.Context, key string) error {
	switch {
	case key == models.KeyMarket:
		return s.Feeds.StartMarket()

	case strings.HasPrefix(key, "sym:"):
		symbol := strings.TrimPrefix(key, "sym:")
		if err := s.Feeds.StartSymbol(symbol); err != nil {
			return err
		}
		synth := candles.NewSynthesizer(symbol, s.Config, s.Cache, s.Store, s.Dispatcher, s.Logger)
		go synth.Run(ctx)
		return nil

	case strings.HasPrefix(key, "user:"):
		return s.Portfolios.StartUser(ctx, strings.TrimPrefix(key, "user:"))
	}

	return fmt.Errorf("unknown subscription key %q", key)
}

// -----------------------------------------------------------------------------

// onLastSubscriber tears the resource back down after the last subscriber of
// a key is gone.
func (s *Server) onLastSubscriber(key string) {
	switch {
	case key == models.KeyMarket:
		s.Feeds.StopMarket()

	case strings.HasPrefix(key, "sym:"):
		symbol := strings.TrimPrefix(key, "sym:")
		s.Feeds.StopSymbol(symbol)
		s.Store.Reset(symbol)
		s.Cache.Delete(symbol)

	case strings.HasPrefix(key, "user:"):
		s.Portfolios.StopUser(strings.TrimPrefix(key, "user:"))
	}
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *Server) getHealth(c *gin.Context) {
	connections, symbols, users := s.Registry.Counts()

	c.JSON(200, gin.H{
		"status":              "ok",
		"uptime_seconds":      time.Since(s.startTime).Seconds(),
		"connections":         connections,
		"active_feeds":        s.Feeds.ActiveFeeds(),
		"active_synthesizers": symbols,
		"active_engines":      users,
		"system_memory_mb":    helpers.GetTotalSystemMemoryMB(),
	})
}

// -----------------------------------------------------------------------------

func (s *Server) getMetrics(c *gin.Context) {
	connections, symbols, _ := s.Registry.Counts()
	mean, std := s.Dispatcher.BroadcastStats()

	c.JSON(200, models.MStreamMetrics{
		TicksReceived:      s.Feeds.TicksReceived(),
		MessagesBroadcast:  s.Dispatcher.MessagesBroadcast(),
		DroppedConnections: s.Dispatcher.DroppedConnections(),
		ActiveConnections:  connections,
		ActiveFeeds:        s.Feeds.ActiveFeeds(),
		ActiveSynthesizers: symbols,
		ActiveEngines:      s.Portfolios.EngineCount(),
		BroadcastMeanMs:    mean,
		BroadcastStdMs:     std,
		UptimeSeconds:      time.Since(s.startTime).Seconds(),
	})
}

// -----------------------------------------------------------------------------

func (s *Server) getSymbols(c *gin.Context) {
	streaming := make(map[string]int)
	for _, symbol := range s.Registry.ActiveSymbols() {
		streaming[symbol] = s.Registry.Count(models.SymbolKey(symbol))
	}

	c.JSON(200, gin.H{
		"universe":           s.Feeds.Universe(),
		"streaming":          streaming,
		"market_subscribers": s.Registry.Count(models.KeyMarket),
	})
}

// -----------------------------------------------------------------------------

func (s *Server) getSymbol(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		c.JSON(400, gin.H{"error": "symbol is required"})
		return
	}

	response := gin.H{"symbol": symbol}
	found := false

	if ticker, err := s.Market.GetTicker(c.Request.Context(), symbol); err == nil && ticker != nil {
		response["ticker"] = ticker
		found = true
	}
	if snap, ok := s.Cache.Get(symbol); ok {
		response["price"] = snap
		found = true
	}
	if kline, ok := s.Cache.GetKline(symbol); ok {
		response["kline"] = kline
		found = true
	}

	if !found {
		c.JSON(404, gin.H{"error": "symbol not tracked"})
		return
	}
	c.JSON(200, response)
}

// -----------------------------------------------------------------------------

// postPortfolioRefresh lets the main application nudge a user's valuation
// engine after a trade, instead of waiting for the next cycle.
func (s *Server) postPortfolioRefresh(c *gin.Context) {
	userID := c.Param("user_id")

	if !s.Portfolios.Refresh(userID) {
		c.JSON(404, gin.H{"error": "no active engine for user"})
		return
	}
	c.JSON(202, gin.H{"status": "accepted"})
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *Server) handleMarketWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	// Snapshot first: it must be the first frame the client receives, ahead
	// of any broadcast that lands once the client is registered.
	snapshot, err := s.marketSnapshot(s.baseCtx)
	if err != nil {
		s.Logger.Error("Failed to build market snapshot: %v", err)
		s.closeWith(conn, websocket.CloseInternalServerErr, "Internal server error")
		return
	}

	client := newClient(s, conn, models.KeyMarket, "")
	client.trySend(snapshot)

	if err := s.Registry.Join(models.KeyMarket, client); err != nil {
		s.Logger.Error("Market subscription failed: %v", err)
		s.closeWith(conn, websocket.CloseInternalServerErr, "Internal server error")
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------

func (s *Server) handleSymbolWS(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}
	if symbol == "" {
		s.closeWith(conn, websocket.CloseUnsupportedData, "Invalid JSON")
		return
	}

	snapshot, err := s.symbolSnapshot(s.baseCtx, symbol)
	if err != nil {
		s.Logger.Error("Failed to build snapshot for %s: %v", symbol, err)
		s.closeWith(conn, websocket.CloseInternalServerErr, "Internal server error")
		return
	}

	key := models.SymbolKey(symbol)
	client := newClient(s, conn, key, "")
	client.trySend(snapshot)
	// Late joiners also get the candle window accumulated so far.
	if history := s.historySnapshot(symbol); history != nil {
		client.trySend(history)
	}

	if err := s.Registry.Join(key, client); err != nil {
		s.Logger.Error("Subscription failed for %s: %v", symbol, err)
		s.closeWith(conn, websocket.CloseInternalServerErr, "Internal server error")
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------

func (s *Server) handlePortfolioWS(c *gin.Context) {
	queryToken := c.Query("token")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	token, ok := s.resolveToken(conn, queryToken)
	if !ok {
		return
	}

	userID, err := s.Verifier.Verify(token)
	if err != nil {
		s.Logger.Warning("Rejected portfolio connection: %v", err)
		s.closeWith(conn, websocket.ClosePolicyViolation, "Authentication failed")
		return
	}

	key := models.UserKey(userID)
	client := newClient(s, conn, key, userID)

	// The engine has to be up before its state can be snapshotted, so for
	// portfolio mode registration comes first.
	if err := s.Registry.Join(key, client); err != nil {
		s.Logger.Error("Portfolio subscription failed for user %s: %v", userID, err)
		conn.WriteJSON(&models.MWireMessage{
			Type:      models.MsgError,
			Data:      "Failed to load portfolio data",
			Timestamp: utils.EpochSeconds(),
		})
		s.closeWith(conn, websocket.CloseInternalServerErr, "Internal server error")
		return
	}
	client.trySend(s.portfolioSnapshot(userID))

	go client.writePump()
	go client.readPump()
}
