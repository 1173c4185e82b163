package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"market-pulse/src/auth"
	"market-pulse/src/cache"
	"market-pulse/src/candles"
	"market-pulse/src/config"
	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/network"
	"market-pulse/src/portfolio"
	"market-pulse/src/server"
	"market-pulse/src/storage"
	"market-pulse/src/upstream"
	"market-pulse/src/upstream/binance"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger.SetLevel(cfg.LogLevel)
	appLogger := logger.NewLogger(cfg.Name)

	// 2. Storage
	var db interfaces.IDatabase

	switch cfg.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(cfg.MConfig, appLogger)
	default:
		// Default to SQLite
		db, err = storage.NewSQLiteDB(cfg.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}
	defer db.Close()

	// 3. Caches: in-process tick cache, shared Redis mirror when enabled
	tickCache := cache.NewTickCache()

	var market interfaces.IMarketCache = cache.NoopMarketCache{}
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Cache, appLogger)
		if err != nil {
			appLogger.Warning("Redis unavailable, running without shared cache: %v", err)
		} else {
			market = redisCache
		}
	}
	defer market.Close()

	// 4. Upstream plumbing
	var netMgr interfaces.INetworkManager = network.NewNetworkManager(cfg.MConfig, appLogger)
	rest := binance.NewRestClient(cfg.MConfig, netMgr, appLogger)

	// 5. Subscription registry and fan-out
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := server.NewRegistry(ctx, appLogger)
	dispatcher := server.NewDispatcher(registry, appLogger)

	// 6. Feeds and valuation engines
	feeds := upstream.NewFeedManager(cfg.MConfig, tickCache, market, dispatcher, rest, appLogger)
	if err := feeds.Start(ctx); err != nil {
		appLogger.Critical("Failed to start feed manager: %v", err)
	}

	portfolios := portfolio.NewManager(cfg.MConfig, tickCache, db, dispatcher, feeds, appLogger)

	// 7. Gateway
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	store := candles.NewStore(cfg.Stream.CandleHistorySize)

	srv := server.NewServer(ctx, cfg.MConfig, server.ServerDeps{
		Registry:   registry,
		Dispatcher: dispatcher,
		Cache:      tickCache,
		Market:     market,
		Store:      store,
		Feeds:      feeds,
		Rest:       rest,
		Verifier:   verifier,
		Portfolios: portfolios,
	}, appLogger)

	// 8. Price retention cron
	scheduler := cron.New()
	if cfg.Storage.CleanupSchedule != "" {
		if _, err := scheduler.AddFunc(cfg.Storage.CleanupSchedule, func() {
			if err := db.CleanupOldData(); err != nil {
				appLogger.Error("Cleanup failed: %v", err)
			}
		}); err != nil {
			appLogger.Critical("Invalid cleanup schedule %q: %v", cfg.Storage.CleanupSchedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// 9. Serve until signalled
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Critical("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	cancel()
	feeds.Stop()
}
