package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantgens/quantgens-server/config"
	"github.com/quantgens/quantgens-server/internal/api"
	"github.com/quantgens/quantgens-server/internal/cache"
	"github.com/quantgens/quantgens-server/internal/chat"
	"github.com/quantgens/quantgens-server/internal/events"
	"github.com/quantgens/quantgens-server/internal/exa"
	"github.com/quantgens/quantgens-server/internal/llm"
	"github.com/quantgens/quantgens-server/internal/logging"
	"github.com/quantgens/quantgens-server/internal/playground"
	"github.com/quantgens/quantgens-server/internal/polygon"
	"github.com/quantgens/quantgens-server/internal/signals"
	"github.com/quantgens/quantgens-server/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
	})
	logger.Info().Msg("Structured logging initialized")

	// Initialize event bus
	eventBus := events.NewEventBus()

	// Provider API keys come from Vault when enabled, environment otherwise
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to initialize Vault client: %v", err)
	}
	if vaultClient.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := vaultClient.Health(ctx); err != nil {
			logger.Warn().Err(err).Msg("Vault unhealthy, falling back to environment keys")
		}
		cancel()
	}

	keyCtx, keyCancel := context.WithTimeout(context.Background(), 10*time.Second)
	polygonKey := vaultClient.ResolveKey(keyCtx, vault.ProviderPolygon, cfg.PolygonConfig.APIKey)
	exaKey := vaultClient.ResolveKey(keyCtx, vault.ProviderExa, cfg.ExaConfig.APIKey)
	openRouterKey := vaultClient.ResolveKey(keyCtx, vault.ProviderOpenRouter, cfg.OpenRouterConfig.APIKey)
	keyCancel()

	// Optional shared Redis cache for the signals feed
	var sharedCache *cache.SharedCache
	if cfg.RedisConfig.Enabled {
		sharedCache = cache.NewSharedCache(cache.SharedConfig{
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		}, logger)
		defer sharedCache.Close()
	}

	// Market data and news providers
	polygonClient := polygon.NewClient(&polygon.Config{
		APIKey:       polygonKey,
		BaseURL:      cfg.PolygonConfig.BaseURL,
		CacheTTL:     cfg.PolygonConfig.CacheTTL,
		RequestDelay: cfg.PolygonConfig.RequestDelay,
		CallTimeout:  cfg.PolygonConfig.CallTimeout,
	}, logger)

	exaClient := exa.NewClient(&exa.Config{
		APIKey:      exaKey,
		BaseURL:     cfg.ExaConfig.BaseURL,
		CacheTTL:    cfg.ExaConfig.CacheTTL,
		CallTimeout: cfg.ExaConfig.CallTimeout,
	}, logger)

	if !polygonClient.IsConfigured() {
		logger.Warn().Msg("POLYGON_API_KEY not set, market data endpoints will be degraded")
	}
	if !exaClient.IsConfigured() {
		logger.Warn().Msg("EXA_API_KEY not set, news endpoints will be degraded")
	}

	// Chat orchestrator with the market data tool set
	modelClient := llm.NewClient(&llm.Config{
		APIKey:      openRouterKey,
		BaseURL:     cfg.OpenRouterConfig.BaseURL,
		Model:       cfg.OpenRouterConfig.Model,
		MaxTokens:   cfg.OpenRouterConfig.MaxTokens,
		Temperature: float32(cfg.OpenRouterConfig.Temperature),
		Timeout:     cfg.OpenRouterConfig.Timeout,
	})
	registry := chat.DefaultRegistry(polygonClient, exaClient, polygonClient)
	orchestrator := chat.NewOrchestrator(modelClient, registry, logger)

	// Watchlist signals feed
	feed := signals.NewFeed(&signals.Config{
		Watchlist:    cfg.SignalsConfig.Watchlist,
		CacheTTL:     cfg.SignalsConfig.CacheTTL,
		RequestDelay: cfg.SignalsConfig.RequestDelay,
	}, polygonClient, sharedCache, eventBus, logger)

	// Playground run store
	runs := playground.NewStore(nil)

	// Initialize web server
	serverConfig := api.ServerConfig{
		Port:            cfg.ServerConfig.Port,
		Host:            cfg.ServerConfig.Host,
		AllowedOrigins:  cfg.ServerConfig.AllowedOrigins,
		ProductionMode:  os.Getenv("GIN_MODE") == "release",
		ReadTimeout:     cfg.ServerConfig.ReadTimeout,
		WriteTimeout:    cfg.ServerConfig.WriteTimeout,
		ShutdownTimeout: cfg.ServerConfig.ShutdownTimeout,
	}

	server := api.NewServer(serverConfig, eventBus, polygonClient, exaClient, feed, orchestrator, runs, logger)

	// Start web server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start web server: %v", err)
		}
	}()

	logger.Info().
		Str("host", serverConfig.Host).
		Int("port", serverConfig.Port).
		Msg("Quantgens server started")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second,
	)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().Msg("Shutdown complete")
}
