// Package api exposes the dashboard's HTTP surface: REST endpoints for market
// data, news and signals, an SSE chat endpoint and a WebSocket event stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/quantgens/quantgens-server/internal/chat"
	"github.com/quantgens/quantgens-server/internal/events"
	"github.com/quantgens/quantgens-server/internal/market"
	"github.com/quantgens/quantgens-server/internal/playground"
	"github.com/quantgens/quantgens-server/internal/polygon"
	"github.com/quantgens/quantgens-server/internal/signals"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// MarketData supplies quotes, the index basket and ticker search.
type MarketData interface {
	GetQuote(ctx context.Context, ticker string) *market.Quote
	GetMarketIndices(ctx context.Context) []market.Index
	SearchTickers(ctx context.Context, query string) []polygon.TickerMatch
	CacheStats() (hits, misses int64, hitRate float64)
	IsConfigured() bool
}

// NewsSearch supplies news and company research articles.
type NewsSearch interface {
	SearchNews(ctx context.Context, query string, limit int) []market.NewsArticle
	GetCompanyResearch(ctx context.Context, company string) []market.NewsArticle
	CacheStats() (hits, misses int64, hitRate float64)
	IsConfigured() bool
}

// SignalFeed supplies the watchlist signal batch.
type SignalFeed interface {
	Get(ctx context.Context) signals.Result
	CacheStats() (hits, misses int64, hitRate float64)
}

// ChatRunner runs one chat turn, emitting stream events as they happen.
type ChatRunner interface {
	Run(ctx context.Context, conversation []chat.Message, emit func(chat.StreamEvent)) error
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	eventBus    *events.EventBus
	marketData  MarketData
	news        NewsSearch
	feed        SignalFeed
	chat        ChatRunner
	runs        *playground.Store
	rateLimiter *RateLimiter // keeps upstream-backed endpoints under provider limits
	logger      zerolog.Logger
	startedAt   time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Host            string
	AllowedOrigins  string
	ProductionMode  bool
	ReadTimeout     int // Seconds
	WriteTimeout    int // Seconds
	ShutdownTimeout int // Seconds
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	eventBus *events.EventBus,
	marketData MarketData,
	news NewsSearch,
	feed SignalFeed,
	chatRunner ChatRunner,
	runs *playground.Store,
	logger zerolog.Logger,
) *Server {
	// Set Gin mode
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if config.AllowedOrigins == "" || config.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(config.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		config:      config,
		eventBus:    eventBus,
		marketData:  marketData,
		news:        news,
		feed:        feed,
		chat:        chatRunner,
		runs:        runs,
		rateLimiter: NewRateLimiter(60, time.Minute),
		logger:      logger.With().Str("component", "api").Logger(),
		startedAt:   time.Now(),
	}

	server.setupRoutes()

	// Initialize WebSocket hub for real-time event broadcasting
	InitWebSocket(eventBus, server.logger)

	return server
}

// rateLimitMiddleware creates a middleware that rate limits requests by endpoint
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	// Endpoints served entirely from local state - no upstream calls to protect
	noRateLimitPaths := map[string]bool{
		"/api/health/status":   true,
		"/api/playground/runs": true,
		"/api/ws":              true,
	}

	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if noRateLimitPaths[path] {
			c.Next()
			return
		}

		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests to this endpoint. Please slow down.",
				"path":    path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	{
		// Provider health and cache statistics
		api.GET("/health/status", s.handleAPIHealthStatus)

		// Chat endpoint (SSE stream)
		api.POST("/chat", s.handleChat)

		// Polygon market data endpoints
		api.GET("/polygon/stock", s.handleGetStock)
		api.GET("/polygon/market", s.handleGetMarket)
		api.GET("/polygon/search", s.handleSearchTickers)

		// Exa news endpoints
		api.POST("/exa/news", s.handleGetNews)
		api.GET("/exa/research", s.handleGetResearch)

		// Signals feed endpoint
		api.GET("/signals", s.handleGetSignals)

		// Playground endpoints
		api.GET("/playground/runs", s.handleListRuns)
		api.POST("/playground/runs", s.handleCreateRun)
		api.DELETE("/playground/runs", s.handleDeleteRun)

		// WebSocket event stream
		api.GET("/ws", s.handleWebSocket)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
