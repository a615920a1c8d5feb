package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"trading-dashboard/internal/auth"
	"trading-dashboard/internal/events"
	"trading-dashboard/internal/history"
	"trading-dashboard/internal/logging"
	"trading-dashboard/internal/market"
	"trading-dashboard/internal/metrics"
	"trading-dashboard/internal/subscription"
	"trading-dashboard/internal/viewstate"
)

// Dashboard is the part of the dashboard loop the API drives
type Dashboard interface {
	Snapshot() *viewstate.ViewState
	Select(symbol, timeframe string) error
	TriggerRefresh() error
	TriggerAnalyze() error
	TriggerBacktest(params market.BacktestParams) error
	TriggerNarration() error
	SubscriptionStats() subscription.Stats
}

// Catalog serves the selector contents
type Catalog interface {
	Pairs(ctx context.Context) ([]market.Pair, error)
	Strategies(ctx context.Context) ([]market.Strategy, error)
	Refresh(ctx context.Context) error
}

// History lists recorded backtests, newest first
type History interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// RemoteHistory lists the results the analysis server itself has stored
type RemoteHistory interface {
	BacktestHistory(ctx context.Context) ([]market.BacktestResult, error)
}

// StatsProvider is any component that reports its counters on /api/health
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// Resetter closes a tripped circuit on operator request
type Resetter interface {
	ForceReset()
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
	ProductionMode bool
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	dashboard  Dashboard
	catalog    Catalog
	history    History
	remote     RemoteHistory
	breaker    Resetter
	jwtManager *auth.JWTManager
	hub        *WSHub
	health     map[string]StatsProvider
	startedAt  time.Time
	log        zerolog.Logger
}

// NewServer creates a new API server. catalog, hist, bus and jwtManager may
// be nil; a nil jwtManager leaves the mutating endpoints open.
func NewServer(config ServerConfig, dashboard Dashboard, catalog Catalog, hist History, bus *events.EventBus, jwtManager *auth.JWTManager) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:     router,
		config:     config,
		dashboard:  dashboard,
		catalog:    catalog,
		history:    hist,
		jwtManager: jwtManager,
		hub:        NewWSHub(),
		health:     make(map[string]StatsProvider),
		startedAt:  time.Now(),
		log:        logging.WithComponent("api"),
	}

	go s.hub.Run()
	if bus != nil {
		bus.SubscribeAll(s.hub.BroadcastEvent)
	}

	s.setupRoutes()
	return s
}

// AddHealthSource reports src under name on /api/health. Call before Start.
func (s *Server) AddHealthSource(name string, src StatsProvider) {
	s.health[name] = src
}

// SetRemoteHistory enables GET /api/backtests/server. Call before Start.
func (s *Server) SetRemoteHistory(r RemoteHistory) {
	s.remote = r
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetBreaker enables POST /api/circuit/reset. Call before Start.
func (s *Server) SetBreaker(r Resetter) {
	s.breaker = r
}

func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/view", s.handleGetView)
	api.GET("/catalog/pairs", s.handleGetPairs)
	api.GET("/catalog/strategies", s.handleGetStrategies)
	api.GET("/backtests", s.handleGetBacktests)
	api.GET("/backtests/server", s.handleGetServerBacktests)

	actions := api.Group("")
	if s.jwtManager != nil {
		actions.Use(auth.Middleware(s.jwtManager))
	}
	actions.POST("/select", s.handleSelect)
	actions.POST("/refresh", s.handleRefresh)
	actions.POST("/analyze", s.handleAnalyze)
	actions.POST("/narrate", s.handleNarrate)
	actions.POST("/backtest", s.handleBacktest)
	actions.POST("/catalog/refresh", s.handleRefreshCatalog)
	actions.POST("/circuit/reset", s.handleResetCircuit)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server...")

	s.hub.Close()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// requestLogger logs each request through zerolog instead of gin's writer
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		log := logging.APIContext(c.Request.Method, c.FullPath(), status)
		ev := log.Debug()
		if status >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Dur("latency", time.Since(start)).Msg("Request handled")
	}
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

// acceptedResponse answers a trigger that was queued on the loop
func acceptedResponse(c *gin.Context, request viewstate.RequestKind) {
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"request": request,
	})
}
