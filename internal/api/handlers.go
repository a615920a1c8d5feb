package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trading-dashboard/internal/auth"
	"trading-dashboard/internal/dashboard"
	"trading-dashboard/internal/history"
	"trading-dashboard/internal/market"
	"trading-dashboard/internal/viewstate"
)

const (
	catalogTimeout = 10 * time.Second
	maxHistory     = 200
)

type selectRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	Timeframe string `json:"timeframe"`
}

type backtestRequest struct {
	Strategy       string  `json:"strategy"`
	InitialCapital float64 `json:"initial_capital"`
}

// handleHealth reports the loop, push subscription and any registered sources
func (s *Server) handleHealth(c *gin.Context) {
	v := s.dashboard.Snapshot()

	components := gin.H{
		"subscription": s.dashboard.SubscriptionStats(),
		"ws_clients":   s.hub.GetClientCount(),
	}
	for name, src := range s.health {
		components[name] = src.GetStats()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"connection": v.Connection,
		"version":    v.Version,
		"selection":  v.Selection,
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		"components": components,
	})
}

// handleGetView returns the latest committed view state
func (s *Server) handleGetView(c *gin.Context) {
	successResponse(c, s.dashboard.Snapshot())
}

// handleSelect switches symbol and timeframe. A missing timeframe keeps the current one.
func (s *Server) handleSelect(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}
	if req.Timeframe == "" {
		req.Timeframe = string(s.dashboard.Snapshot().Selection.Timeframe)
	}

	if err := s.dashboard.Select(req.Symbol, req.Timeframe); err != nil {
		s.triggerError(c, err)
		return
	}

	s.log.Info().
		Str("symbol", req.Symbol).
		Str("timeframe", req.Timeframe).
		Str("subject", auth.GetSubject(c)).
		Msg("Selection requested")
	c.JSON(http.StatusAccepted, gin.H{
		"success":   true,
		"symbol":    market.NormalizeSymbol(req.Symbol),
		"timeframe": req.Timeframe,
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	if err := s.dashboard.TriggerRefresh(); err != nil {
		s.triggerError(c, err)
		return
	}
	acceptedResponse(c, viewstate.RequestRefresh)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	if err := s.dashboard.TriggerAnalyze(); err != nil {
		s.triggerError(c, err)
		return
	}
	acceptedResponse(c, viewstate.RequestAnalyze)
}

func (s *Server) handleNarrate(c *gin.Context) {
	if err := s.dashboard.TriggerNarration(); err != nil {
		s.triggerError(c, err)
		return
	}
	acceptedResponse(c, viewstate.RequestNarrate)
}

// handleBacktest runs a backtest for the current symbol. The body is optional.
func (s *Server) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(c, http.StatusBadRequest, "invalid backtest parameters")
		return
	}
	if req.InitialCapital < 0 {
		errorResponse(c, http.StatusBadRequest, "initial_capital must not be negative")
		return
	}

	params := market.BacktestParams{Strategy: req.Strategy, InitialCapital: req.InitialCapital}
	if err := s.dashboard.TriggerBacktest(params); err != nil {
		s.triggerError(c, err)
		return
	}
	acceptedResponse(c, viewstate.RequestBacktest)
}

func (s *Server) handleGetPairs(c *gin.Context) {
	if s.catalog == nil {
		errorResponse(c, http.StatusServiceUnavailable, "catalog not configured")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), catalogTimeout)
	defer cancel()

	pairs, err := s.catalog.Pairs(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load supported pairs")
		errorResponse(c, http.StatusBadGateway, "failed to load supported pairs")
		return
	}
	successResponse(c, pairs)
}

func (s *Server) handleGetStrategies(c *gin.Context) {
	if s.catalog == nil {
		errorResponse(c, http.StatusServiceUnavailable, "catalog not configured")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), catalogTimeout)
	defer cancel()

	strategies, err := s.catalog.Strategies(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load strategies")
		errorResponse(c, http.StatusBadGateway, "failed to load strategies")
		return
	}
	successResponse(c, strategies)
}

// handleRefreshCatalog drops every cached copy of the selector lists
func (s *Server) handleRefreshCatalog(c *gin.Context) {
	if s.catalog == nil {
		errorResponse(c, http.StatusServiceUnavailable, "catalog not configured")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), catalogTimeout)
	defer cancel()

	if err := s.catalog.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Catalog refresh left remote entries behind")
		errorResponse(c, http.StatusBadGateway, "failed to clear catalog cache")
		return
	}
	successResponse(c, gin.H{"refreshed": true})
}

func (s *Server) handleResetCircuit(c *gin.Context) {
	if s.breaker == nil {
		errorResponse(c, http.StatusServiceUnavailable, "circuit breaker not configured")
		return
	}
	s.breaker.ForceReset()
	s.log.Info().Msg("Circuit breaker reset by operator")
	successResponse(c, gin.H{"reset": true})
}

// handleGetBacktests lists recorded backtests, newest first
func (s *Server) handleGetBacktests(c *gin.Context) {
	if s.history == nil {
		successResponse(c, []history.Entry{})
		return
	}

	limit := history.DefaultLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxHistory {
		limit = maxHistory
	}

	entries, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to list backtest history")
		errorResponse(c, http.StatusInternalServerError, "failed to list backtest history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	successResponse(c, entries)
}

// handleGetServerBacktests proxies the analysis server's stored results
func (s *Server) handleGetServerBacktests(c *gin.Context) {
	if s.remote == nil {
		errorResponse(c, http.StatusServiceUnavailable, "server history not configured")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), catalogTimeout)
	defer cancel()

	results, err := s.remote.BacktestHistory(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load server backtest history")
		errorResponse(c, http.StatusBadGateway, "failed to load server backtest history")
		return
	}
	if results == nil {
		results = []market.BacktestResult{}
	}
	successResponse(c, results)
}

// triggerError maps a dashboard error onto a status code
func (s *Server) triggerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, market.ErrEmptySymbol), errors.Is(err, market.ErrInvalidTimeframe):
		errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, dashboard.ErrStopped):
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error().Err(err).Msg("Dashboard rejected request")
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}
