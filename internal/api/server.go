// Package api exposes the REST and WebSocket surface of the bot.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"dnse-trading-bot/internal/database"
	"dnse-trading-bot/internal/dnse"
	"dnse-trading-bot/internal/events"
	"dnse-trading-bot/internal/logging"
	"dnse-trading-bot/internal/market"
	"dnse-trading-bot/internal/pipeline"
)

// Store is the persistence surface the API reads from.
type Store interface {
	HealthCheck(ctx context.Context) error
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]database.BarRow, error)
	GetSignals(ctx context.Context, symbol string, limit int) ([]database.SignalRow, error)
	GetSignalByID(ctx context.Context, id int64) (*database.SignalRow, error)
	GetWatchlist(ctx context.Context) ([]string, error)
	SaveWatchlist(ctx context.Context, symbols []string) error
	GetDefaultQuantity(ctx context.Context) (int, error)
	SaveDefaultQuantity(ctx context.Context, qty int) error
}

// Pipeline is the control surface the API drives.
type Pipeline interface {
	Symbols() []string
	AddSymbol(symbol string) error
	RemoveSymbol(symbol string)
	SetDefaultQuantity(qty int)
	IndicatorSnapshot(symbol string) (market.IndicatorSnapshot, error)
	Snapshots(ctx context.Context) map[string]map[string]interface{}
	InjectSignal(ctx context.Context, sig market.Signal) (market.Signal, error)
}

// ServerConfig holds server settings.
type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	ProductionMode  bool   `json:"production_mode"`
	DefaultQuantity int    `json:"default_quantity"`
}

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        ServerConfig
	store      Store
	pipe       Pipeline
	feed       dnse.Adapter
	hub        *WSHub
	logger     *logging.Logger
}

// NewServer wires the routes. The feed may be nil in backtest-only runs;
// health then reports the transport as disconnected.
func NewServer(cfg ServerConfig, store Store, pipe Pipeline, bus *events.Bus, feed dnse.Adapter, logger *logging.Logger) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = logging.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router: router,
		cfg:    cfg,
		store:  store,
		pipe:   pipe,
		feed:   feed,
		hub:    NewWSHub(bus, logger),
		logger: logger.WithComponent("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	{
		api.GET("/symbols", s.handleGetSymbols)
		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handleUpdateSettings)
		api.GET("/signals", s.handleGetSignals)
		api.GET("/signals/:id", s.handleGetSignal)
		api.POST("/signals/demo", s.handleDemoSignal)
		api.GET("/bars", s.handleGetBars)
		api.GET("/indicators/:symbol", s.handleGetIndicators)
	}
}

// Start runs the listener until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.hub.Start()
	s.logger.Info("HTTP server listening", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown stops the listener and the WebSocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.hub.Stop()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) feedConnected() bool {
	return s.feed != nil && s.feed.IsConnected()
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":         status,
		"dnse_connected": s.feedConnected(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"symbols":        s.pipe.Symbols(),
	})
}

func (s *Server) handleGetSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": s.pipe.Symbols()})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	watchlist, err := s.store.GetWatchlist(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "cannot load settings")
		return
	}
	if watchlist == nil {
		watchlist = s.pipe.Symbols()
	}

	qty, err := s.store.GetDefaultQuantity(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "cannot load settings")
		return
	}
	if qty == 0 {
		qty = s.cfg.DefaultQuantity
	}

	c.JSON(http.StatusOK, gin.H{
		"watchlist":        watchlist,
		"default_quantity": qty,
	})
}

type settingsRequest struct {
	Watchlist       []string `json:"watchlist"`
	DefaultQuantity *int     `json:"default_quantity"`
}

// handleUpdateSettings persists the new settings and applies them to the
// running pipeline: watchlist changes add and remove symbol workers and
// feed subscriptions immediately.
func (s *Server) handleUpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid settings payload")
		return
	}

	ctx := c.Request.Context()

	if req.DefaultQuantity != nil {
		if *req.DefaultQuantity <= 0 {
			errorResponse(c, http.StatusBadRequest, "default_quantity must be positive")
			return
		}
		if err := s.store.SaveDefaultQuantity(ctx, *req.DefaultQuantity); err != nil {
			errorResponse(c, http.StatusInternalServerError, "cannot save default_quantity")
			return
		}
		s.pipe.SetDefaultQuantity(*req.DefaultQuantity)
	}

	if req.Watchlist != nil {
		if len(req.Watchlist) == 0 {
			errorResponse(c, http.StatusBadRequest, "watchlist cannot be empty")
			return
		}
		if err := s.store.SaveWatchlist(ctx, req.Watchlist); err != nil {
			errorResponse(c, http.StatusInternalServerError, "cannot save watchlist")
			return
		}
		s.applyWatchlist(req.Watchlist)
	}

	s.handleGetSettings(c)
}

func (s *Server) applyWatchlist(watchlist []string) {
	want := make(map[string]bool, len(watchlist))
	for _, sym := range watchlist {
		want[sym] = true
	}

	for _, sym := range s.pipe.Symbols() {
		if !want[sym] {
			s.pipe.RemoveSymbol(sym)
			if s.feed != nil {
				if err := s.feed.Unsubscribe(sym); err != nil {
					s.logger.Warn("Feed unsubscribe failed", "symbol", sym, "error", err.Error())
				}
			}
		}
		delete(want, sym)
	}

	for sym := range want {
		if err := s.pipe.AddSymbol(sym); err != nil {
			s.logger.Warn("Cannot add symbol", "symbol", sym, "error", err.Error())
			continue
		}
		if s.feed != nil {
			if err := s.feed.Subscribe(sym); err != nil {
				s.logger.Warn("Feed subscribe failed", "symbol", sym, "error", err.Error())
			}
		}
	}
}

func (s *Server) handleGetSignals(c *gin.Context) {
	limit := queryInt(c, "limit", 50, 500)
	rows, err := s.store.GetSignals(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "cannot load signals")
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": rows, "count": len(rows)})
}

func (s *Server) handleGetSignal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid signal id")
		return
	}

	row, err := s.store.GetSignalByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "signal not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "cannot load signal")
		return
	}
	c.JSON(http.StatusOK, row)
}

type demoSignalRequest struct {
	Symbol     string  `json:"symbol" binding:"required"`
	Entry      float64 `json:"entry" binding:"required"`
	StopLoss   float64 `json:"stop_loss" binding:"required"`
	TakeProfit float64 `json:"take_profit" binding:"required"`
	Quantity   int     `json:"quantity"`
}

// handleDemoSignal synthesizes a signal directly, bypassing the rule
// engine. Meant for UI and notification testing.
func (s *Server) handleDemoSignal(c *gin.Context) {
	var req demoSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid demo signal payload")
		return
	}
	if !(req.StopLoss < req.Entry && req.Entry < req.TakeProfit) {
		errorResponse(c, http.StatusBadRequest, "demo signal must satisfy stop_loss < entry < take_profit")
		return
	}
	qty := req.Quantity
	if qty <= 0 {
		qty = s.cfg.DefaultQuantity
	}

	sig := market.Signal{
		Symbol:     req.Symbol,
		Type:       market.SignalBuy,
		Timestamp:  time.Now().UTC(),
		Entry:      req.Entry,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Quantity:   qty,
		Status:     market.StatusActive,
		Reason:     "Demo signal",
		OriginalSL: req.StopLoss,
	}

	saved, err := s.pipe.InjectSignal(c.Request.Context(), sig)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "cannot store demo signal")
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (s *Server) handleGetBars(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}
	timeframe := c.DefaultQuery("timeframe", "1H")
	limit := queryInt(c, "limit", 100, 1000)

	rows, err := s.store.GetBars(c.Request.Context(), symbol, timeframe, limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "cannot load bars")
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "bars": rows, "count": len(rows)})
}

// handleGetIndicators asks the symbol's worker for its current values
// rather than recomputing from the store, so the response always matches
// the engine state.
func (s *Server) handleGetIndicators(c *gin.Context) {
	symbol := c.Param("symbol")
	snap, err := s.pipe.IndicatorSnapshot(symbol)
	if err != nil {
		errorResponse(c, http.StatusNotFound, fmt.Sprintf("symbol %s not tracked", symbol))
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "indicators": snap})
}

func queryInt(c *gin.Context, name string, def, max int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"error": true, "message": message})
}

var _ Pipeline = (*pipeline.Manager)(nil)
