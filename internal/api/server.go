// Package api exposes the REST surface of the options desk.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"options-desk/internal/audit"
	"options-desk/internal/auth"
	"options-desk/internal/backtest"
	"options-desk/internal/broker"
	"options-desk/internal/config"
	apperrors "options-desk/internal/errors"
	"options-desk/internal/feed"
	"options-desk/internal/logging"
	"options-desk/internal/store"
	"options-desk/internal/tickstore"
)

// Server wires the HTTP routes to the application services.
type Server struct {
	cfg       *config.Config
	store     store.DataStore
	auth      *auth.Manager
	backtests *backtest.Service
	ticks     tickstore.TickSource
	broker    broker.Broker
	feed      *feed.Service
	cache     feed.PriceCache
	audit     *audit.Auditor
	logger    zerolog.Logger

	engine *gin.Engine
	http   *http.Server
}

// Deps bundles the server's dependencies.
type Deps struct {
	Config    *config.Config
	Store     store.DataStore
	Auth      *auth.Manager
	Backtests *backtest.Service
	Ticks     tickstore.TickSource
	Broker    broker.Broker
	Feed      *feed.Service
	Cache     feed.PriceCache
	Audit     *audit.Auditor
	Logger    zerolog.Logger
}

// NewServer creates the server and registers all routes.
func NewServer(d Deps) *Server {
	s := &Server{
		cfg:       d.Config,
		store:     d.Store,
		auth:      d.Auth,
		backtests: d.Backtests,
		ticks:     d.Ticks,
		broker:    d.Broker,
		feed:      d.Feed,
		cache:     d.Cache,
		audit:     d.Audit,
		logger:    d.Logger,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(corsMiddleware())

	s.registerRoutes(r)
	s.engine = r
	return s
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP server and blocks until the context is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("API server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)

	r.POST("/signup", s.handleSignup)
	r.POST("/login", s.handleLogin)

	authed := r.Group("/", s.auth.Middleware())
	{
		authed.GET("/me", s.handleMe)

		authed.POST("/portfolios", s.handleCreatePortfolio)
		authed.GET("/portfolios", s.handleListPortfolios)
		authed.GET("/portfolios/:id", s.handleGetPortfolio)
		authed.PUT("/portfolios/:id", s.handleUpdatePortfolio)
		authed.DELETE("/portfolios/:id", s.handleDeletePortfolio)
		authed.POST("/portfolios/:id/legs", s.handleAddLeg)
		authed.GET("/portfolios/:id/legs", s.handleListLegs)
		authed.PUT("/portfolios/:id/legs/:legID", s.handleUpdateLeg)
		authed.DELETE("/portfolios/:id/legs/:legID", s.handleDeleteLeg)
		authed.GET("/portfolios/:id/prices", s.handlePortfolioPrices)

		authed.GET("/market/:index/strikes", s.handleStrikes)
		authed.GET("/market/:index/expiries", s.handleExpiries)
		authed.GET("/market/:index/spot", s.handleSpot)
		authed.GET("/market/:index/option-price", s.handleOptionPrice)
		authed.GET("/live-price/:symbol", s.handleLivePrice)
		authed.GET("/live-prices", s.handleAllLivePrices)

		authed.POST("/backtests", s.handleCreateBacktest)
		authed.GET("/backtests", s.handleListBacktests)
		authed.GET("/backtests/:id", s.handleGetBacktest)
		authed.GET("/backtests/:id/results", s.handleBacktestResults)
		authed.GET("/backtests/:id/summary", s.handleBacktestSummary)
		authed.GET("/backtests/:id/export", s.handleBacktestExport)

		authed.GET("/historical/expiries/:index", s.handleHistoricalExpiries)

		authed.POST("/feed/start", s.handleFeedStart)
		authed.POST("/feed/stop", s.handleFeedStop)
		authed.GET("/feed/status", s.handleFeedStatus)

		authed.GET("/audit/recent", s.handleAuditRecent)
	}
}

// requestLogger logs each request with method, path, status and
// latency.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.LogRequest(s.logger, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// corsMiddleware allows cross-origin requests from the dashboard.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// writeError maps domain errors to HTTP status codes with a JSON
// detail envelope.
func (s *Server) writeError(c *gin.Context, err error) {
	var validationErr *apperrors.ValidationError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"detail": validationErr.Error()})
	case errors.Is(err, apperrors.ErrUsernameTaken):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "username already registered"})
	case errors.Is(err, apperrors.ErrInvalidCredentials), errors.Is(err, apperrors.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid credentials"})
	case errors.Is(err, apperrors.ErrForbidden), errors.Is(err, apperrors.ErrNotFound):
		// Not-owned resources look identical to missing ones.
		c.JSON(http.StatusNotFound, gin.H{"detail": "not found"})
	case errors.Is(err, apperrors.ErrSymbolNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
	case errors.Is(err, apperrors.ErrDataUnavailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
	case errors.Is(err, apperrors.ErrRunNotCompleted), errors.Is(err, apperrors.ErrRunTerminal),
		errors.Is(err, apperrors.ErrFeedRunning), errors.Is(err, apperrors.ErrFeedNotRunning):
		c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
	default:
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
	}
}

// handleHealth reports component health and audit stats.
func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	}

	if stats, err := s.audit.Stats(c.Request.Context()); err == nil {
		resp["audit_entries"] = stats.TotalEntries
	}
	resp["feed"] = s.feed.Status()
	resp["broker_authenticated"] = s.broker.IsAuthenticated()

	c.JSON(http.StatusOK, resp)
}

type auditEntryResponse struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  int64     `json:"entity_id"`
	UserID    int64     `json:"user_id"`
	Details   string    `json:"details,omitempty"`
	Snapshot  string    `json:"snapshot,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// handleAuditRecent lists the newest audit entries, newest first.
// ?limit= caps the page size, default 50.
func (s *Server) handleAuditRecent(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	entries, err := s.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:        e.ID,
			Action:    e.Action,
			Entity:    e.Entity,
			EntityID:  e.EntityID,
			UserID:    e.UserID,
			Details:   e.Details,
			Snapshot:  e.Snapshot,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}
