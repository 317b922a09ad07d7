// Package http is the thin HTTP adapter over the trip and approval
// services: it translates requests, maps domain errors to status codes
// and owns nothing else.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/approval"
	"github.com/fieldtrack/trip-reimbursement/internal/directory"
	"github.com/fieldtrack/trip-reimbursement/internal/report"
	"github.com/fieldtrack/trip-reimbursement/internal/trip"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	logger     *zap.Logger
}

// NewServer creates the HTTP server over the given services
func NewServer(
	config ServerConfig,
	trips *trip.Service,
	claims *approval.Engine,
	statements *report.StatementExporter,
	rates directory.RateSource,
	fuelPrice decimal.Decimal,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &Server{
		config: config,
		router: router,
		logger: logger,
	}

	router.Use(gin.Recovery())
	router.Use(server.loggingMiddleware())

	handlers := NewHandlers(trips, claims, statements, rates, fuelPrice, logger)
	server.setupRoutes(handlers)

	return server
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func (s *Server) setupRoutes(h *Handlers) {
	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api")
	{
		api.POST("/trips", h.StartTrip)
		api.GET("/trips", h.ListCompletedTrips)
		api.GET("/trips/active", h.ActiveTrip)
		api.GET("/trips/:id", h.TripDetail)
		api.POST("/trips/:id/samples", h.AddSample)
		api.POST("/trips/:id/visits", h.AddVisit)
		api.POST("/trips/:id/end", h.EndTrip)

		api.POST("/claims", h.SubmitClaim)
		api.GET("/claims/pending", h.PendingClaims)
		api.GET("/claims/stalled", h.StalledClaims)
		api.GET("/claims/:id", h.ClaimDetail)
		api.POST("/claims/:id/approve", h.ApproveClaim)
		api.POST("/claims/:id/reject", h.RejectClaim)

		api.GET("/expense/quote", h.QuoteExpense)

		api.GET("/reports/trips", h.TripStatement)
	}
}

// Start runs the server until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
