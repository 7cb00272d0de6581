// Package server exposes health, status and manual-check endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/williampepple1/listing-notifier/internal/logger"
	"github.com/williampepple1/listing-notifier/internal/metrics"
	"github.com/williampepple1/listing-notifier/pkg/models"
)

const shutdownTimeout = 10 * time.Second

// StatusSource reports what the tracker is doing
type StatusSource interface {
	LastReport() (models.CycleReport, bool)
	Keywords() []string
}

// Checker runs one cycle on demand
type Checker interface {
	Trigger(ctx context.Context) models.CycleReport
}

// Options wires the server's handlers
type Options struct {
	Address              string
	Interval             time.Duration
	NotificationsEnabled bool
	Status               StatusSource
	Checker              Checker
	Metrics              *metrics.Metrics
	Logger               logger.Logger
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Status               string              `json:"status"`
	Keywords             []string            `json:"keywords"`
	CheckInterval        int                 `json:"check_interval"`
	NotificationsEnabled bool                `json:"notifications_enabled"`
	LastCheck            *time.Time          `json:"last_check"`
	LastReport           *models.CycleReport `json:"last_report,omitempty"`
}

// CheckResponse is the body of GET /check
type CheckResponse struct {
	Message string             `json:"message"`
	NewJobs int                `json:"new_jobs"`
	Report  models.CycleReport `json:"report"`
}

// Server is the status HTTP server
type Server struct {
	router *gin.Engine
	server *http.Server
	opts   Options
	log    logger.Logger
}

// New builds the router and HTTP server
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{opts: opts, log: log}

	router := gin.New()
	router.Use(recoveryMiddleware(log))
	router.Use(loggerMiddleware(log))

	router.GET("/", s.health)
	router.GET("/health", s.health)
	router.GET("/status", s.status)
	router.GET("/check", s.check)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	s.router = router
	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", logger.String("address", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) status(c *gin.Context) {
	resp := StatusResponse{
		Status:               "running",
		Keywords:             s.opts.Status.Keywords(),
		CheckInterval:        int(s.opts.Interval.Seconds()),
		NotificationsEnabled: s.opts.NotificationsEnabled,
	}
	if report, ok := s.opts.Status.LastReport(); ok {
		at := report.StartedAt
		resp.LastCheck = &at
		resp.LastReport = &report
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) check(c *gin.Context) {
	report := s.opts.Checker.Trigger(c.Request.Context())
	newJobs := report.Notified + report.NotifyErrors

	if report.Err != "" {
		c.JSON(http.StatusBadGateway, CheckResponse{
			Message: "Manual check failed: " + report.Err,
			NewJobs: newJobs,
			Report:  report,
		})
		return
	}
	c.JSON(http.StatusOK, CheckResponse{
		Message: fmt.Sprintf("Manual check completed. Found %d new jobs.", newJobs),
		NewJobs: newJobs,
		Report:  report,
	})
}

func recoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic in HTTP handler",
					logger.String("path", c.Request.URL.Path),
					logger.Any("panic", r),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

func loggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		// Health probes are frequent
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/" {
			log.Debug("HTTP request", fields...)
			return
		}
		log.Info("HTTP request", fields...)
	}
}
