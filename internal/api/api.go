// Package api implements the operator HTTP endpoint: health, metrics, and
// manual control of the scrape schedule.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/promowatch/internal/ledger"
	"github.com/jonesrussell/promowatch/internal/logger"
	"github.com/jonesrussell/promowatch/internal/scheduler"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second

	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// Schedule is the part of the scheduler the API controls.
type Schedule interface {
	ForceScrape() error
	RestartCountdown()
	Status() scheduler.Status
}

// SetupRouter builds the gin router with all operator routes.
func SetupRouter(log logger.Interface, schedule Schedule, codes ledger.Interface) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	v1.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, schedule.Status())
	})

	v1.GET("/promocodes", func(c *gin.Context) {
		limit := defaultRecentLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > maxRecentLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1-100"})
				return
			}
			limit = parsed
		}

		recent, err := codes.Recent(c.Request.Context(), limit)
		if err != nil {
			log.WithError(err).Error("failed to list promocodes")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"promocodes": recent})
	})

	v1.POST("/scrape", func(c *gin.Context) {
		if err := schedule.ForceScrape(); err != nil {
			if errors.Is(err, scheduler.ErrCycleInFlight) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "cycle triggered"})
	})

	v1.POST("/countdown/restart", func(c *gin.Context) {
		schedule.RestartCountdown()
		c.JSON(http.StatusOK, gin.H{"message": "countdown restarted"})
	})

	return router
}

func loggingMiddleware(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// Server wraps the router in an http.Server with graceful shutdown.
type Server struct {
	httpServer *http.Server
	log        logger.Interface
}

// NewServer creates the operator server on the given address.
func NewServer(addr string, router *gin.Engine, log logger.Interface) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: log.WithComponent("api"),
	}
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("operator endpoint listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
