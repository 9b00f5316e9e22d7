package api

import (
	"context"
	"net/http"
	"time"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/api/handlers"
	"example.com/flightguild/bot/internal/metrics"
	"example.com/flightguild/bot/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server is the keep-alive HTTP listener with health, metrics and read-only views
type Server struct {
	config     config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.ServerConfig,
	m *metrics.Metrics,
	guild *handlers.GuildHandler,
	tracer tracing.Tracer,
) *Server {
	server := &Server{config: cfg}
	server.router = server.setupRouter(m, guild, tracer)
	server.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRouter(m *metrics.Metrics, guild *handlers.GuildHandler, tracer tracing.Tracer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	handlers.NewMetricsHandler(m, tracer).RegisterRoutes(router)
	guild.RegisterRoutes(router)

	return router
}

// requestLogger logs each request through zerolog
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.httpServer.Addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	timeout := s.config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
