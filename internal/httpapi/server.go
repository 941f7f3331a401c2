// Package httpapi exposes the capture pipeline over HTTP: GET/POST
// /thumbnail, a browser-availability health check, and prometheus metrics.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webshot/internal/observability"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr         string
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP front of the service.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	svc    CaptureService
	log    *observability.Logger
}

// NewServer builds the router and wires the capture service in.
func NewServer(cfg ServerConfig, svc CaptureService, log *observability.Logger) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		// Captures can legitimately take tens of seconds.
		cfg.WriteTimeout = 60 * time.Second
	}

	s := &Server{
		svc: svc,
		log: log.Component("http"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())
	engine.Use(s.requestLogger())

	engine.GET("/thumbnail", s.handleGetThumbnail)
	engine.POST("/thumbnail", s.handlePostThumbnail)
	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = engine
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// requestLogger tags each request with an id and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		ctx := observability.ContextWithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-Id", requestID)

		c.Next()

		s.log.Info("request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
