// Package api serves the merge job HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dusk-indust/mailmerge/internal/lineage"
	"github.com/dusk-indust/mailmerge/internal/orchestrator"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the request and server logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLineage enables the template lineage endpoint.
func WithLineage(store lineage.Store) ServerOption {
	return func(s *Server) {
		s.lineage = store
	}
}

// WithDownloads serves dir under /downloads.
func WithDownloads(dir string) ServerOption {
	return func(s *Server) {
		s.downloadDir = dir
	}
}

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// Server exposes a Runner over HTTP. Progress streams are fed by the
// Broadcaster, which must also be registered as a runner observer.
type Server struct {
	runner      *orchestrator.Runner
	events      *orchestrator.Broadcaster
	lineage     lineage.Store
	downloadDir string
	heartbeat   time.Duration
	logger      *zap.Logger

	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the router.
func NewServer(runner *orchestrator.Runner, events *orchestrator.Broadcaster, opts ...ServerOption) *Server {
	s := &Server{
		runner:    runner,
		events:    events,
		heartbeat: 15 * time.Second,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = gin.New()
	s.engine.Use(requestLogger(s.logger), gin.Recovery())
	s.RegisterRoutes(s.engine)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// RegisterRoutes registers the API routes with router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	jobRoutes := v1.Group("/jobs")
	{
		jobRoutes.POST("", s.createJobHandler)
		jobRoutes.GET("", s.listJobsHandler)
		jobRoutes.GET("/:job_id", s.getJobHandler)
		jobRoutes.POST("/:job_id/cancel", s.cancelJobHandler)
		jobRoutes.GET("/:job_id/events", s.jobEventsHandler)
		jobRoutes.GET("/:job_id/manifest", s.manifestHandler)
	}
	v1.POST("/fields", s.fieldsHandler)
	v1.GET("/templates/:template_id/lineage", s.lineageHandler)

	if s.downloadDir != "" {
		router.Static("/downloads", s.downloadDir)
	}
}

// Start listens on addr and serves in a background goroutine. It returns
// the bound address, which differs from addr when the port is 0.
func (s *Server) Start(_ context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("api: listen %s: %w", addr, err)
	}
	s.http = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("api listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}
