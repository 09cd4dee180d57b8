package http

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"time"

	"github.com/aescanero/glimage/internal/application/workers"
	"github.com/aescanero/glimage/pkg/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed web/index.html
var indexHTML []byte

// ModelHost is the generation surface the API serves
type ModelHost interface {
	Ready() bool
	ModelName() string
	TextToImage(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error)
	ImageToImage(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error)
	GetRecord(ctx context.Context, id string) (*domain.GenerationRecord, error)
	ListRecords(ctx context.Context, limit int) ([]*domain.GenerationRecord, error)
}

// EventStreamer streams generation events over a websocket
type EventStreamer interface {
	HandleEventStream(c *gin.Context)
}

// Server represents the HTTP API server
type Server struct {
	router         *gin.Engine
	server         *http.Server
	host           ModelHost
	pool           *workers.Pool
	maxUploadBytes int64
	maxInputPixels int
	logger         *zap.Logger
}

// Config holds HTTP server configuration. MaxInputPixels caps width*height
// of each uploaded image; 0 disables the cap.
type Config struct {
	Addr           string
	Host           ModelHost
	Pool           *workers.Pool
	MaxUploadBytes int64
	MaxInputPixels int
	Logger         *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:         router,
		host:           cfg.Host,
		pool:           cfg.Pool,
		maxUploadBytes: cfg.MaxUploadBytes,
		maxInputPixels: cfg.MaxInputPixels,
		logger:         cfg.Logger,
	}
	if s.maxUploadBytes > 0 {
		router.MaxMultipartMemory = s.maxUploadBytes
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	// Web UI
	s.router.GET("/", s.handleIndex)

	// Health and readiness
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)

	// Metrics
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Generation endpoints used by the web UI
	api := s.router.Group("/api", maxBodySize(s.maxUploadBytes))
	{
		api.POST("/text-to-image", s.handleTextToImage)
		api.POST("/image-to-image", s.handleImageToImage)
	}

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/generations", s.handleListGenerations)
		v1.GET("/generations/:id", s.handleGetGeneration)
	}
}

// SetupWebSocket adds the event stream handler to the server
func (s *Server) SetupWebSocket(handler EventStreamer) {
	s.router.GET("/api/v1/events/ws", handler.HandleEventStream)
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()))
	}
}
