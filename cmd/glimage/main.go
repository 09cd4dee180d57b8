package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/glimage/internal/application/generation"
	"github.com/aescanero/glimage/internal/application/workers"
	"github.com/aescanero/glimage/internal/config"
	eventsmemory "github.com/aescanero/glimage/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/glimage/pkg/adapters/events/redis"
	"github.com/aescanero/glimage/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/glimage/pkg/adapters/pipeline"
	storagememory "github.com/aescanero/glimage/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/glimage/pkg/adapters/storage/redis"
	"github.com/aescanero/glimage/pkg/api/grpc"
	"github.com/aescanero/glimage/pkg/api/http"
	"github.com/aescanero/glimage/pkg/api/websocket"
	"github.com/aescanero/glimage/pkg/ports"

	promclient "github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting glimage",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("pipeline_backend", cfg.Pipeline.Backend),
		zap.String("model", cfg.Pipeline.Model))

	ctx := context.Background()

	// Redis is only needed for the redis event bus or record storage
	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Initialize adapters
	var eventBus ports.EventBus
	if cfg.Events.Backend == "redis" {
		eventBus = eventsredis.NewStreamsEventBus(redisClient, cfg.Events.StreamMaxLen, logger)
	} else {
		eventBus = eventsmemory.NewInMemoryEventBus(logger)
	}

	var recordStorage ports.RecordStorage
	if cfg.Storage.Backend == "redis" {
		recordStorage = storageredis.NewRecordStorage(redisClient, cfg.Storage.RecordTTL, cfg.Storage.MaxRecords, logger)
	} else {
		recordStorage = storagememory.NewInMemoryRecordStorage(cfg.Storage.RecordTTL, cfg.Storage.MaxRecords)
	}

	metricsCollector := prometheus.NewCollector(promclient.DefaultRegisterer)

	imagePipeline, err := pipeline.NewPipeline(&pipeline.Config{
		Backend:        cfg.Pipeline.Backend,
		Model:          cfg.Pipeline.Model,
		RunnerURL:      cfg.Pipeline.RunnerURL,
		LoadTimeout:    cfg.Pipeline.LoadTimeout,
		RequestTimeout: cfg.Pipeline.RequestTimeout,
		LoadDelay:      cfg.Pipeline.LoadDelay,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("failed to create pipeline", zap.Error(err))
	}

	// Initialize application components
	limits := generation.DefaultLimits()
	limits.MinSteps = cfg.Generation.MinSteps
	limits.MaxSteps = cfg.Generation.MaxSteps

	workerPool := workers.NewPool(metricsCollector, logger, cfg.Workers.HealthCheckInterval)

	host := generation.NewHost(
		imagePipeline,
		workerPool,
		eventBus,
		recordStorage,
		metricsCollector,
		generation.NewValidator(limits),
		logger,
	)

	// Start worker pool
	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	// The model must be loaded before any request is accepted
	loadCtx, cancelLoad := context.WithTimeout(ctx, cfg.Pipeline.LoadTimeout)
	err = host.Load(loadCtx)
	cancelLoad()
	if err != nil {
		logger.Fatal("failed to load model", zap.Error(err))
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Addr:           cfg.GetHTTPAddr(),
		Host:           host,
		Pool:           workerPool,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MaxInputPixels: cfg.Generation.MaxInputPixels,
		Logger:         logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	var grpcServer *grpc.Server
	if cfg.GRPCPort != 0 {
		grpcServer, err = grpc.NewServer(&grpc.Config{
			Addr:   cfg.GetGRPCAddr(),
			Logger: logger,
		})
		if err != nil {
			logger.Fatal("failed to create gRPC server", zap.Error(err))
		}
		grpcServer.SetServing(host.Ready())
	}

	// Start servers; the first server to fail triggers a shutdown
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(httpServer.Start)
	if grpcServer != nil {
		group.Go(grpcServer.Start)
	}

	logger.Info("glimage started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("events_backend", cfg.Events.Backend),
		zap.String("storage_backend", cfg.Storage.Backend))

	// Wait for interrupt signal or a server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-groupCtx.Done():
		logger.Error("server failed", zap.Error(context.Cause(groupCtx)))
	}

	logger.Info("shutting down")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.SetServing(false)
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if grpcServer != nil {
		if err := grpcServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("gRPC server shutdown error", zap.Error(err))
		}
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := host.Shutdown(shutdownCtx); err != nil {
		logger.Error("model host shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	if err := group.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
	}

	logger.Info("glimage shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
