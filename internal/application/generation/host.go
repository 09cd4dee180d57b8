package generation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/glimage/internal/application/workers"
	"github.com/aescanero/glimage/pkg/domain"
	"github.com/aescanero/glimage/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Host owns the loaded pipeline and serves generation requests
type Host struct {
	pipeline  ports.Pipeline
	pool      *workers.Pool
	eventBus  ports.EventBus
	storage   ports.RecordStorage
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger

	ready    atomic.Bool
	loadOnce sync.Once
	loadErr  error
}

// NewHost creates a new model host. The pipeline is not usable until Load succeeds.
func NewHost(
	pipeline ports.Pipeline,
	pool *workers.Pool,
	eventBus ports.EventBus,
	storage ports.RecordStorage,
	metrics ports.MetricsCollector,
	validator *Validator,
	logger *zap.Logger,
) *Host {
	metrics.SetModelReady(false)

	return &Host{
		pipeline:  pipeline,
		pool:      pool,
		eventBus:  eventBus,
		storage:   storage,
		metrics:   metrics,
		validator: validator,
		logger:    logger,
	}
}

// Load loads the pipeline. Only the first call does any work.
func (h *Host) Load(ctx context.Context) error {
	h.loadOnce.Do(func() {
		start := time.Now()
		h.logger.Info("loading pipeline", zap.String("model", h.pipeline.Name()))

		if err := h.pipeline.Load(ctx); err != nil {
			h.loadErr = fmt.Errorf("failed to load pipeline %s: %w", h.pipeline.Name(), err)
			return
		}

		h.ready.Store(true)
		h.metrics.SetModelReady(true)
		h.logger.Info("pipeline loaded",
			zap.String("model", h.pipeline.Name()),
			zap.Duration("duration", time.Since(start)))
	})

	return h.loadErr
}

// Ready reports whether the pipeline is loaded
func (h *Host) Ready() bool {
	return h.ready.Load()
}

// ModelName returns the name of the served model
func (h *Host) ModelName() string {
	return h.pipeline.Name()
}

// TextToImage generates one image from a prompt
func (h *Host) TextToImage(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	return h.generate(ctx, domain.ModeTextToImage, req)
}

// ImageToImage generates one image from a prompt and at least one input image
func (h *Host) ImageToImage(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	return h.generate(ctx, domain.ModeImageToImage, req)
}

// GetRecord returns the history record of a generation
func (h *Host) GetRecord(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	return h.storage.GetRecord(ctx, id)
}

// ListRecords returns recent generation records, newest first
func (h *Host) ListRecords(ctx context.Context, limit int) ([]*domain.GenerationRecord, error) {
	return h.storage.ListRecords(ctx, limit)
}

// Shutdown releases the pipeline
func (h *Host) Shutdown(ctx context.Context) error {
	h.logger.Info("shutting down model host")

	h.ready.Store(false)
	h.metrics.SetModelReady(false)

	if err := h.pipeline.Close(); err != nil {
		return fmt.Errorf("failed to close pipeline: %w", err)
	}

	h.logger.Info("model host shut down complete")
	return nil
}

// generate validates req, runs it on the worker and records the outcome
func (h *Host) generate(ctx context.Context, mode domain.Mode, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	in, err := h.validator.Normalize(mode, req)
	if err != nil {
		return nil, err
	}

	if !h.Ready() {
		return nil, domain.ErrNotReady
	}

	id := uuid.New().String()
	record := &domain.GenerationRecord{
		ID:                id,
		Mode:              mode,
		Prompt:            in.Prompt,
		Height:            in.Height,
		Width:             in.Width,
		NumInferenceSteps: in.NumInferenceSteps,
		GuidanceScale:     in.GuidanceScale,
		RequestedSeed:     req.Seed,
		Seed:              in.Seed,
		InputImages:       len(in.Images),
		Status:            domain.GenerationStatusQueued,
		SubmittedAt:       time.Now(),
	}

	h.saveRecord(ctx, record)
	h.publishEvent(ctx, id, domain.EventTypeGenerationQueued, map[string]interface{}{
		"mode":        string(mode),
		"queue_depth": h.pool.QueueDepth(),
	})
	h.metrics.RecordGenerationSubmitted(string(mode))
	h.metrics.ObserveInferenceSteps(string(mode), in.NumInferenceSteps)

	h.logger.Info("generation queued",
		zap.String("generation_id", id),
		zap.String("mode", string(mode)),
		zap.Int("height", in.Height),
		zap.Int("width", in.Width),
		zap.Int("steps", in.NumInferenceSteps),
		zap.Int("requested_steps", req.NumInferenceSteps),
		zap.Float64("guidance_scale", in.GuidanceScale),
		zap.Int64("seed", in.Seed),
		zap.Int("input_images", len(in.Images)))

	var (
		img    image.Image
		runErr = errors.New("pipeline did not return")
	)

	err = h.pool.Do(ctx, id, func(workerCtx context.Context) {
		startedAt := time.Now()
		h.metrics.ObserveQueueWaitTime(string(mode), startedAt.Sub(record.SubmittedAt))

		record.Status = domain.GenerationStatusRunning
		record.StartedAt = &startedAt
		h.saveRecord(workerCtx, record)
		h.publishEvent(workerCtx, id, domain.EventTypeGenerationStarted, map[string]interface{}{
			"mode":  string(mode),
			"steps": in.NumInferenceSteps,
			"seed":  in.Seed,
		})

		img, runErr = h.pipeline.Generate(workerCtx, in, func(p domain.Progress) {
			h.publishEvent(workerCtx, id, domain.EventTypeGenerationProgress, map[string]interface{}{
				"step":  p.Step,
				"total": p.Total,
			})
		})
	})

	completedAt := time.Now()
	record.CompletedAt = &completedAt

	if err != nil {
		if errors.Is(err, workers.ErrPoolStopped) {
			err = fmt.Errorf("%w: %v", domain.ErrNotReady, err)
		}
		h.fail(record, err)
		return nil, err
	}

	if runErr == nil && img == nil {
		runErr = errors.New("pipeline returned no image")
	}
	if runErr != nil {
		h.fail(record, runErr)
		return nil, fmt.Errorf("%w: %w", domain.ErrInferenceFailed, runErr)
	}

	duration := record.Duration()
	record.Status = domain.GenerationStatusSucceeded
	h.saveRecord(context.Background(), record)
	h.publishEvent(context.Background(), id, domain.EventTypeGenerationCompleted, map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
		"seed":        in.Seed,
	})
	h.metrics.RecordGenerationCompleted(string(mode), string(domain.GenerationStatusSucceeded), duration)

	h.logger.Info("generation completed",
		zap.String("generation_id", id),
		zap.String("mode", string(mode)),
		zap.Duration("duration", duration))

	return &domain.GenerationResult{
		ID:       id,
		Mode:     mode,
		Image:    img,
		Seed:     in.Seed,
		Steps:    in.NumInferenceSteps,
		Duration: duration,
		Status:   domain.GenerationStatusSucceeded,
	}, nil
}

// fail records a failed generation
func (h *Host) fail(record *domain.GenerationRecord, err error) {
	record.Status = domain.GenerationStatusFailed
	record.Error = err.Error()

	ctx := context.Background()
	h.saveRecord(ctx, record)
	h.publishEvent(ctx, record.ID, domain.EventTypeGenerationFailed, map[string]interface{}{
		"error": err.Error(),
	})
	h.metrics.RecordGenerationCompleted(string(record.Mode), string(domain.GenerationStatusFailed), record.Duration())

	h.logger.Error("generation failed",
		zap.String("generation_id", record.ID),
		zap.String("mode", string(record.Mode)),
		zap.Error(err))
}

// saveRecord stores a copy of record; failures are logged only
func (h *Host) saveRecord(ctx context.Context, record *domain.GenerationRecord) {
	if err := h.storage.SaveRecord(ctx, record); err != nil {
		h.logger.Warn("failed to save generation record",
			zap.String("generation_id", record.ID),
			zap.Error(err))
	}
}

// publishEvent publishes a lifecycle event; failures are logged only
func (h *Host) publishEvent(ctx context.Context, generationID string, eventType domain.EventType, data map[string]interface{}) {
	event := domain.Event{
		ID:           uuid.New().String(),
		Type:         eventType,
		GenerationID: generationID,
		Timestamp:    time.Now(),
		Data:         data,
	}

	if err := h.eventBus.Publish(ctx, domain.TopicGenerations, event); err != nil {
		h.logger.Warn("failed to publish event",
			zap.String("generation_id", generationID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
