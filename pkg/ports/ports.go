// Package ports declares the interfaces the application layer depends on.
// Adapters under pkg/adapters implement them.
package ports

import (
	"context"
	"image"
	"time"

	"github.com/aescanero/glimage/pkg/domain"
)

// ProgressFunc receives progress updates while a pipeline is running
type ProgressFunc func(domain.Progress)

// Pipeline is a loaded image generation model
type Pipeline interface {
	// Name identifies the model the pipeline serves
	Name() string
	// Load prepares the pipeline. It is called exactly once before any Generate.
	Load(ctx context.Context) error
	// Generate runs inference and returns a single image of the requested size
	Generate(ctx context.Context, in *domain.PipelineInput, progress ProgressFunc) (image.Image, error)
	// Close releases the pipeline
	Close() error
}

// EventHandler handles an event delivered by the event bus
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and delivers generation lifecycle events
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	// Subscribe delivers events until ctx is cancelled
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// RecordStorage keeps generation records for a limited time
type RecordStorage interface {
	SaveRecord(ctx context.Context, record *domain.GenerationRecord) error
	GetRecord(ctx context.Context, id string) (*domain.GenerationRecord, error)
	// ListRecords returns the most recently submitted records first
	ListRecords(ctx context.Context, limit int) ([]*domain.GenerationRecord, error)
}

// MetricsCollector records service metrics
type MetricsCollector interface {
	RecordGenerationSubmitted(mode string)
	RecordGenerationCompleted(mode, status string, duration time.Duration)
	ObserveQueueWaitTime(mode string, duration time.Duration)
	ObserveInferenceSteps(mode string, steps int)
	SetQueueDepth(depth int)
	SetModelReady(ready bool)
	RecordWorkerPoolStatus(idle, busy, stopped int)
}
