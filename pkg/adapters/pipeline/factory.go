package pipeline

import (
	"fmt"
	"time"

	"github.com/aescanero/glimage/pkg/adapters/pipeline/procedural"
	"github.com/aescanero/glimage/pkg/adapters/pipeline/runner"
	"github.com/aescanero/glimage/pkg/ports"
	"go.uber.org/zap"
)

const (
	BackendRunner     = "runner"
	BackendProcedural = "procedural"
)

// Config holds pipeline configuration
type Config struct {
	Backend        string
	Model          string
	RunnerURL      string
	LoadTimeout    time.Duration
	RequestTimeout time.Duration
	LoadDelay      time.Duration
	Logger         *zap.Logger
}

// NewPipeline creates a new pipeline based on backend
func NewPipeline(cfg *Config) (ports.Pipeline, error) {
	switch cfg.Backend {
	case BackendRunner:
		return runner.NewClient(&runner.Config{
			BaseURL:        cfg.RunnerURL,
			Model:          cfg.Model,
			LoadTimeout:    cfg.LoadTimeout,
			RequestTimeout: cfg.RequestTimeout,
			Logger:         cfg.Logger,
		})
	case BackendProcedural:
		return procedural.New(cfg.LoadDelay, cfg.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported pipeline backend: %s", cfg.Backend)
	}
}
