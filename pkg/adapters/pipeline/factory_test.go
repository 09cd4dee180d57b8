package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewPipeline(t *testing.T) {
	p, err := NewPipeline(&Config{Backend: BackendProcedural, Logger: zap.NewNop()})
	require.NoError(t, err)
	assert.Equal(t, "procedural", p.Name())

	p, err = NewPipeline(&Config{
		Backend:   BackendRunner,
		Model:     "zai-org/GLM-Image",
		RunnerURL: "http://127.0.0.1:8188",
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, "zai-org/GLM-Image", p.Name())

	_, err = NewPipeline(&Config{Backend: "torch", Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestNewPipelineLoadDelay(t *testing.T) {
	p, err := NewPipeline(&Config{Backend: BackendProcedural, LoadDelay: time.Minute, Logger: zap.NewNop()})
	require.NoError(t, err)

	// The configured delay is honoured, so a short deadline cuts the load off
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Load(ctx), context.DeadlineExceeded)
}
