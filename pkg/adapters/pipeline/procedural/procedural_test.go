package procedural

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/aescanero/glimage/pkg/domain"
	"github.com/aescanero/glimage/pkg/imageutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func loadedPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p := New(0, zap.NewNop())
	require.NoError(t, p.Load(context.Background()))
	return p
}

func input(seed int64) *domain.PipelineInput {
	return &domain.PipelineInput{
		Prompt:            "a red fox in snow",
		Height:            512,
		Width:             512,
		NumInferenceSteps: 20,
		GuidanceScale:     1.5,
		Seed:              seed,
	}
}

func pix(t *testing.T, img image.Image) []uint8 {
	t.Helper()
	nrgba, ok := img.(*image.NRGBA)
	require.True(t, ok)
	return nrgba.Pix
}

func TestGenerateDimensions(t *testing.T) {
	p := loadedPipeline(t)

	for _, size := range [][2]int{{512, 512}, {1024, 1152}, {1056, 1024}, {32, 64}} {
		in := input(42)
		in.Height, in.Width = size[0], size[1]

		img, err := p.Generate(context.Background(), in, nil)
		require.NoError(t, err)
		assert.Equal(t, size[1], img.Bounds().Dx())
		assert.Equal(t, size[0], img.Bounds().Dy())
	}
}

func TestGenerateDeterministic(t *testing.T) {
	p := loadedPipeline(t)

	a, err := p.Generate(context.Background(), input(42), nil)
	require.NoError(t, err)
	b, err := p.Generate(context.Background(), input(42), nil)
	require.NoError(t, err)
	assert.Equal(t, pix(t, a), pix(t, b))

	c, err := p.Generate(context.Background(), input(7), nil)
	require.NoError(t, err)
	assert.NotEqual(t, pix(t, a), pix(t, c))
}

func TestGenerateReportsProgress(t *testing.T) {
	p := loadedPipeline(t)

	var steps []domain.Progress
	_, err := p.Generate(context.Background(), input(1), func(pr domain.Progress) {
		steps = append(steps, pr)
	})
	require.NoError(t, err)
	require.Len(t, steps, 20)
	assert.Equal(t, domain.Progress{Step: 20, Total: 20}, steps[19])
}

func TestGenerateWithInputImages(t *testing.T) {
	p := loadedPipeline(t)

	in := input(42)
	in.Images = []image.Image{
		imageutil.Solid(300, 200, color.NRGBA{R: 255, A: 255}),
		imageutil.Solid(64, 64, color.NRGBA{B: 255, A: 255}),
	}

	withImages, err := p.Generate(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 512, 512), withImages.Bounds())

	plain, err := p.Generate(context.Background(), input(42), nil)
	require.NoError(t, err)
	assert.NotEqual(t, pix(t, plain), pix(t, withImages))
}

func TestGenerateErrors(t *testing.T) {
	p := New(0, zap.NewNop())
	_, err := p.Generate(context.Background(), input(42), nil)
	assert.ErrorIs(t, err, errNotLoaded)

	require.NoError(t, p.Load(context.Background()))

	in := input(42)
	in.Width = 0
	_, err = p.Generate(context.Background(), in, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Generate(ctx, input(42), nil)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, p.Close())
	_, err = p.Generate(context.Background(), input(42), nil)
	assert.ErrorIs(t, err, errNotLoaded)
}
