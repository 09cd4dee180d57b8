// Package procedural implements a deterministic, CPU-only image pipeline.
//
// It mirrors the shape of a latent diffusion loop: a seeded noise latent is
// denoised toward a prompt-derived target over the requested number of steps
// and then upscaled to the output size. The same prompt, seed and parameters
// always produce the same pixels.
package procedural

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/aescanero/glimage/pkg/domain"
	"github.com/aescanero/glimage/pkg/imageutil"
	"github.com/aescanero/glimage/pkg/ports"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// latentScale is the ratio between output pixels and latent cells
const latentScale = 16

// imageWeight is how much of the input images survives into the target in image-to-image mode
const imageWeight = 0.6

var errNotLoaded = errors.New("procedural pipeline is not loaded")

// Pipeline implements ports.Pipeline without an accelerator
type Pipeline struct {
	loadDelay time.Duration
	logger    *zap.Logger
	loaded    atomic.Bool
}

// New creates a procedural pipeline. loadDelay simulates model load time.
func New(loadDelay time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		loadDelay: loadDelay,
		logger:    logger,
	}
}

// Name returns the backend name
func (p *Pipeline) Name() string {
	return "procedural"
}

// Load marks the pipeline ready after the configured delay
func (p *Pipeline) Load(ctx context.Context) error {
	if p.loadDelay > 0 {
		timer := time.NewTimer(p.loadDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.loaded.Store(true)
	p.logger.Info("procedural pipeline loaded", zap.Duration("load_delay", p.loadDelay))
	return nil
}

// Close unloads the pipeline
func (p *Pipeline) Close() error {
	p.loaded.Store(false)
	return nil
}

// Generate produces one image of in.Width x in.Height
func (p *Pipeline) Generate(ctx context.Context, in *domain.PipelineInput, progress ports.ProgressFunc) (image.Image, error) {
	if !p.loaded.Load() {
		return nil, errNotLoaded
	}
	if in.Width <= 0 || in.Height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", in.Width, in.Height)
	}
	if in.NumInferenceSteps <= 0 {
		return nil, fmt.Errorf("invalid step count %d", in.NumInferenceSteps)
	}

	lw, lh := latentSize(in.Width, in.Height)

	h := fnv.New64a()
	_, _ = h.Write([]byte(in.Prompt))
	promptHash := h.Sum64()

	rng := rand.New(rand.NewPCG(uint64(in.Seed), promptHash))

	target := promptField(promptHash, rng, lw, lh)
	if len(in.Images) > 0 {
		base := imageLatent(in.Images, lw, lh)
		for i := range target {
			target[i] = base[i]*imageWeight + target[i]*(1-imageWeight)
		}
	}

	latent := make([]float32, lw*lh*3)
	for i := range latent {
		latent[i] = rng.Float32()
	}

	guidance := float32(in.GuidanceScale / (in.GuidanceScale + 1))
	total := in.NumInferenceSteps
	for step := 0; step < total; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		alpha := guidance * float32(step+1) / float32(total)
		for i := range latent {
			latent[i] += (target[i] - latent[i]) * alpha
		}

		if progress != nil {
			progress(domain.Progress{Step: step + 1, Total: total})
		}
	}

	return decodeLatent(latent, lw, lh, in.Width, in.Height), nil
}

func latentSize(width, height int) (int, int) {
	lw := width / latentScale
	lh := height / latentScale
	if lw < 2 {
		lw = 2
	}
	if lh < 2 {
		lh = 2
	}
	return lw, lh
}

// promptField renders a smooth two-colour wave pattern. Palette comes from the
// prompt, wave geometry from the seeded generator.
func promptField(promptHash uint64, rng *rand.Rand, lw, lh int) []float32 {
	c1 := [3]float32{
		float32(promptHash&0xff) / 255,
		float32(promptHash>>8&0xff) / 255,
		float32(promptHash>>16&0xff) / 255,
	}
	c2 := [3]float32{
		float32(promptHash>>24&0xff) / 255,
		float32(promptHash>>32&0xff) / 255,
		float32(promptHash>>40&0xff) / 255,
	}

	type wave struct{ fx, fy, phase float64 }
	waves := make([]wave, 2+int(promptHash>>48%3))
	for i := range waves {
		waves[i] = wave{
			fx:    (rng.Float64()*2 - 1) * 4 * math.Pi,
			fy:    (rng.Float64()*2 - 1) * 4 * math.Pi,
			phase: rng.Float64() * 2 * math.Pi,
		}
	}

	field := make([]float32, lw*lh*3)
	for y := 0; y < lh; y++ {
		v := float64(y) / float64(lh)
		for x := 0; x < lw; x++ {
			u := float64(x) / float64(lw)

			var sum float64
			for _, w := range waves {
				sum += math.Sin(w.fx*u + w.fy*v + w.phase)
			}
			t := float32(0.5 + 0.5*sum/float64(len(waves)))

			idx := (y*lw + x) * 3
			for c := 0; c < 3; c++ {
				field[idx+c] = c1[c]*(1-t) + c2[c]*t
			}
		}
	}

	return field
}

// imageLatent averages the input images at latent resolution
func imageLatent(images []image.Image, lw, lh int) []float32 {
	out := make([]float32, lw*lh*3)
	for _, img := range images {
		small := imageutil.Resize(img, lw, lh)
		for y := 0; y < lh; y++ {
			for x := 0; x < lw; x++ {
				px := small.NRGBAAt(x, y)
				idx := (y*lw + x) * 3
				out[idx] += float32(px.R) / 255
				out[idx+1] += float32(px.G) / 255
				out[idx+2] += float32(px.B) / 255
			}
		}
	}

	n := float32(len(images))
	for i := range out {
		out[i] /= n
	}
	return out
}

func decodeLatent(latent []float32, lw, lh, width, height int) image.Image {
	small := image.NewNRGBA(image.Rect(0, 0, lw, lh))
	for y := 0; y < lh; y++ {
		for x := 0; x < lw; x++ {
			idx := (y*lw + x) * 3
			small.SetNRGBA(x, y, color.NRGBA{
				R: toByte(latent[idx]),
				G: toByte(latent[idx+1]),
				B: toByte(latent[idx+2]),
				A: 0xff,
			})
		}
	}

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(out, out.Bounds(), small, small.Bounds(), draw.Src, nil)
	return out
}

func toByte(v float32) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(v*255 + 0.5)
}
