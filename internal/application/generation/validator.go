package generation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/aescanero/glimage/pkg/domain"
)

// Limits bounds the parameters a request may carry
type Limits struct {
	MinSteps     int
	MaxSteps     int
	MinSize      int
	MaxSize      int
	SizeMultiple int
	MaxGuidance  float64
}

// DefaultLimits matches the ranges offered by the bundled web page
func DefaultLimits() Limits {
	return Limits{
		MinSteps:     10,
		MaxSteps:     100,
		MinSize:      32,
		MaxSize:      2048,
		SizeMultiple: 32,
		MaxGuidance:  30,
	}
}

// maxRandomSeed keeps generated seeds in the 32-bit range the UI can display and replay
const maxRandomSeed = 1 << 32

// Validator validates and normalizes generation requests
type Validator struct {
	limits Limits
	seedFn func() int64
}

// NewValidator creates a new request validator
func NewValidator(limits Limits) *Validator {
	return &Validator{
		limits: limits,
		seedFn: func() int64 { return rand.Int64N(maxRandomSeed) },
	}
}

// Validate checks a request for mode
func (v *Validator) Validate(mode domain.Mode, req *domain.GenerationRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is nil", domain.ErrInvalidParameter)
	}

	if mode == domain.ModeImageToImage && len(req.Images) == 0 {
		return domain.ErrNoImages
	}
	for i, img := range req.Images {
		if img == nil || img.Bounds().Empty() {
			return fmt.Errorf("%w: image %d is empty", domain.ErrInvalidImage, i)
		}
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return domain.ErrEmptyPrompt
	}

	if err := v.validateSize("height", req.Height); err != nil {
		return err
	}
	if err := v.validateSize("width", req.Width); err != nil {
		return err
	}

	if math.IsNaN(req.GuidanceScale) || req.GuidanceScale <= 0 || req.GuidanceScale > v.limits.MaxGuidance {
		return fmt.Errorf("%w: guidance_scale must be greater than 0 and at most %g",
			domain.ErrInvalidParameter, v.limits.MaxGuidance)
	}

	return nil
}

// validateSize validates a single output dimension
func (v *Validator) validateSize(name string, size int) error {
	if size < v.limits.MinSize || size > v.limits.MaxSize {
		return fmt.Errorf("%w: %s must be between %d and %d, got %d",
			domain.ErrInvalidParameter, name, v.limits.MinSize, v.limits.MaxSize, size)
	}
	if v.limits.SizeMultiple > 1 && size%v.limits.SizeMultiple != 0 {
		return fmt.Errorf("%w: %s must be a multiple of %d, got %d",
			domain.ErrInvalidParameter, name, v.limits.SizeMultiple, size)
	}
	return nil
}

// ClampSteps constrains steps into [MinSteps, MaxSteps]
func (v *Validator) ClampSteps(steps int) int {
	if steps < v.limits.MinSteps {
		return v.limits.MinSteps
	}
	if steps > v.limits.MaxSteps {
		return v.limits.MaxSteps
	}
	return steps
}

// ResolveSeed returns seed, or a random non-negative seed for any negative value
func (v *Validator) ResolveSeed(seed int64) int64 {
	if seed < 0 {
		return v.seedFn()
	}
	return seed
}

// Normalize validates req and produces the pipeline input
func (v *Validator) Normalize(mode domain.Mode, req *domain.GenerationRequest) (*domain.PipelineInput, error) {
	if err := v.Validate(mode, req); err != nil {
		return nil, err
	}

	in := &domain.PipelineInput{
		Prompt:            req.Prompt,
		Height:            req.Height,
		Width:             req.Width,
		NumInferenceSteps: v.ClampSteps(req.NumInferenceSteps),
		GuidanceScale:     req.GuidanceScale,
		Seed:              v.ResolveSeed(req.Seed),
	}
	if mode == domain.ModeImageToImage {
		in.Images = req.Images
	}

	return in, nil
}
