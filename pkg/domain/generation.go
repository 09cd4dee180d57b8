package domain

import (
	"image"
	"time"
)

// Mode identifies which pipeline entry point a request targets
type Mode string

const (
	ModeTextToImage  Mode = "text-to-image"
	ModeImageToImage Mode = "image-to-image"
)

// RandomSeed asks the host to pick a seed. Any negative seed is treated the same way.
const RandomSeed int64 = -1

// GenerationStatus is the lifecycle status of a single generation
type GenerationStatus string

const (
	GenerationStatusQueued    GenerationStatus = "queued"
	GenerationStatusRunning   GenerationStatus = "running"
	GenerationStatusSucceeded GenerationStatus = "success"
	GenerationStatusFailed    GenerationStatus = "error"
)

// GenerationRequest carries the parameters of one generation call
type GenerationRequest struct {
	Mode              Mode
	Prompt            string
	Images            []image.Image
	Height            int
	Width             int
	NumInferenceSteps int
	GuidanceScale     float64
	Seed              int64
}

// PipelineInput is a normalized request as handed to the pipeline.
// Seed is always non-negative and steps are within the configured bounds.
type PipelineInput struct {
	Prompt            string
	Images            []image.Image
	Height            int
	Width             int
	NumInferenceSteps int
	GuidanceScale     float64
	Seed              int64
}

// Progress reports how far the pipeline is through its denoising loop
type Progress struct {
	Step  int `json:"step"`
	Total int `json:"total"`
}

// GenerationResult is the output of one successful generation
type GenerationResult struct {
	ID       string
	Mode     Mode
	Image    image.Image
	Seed     int64
	Steps    int
	Duration time.Duration
	Status   GenerationStatus
}
