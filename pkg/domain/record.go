package domain

import "time"

// GenerationRecord is the metadata kept about a generation after it is served.
// It never contains image data.
type GenerationRecord struct {
	ID                string           `json:"id"`
	Mode              Mode             `json:"mode"`
	Prompt            string           `json:"prompt"`
	Height            int              `json:"height"`
	Width             int              `json:"width"`
	NumInferenceSteps int              `json:"num_inference_steps"`
	GuidanceScale     float64          `json:"guidance_scale"`
	RequestedSeed     int64            `json:"requested_seed"`
	Seed              int64            `json:"seed"`
	InputImages       int              `json:"input_images"`
	Status            GenerationStatus `json:"status"`
	Error             string           `json:"error,omitempty"`
	SubmittedAt       time.Time        `json:"submitted_at"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}

// Duration returns the time spent in the pipeline, or zero if it never ran to completion
func (r *GenerationRecord) Duration() time.Duration {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt)
}
