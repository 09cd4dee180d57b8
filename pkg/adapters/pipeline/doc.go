// Package pipeline provides image generation pipeline implementations.
//
// The factory creates a pipeline based on backend configuration.
// Currently supports:
//   - runner: HTTP client to an inference runner holding the model on the accelerator
//   - procedural: deterministic CPU generator for development and tests
package pipeline
