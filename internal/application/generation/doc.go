// Package generation implements the model host.
//
// The host owns the one loaded pipeline and exposes a blocking call per
// generation mode. For every request it:
//   - Validates the prompt, dimensions, guidance scale and input images
//   - Clamps the inference step count into the configured bounds
//   - Resolves the random-seed sentinel to a concrete seed
//   - Runs the pipeline on the single inference worker
//   - Records a history entry, publishes lifecycle events and metrics
//
// Requests are rejected with domain.ErrNotReady until Load has succeeded.
package generation
