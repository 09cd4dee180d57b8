// Package http provides the HTTP API and the bundled web UI.
//
// The HTTP server exposes endpoints for:
//   - The web UI at /
//   - Text-to-image and image-to-image generation
//   - Generation history
//   - Health and readiness checks
//   - Prometheus metrics
//
// Generation responses carry the image as a PNG data URL. Failures use a
// single envelope whose "detail" field is what the web UI displays.
package http
