// Package runner implements a pipeline backed by an external inference runner.
//
// The runner is a separate process that holds the model on the accelerator and
// exposes two endpoints:
//
//	GET  /health    200 once the model is loaded
//	POST /generate  JSON generation request, JSON {"image": "<base64 png>"} response
package runner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aescanero/glimage/pkg/domain"
	"github.com/aescanero/glimage/pkg/imageutil"
	"github.com/aescanero/glimage/pkg/ports"
	"go.uber.org/zap"
)

const (
	healthPollInterval = 500 * time.Millisecond
	pingTimeout        = 5 * time.Second
)

// Config holds runner client configuration
type Config struct {
	BaseURL        string
	Model          string
	LoadTimeout    time.Duration
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Client implements ports.Pipeline over HTTP
type Client struct {
	baseURL     string
	model       string
	loadTimeout time.Duration
	client      *http.Client
	logger      *zap.Logger
}

// generateRequest is sent to the runner
type generateRequest struct {
	Model             string   `json:"model"`
	Prompt            string   `json:"prompt"`
	Images            []string `json:"images,omitempty"`
	Height            int      `json:"height"`
	Width             int      `json:"width"`
	NumInferenceSteps int      `json:"num_inference_steps"`
	GuidanceScale     float64  `json:"guidance_scale"`
	Seed              int64    `json:"seed"`
}

// generateResponse is received from the runner
type generateResponse struct {
	Image string `json:"image"`
	Error string `json:"error,omitempty"`
}

// NewClient creates a new runner client
func NewClient(cfg *Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("runner URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	loadTimeout := cfg.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = 10 * time.Minute
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Minute
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		loadTimeout: loadTimeout,
		client:      &http.Client{Timeout: requestTimeout},
		logger:      cfg.Logger,
	}, nil
}

// Name returns the model served by the runner
func (c *Client) Name() string {
	return c.model
}

// Ping checks if the runner is healthy
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

// Load waits until the runner reports the model loaded
func (c *Client) Load(ctx context.Context) error {
	c.logger.Info("waiting for inference runner",
		zap.String("url", c.baseURL),
		zap.String("model", c.model),
		zap.Duration("timeout", c.loadTimeout))

	timeout := time.NewTimer(c.loadTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = c.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			c.logger.Info("inference runner is ready", zap.String("url", c.baseURL))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("timeout waiting for inference runner: %w", lastErr)
		case <-ticker.C:
		}
	}
}

// Generate sends one generation request to the runner
func (c *Client) Generate(ctx context.Context, in *domain.PipelineInput, progress ports.ProgressFunc) (image.Image, error) {
	body := generateRequest{
		Model:             c.model,
		Prompt:            in.Prompt,
		Height:            in.Height,
		Width:             in.Width,
		NumInferenceSteps: in.NumInferenceSteps,
		GuidanceScale:     in.GuidanceScale,
		Seed:              in.Seed,
	}
	for i, img := range in.Images {
		data, err := imageutil.EncodePNG(img)
		if err != nil {
			return nil, fmt.Errorf("failed to encode input image %d: %w", i, err)
		}
		body.Images = append(body.Images, base64.StdEncoding.EncodeToString(data))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner request failed: %w", err)
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode runner response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("runner returned %d: %s", resp.StatusCode, msg)
	}
	if out.Image == "" {
		return nil, errors.New("runner returned no image")
	}

	img, err := imageutil.DecodeBase64(out.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode runner image: %w", err)
	}

	if img.Bounds().Dx() != in.Width || img.Bounds().Dy() != in.Height {
		c.logger.Warn("runner returned unexpected image size, resizing",
			zap.Int("width", img.Bounds().Dx()),
			zap.Int("height", img.Bounds().Dy()),
			zap.Int("requested_width", in.Width),
			zap.Int("requested_height", in.Height))
		img = imageutil.Resize(img, in.Width, in.Height)
	}

	if progress != nil {
		progress(domain.Progress{Step: in.NumInferenceSteps, Total: in.NumInferenceSteps})
	}

	return img, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
