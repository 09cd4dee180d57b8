package runner

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/glimage/pkg/domain"
	"github.com/aescanero/glimage/pkg/imageutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(&Config{
		BaseURL:        url,
		Model:          "zai-org/GLM-Image",
		LoadTimeout:    2 * time.Second,
		RequestTimeout: 5 * time.Second,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)
	return c
}

func TestLoadWaitsForHealth(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.Load(context.Background()))
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestLoadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(&Config{
		BaseURL:     srv.URL,
		Model:       "m",
		LoadTimeout: 600 * time.Millisecond,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Error(t, c.Load(context.Background()))
}

func TestGenerate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		data, err := imageutil.EncodePNG(imageutil.Solid(got.Width, got.Height, color.White))
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(generateResponse{Image: base64.StdEncoding.EncodeToString(data)})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var last domain.Progress
	img, err := c.Generate(context.Background(), &domain.PipelineInput{
		Prompt:            "a red fox in snow",
		Images:            []image.Image{imageutil.Solid(8, 8, color.Black)},
		Height:            256,
		Width:             128,
		NumInferenceSteps: 20,
		GuidanceScale:     1.5,
		Seed:              42,
	}, func(p domain.Progress) { last = p })
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 128, 256), img.Bounds())
	assert.Equal(t, "zai-org/GLM-Image", got.Model)
	assert.Equal(t, int64(42), got.Seed)
	assert.Equal(t, 20, got.NumInferenceSteps)
	assert.Len(t, got.Images, 1)
	assert.Equal(t, domain.Progress{Step: 20, Total: 20}, last)
}

func TestGenerateResizesMismatchedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		url, _ := imageutil.EncodeDataURL(imageutil.Solid(10, 10, color.White))
		_ = json.NewEncoder(w).Encode(generateResponse{Image: url})
	}))
	defer srv.Close()

	img, err := newTestClient(t, srv.URL).Generate(context.Background(), &domain.PipelineInput{
		Prompt: "p", Height: 64, Width: 96, NumInferenceSteps: 10, GuidanceScale: 1,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 96, 64), img.Bounds())
}

func TestGenerateRunnerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(generateResponse{Error: "CUDA out of memory"})
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Generate(context.Background(), &domain.PipelineInput{
		Prompt: "p", Height: 64, Width: 64, NumInferenceSteps: 10, GuidanceScale: 1,
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(&Config{Model: "m", Logger: zap.NewNop()})
	assert.Error(t, err)
	_, err = NewClient(&Config{BaseURL: "http://x", Logger: zap.NewNop()})
	assert.Error(t, err)
}
