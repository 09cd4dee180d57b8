package http

import (
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/aescanero/glimage/pkg/domain"
	"github.com/aescanero/glimage/pkg/imageutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultSteps    = 50
	defaultGuidance = 1.5
	defaultSeed     = 42

	defaultListLimit = 20
	maxListLimit     = 200
)

// TextToImageRequest is the JSON body of POST /api/text-to-image
type TextToImageRequest struct {
	Prompt            string  `json:"prompt"`
	Height            int     `json:"height"`
	Width             int     `json:"width"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Seed              int64   `json:"seed"`
}

// newTextToImageRequest returns a request holding the defaults for absent fields
func newTextToImageRequest() TextToImageRequest {
	return TextToImageRequest{
		Height:            32 * 32,
		Width:             36 * 32,
		NumInferenceSteps: defaultSteps,
		GuidanceScale:     defaultGuidance,
		Seed:              defaultSeed,
	}
}

// GenerationResponse is returned for a successful generation
type GenerationResponse struct {
	Image  string `json:"image"`
	Status string `json:"status"`
	ID     string `json:"id"`
	Seed   int64  `json:"seed"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status string      `json:"status"`
	Detail string      `json:"detail"`
	Error  ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleIndex serves the web UI
func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// handleHealth handles liveness checks
func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{
		"model": "loading",
	}
	if s.host.Ready() {
		checks["model"] = "ok"
	}

	status := http.StatusOK
	if s.pool != nil {
		worker := s.pool.Health().GetStatus()
		checks["worker"] = worker
		if !worker.Healthy {
			status = http.StatusServiceUnavailable
		}
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":    state,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// handleReady reports whether generation requests can be served
func (s *Server) handleReady(c *gin.Context) {
	if !s.host.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "loading",
			"model":  s.host.ModelName(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"model":  s.host.ModelName(),
	})
}

// handleTextToImage handles text-to-image generation
func (s *Server) handleTextToImage(c *gin.Context) {
	req := newTextToImageRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		if isBodyTooLarge(err) {
			abortWithError(c, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "request body is too large")
			return
		}
		s.logger.Warn("invalid text-to-image request", zap.Error(err))
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := s.host.TextToImage(c.Request.Context(), &domain.GenerationRequest{
		Mode:              domain.ModeTextToImage,
		Prompt:            req.Prompt,
		Height:            req.Height,
		Width:             req.Width,
		NumInferenceSteps: req.NumInferenceSteps,
		GuidanceScale:     req.GuidanceScale,
		Seed:              req.Seed,
	})
	if err != nil {
		s.writeGenerationError(c, err)
		return
	}

	s.writeResult(c, result)
}

// handleImageToImage handles image-to-image generation from a multipart form
func (s *Server) handleImageToImage(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		if isBodyTooLarge(err) {
			abortWithError(c, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "request body is too large")
			return
		}
		s.logger.Warn("invalid image-to-image request", zap.Error(err))
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		abortWithError(c, http.StatusBadRequest, "NO_IMAGES", domain.ErrNoImages.Error())
		return
	}

	req := &domain.GenerationRequest{
		Mode:   domain.ModeImageToImage,
		Prompt: c.PostForm("prompt"),
	}

	fields := []struct {
		name string
		err  error
	}{
		{"height", formInt(c, "height", 33*32, &req.Height)},
		{"width", formInt(c, "width", 32*32, &req.Width)},
		{"num_inference_steps", formInt(c, "num_inference_steps", defaultSteps, &req.NumInferenceSteps)},
		{"guidance_scale", formFloat(c, "guidance_scale", defaultGuidance, &req.GuidanceScale)},
		{"seed", formInt64(c, "seed", defaultSeed, &req.Seed)},
	}
	for _, f := range fields {
		if f.err != nil {
			abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid %s: %v", f.name, f.err))
			return
		}
	}

	req.Images = make([]image.Image, 0, len(files))
	for _, fh := range files {
		img, err := decodeUpload(fh, s.maxInputPixels)
		if err != nil {
			s.logger.Warn("invalid uploaded image",
				zap.String("filename", fh.Filename),
				zap.Error(err))
			abortWithError(c, http.StatusBadRequest, "INVALID_IMAGE", fmt.Sprintf("%s: %v", fh.Filename, err))
			return
		}
		req.Images = append(req.Images, img)
	}

	result, err := s.host.ImageToImage(c.Request.Context(), req)
	if err != nil {
		s.writeGenerationError(c, err)
		return
	}

	s.writeResult(c, result)
}

// handleListGenerations lists recent generation records
func (s *Server) handleListGenerations(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := s.host.ListRecords(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list generations", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "STORAGE_ERROR", "failed to retrieve generations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"generations": records,
		"total":       len(records),
		"limit":       limit,
	})
}

// handleGetGeneration returns a single generation record
func (s *Server) handleGetGeneration(c *gin.Context) {
	id := c.Param("id")

	record, err := s.host.GetRecord(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, "NOT_FOUND", "generation not found")
			return
		}
		s.logger.Error("failed to get generation", zap.String("generation_id", id), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "STORAGE_ERROR", "failed to retrieve generation")
		return
	}

	c.JSON(http.StatusOK, record)
}

// writeResult encodes the generated image and writes the success envelope
func (s *Server) writeResult(c *gin.Context, result *domain.GenerationResult) {
	dataURL, err := imageutil.EncodeDataURL(result.Image)
	if err != nil {
		s.logger.Error("failed to encode image",
			zap.String("generation_id", result.ID),
			zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "GENERATION_FAILED", fmt.Sprintf("%v: %v", domain.ErrInferenceFailed, err))
		return
	}

	c.JSON(http.StatusOK, GenerationResponse{
		Image:  dataURL,
		Status: string(domain.GenerationStatusSucceeded),
		ID:     result.ID,
		Seed:   result.Seed,
	})
}

// writeGenerationError maps a host error to a status code and error code
func (s *Server) writeGenerationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNoImages):
		abortWithError(c, http.StatusBadRequest, "NO_IMAGES", err.Error())
	case errors.Is(err, domain.ErrInvalidImage):
		abortWithError(c, http.StatusBadRequest, "INVALID_IMAGE", err.Error())
	case errors.Is(err, domain.ErrEmptyPrompt), errors.Is(err, domain.ErrInvalidParameter):
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrNotReady):
		abortWithError(c, http.StatusServiceUnavailable, "MODEL_NOT_READY", domain.ErrNotReady.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "GENERATION_FAILED", err.Error())
	}
}

// abortWithError writes the error envelope and stops the handler chain
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Status: "error",
		Detail: message,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// isBodyTooLarge reports whether err came from the maxBodySize reader, which
// is how bodies without a declared length end up over the limit
func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// decodeUpload reads and decodes one uploaded file
func decodeUpload(fh *multipart.FileHeader, maxPixels int) (image.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	img, _, err := imageutil.DecodeLimited(data, maxPixels)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func formInt(c *gin.Context, name string, def int, dst *int) error {
	raw, ok := c.GetPostForm(name)
	if !ok || raw == "" {
		*dst = def
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func formInt64(c *gin.Context, name string, def int64, dst *int64) error {
	raw, ok := c.GetPostForm(name)
	if !ok || raw == "" {
		*dst = def
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func formFloat(c *gin.Context, name string, def float64, dst *float64) error {
	raw, ok := c.GetPostForm(name)
	if !ok || raw == "" {
		*dst = def
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
