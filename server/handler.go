package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/krau/konarate/codec"
	"github.com/krau/konarate/enhancer"
	"github.com/krau/konarate/logging"
	"github.com/krau/konarate/scorer"
	"github.com/krau/konarate/service"
)

var (
	ErrValidation     = errors.New("invalid request")
	errUploadTooLarge = errors.New("upload too large")
)

// Pipeline is what the handlers need from the service layer.
type Pipeline interface {
	Rate(ctx context.Context, data []byte) (*scorer.Result, error)
	Upscale(ctx context.Context, data []byte) (*enhancer.Result, error)
	RateEnhanceRate(ctx context.Context, data []byte) (*service.PipelineResult, error)
	ScorerLoaded() bool
	EnhancerLoaded() bool
	Health() service.Health
	ModelsInfo() service.ModelsInfo
}

type handler struct {
	pipeline      Pipeline
	maxUploadSize int64
	logger        *zap.Logger
}

type upload struct {
	filename string
	data     []byte
}

// readUpload pulls the "file" part out of a multipart body. Its content type
// must be image/*.
func (h *handler) readUpload(c *gin.Context) (*upload, error) {
	if h.maxUploadSize > 0 {
		if c.Request.ContentLength > h.maxUploadSize {
			return nil, fmt.Errorf("%w: limit is %d bytes", errUploadTooLarge, h.maxUploadSize)
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit is %d bytes", errUploadTooLarge, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: no file uploaded", ErrValidation)
	}
	if !strings.HasPrefix(fileHeader.Header.Get("Content-Type"), "image/") {
		return nil, fmt.Errorf("%w: file must be an image", ErrValidation)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open uploaded file", ErrValidation)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return &upload{filename: fileHeader.Filename, data: data}, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, codec.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, errUploadTooLarge), errors.Is(err, codec.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(c *gin.Context, prefix string, err error) {
	status := statusFor(err)
	log := logging.WithOperation(h.logger, c.FullPath(), c.GetString("request_id"))
	if stage := logging.StageOf(err); stage != "" {
		log = log.With(zap.String("stage", stage))
	}
	switch {
	case status == http.StatusInternalServerError:
		log.Error(prefix, zap.Error(err))
	case status > http.StatusInternalServerError:
		log.Warn(prefix, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": fmt.Sprintf("%s: %v", prefix, err)})
}

func (h *handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Image Quality Rating and Enhancement API is running",
		"status":  "healthy",
	})
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.Health())
}

func (h *handler) modelsInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.ModelsInfo())
}

func (h *handler) rateImage(c *gin.Context) {
	if !h.pipeline.ScorerLoaded() {
		h.fail(c, "Image scoring model not loaded", service.ErrModelNotLoaded)
		return
	}
	up, err := h.readUpload(c)
	if err != nil {
		h.fail(c, "Error rating image", err)
		return
	}
	res, err := h.pipeline.Rate(c.Request.Context(), up.data)
	if err != nil {
		h.fail(c, "Error rating image", err)
		return
	}
	c.JSON(http.StatusOK, newRateResponse(up.filename, res))
}

func (h *handler) enhanceImage(c *gin.Context) {
	if !h.pipeline.EnhancerLoaded() {
		h.fail(c, "Image enhancement model not loaded", service.ErrModelNotLoaded)
		return
	}
	up, err := h.readUpload(c)
	if err != nil {
		h.fail(c, "Error enhancing image", err)
		return
	}
	res, err := h.pipeline.Upscale(c.Request.Context(), up.data)
	if err != nil {
		h.fail(c, "Error enhancing image", err)
		return
	}
	c.JSON(http.StatusOK, newEnhanceResponse(up.filename, res))
}

func (h *handler) processComplete(c *gin.Context) {
	if !h.pipeline.ScorerLoaded() || !h.pipeline.EnhancerLoaded() {
		h.fail(c, "Required models not loaded", service.ErrModelNotLoaded)
		return
	}
	up, err := h.readUpload(c)
	if err != nil {
		h.fail(c, "Error processing image", err)
		return
	}
	res, err := h.pipeline.RateEnhanceRate(c.Request.Context(), up.data)
	if err != nil {
		h.fail(c, "Error processing image", err)
		return
	}
	c.JSON(http.StatusOK, newCompleteResponse(up.filename, res))
}

func (h *handler) enhancedImage(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{
		"error": "Enhanced image download not implemented. Use base64 from /process/complete endpoint.",
	})
}
