package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Gandorini/S-T-Station/middleware"
	"github.com/Gandorini/S-T-Station/model"
	"github.com/Gandorini/S-T-Station/pkg/logger"
	"github.com/Gandorini/S-T-Station/validation"
	"github.com/gin-gonic/gin"
)

// Validator runs the validation strategies. *validation.Pipeline implements it.
type Validator interface {
	ValidateSheet(ctx context.Context, u validation.Upload) (model.Verdict, error)
	ValidateAndConvert(ctx context.Context, u validation.Upload) (model.ConversionResult, error)
	ValidateHeuristic(ctx context.Context, u validation.Upload) (model.Verdict, error)
	ValidateDeep(ctx context.Context, u validation.Upload) (model.Verdict, error)
}

type ValidationHandler struct {
	validator Validator
	timeout   time.Duration
}

// NewValidationHandler creates the handler. A zero timeout leaves requests
// bounded only by the client connection.
func NewValidationHandler(v Validator, timeout time.Duration) *ValidationHandler {
	return &ValidationHandler{validator: v, timeout: timeout}
}

// DeepResponse flattens the classifier evidence into the verdict.
type DeepResponse struct {
	Valid       bool               `json:"valid"`
	Message     string             `json:"message"`
	Prediction  *model.Prediction  `json:"prediction,omitempty"`
	Predictions []model.Prediction `json:"predictions,omitempty"`
}

// ValidateSheet handles POST /api/validate-sheet
func (h *ValidationHandler) ValidateSheet(c *gin.Context) {
	u, ctx, cancel, ok := h.upload(c)
	if !ok {
		return
	}
	defer cancel()

	v, err := h.validator.ValidateSheet(ctx, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": v.Valid, "message": v.Message})
}

// ValidateAndConvert handles POST /api/validate-and-convert
func (h *ValidationHandler) ValidateAndConvert(c *gin.Context) {
	u, ctx, cancel, ok := h.upload(c)
	if !ok {
		return
	}
	defer cancel()

	res, err := h.validator.ValidateAndConvert(ctx, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ValidateHeuristic handles POST /api/validate-heuristic
func (h *ValidationHandler) ValidateHeuristic(c *gin.Context) {
	u, ctx, cancel, ok := h.upload(c)
	if !ok {
		return
	}
	defer cancel()

	v, err := h.validator.ValidateHeuristic(ctx, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// ValidateDeep handles POST /api/validate-deep
func (h *ValidationHandler) ValidateDeep(c *gin.Context) {
	u, ctx, cancel, ok := h.upload(c)
	if !ok {
		return
	}
	defer cancel()

	v, err := h.validator.ValidateDeep(ctx, u)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := DeepResponse{Valid: v.Valid, Message: v.Message}
	if ev, ok := v.Evidence.(model.ClassificationEvidence); ok {
		if v.Valid {
			resp.Prediction = ev.Best
		} else {
			resp.Predictions = ev.Predictions
		}
	}
	c.JSON(http.StatusOK, resp)
}

// upload reads the multipart "file" field. On failure it has already
// written the response.
func (h *ValidationHandler) upload(c *gin.Context) (validation.Upload, context.Context, context.CancelFunc, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return validation.Upload{}, nil, nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return validation.Upload{}, nil, nil, false
	}
	defer file.Close()

	if validation.KindOf(header.Filename) == validation.KindUnknown {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF and image files are allowed"})
		return validation.Upload{}, nil, nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		}
		return validation.Upload{}, nil, nil, false
	}

	ctx := logger.WithUpload(c.Request.Context(), header.Filename)
	cancel := context.CancelFunc(func() {})
	if h.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
	}
	logger.Info(ctx, "upload received", "bytes", len(data), "kind", validation.KindOf(header.Filename).String())
	return validation.Upload{Filename: header.Filename, Data: data}, ctx, cancel, true
}

// isTooLarge reports whether err came from the MaxBodySize limit. The
// multipart parser does not always wrap the reader error.
func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}

// fail maps infrastructure errors to 5xx and bad uploads to 4xx.
func (h *ValidationHandler) fail(c *gin.Context, err error) {
	requestID := middleware.GetRequestID(c)
	ctx := c.Request.Context()

	var omrErr *validation.OMRExecutionError
	status := http.StatusInternalServerError
	msg := "Validation failed"
	switch {
	case errors.Is(err, validation.ErrUnsupportedFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "request_id": requestID})
		return
	case errors.Is(err, validation.ErrOMRTimeout):
		status, msg = http.StatusGatewayTimeout, "Recognition timed out"
	case validation.IsConfigurationError(err):
		status, msg = http.StatusServiceUnavailable, "Service not configured"
	case errors.As(err, &omrErr):
		status, msg = http.StatusBadGateway, "Recognition failed"
	case errors.Is(err, context.Canceled):
		status, msg = 499, "Request cancelled"
	}

	logger.Error(ctx, "validation failed", "status", status, "error", err)
	c.JSON(status, gin.H{"error": msg, "request_id": requestID})
}
