package validation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Gandorini/S-T-Station/config"
	"github.com/Gandorini/S-T-Station/model"
	"github.com/Gandorini/S-T-Station/pkg/logger"
)

// DefaultAllowedLabels are the classifier labels accepted as sheet music or
// chord charts.
var DefaultAllowedLabels = []string{"partitura", "partituras", "cifra", "cifras", "sheet music", "chord chart"}

// Predictor sends an image to the remote classifier.
type Predictor interface {
	Predict(ctx context.Context, image []byte) ([]model.Prediction, error)
}

// Classifier returns labelled predictions for a PDF or image on disk.
type Classifier interface {
	Classify(ctx context.Context, path, filename string) ([]model.Prediction, error)
}

// ImageClassifier normalizes an upload to a PNG and asks the Predictor about it.
type ImageClassifier struct {
	predictor Predictor
	raster    *Rasterizer
	audit     *AuditLog
	cfg       config.ClassifierConfig
}

// NewImageClassifier creates a classifier. audit may be nil.
func NewImageClassifier(predictor Predictor, raster *Rasterizer, audit *AuditLog, cfg config.ClassifierConfig) *ImageClassifier {
	return &ImageClassifier{predictor: predictor, raster: raster, audit: audit, cfg: cfg}
}

// Classify returns ErrNoPageImage when a PDF yields no image, and a
// *ConfigurationError when the remote service is not configured.
func (c *ImageClassifier) Classify(ctx context.Context, path, filename string) ([]model.Prediction, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}

	imgPath := path
	if KindOf(path) == KindPDF {
		p, err := c.raster.FirstPage(ctx, path, filepath.Dir(path))
		if err != nil {
			logger.Warn(ctx, "pdf rasterization failed", "error", err)
			return nil, ErrNoPageImage
		}
		imgPath = p
	}

	data, err := normalizeImage(imgPath, c.cfg.MaxImageSide)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}

	predictions, err := c.predictor.Predict(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("classify image: %w", err)
	}
	c.audit.Record(ctx, filename, predictions)
	return predictions, nil
}

func (c *ImageClassifier) checkConfig() error {
	var missing []string
	if c.cfg.Endpoint == "" {
		missing = append(missing, "classifier.endpoint")
	}
	if c.cfg.PredictionKey == "" {
		missing = append(missing, "classifier.prediction_key")
	}
	if c.cfg.ProjectID == "" {
		missing = append(missing, "classifier.project_id")
	}
	if c.cfg.Iteration == "" {
		missing = append(missing, "classifier.iteration")
	}
	if c.predictor == nil && len(missing) == 0 {
		missing = append(missing, "classifier")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// Accept picks the most probable prediction (the earliest on a tie) and
// reports whether its label is in allowed, compared case-insensitively.
func Accept(predictions []model.Prediction, allowed []string) (*model.Prediction, bool) {
	if len(predictions) == 0 {
		return nil, false
	}
	best := predictions[0]
	for _, p := range predictions[1:] {
		if p.Probability > best.Probability {
			best = p
		}
	}
	label := strings.ToLower(strings.TrimSpace(best.Label))
	for _, a := range allowed {
		if label == strings.ToLower(a) {
			return &best, true
		}
	}
	return &best, false
}

// normalizeImage decodes the image at path, fits it within maxSide pixels and
// re-encodes it as PNG.
func normalizeImage(path string, maxSide int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}

	img := src
	if b := src.Bounds(); maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		w, h := fitWithin(b.Dx(), b.Dy(), maxSide)
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func fitWithin(w, h, maxSide int) (int, int) {
	if w >= h {
		return maxSide, max(1, h*maxSide/w)
	}
	return max(1, w*maxSide/h), maxSide
}

// IsConfigurationError reports whether err is a missing-setting error.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
