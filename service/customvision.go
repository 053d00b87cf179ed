package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gandorini/S-T-Station/config"
	"github.com/Gandorini/S-T-Station/model"
)

// CustomVisionService calls the Azure Custom Vision prediction API.
type CustomVisionService struct {
	config     *config.ClassifierConfig
	httpClient *http.Client
}

// CustomVisionResponse is the body returned by classify/image.
type CustomVisionResponse struct {
	ID          string `json:"id"`
	Project     string `json:"project"`
	Iteration   string `json:"iteration"`
	Created     string `json:"created"`
	Predictions []struct {
		Probability float64 `json:"probability"`
		TagID       string  `json:"tagId"`
		TagName     string  `json:"tagName"`
	} `json:"predictions"`
}

// CustomVisionError is the error body of the prediction API.
type CustomVisionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewCustomVisionService(cfg *config.ClassifierConfig) *CustomVisionService {
	return &CustomVisionService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// PredictionURL is the classify/image endpoint for the configured project and iteration.
func (s *CustomVisionService) PredictionURL() string {
	return fmt.Sprintf("%s/customvision/v3.0/Prediction/%s/classify/iterations/%s/image",
		strings.TrimRight(s.config.Endpoint, "/"),
		url.PathEscape(s.config.ProjectID),
		url.PathEscape(s.config.Iteration))
}

// Predict uploads image and returns the predictions in the order the service sent them.
func (s *CustomVisionService) Predict(ctx context.Context, image []byte) ([]model.Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.PredictionURL(), bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Prediction-Key", s.config.PredictionKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr CustomVisionError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("custom vision API error (%d %s): %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return nil, fmt.Errorf("custom vision API error (%d): %s", resp.StatusCode, truncate(string(body), 256))
	}

	var result CustomVisionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	predictions := make([]model.Prediction, 0, len(result.Predictions))
	for _, p := range result.Predictions {
		predictions = append(predictions, model.Prediction{Label: p.TagName, Probability: p.Probability})
	}
	return predictions, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
