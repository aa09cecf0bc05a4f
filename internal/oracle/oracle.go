// internal/oracle/oracle.go
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrEmptyResponse = errors.New("oracle: response carried no prediction")
	ErrStatus        = errors.New("oracle: unexpected status")
)

// Prediction is a model's output for one row
type Prediction struct {
	Label      int
	Confidence float64
}

// Oracle is the trained model the replay engine consults
type Oracle interface {
	IsModelReady(ctx context.Context, modelID string) (bool, error)
	Predict(ctx context.Context, modelID string, features map[string]float64) (Prediction, error)
}

// Config configures the HTTP oracle client
type Config struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// ApplyDefaults fills in default values
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 50
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
}

// Validate checks configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("oracle: base_url is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("oracle: base_url must be http or https: %s", c.BaseURL)
	}
	return nil
}

// Client talks to the ML service over HTTP
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a throttled ML service client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst),
		logger:  logger,
	}, nil
}

type predictRequest struct {
	ModelID           string               `json:"model_id"`
	Data              []map[string]float64 `json:"data"`
	IncludeConfidence bool                 `json:"include_confidence"`
}

type predictResponse struct {
	Predictions      []float64 `json:"predictions"`
	ConfidenceScores []float64 `json:"confidence_scores"`
}

// Predict classifies one row
func (c *Client) Predict(ctx context.Context, modelID string, features map[string]float64) (Prediction, error) {
	body, err := json.Marshal(predictRequest{
		ModelID:           modelID,
		Data:              []map[string]float64{features},
		IncludeConfidence: true,
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("oracle: encode request: %w", err)
	}

	var resp predictResponse
	if err := c.do(ctx, http.MethodPost, "/predict", body, &resp); err != nil {
		return Prediction{}, err
	}
	if len(resp.Predictions) == 0 {
		return Prediction{}, ErrEmptyResponse
	}

	p := Prediction{Label: int(math.Round(resp.Predictions[0]))}
	if len(resp.ConfidenceScores) > 0 {
		p.Confidence = clamp(resp.ConfidenceScores[0])
	}
	return p, nil
}

// IsModelReady reports whether the service lists modelID as usable
func (c *Client) IsModelReady(ctx context.Context, modelID string) (bool, error) {
	var resp struct {
		Models []json.RawMessage `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, "/models", nil, &resp); err != nil {
		return false, err
	}

	for _, raw := range resp.Models {
		if modelMatches(raw, modelID) {
			return true, nil
		}
	}
	c.logger.Debug("model not listed by oracle", zap.String("model_id", modelID))
	return false, nil
}

// modelMatches accepts either a bare id string or an object with model_id/id and optional status
func modelMatches(raw json.RawMessage, modelID string) bool {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name == modelID
	}

	var entry struct {
		ModelID string `json:"model_id"`
		ID      string `json:"id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return false
	}
	if entry.ModelID != modelID && entry.ID != modelID {
		return false
	}
	return entry.Status == "" || strings.EqualFold(entry.Status, "ready")
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("oracle: rate limit: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("oracle: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("oracle: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w %d from %s: %s", ErrStatus, resp.StatusCode, path, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("oracle: decode %s response: %w", path, err)
	}
	return nil
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
