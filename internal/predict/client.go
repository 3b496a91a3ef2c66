// Package predict is the client for the external failure-prediction
// service: bounded-latency HTTP calls, bucketed response memoization and a
// typed error taxonomy for degraded-mode handling.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/LuizPaulo1002/neuramaint/internal/metrics"
	"github.com/LuizPaulo1002/neuramaint/internal/model"
)

const (
	// DefaultTimeout bounds a prediction call; it is the only hard
	// deadline in the pipeline.
	DefaultTimeout = 2 * time.Second
	// DefaultHealthTimeout bounds the cheap liveness probe.
	DefaultHealthTimeout = 1 * time.Second
	// DefaultCacheTTL is how long a memoized prediction stays valid.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCacheSize bounds the in-process cache.
	DefaultCacheSize = 4096
)

// request is the wire format of POST /predict.
type request struct {
	SensorID   int64   `json:"sensor_id"`
	Value      float64 `json:"valor"`
	Timestamp  string  `json:"timestamp"`
	SensorType string  `json:"tipo_sensor"`
}

// response is the wire format of a successful prediction. Only
// probabilidade_falha is mandatory; older service versions omit the rest.
type response struct {
	FailureProbability *float64 `json:"probabilidade_falha"`
	RiskLevel          string   `json:"risco"`
	Recommendation     string   `json:"recomendacao"`
	Confidence         float64  `json:"confianca"`
	PredictedAt        string   `json:"timestamp_predicao"`
}

// Client calls the prediction service with a per-call timeout and memoizes
// results in the injected cache.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	timeout       time.Duration
	healthTimeout time.Duration
	cache         Cache
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHealthTimeout overrides the health probe deadline.
func WithHealthTimeout(d time.Duration) Option {
	return func(c *Client) { c.healthTimeout = d }
}

// NewClient creates a prediction client. cache must not be nil; tests
// inject a fresh instance per run.
func NewClient(baseURL string, cache Cache, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{},
		timeout:       DefaultTimeout,
		healthTimeout: DefaultHealthTimeout,
		cache:         cache,
		metrics:       m,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict returns the failure probability (0-100) for a reading.
func (c *Client) Predict(ctx context.Context, reading *model.SensorReading, sensorType model.SensorType) (float64, error) {
	result, err := c.PredictWithDetails(ctx, reading, sensorType)
	if err != nil {
		return 0, err
	}
	return result.FailureProbability, nil
}

// PredictWithDetails returns the full prediction result, consulting the
// cache first. On any classified failure the error carries the taxonomy
// kind and no probability is fabricated.
func (c *Client) PredictWithDetails(ctx context.Context, reading *model.SensorReading, sensorType model.SensorType) (*model.PredictionResult, error) {
	key := CacheKey(reading.SensorID, reading.Value, time.Now())
	if cached, ok := c.cache.Get(ctx, key); ok {
		c.metrics.CacheHitsTotal.Inc()
		c.logger.Debug("Prediction cache hit", "sensor_id", reading.SensorID, "key", key)
		return cached, nil
	}
	c.metrics.CacheMissesTotal.Inc()

	result, err := c.call(ctx, reading, sensorType)
	if err != nil {
		c.metrics.PredictionsTotal.WithLabelValues(string(KindOf(err))).Inc()
		return nil, err
	}

	c.cache.Set(ctx, key, result)
	c.metrics.PredictionsTotal.WithLabelValues("success").Inc()

	c.logger.Debug("Prediction completed",
		"sensor_id", reading.SensorID,
		"probability", result.FailureProbability,
		"risk", result.RiskLevel)
	return result, nil
}

func (c *Client) call(ctx context.Context, reading *model.SensorReading, sensorType model.SensorType) (*model.PredictionResult, error) {
	body, err := json.Marshal(request{
		SensorID:   reading.SensorID,
		Value:      reading.Value,
		Timestamp:  reading.Timestamp.UTC().Format(time.RFC3339),
		SensorType: string(sensorType),
	})
	if err != nil {
		return nil, newError(ErrInvalidResponse, "failed to encode request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrNetwork, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.PredictionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newError(ErrTimeout, fmt.Sprintf("request exceeded %s", c.timeout), err)
		}
		return nil, newError(ErrNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, newError(ErrUnavailable, fmt.Sprintf("service returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, newError(ErrInvalidResponse, fmt.Sprintf("service rejected request with %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, newError(ErrNetwork, "failed to read response", err)
	}

	var wire response
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, newError(ErrInvalidResponse, "malformed response payload", err)
	}
	if wire.FailureProbability == nil {
		return nil, newError(ErrInvalidResponse, "response missing probabilidade_falha", nil)
	}

	probability := *wire.FailureProbability
	// Out-of-range probabilities are an error, never silently clamped.
	if probability < 0 || probability > 100 {
		return nil, newError(ErrInvalidResponse, fmt.Sprintf("probability %.2f out of range [0,100]", probability), nil)
	}

	result := &model.PredictionResult{
		SensorID:           reading.SensorID,
		FailureProbability: probability,
		RiskLevel:          wire.RiskLevel,
		Recommendation:     wire.Recommendation,
		Confidence:         wire.Confidence,
		PredictedAt:        time.Now().UTC(),
	}
	if ts, err := time.Parse(time.RFC3339, wire.PredictedAt); err == nil {
		result.PredictedAt = ts
	}
	if result.RiskLevel == "" {
		result.RiskLevel = riskLevelFor(probability)
	}
	return result, nil
}

// riskLevelFor maps a probability to the service's risk vocabulary, used
// when an older service version omits the field.
func riskLevelFor(probability float64) string {
	switch {
	case probability >= 70:
		return "alto"
	case probability >= 40:
		return "medio"
	default:
		return "baixo"
	}
}

// IsHealthy probes GET /health with its own short timeout.
func (c *Client) IsHealthy(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// ClearCache evicts all memoized predictions.
func (c *Client) ClearCache(ctx context.Context) {
	c.cache.Clear(ctx)
	c.logger.Info("Prediction cache cleared")
}

// CacheStats returns a snapshot of cache behavior.
func (c *Client) CacheStats(ctx context.Context) CacheStats {
	return c.cache.Stats(ctx)
}
