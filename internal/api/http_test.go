package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuizPaulo1002/neuramaint/internal/alert"
	"github.com/LuizPaulo1002/neuramaint/internal/events"
	"github.com/LuizPaulo1002/neuramaint/internal/ingest"
	"github.com/LuizPaulo1002/neuramaint/internal/metrics"
	"github.com/LuizPaulo1002/neuramaint/internal/model"
	"github.com/LuizPaulo1002/neuramaint/internal/predict"
	"github.com/LuizPaulo1002/neuramaint/internal/sim"
	"github.com/LuizPaulo1002/neuramaint/internal/store"
)

type testEnv struct {
	server *Server
	store  *store.MemoryStore
}

// newTestEnv wires a full in-memory stack behind the HTTP surface, with a
// fake prediction service answering a fixed probability.
func newTestEnv(t *testing.T, probability float64) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewMetrics(prometheus.NewRegistry())

	mem := store.NewMemoryStore()
	mem.AddEquipment(&model.Equipment{ID: 1, Name: "Pump A"})
	mem.AddEquipment(&model.Equipment{ID: 2, Name: "Pump B"})
	mem.AddSensor(&model.Sensor{ID: 1, EquipmentID: 1, Type: model.SensorTemperature, Name: "temp-a1", Active: true})
	mem.AddSensor(&model.Sensor{ID: 2, EquipmentID: 2, Type: model.SensorPressure, Name: "press-b1", Active: true})
	mem.Assign("tech-1", 1)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"probabilidade_falha": probability,
			"risco":               "alto",
			"timestamp_predicao":  time.Now().UTC().Format(time.RFC3339),
		})
	}))
	t.Cleanup(backend.Close)

	cache := predict.NewLRUCache(128, time.Minute)
	predictor := predict.NewClient(backend.URL, cache, m, logger)

	lifecycle := alert.NewLifecycle(mem, mem, m, logger)

	ingestor, err := ingest.NewIngestor(mem, mem, nil, events.NoopPublisher{}, m, logger)
	require.NoError(t, err)

	generator := sim.NewGenerator(ingestor, mem, nil, logger)
	t.Cleanup(generator.Stop)

	return &testEnv{
		server: NewServer(ingestor, lifecycle, generator, predictor, logger),
		store:  mem,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func adminHeaders() map[string]string {
	return map[string]string{"X-User-Id": "admin-1", "X-User-Role": "admin"}
}

func techHeaders() map[string]string {
	return map[string]string{"X-User-Id": "tech-1", "X-User-Role": "technician"}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["prediction_service"])
}

func TestCreateReading(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodPost, "/api/readings",
		map[string]interface{}{"sensorId": 1, "valor": 65.5}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, 65.5, body["valor"])
}

func TestCreateReadingValidationErrors(t *testing.T) {
	env := newTestEnv(t, 10)

	tests := []struct {
		name  string
		body  map[string]interface{}
		field string
	}{
		{"missing value", map[string]interface{}{"sensorId": 1}, "valor"},
		{"unknown sensor", map[string]interface{}{"sensorId": 99, "valor": 50}, "sensorId"},
		{"unknown field", map[string]interface{}{"sensorId": 1, "valor": 50, "extra": 1}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/readings", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			body := decodeBody(t, rec)
			assert.Equal(t, "validation", body["kind"])
			if tt.field != "" {
				assert.Equal(t, tt.field, body["field"])
			}
		})
	}
}

func TestCreateManualAlert(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodPost, "/api/alerts/", map[string]interface{}{
		"type":        "maintenance",
		"severity":    "attention",
		"message":     "scheduled inspection",
		"equipmentId": 1,
	}, adminHeaders())
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "pending", body["status"])
}

func TestAlertLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	a := &model.Alert{
		ID:          "alert-1",
		Type:        model.AlertFailurePrediction,
		Severity:    model.SeverityCritical,
		Status:      model.AlertPending,
		Message:     "Failure probability 85% for sensor temp-a1 (reading 95.00)",
		EquipmentID: 1,
		SensorID:    1,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, env.store.CreateAlert(ctx, a))

	// Visible in the active listing.
	rec := env.do(t, http.MethodGet, "/api/alerts/active", nil, techHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	// Resolving without a note is rejected.
	rec = env.do(t, http.MethodPut, "/api/alerts/alert-1/resolve",
		map[string]string{"note": ""}, techHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// An unassigned technician is forbidden.
	rec = env.do(t, http.MethodPut, "/api/alerts/alert-1/resolve",
		map[string]string{"note": "fixed"}, map[string]string{"X-User-Id": "tech-2", "X-User-Role": "technician"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The assigned technician resolves it.
	rec = env.do(t, http.MethodPut, "/api/alerts/alert-1/resolve",
		map[string]string{"note": "fixed bearing"}, techHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "resolved", decodeBody(t, rec)["status"])

	// A second resolve conflicts.
	rec = env.do(t, http.MethodPut, "/api/alerts/alert-1/resolve",
		map[string]string{"note": "again"}, techHeaders())
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown alerts are 404.
	rec = env.do(t, http.MethodPut, "/api/alerts/nope/resolve",
		map[string]string{"note": "x"}, adminHeaders())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, 10)

	a := &model.Alert{
		ID:          "alert-2",
		Type:        model.AlertSystem,
		Severity:    model.SeverityAttention,
		Status:      model.AlertPending,
		Message:     "Prediction service degraded for sensor temp-a1",
		EquipmentID: 1,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, env.store.CreateAlert(context.Background(), a))

	rec := env.do(t, http.MethodPut, "/api/alerts/alert-2/cancel", nil, techHeaders())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/alerts/alert-2/cancel", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeBody(t, rec)["status"])
}

func TestAlertHistoryAndStats(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodGet, "/api/alerts/history?pageSize=10", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/alerts/history?from=bogus", nil, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/alerts/stats?days=30", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/alerts/stats?days=999", nil, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCacheEndpoints(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodGet, "/api/predictions/cache/stats", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/predictions/cache/clear", nil, techHeaders())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/predictions/cache/clear", nil, adminHeaders())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSimulatorEndpoints(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodGet, "/api/simulator/status", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["running"])

	rec = env.do(t, http.MethodPost, "/api/simulator/start",
		map[string]interface{}{"interval": "1h", "failureProbability": 0.0}, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["running"])

	// Starting twice conflicts.
	rec = env.do(t, http.MethodPost, "/api/simulator/start", nil, adminHeaders())
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/simulator/sensors/1/generate", nil, adminHeaders())
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/simulator/sensors/1/failure", nil, adminHeaders())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/simulator/sensors/99/failure", nil, adminHeaders())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/simulator/stats", nil, adminHeaders())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/simulator/stop", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["running"])
}

func TestSimulatorBadInterval(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodPost, "/api/simulator/start",
		map[string]interface{}{"interval": "soon"}, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
