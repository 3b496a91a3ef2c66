package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuizPaulo1002/neuramaint/internal/metrics"
	"github.com/LuizPaulo1002/neuramaint/internal/model"
	"github.com/LuizPaulo1002/neuramaint/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededStore() *store.MemoryStore {
	mem := store.NewMemoryStore()
	mem.AddEquipment(&model.Equipment{ID: 1, Name: "Pump A"})
	mem.AddEquipment(&model.Equipment{ID: 2, Name: "Pump B"})
	mem.AddSensor(&model.Sensor{ID: 1, EquipmentID: 1, Type: model.SensorTemperature, Name: "temp-a1", Active: true})
	mem.AddSensor(&model.Sensor{ID: 2, EquipmentID: 2, Type: model.SensorPressure, Name: "press-b1", Active: true})
	return mem
}

func newTestEngine(mem *store.MemoryStore, cfg EngineConfig) *Engine {
	return NewEngine(mem, mem, cfg, metrics.NewMetrics(prometheus.NewRegistry()), testLogger())
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		probability float64
		want        model.Severity
	}{
		{0, model.SeverityNormal},
		{39.9, model.SeverityNormal},
		{40, model.SeverityAttention},
		{69.9, model.SeverityAttention},
		{70, model.SeverityCritical},
		{100, model.SeverityCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifySeverity(tt.probability), "probability %v", tt.probability)
	}
}

func TestEvaluateCriticalCreatesAlert(t *testing.T) {
	mem := seededStore()
	engine := newTestEngine(mem, EngineConfig{})

	a, err := engine.Evaluate(context.Background(), 1, 85, 95.0, model.RoleSystem)
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.Equal(t, model.AlertFailurePrediction, a.Type)
	assert.Equal(t, model.SeverityCritical, a.Severity)
	assert.Equal(t, model.AlertPending, a.Status)
	assert.Equal(t, int64(1), a.EquipmentID)
	assert.Contains(t, a.Message, "85%")
}

func TestEvaluateAttentionCreatesNoAlertByDefault(t *testing.T) {
	mem := seededStore()
	engine := newTestEngine(mem, EngineConfig{})

	a, err := engine.Evaluate(context.Background(), 1, 45, 45.0, model.RoleSystem)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestEvaluateAttentionOptIn(t *testing.T) {
	mem := seededStore()
	engine := newTestEngine(mem, EngineConfig{AttentionAlerts: true})

	a, err := engine.Evaluate(context.Background(), 1, 45, 45.0, model.RoleSystem)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, model.SeverityAttention, a.Severity)
}

func TestEvaluateNormalNoAlert(t *testing.T) {
	mem := seededStore()
	engine := newTestEngine(mem, EngineConfig{AttentionAlerts: true})

	a, err := engine.Evaluate(context.Background(), 1, 10, 42.0, model.RoleSystem)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestEvaluateForbiddenRole(t *testing.T) {
	mem := seededStore()
	engine := newTestEngine(mem, EngineConfig{})

	_, err := engine.Evaluate(context.Background(), 1, 85, 95.0, model.RoleManager)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindForbidden))
}

func TestEvaluateUnknownSensor(t *testing.T) {
	mem := seededStore()
	engine := newTestEngine(mem, EngineConfig{})

	_, err := engine.Evaluate(context.Background(), 99, 85, 95.0, model.RoleSystem)
	require.Error(t, err)
}

func TestEvaluateDedupAgainstPending(t *testing.T) {
	mem := seededStore()
	engine := newTestEngine(mem, EngineConfig{})
	ctx := context.Background()

	first, err := engine.Evaluate(ctx, 1, 85, 95.0, model.RoleSystem)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := engine.Evaluate(ctx, 1, 90, 97.0, model.RoleSystem)
	require.NoError(t, err)
	assert.Nil(t, second, "pending alert must suppress a duplicate")

	// A different equipment is unaffected.
	other, err := engine.Evaluate(ctx, 2, 90, 16.0, model.RoleSystem)
	require.NoError(t, err)
	assert.NotNil(t, other)
}

func TestEvaluateConcurrentSingleAlert(t *testing.T) {
	mem := seededStore()
	engine := newTestEngine(mem, EngineConfig{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for n := 0; n < 10; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Evaluate(ctx, 1, 90, 96.0, model.RoleSystem)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pending, err := mem.ListActiveAlerts(ctx, store.ActiveAlertFilter{EquipmentID: 1})
	require.NoError(t, err)
	assert.Len(t, pending, 1, "at most one pending failure-prediction alert may exist")
}

func TestEvaluateCooldownSuppressesAfterResolve(t *testing.T) {
	mem := seededStore()
	engine := newTestEngine(mem, EngineConfig{DedupeCooldown: time.Hour})
	ctx := context.Background()

	a, err := engine.Evaluate(ctx, 1, 85, 95.0, model.RoleSystem)
	require.NoError(t, err)
	require.NotNil(t, a)

	// Resolve the alert so no pending alert remains.
	now := time.Now().UTC()
	a.Status = model.AlertResolved
	a.ResolvedAt = &now
	require.NoError(t, mem.UpdateAlert(ctx, a))

	again, err := engine.Evaluate(ctx, 1, 88, 96.0, model.RoleSystem)
	require.NoError(t, err)
	assert.Nil(t, again, "cooldown must suppress re-raising within the window")
}

func TestHandlePredictionFailure(t *testing.T) {
	mem := seededStore()
	engine := newTestEngine(mem, EngineConfig{})
	ctx := context.Background()

	cause := errors.New("prediction TIMEOUT: request exceeded 2s")
	a, err := engine.HandlePredictionFailure(ctx, 1, cause)
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.Equal(t, model.AlertSystem, a.Type)
	assert.Equal(t, model.SeverityAttention, a.Severity)
	assert.Contains(t, a.Message, "Prediction service")

	// A second failure while the system alert is pending is absorbed.
	again, err := engine.HandlePredictionFailure(ctx, 1, cause)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestEarlyFailureHookNotRequired(t *testing.T) {
	mem := seededStore()
	engine := newTestEngine(mem, EngineConfig{})

	// No hook installed: evaluation must work regardless.
	a, err := engine.Evaluate(context.Background(), 1, 85, 95.0, model.RoleSystem)
	require.NoError(t, err)
	assert.NotNil(t, a)
}
