// Package alert turns failure probabilities into operator-facing alerts and
// owns the alert lifecycle state machine.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LuizPaulo1002/neuramaint/internal/metrics"
	"github.com/LuizPaulo1002/neuramaint/internal/model"
	"github.com/LuizPaulo1002/neuramaint/internal/store"
)

// Severity thresholds for the RAG classification.
const (
	CriticalThreshold  = 70.0
	AttentionThreshold = 40.0
)

// earlyFailureChance is the probability that a critical classification
// feeds an early-failure signal back into the simulation.
const earlyFailureChance = 0.05

// ClassifySeverity maps a failure probability (0-100) to a severity level.
func ClassifySeverity(probability float64) model.Severity {
	switch {
	case probability >= CriticalThreshold:
		return model.SeverityCritical
	case probability >= AttentionThreshold:
		return model.SeverityAttention
	default:
		return model.SeverityNormal
	}
}

// EngineConfig tunes alert creation policy.
type EngineConfig struct {
	// AttentionAlerts opts in alert creation for the attention band; by
	// default only critical classifications raise alerts.
	AttentionAlerts bool
	// DedupeCooldown additionally suppresses a new failure-prediction
	// alert for an equipment within this window after the previous one,
	// even if that one was already resolved. Zero disables the cooldown.
	DedupeCooldown time.Duration
}

// Engine evaluates probabilities against thresholds, deduplicates and
// creates alert records.
type Engine struct {
	alerts  store.AlertStore
	sensors store.SensorStore
	cfg     EngineConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	// Per-equipment serialization point: closes the race window between
	// the pending-alert check and the insert.
	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex

	cooldown *cooldownCache

	hookMu       sync.RWMutex
	earlyFailure func(sensorID int64)
}

// NewEngine creates an alert engine.
func NewEngine(alerts store.AlertStore, sensors store.SensorStore, cfg EngineConfig, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		alerts:   alerts,
		sensors:  sensors,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		locks:    make(map[int64]*sync.Mutex),
		cooldown: newCooldownCache(),
	}
}

// SetEarlyFailureHook installs the optional simulation feedback callback.
// Never required for correctness.
func (e *Engine) SetEarlyFailureHook(hook func(sensorID int64)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.earlyFailure = hook
}

// Evaluate turns a probability into zero or one alert. Returns nil when no
// alert is warranted (normal severity, or deduplicated).
func (e *Engine) Evaluate(ctx context.Context, sensorID int64, probability, rawValue float64, callerRole model.Role) (*model.Alert, error) {
	if !CanEvaluate(callerRole) {
		return nil, model.NewForbiddenError("caller may not evaluate predictions")
	}
	if probability < 0 || probability > 100 {
		return nil, model.NewValidationError("probability", "must be within [0,100]")
	}

	severity := ClassifySeverity(probability)
	if severity == model.SeverityNormal {
		return nil, nil
	}
	if severity == model.SeverityAttention && !e.cfg.AttentionAlerts {
		e.logger.Debug("Attention-band probability below alert policy",
			"sensor_id", sensorID,
			"probability", probability)
		return nil, nil
	}

	sensor, err := e.sensors.GetSensor(ctx, sensorID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sensor %d: %w", sensorID, err)
	}

	lock := e.equipmentLock(sensor.EquipmentID)
	lock.Lock()
	defer lock.Unlock()

	// Dedup: never a second pending failure-prediction alert per equipment.
	existing, err := e.alerts.FindPendingAlert(ctx, sensor.EquipmentID, model.AlertFailurePrediction)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending alerts: %w", err)
	}
	if existing != nil {
		e.metrics.AlertsDedupedTotal.Inc()
		e.logger.Debug("Alert deduplicated against pending alert",
			"equipment_id", sensor.EquipmentID,
			"existing_alert_id", existing.ID)
		return nil, nil
	}

	cooldownKey := fmt.Sprintf("%d:%s", sensor.EquipmentID, model.AlertFailurePrediction)
	if e.cfg.DedupeCooldown > 0 && e.cooldown.isWithinCooldown(cooldownKey, e.cfg.DedupeCooldown) {
		e.metrics.AlertsDedupedTotal.Inc()
		e.logger.Debug("Alert suppressed by dedupe cooldown",
			"equipment_id", sensor.EquipmentID,
			"cooldown", e.cfg.DedupeCooldown)
		return nil, nil
	}

	a := &model.Alert{
		ID:          uuid.NewString(),
		Type:        model.AlertFailurePrediction,
		Severity:    severity,
		Status:      model.AlertPending,
		Message:     fmt.Sprintf("Failure probability %.0f%% for sensor %s (reading %.2f)", probability, sensor.Name, rawValue),
		EquipmentID: sensor.EquipmentID,
		SensorID:    sensorID,
		CreatedAt:   time.Now().UTC(),
	}

	if err := e.alerts.CreateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	e.cooldown.record(cooldownKey, time.Now())
	e.metrics.AlertsCreatedTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()

	e.logger.Info("Alert created",
		"alert_id", a.ID,
		"equipment_id", a.EquipmentID,
		"sensor_id", sensorID,
		"severity", a.Severity,
		"probability", probability)

	e.maybeSignalEarlyFailure(sensorID)
	return a, nil
}

// HandlePredictionFailure absorbs a prediction-service error by raising an
// attention-level system alert. It never propagates the original error up
// the ingestion path; only alert-store failures are returned.
func (e *Engine) HandlePredictionFailure(ctx context.Context, sensorID int64, cause error) (*model.Alert, error) {
	sensor, err := e.sensors.GetSensor(ctx, sensorID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sensor %d: %w", sensorID, err)
	}

	lock := e.equipmentLock(sensor.EquipmentID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.alerts.FindPendingAlert(ctx, sensor.EquipmentID, model.AlertSystem)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending alerts: %w", err)
	}
	if existing != nil {
		e.metrics.AlertsDedupedTotal.Inc()
		return nil, nil
	}

	a := &model.Alert{
		ID:          uuid.NewString(),
		Type:        model.AlertSystem,
		Severity:    model.SeverityAttention,
		Status:      model.AlertPending,
		Message:     fmt.Sprintf("Prediction service degraded for sensor %s: %v", sensor.Name, cause),
		EquipmentID: sensor.EquipmentID,
		SensorID:    sensorID,
		CreatedAt:   time.Now().UTC(),
	}

	if err := e.alerts.CreateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create system alert: %w", err)
	}
	e.metrics.AlertsCreatedTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()

	e.logger.Warn("System alert created for degraded prediction service",
		"alert_id", a.ID,
		"sensor_id", sensorID,
		"cause", cause)
	return a, nil
}

func (e *Engine) maybeSignalEarlyFailure(sensorID int64) {
	e.hookMu.RLock()
	hook := e.earlyFailure
	e.hookMu.RUnlock()

	if hook == nil || rand.Float64() >= earlyFailureChance {
		return
	}
	e.logger.Debug("Signaling early failure to simulation", "sensor_id", sensorID)
	hook(sensorID)
}

func (e *Engine) equipmentLock(equipmentID int64) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	lock, ok := e.locks[equipmentID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[equipmentID] = lock
	}
	return lock
}

// cooldownCache tracks when an alert key last fired.
type cooldownCache struct {
	mu    sync.RWMutex
	cache map[string]time.Time
}

func newCooldownCache() *cooldownCache {
	return &cooldownCache{cache: make(map[string]time.Time)}
}

func (c *cooldownCache) isWithinCooldown(key string, cooldown time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	last, exists := c.cache[key]
	if !exists {
		return false
	}
	return time.Since(last) < cooldown
}

func (c *cooldownCache) record(key string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = at
}
