package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/LuizPaulo1002/neuramaint/internal/alert"
	"github.com/LuizPaulo1002/neuramaint/internal/events"
	"github.com/LuizPaulo1002/neuramaint/internal/metrics"
	"github.com/LuizPaulo1002/neuramaint/internal/model"
	"github.com/LuizPaulo1002/neuramaint/internal/predict"
)

// Predictor is the prediction-client surface the pipeline needs. Satisfied
// by *predict.Client; tests substitute a deterministic fake.
type Predictor interface {
	Predict(ctx context.Context, reading *model.SensorReading, sensorType model.SensorType) (float64, error)
}

// Pipeline processes one reading end to end: prediction, then alert
// evaluation. Within one reading the order persist → predict → evaluate is
// fixed; across readings there is no ordering guarantee.
type Pipeline struct {
	predictor Predictor
	engine    *alert.Engine
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewPipeline creates a pipeline processor.
func NewPipeline(predictor Predictor, engine *alert.Engine, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		predictor: predictor,
		engine:    engine,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Process handles one task. All errors are absorbed here: a prediction
// failure becomes a system alert, and storage failures are logged. The
// reading itself was already persisted by the ingestor.
func (p *Pipeline) Process(ctx context.Context, task Task) {
	probability, err := p.predictor.Predict(ctx, task.Reading, task.Sensor.Type)
	if err != nil {
		p.handlePredictionError(ctx, task, err)
		return
	}

	created, err := p.engine.Evaluate(ctx, task.Sensor.ID, probability, task.Reading.Value, model.RoleSystem)
	if err != nil {
		p.logger.Error("Alert evaluation failed",
			"sensor_id", task.Sensor.ID,
			"reading_id", task.Reading.ID,
			"error", err)
		return
	}
	if created != nil {
		p.publishAlert(created)
	}
}

func (p *Pipeline) handlePredictionError(ctx context.Context, task Task, cause error) {
	var perr *predict.Error
	if !errors.As(cause, &perr) {
		p.logger.Error("Prediction failed with unclassified error",
			"sensor_id", task.Sensor.ID,
			"reading_id", task.Reading.ID,
			"error", cause)
		return
	}

	p.logger.Warn("Prediction service call failed",
		"sensor_id", task.Sensor.ID,
		"reading_id", task.Reading.ID,
		"kind", perr.Kind,
		"error", cause)

	created, err := p.engine.HandlePredictionFailure(ctx, task.Sensor.ID, cause)
	if err != nil {
		p.logger.Error("Failed to raise system alert",
			"sensor_id", task.Sensor.ID,
			"error", err)
		return
	}
	if created != nil {
		p.publishAlert(created)
	}
}

func (p *Pipeline) publishAlert(a *model.Alert) {
	if err := p.publisher.AlertCreated(a); err != nil {
		p.metrics.PublishErrorsTotal.Inc()
		p.logger.Warn("Failed to publish alert event", "alert_id", a.ID, "error", err)
	}
}
