// Package ingest is the single entry point for telemetry readings, real or
// synthetic: schema and semantic validation, persistence, and the
// fire-and-forget handoff into the prediction pipeline.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/LuizPaulo1002/neuramaint/internal/events"
	"github.com/LuizPaulo1002/neuramaint/internal/metrics"
	"github.com/LuizPaulo1002/neuramaint/internal/model"
	"github.com/LuizPaulo1002/neuramaint/internal/store"
)

// readingSchema is the JSON schema for the create-reading payload. Semantic
// checks the schema cannot express (sensor exists and is active, value is
// finite) happen after schema validation.
const readingSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["sensorId", "valor"],
	"properties": {
		"sensorId": {"type": "integer", "minimum": 1},
		"valor": {"type": "number"},
		"timestamp": {"type": "string"},
		"qualidade": {"type": "number", "minimum": 0, "maximum": 100}
	},
	"additionalProperties": false
}`

// CreateReadingInput is the decoded create-reading payload.
type CreateReadingInput struct {
	SensorID  int64    `json:"sensorId"`
	Value     float64  `json:"valor"`
	Timestamp string   `json:"timestamp,omitempty"`
	Quality   *float64 `json:"qualidade,omitempty"`
}

// Ingestor validates and persists readings, then hands them to the
// dispatcher so the write path stays independent of prediction-service
// health.
type Ingestor struct {
	readings   store.ReadingStore
	sensors    store.SensorStore
	schema     *jsonschema.Schema
	dispatcher *Dispatcher
	publisher  events.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewIngestor creates an ingestor. dispatcher may be nil, in which case
// downstream processing is skipped (storage-only mode).
func NewIngestor(readings store.ReadingStore, sensors store.SensorStore, dispatcher *Dispatcher, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) (*Ingestor, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("reading.json", strings.NewReader(readingSchema)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("reading.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Ingestor{
		readings:   readings,
		sensors:    sensors,
		schema:     schema,
		dispatcher: dispatcher,
		publisher:  publisher,
		metrics:    m,
		logger:     logger,
	}, nil
}

// CreateReadingJSON validates a raw JSON payload against the schema and
// ingests it. This is the external API path.
func (i *Ingestor) CreateReadingJSON(ctx context.Context, payload []byte) (*model.SensorReading, error) {
	var raw interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, model.NewValidationError("body", "payload is not valid JSON")
	}
	if err := i.schema.Validate(raw); err != nil {
		i.metrics.ReadingsInvalidTotal.Inc()
		return nil, schemaError(err)
	}

	var input CreateReadingInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return nil, model.NewValidationError("body", "payload shape mismatch")
	}
	return i.CreateReading(ctx, input)
}

// CreateReading validates and persists one reading, then triggers
// prediction and alerting asynchronously. Rejections are synchronous and
// classified; nothing is silently dropped.
func (i *Ingestor) CreateReading(ctx context.Context, input CreateReadingInput) (*model.SensorReading, error) {
	sensor, err := i.sensors.GetSensor(ctx, input.SensorID)
	if err != nil {
		i.metrics.ReadingsInvalidTotal.Inc()
		if model.IsKind(err, model.KindNotFound) {
			return nil, model.NewValidationError("sensorId", "sensor not found")
		}
		return nil, err
	}
	if !sensor.Active {
		i.metrics.ReadingsInvalidTotal.Inc()
		return nil, model.NewValidationError("sensorId", "sensor is not active")
	}

	if math.IsNaN(input.Value) || math.IsInf(input.Value, 0) {
		i.metrics.ReadingsInvalidTotal.Inc()
		return nil, model.NewValidationError("valor", "must be a finite number")
	}

	ts := time.Now().UTC()
	if input.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, input.Timestamp)
		if err != nil {
			i.metrics.ReadingsInvalidTotal.Inc()
			return nil, model.NewValidationError("timestamp", "must be a valid RFC 3339 instant")
		}
		ts = parsed.UTC()
	}

	if input.Quality != nil && (*input.Quality < 0 || *input.Quality > 100) {
		i.metrics.ReadingsInvalidTotal.Inc()
		return nil, model.NewValidationError("qualidade", "must be within [0,100]")
	}

	reading := &model.SensorReading{
		SensorID:  input.SensorID,
		Value:     input.Value,
		Quality:   input.Quality,
		Timestamp: ts,
	}

	persisted, err := i.readings.CreateReading(ctx, reading)
	if err != nil {
		return nil, fmt.Errorf("failed to persist reading: %w", err)
	}
	i.metrics.ReadingsTotal.Inc()

	if err := i.publisher.ReadingPersisted(persisted); err != nil {
		i.metrics.PublishErrorsTotal.Inc()
		i.logger.Warn("Failed to publish reading event", "reading_id", persisted.ID, "error", err)
	}

	// Fire-and-forget: the write path never waits on prediction/alerting.
	if i.dispatcher != nil {
		if !i.dispatcher.Enqueue(Task{Reading: persisted, Sensor: sensor}) {
			i.metrics.PipelineDroppedTotal.Inc()
			i.logger.Warn("Pipeline queue full, dropping downstream processing",
				"reading_id", persisted.ID,
				"sensor_id", sensor.ID)
		}
	}

	i.logger.Debug("Reading persisted",
		"reading_id", persisted.ID,
		"sensor_id", sensor.ID,
		"value", persisted.Value)
	return persisted, nil
}

// schemaError converts a jsonschema validation failure into a domain
// validation error naming the offending field.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	field := "body"
	message := "payload failed validation"
	if ok := asValidationError(err, &ve); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		if loc := strings.TrimPrefix(leaf.InstanceLocation, "/"); loc != "" {
			field = loc
		}
		message = leaf.Message
	}
	return model.NewValidationError(field, message)
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return false
	}
	*target = ve
	return true
}
