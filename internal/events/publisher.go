// Package events emits pipeline events to NATS so downstream consumers
// (notifiers, dashboards, archival jobs) can react without coupling to the
// pipeline itself.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/LuizPaulo1002/neuramaint/internal/model"
)

const (
	SubjectReadingPersisted = "neuramaint.readings.persisted"
	SubjectAlertCreated     = "neuramaint.alerts.created"
)

// Publisher emits pipeline events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	ReadingPersisted(r *model.SensorReading) error
	AlertCreated(a *model.Alert) error
}

// NATSPublisher publishes events to NATS subjects with identifying headers.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher creates a publisher over an established NATS connection.
func NewNATSPublisher(nc *nats.Conn, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, logger: logger}
}

// ReadingPersisted publishes a persisted reading.
func (p *NATSPublisher) ReadingPersisted(r *model.SensorReading) error {
	if p.nc == nil || !p.nc.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-reading-id", strconv.FormatInt(r.ID, 10))
	headers.Set("x-sensor-id", strconv.FormatInt(r.SensorID, 10))

	msg := &nats.Msg{
		Subject: SubjectReadingPersisted,
		Data:    data,
		Header:  headers,
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish reading: %w", err)
	}

	p.logger.Debug("Published reading event",
		"reading_id", r.ID,
		"sensor_id", r.SensorID,
		"subject", SubjectReadingPersisted)
	return nil
}

// AlertCreated publishes a newly created alert.
func (p *NATSPublisher) AlertCreated(a *model.Alert) error {
	if p.nc == nil || !p.nc.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-alert-id", a.ID)
	headers.Set("x-equipment-id", strconv.FormatInt(a.EquipmentID, 10))
	headers.Set("x-alert-type", string(a.Type))
	headers.Set("x-severity", string(a.Severity))

	msg := &nats.Msg{
		Subject: SubjectAlertCreated,
		Data:    data,
		Header:  headers,
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.logger.Info("Published alert event",
		"alert_id", a.ID,
		"equipment_id", a.EquipmentID,
		"severity", a.Severity,
		"subject", SubjectAlertCreated)
	return nil
}

// NoopPublisher discards all events. Used when NATS is not configured.
type NoopPublisher struct{}

func (NoopPublisher) ReadingPersisted(*model.SensorReading) error { return nil }
func (NoopPublisher) AlertCreated(*model.Alert) error             { return nil }
