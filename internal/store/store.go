// Package store defines the repository contracts for readings, sensors and
// alerts, with in-memory and PostgreSQL implementations.
package store

import (
	"context"
	"time"

	"github.com/LuizPaulo1002/neuramaint/internal/model"
)

// ActiveAlertFilter narrows the active-alert listing.
type ActiveAlertFilter struct {
	EquipmentID int64          // 0 means any
	Severity    model.Severity // empty means any
	// EquipmentIDs restricts visibility to the given set when non-nil
	// (role-based scoping for technicians).
	EquipmentIDs []int64
}

// HistoryFilter narrows the alert-history listing. From/To are inclusive.
type HistoryFilter struct {
	From         time.Time
	To           time.Time
	EquipmentID  int64
	EquipmentIDs []int64
	Offset       int
	Limit        int
}

// ReadingStore persists immutable sensor readings.
type ReadingStore interface {
	CreateReading(ctx context.Context, r *model.SensorReading) (*model.SensorReading, error)
	ListReadings(ctx context.Context, sensorID int64, from, to time.Time, limit int) ([]*model.SensorReading, error)
}

// SensorStore resolves sensors, their owning equipment and the
// user-to-equipment assignments used for role scoping.
type SensorStore interface {
	GetSensor(ctx context.Context, id int64) (*model.Sensor, error)
	ListActiveSensors(ctx context.Context) ([]*model.Sensor, error)
	GetEquipment(ctx context.Context, id int64) (*model.Equipment, error)
	IsAssigned(ctx context.Context, userID string, equipmentID int64) (bool, error)
	ListAssignedEquipment(ctx context.Context, userID string) ([]int64, error)
}

// AlertStore persists alerts. Alerts are never deleted; updates are status
// transitions stamped by the lifecycle manager.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *model.Alert) error
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	UpdateAlert(ctx context.Context, a *model.Alert) error
	// FindPendingAlert returns the pending alert of the given type for the
	// equipment, or nil when none exists.
	FindPendingAlert(ctx context.Context, equipmentID int64, typ model.AlertType) (*model.Alert, error)
	ListActiveAlerts(ctx context.Context, f ActiveAlertFilter) ([]*model.Alert, error)
	ListAlertHistory(ctx context.Context, f HistoryFilter) ([]*model.Alert, error)
}
