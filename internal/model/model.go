package model

import "time"

// SensorType identifies the physical quantity a sensor measures. Values
// match the wire contract of the prediction service.
type SensorType string

const (
	SensorTemperature SensorType = "temperatura"
	SensorVibration   SensorType = "vibracao"
	SensorPressure    SensorType = "pressao"
	SensorFlow        SensorType = "fluxo"
	SensorRotation    SensorType = "rotacao"
)

// ValidSensorType reports whether t is one of the known sensor types.
func ValidSensorType(t SensorType) bool {
	switch t {
	case SensorTemperature, SensorVibration, SensorPressure, SensorFlow, SensorRotation:
		return true
	}
	return false
}

// Severity is the RAG classification applied to predicted failure
// probabilities and carried on alerts.
type Severity string

const (
	SeverityNormal    Severity = "normal"
	SeverityAttention Severity = "attention"
	SeverityCritical  Severity = "critical"
)

// ValidSeverity reports whether s is a known severity level.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityNormal, SeverityAttention, SeverityCritical:
		return true
	}
	return false
}

// AlertStatus is the lifecycle state of an alert. Pending is the only
// non-terminal state.
type AlertStatus string

const (
	AlertPending   AlertStatus = "pending"
	AlertResolved  AlertStatus = "resolved"
	AlertCancelled AlertStatus = "cancelled"
)

// AlertType distinguishes how an alert came to exist.
type AlertType string

const (
	AlertFailurePrediction AlertType = "failure_prediction"
	AlertSystem            AlertType = "system"
	AlertMaintenance       AlertType = "maintenance"
)

// Role is the caller role resolved by the (external) auth layer and passed
// in opaquely. RoleSystem is the internal pipeline identity.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleTechnician Role = "technician"
	RoleSystem     Role = "system"
)

// ValidRole reports whether r is a known caller role.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleTechnician, RoleSystem:
		return true
	}
	return false
}

// Caller is the identity attached to an API request.
type Caller struct {
	ID   string
	Role Role
}

// Equipment is an industrial unit that owns one or more sensors.
type Equipment struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// Sensor is a telemetry source mounted on a piece of equipment.
type Sensor struct {
	ID          int64      `json:"id"`
	EquipmentID int64      `json:"equipmentId"`
	Type        SensorType `json:"type"`
	Name        string     `json:"name"`
	Active      bool       `json:"active"`
}

// SensorReading is one persisted telemetry sample. Readings are immutable
// once stored.
type SensorReading struct {
	ID        int64     `json:"id"`
	SensorID  int64     `json:"sensorId"`
	Value     float64   `json:"valor"`
	Quality   *float64  `json:"qualidade,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PredictionResult is the enriched output of the prediction service for one
// reading. It lives only in the cache and in transit, never in storage.
type PredictionResult struct {
	SensorID           int64     `json:"sensor_id"`
	FailureProbability float64   `json:"probabilidade_falha"`
	RiskLevel          string    `json:"risco"`
	Recommendation     string    `json:"recomendacao"`
	Confidence         float64   `json:"confianca"`
	PredictedAt        time.Time `json:"timestamp_predicao"`
}

// Alert is an operator-facing notification. Alerts are never deleted; the
// lifecycle manager moves them through status transitions only.
type Alert struct {
	ID             string      `json:"id"`
	Type           AlertType   `json:"type"`
	Severity       Severity    `json:"severity"`
	Status         AlertStatus `json:"status"`
	Message        string      `json:"message"`
	EquipmentID    int64       `json:"equipmentId"`
	SensorID       int64       `json:"sensorId,omitempty"`
	ResolvedBy     *string     `json:"resolvedBy,omitempty"`
	ResolutionNote *string     `json:"resolutionNote,omitempty"`
	ResolvedAt     *time.Time  `json:"resolvedAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Terminal reports whether the alert is in a state that permits no further
// transitions.
func (a *Alert) Terminal() bool {
	return a.Status == AlertResolved || a.Status == AlertCancelled
}

// AlertStatistics is the aggregate view over a lookback window.
type AlertStatistics struct {
	Total               int     `json:"total"`
	Resolved            int     `json:"resolved"`
	Cancelled           int     `json:"cancelled"`
	Pending             int     `json:"pending"`
	Critical            int     `json:"critical"`
	ResolutionRate      float64 `json:"resolutionRate"`
	CriticalRate        float64 `json:"criticalRate"`
	AvgResponseMinutes  float64 `json:"avgResponseMinutes"`
	LookbackDays        int     `json:"lookbackDays"`
}
