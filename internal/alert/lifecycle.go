package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LuizPaulo1002/neuramaint/internal/metrics"
	"github.com/LuizPaulo1002/neuramaint/internal/model"
	"github.com/LuizPaulo1002/neuramaint/internal/store"
)

const (
	// MaxLookbackDays bounds history and statistics queries.
	MaxLookbackDays = 365
	// MaxPageSize bounds one page of alert history.
	MaxPageSize = 100
	// DefaultPageSize is used when the caller does not ask for a size.
	DefaultPageSize = 50
)

// Lifecycle owns the alert state machine (pending → resolved/cancelled) and
// the role-scoped read projections.
type Lifecycle struct {
	alerts  store.AlertStore
	sensors store.SensorStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(alerts store.AlertStore, sensors store.SensorStore, m *metrics.Metrics, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{alerts: alerts, sensors: sensors, metrics: m, logger: logger}
}

// CreateManual creates an explicit, non-ML alert (system or maintenance
// work raised by an operator).
func (l *Lifecycle) CreateManual(ctx context.Context, typ model.AlertType, severity model.Severity, message string, equipmentID int64, caller model.Caller) (*model.Alert, error) {
	if typ == model.AlertFailurePrediction {
		return nil, model.NewValidationError("type", "failure-prediction alerts are created by the pipeline only")
	}
	if !model.ValidSeverity(severity) {
		return nil, model.NewValidationError("severity", "unknown severity level")
	}
	if strings.TrimSpace(message) == "" {
		return nil, model.NewValidationError("message", "must not be empty")
	}
	if _, err := l.sensors.GetEquipment(ctx, equipmentID); err != nil {
		return nil, err
	}

	a := &model.Alert{
		ID:          uuid.NewString(),
		Type:        typ,
		Severity:    severity,
		Status:      model.AlertPending,
		Message:     message,
		EquipmentID: equipmentID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.alerts.CreateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	l.metrics.AlertsCreatedTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()

	l.logger.Info("Manual alert created",
		"alert_id", a.ID,
		"type", a.Type,
		"equipment_id", equipmentID,
		"created_by", caller.ID)
	return a, nil
}

// Resolve transitions a pending alert to resolved, stamping the resolver
// identity and timestamp. Authorization is checked before state so an
// unauthorized caller gets forbidden, not invalid-state.
func (l *Lifecycle) Resolve(ctx context.Context, alertID, note string, caller model.Caller) (*model.Alert, error) {
	if strings.TrimSpace(note) == "" {
		return nil, model.NewValidationError("note", "resolution note must not be empty")
	}

	a, err := l.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	assigned, err := l.sensors.IsAssigned(ctx, caller.ID, a.EquipmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check assignment: %w", err)
	}
	if !CanResolve(caller.Role, assigned) {
		return nil, model.NewForbiddenError("caller may not resolve this alert")
	}

	if a.Status != model.AlertPending {
		return nil, model.NewInvalidStateError(fmt.Sprintf("alert already %s", a.Status))
	}

	now := time.Now().UTC()
	resolver := caller.ID
	a.Status = model.AlertResolved
	a.ResolvedBy = &resolver
	a.ResolutionNote = &note
	a.ResolvedAt = &now

	if err := l.alerts.UpdateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	l.logger.Info("Alert resolved",
		"alert_id", a.ID,
		"resolved_by", caller.ID,
		"equipment_id", a.EquipmentID)
	return a, nil
}

// Cancel transitions a pending alert to cancelled. Admin-only.
func (l *Lifecycle) Cancel(ctx context.Context, alertID string, caller model.Caller) (*model.Alert, error) {
	a, err := l.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if !CanCancel(caller.Role) {
		return nil, model.NewForbiddenError("only admins may cancel alerts")
	}

	if a.Status != model.AlertPending {
		return nil, model.NewInvalidStateError(fmt.Sprintf("alert already %s", a.Status))
	}

	now := time.Now().UTC()
	a.Status = model.AlertCancelled
	a.ResolvedAt = &now

	if err := l.alerts.UpdateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	l.logger.Info("Alert cancelled", "alert_id", a.ID, "cancelled_by", caller.ID)
	return a, nil
}

// ListActive returns pending alerts visible to the caller, optionally
// filtered by equipment and severity.
func (l *Lifecycle) ListActive(ctx context.Context, caller model.Caller, equipmentID int64, severity model.Severity) ([]*model.Alert, error) {
	if severity != "" && !model.ValidSeverity(severity) {
		return nil, model.NewValidationError("severity", "unknown severity level")
	}

	f := store.ActiveAlertFilter{EquipmentID: equipmentID, Severity: severity}
	if err := l.scopeVisibility(ctx, caller, &f.EquipmentIDs); err != nil {
		return nil, err
	}
	return l.alerts.ListActiveAlerts(ctx, f)
}

// HistoryQuery narrows an alert-history listing.
type HistoryQuery struct {
	From        time.Time
	To          time.Time
	EquipmentID int64
	Page        int
	PageSize    int
}

// ListHistory returns alerts visible to the caller within a bounded date
// range (maximum 365 days, maximum page size 100).
func (l *Lifecycle) ListHistory(ctx context.Context, caller model.Caller, q HistoryQuery) ([]*model.Alert, error) {
	if q.To.IsZero() {
		q.To = time.Now().UTC()
	}
	if q.From.IsZero() {
		q.From = q.To.AddDate(0, 0, -30)
	}
	if q.From.After(q.To) {
		return nil, model.NewValidationError("from", "must not be after to")
	}
	if q.To.Sub(q.From) > time.Duration(MaxLookbackDays)*24*time.Hour {
		return nil, model.NewValidationError("from", fmt.Sprintf("date range exceeds %d days", MaxLookbackDays))
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.Page < 1 {
		q.Page = 1
	}

	f := store.HistoryFilter{
		From:        q.From,
		To:          q.To,
		EquipmentID: q.EquipmentID,
		Offset:      (q.Page - 1) * q.PageSize,
		Limit:       q.PageSize,
	}
	if err := l.scopeVisibility(ctx, caller, &f.EquipmentIDs); err != nil {
		return nil, err
	}
	return l.alerts.ListAlertHistory(ctx, f)
}

// Statistics computes the aggregate view over the lookback window.
func (l *Lifecycle) Statistics(ctx context.Context, caller model.Caller, lookbackDays int) (*model.AlertStatistics, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	if lookbackDays > MaxLookbackDays {
		return nil, model.NewValidationError("days", fmt.Sprintf("lookback exceeds %d days", MaxLookbackDays))
	}

	to := time.Now().UTC()
	f := store.HistoryFilter{
		From:  to.AddDate(0, 0, -lookbackDays),
		To:    to,
		Limit: 0,
	}
	if err := l.scopeVisibility(ctx, caller, &f.EquipmentIDs); err != nil {
		return nil, err
	}

	alerts, err := l.alerts.ListAlertHistory(ctx, f)
	if err != nil {
		return nil, err
	}

	stats := &model.AlertStatistics{LookbackDays: lookbackDays, Total: len(alerts)}
	var responseSum time.Duration
	var responseCount int
	for _, a := range alerts {
		switch a.Status {
		case model.AlertResolved:
			stats.Resolved++
			if a.ResolvedAt != nil {
				responseSum += a.ResolvedAt.Sub(a.CreatedAt)
				responseCount++
			}
		case model.AlertCancelled:
			stats.Cancelled++
		case model.AlertPending:
			stats.Pending++
		}
		if a.Severity == model.SeverityCritical {
			stats.Critical++
		}
	}
	if stats.Total > 0 {
		stats.ResolutionRate = float64(stats.Resolved) / float64(stats.Total)
		stats.CriticalRate = float64(stats.Critical) / float64(stats.Total)
	}
	if responseCount > 0 {
		stats.AvgResponseMinutes = responseSum.Minutes() / float64(responseCount)
	}
	return stats, nil
}

// scopeVisibility restricts listings to the caller's assigned equipment
// unless the role sees everything.
func (l *Lifecycle) scopeVisibility(ctx context.Context, caller model.Caller, visible *[]int64) error {
	if SeesAllEquipment(caller.Role) {
		return nil
	}

	ids, err := l.sensors.ListAssignedEquipment(ctx, caller.ID)
	if err != nil {
		return fmt.Errorf("failed to list assignments: %w", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	*visible = ids
	return nil
}
