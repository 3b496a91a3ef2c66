package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/LuizPaulo1002/neuramaint/internal/model"
)

// PostgresStore implements the repository interfaces on PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Health checks if the database is accessible.
func (s *PostgresStore) Health() error {
	return s.db.Ping()
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS equipment (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS sensors (
			id BIGINT PRIMARY KEY,
			equipment_id BIGINT NOT NULL REFERENCES equipment(id),
			sensor_type TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS equipment_assignments (
			user_id TEXT NOT NULL,
			equipment_id BIGINT NOT NULL REFERENCES equipment(id),
			PRIMARY KEY (user_id, equipment_id)
		)`,
		`CREATE TABLE IF NOT EXISTS readings (
			id BIGSERIAL PRIMARY KEY,
			sensor_id BIGINT NOT NULL REFERENCES sensors(id),
			value DOUBLE PRECISION NOT NULL,
			quality DOUBLE PRECISION,
			ts TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_sensor_ts ON readings (sensor_id, ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL,
			equipment_id BIGINT NOT NULL REFERENCES equipment(id),
			sensor_id BIGINT,
			resolved_by TEXT,
			resolution_note TEXT,
			resolved_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_equipment_status ON alerts (equipment_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status_severity ON alerts (status, severity)`,
		// Closes the dedup race at the storage layer: two concurrent
		// inserts of a pending alert for the same equipment cannot both
		// succeed.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_pending_unique
			ON alerts (equipment_id, alert_type) WHERE status = 'pending'`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// CreateReading inserts a reading and returns it with the generated id.
func (s *PostgresStore) CreateReading(ctx context.Context, r *model.SensorReading) (*model.SensorReading, error) {
	query := `
		INSERT INTO readings (sensor_id, value, quality, ts)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	cp := *r
	err := s.db.QueryRowContext(ctx, query, r.SensorID, r.Value, r.Quality, r.Timestamp).Scan(&cp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reading: %w", err)
	}
	return &cp, nil
}

// ListReadings returns readings for a sensor within [from, to], newest first.
func (s *PostgresStore) ListReadings(ctx context.Context, sensorID int64, from, to time.Time, limit int) ([]*model.SensorReading, error) {
	query := `
		SELECT id, sensor_id, value, quality, ts
		FROM readings
		WHERE sensor_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts DESC
		LIMIT $4
	`
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, query, sensorID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var out []*model.SensorReading
	for rows.Next() {
		var r model.SensorReading
		if err := rows.Scan(&r.ID, &r.SensorID, &r.Value, &r.Quality, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// GetSensor returns the sensor or a not-found error.
func (s *PostgresStore) GetSensor(ctx context.Context, id int64) (*model.Sensor, error) {
	query := `SELECT id, equipment_id, sensor_type, name, active FROM sensors WHERE id = $1`

	var sn model.Sensor
	err := s.db.QueryRowContext(ctx, query, id).Scan(&sn.ID, &sn.EquipmentID, &sn.Type, &sn.Name, &sn.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.NewNotFoundError("sensor not found")
		}
		return nil, fmt.Errorf("failed to query sensor: %w", err)
	}
	return &sn, nil
}

// ListActiveSensors returns all active sensors ordered by id.
func (s *PostgresStore) ListActiveSensors(ctx context.Context) ([]*model.Sensor, error) {
	query := `SELECT id, equipment_id, sensor_type, name, active FROM sensors WHERE active ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	var out []*model.Sensor
	for rows.Next() {
		var sn model.Sensor
		if err := rows.Scan(&sn.ID, &sn.EquipmentID, &sn.Type, &sn.Name, &sn.Active); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		out = append(out, &sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// GetEquipment returns the equipment or a not-found error.
func (s *PostgresStore) GetEquipment(ctx context.Context, id int64) (*model.Equipment, error) {
	query := `SELECT id, name, location FROM equipment WHERE id = $1`

	var e model.Equipment
	err := s.db.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.Name, &e.Location)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.NewNotFoundError("equipment not found")
		}
		return nil, fmt.Errorf("failed to query equipment: %w", err)
	}
	return &e, nil
}

// IsAssigned reports whether the user is assigned to the equipment.
func (s *PostgresStore) IsAssigned(ctx context.Context, userID string, equipmentID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM equipment_assignments WHERE user_id = $1 AND equipment_id = $2)`

	var assigned bool
	if err := s.db.QueryRowContext(ctx, query, userID, equipmentID).Scan(&assigned); err != nil {
		return false, fmt.Errorf("failed to query assignment: %w", err)
	}
	return assigned, nil
}

// ListAssignedEquipment returns the equipment ids assigned to the user.
func (s *PostgresStore) ListAssignedEquipment(ctx context.Context, userID string) ([]int64, error) {
	query := `SELECT equipment_id FROM equipment_assignments WHERE user_id = $1 ORDER BY equipment_id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// CreateAlert inserts a new alert.
func (s *PostgresStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	query := `
		INSERT INTO alerts (id, alert_type, severity, status, message, equipment_id, sensor_id,
			resolved_by, resolution_note, resolved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query, a.ID, a.Type, a.Severity, a.Status, a.Message,
		a.EquipmentID, a.SensorID, a.ResolvedBy, a.ResolutionNote, a.ResolvedAt, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlert returns the alert or a not-found error.
func (s *PostgresStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	query := `
		SELECT id, alert_type, severity, status, message, equipment_id, sensor_id,
			resolved_by, resolution_note, resolved_at, created_at
		FROM alerts WHERE id = $1
	`

	a, err := s.scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.NewNotFoundError("alert not found")
		}
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}
	return a, nil
}

// UpdateAlert persists a status transition.
func (s *PostgresStore) UpdateAlert(ctx context.Context, a *model.Alert) error {
	query := `
		UPDATE alerts
		SET status = $2, message = $3, resolved_by = $4, resolution_note = $5, resolved_at = $6
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, a.ID, a.Status, a.Message, a.ResolvedBy, a.ResolutionNote, a.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return model.NewNotFoundError("alert not found")
	}
	return nil
}

// FindPendingAlert returns the pending alert of the given type for the
// equipment, or nil when none exists.
func (s *PostgresStore) FindPendingAlert(ctx context.Context, equipmentID int64, typ model.AlertType) (*model.Alert, error) {
	query := `
		SELECT id, alert_type, severity, status, message, equipment_id, sensor_id,
			resolved_by, resolution_note, resolved_at, created_at
		FROM alerts
		WHERE equipment_id = $1 AND alert_type = $2 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`

	a, err := s.scanAlert(s.db.QueryRowContext(ctx, query, equipmentID, typ))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query pending alert: %w", err)
	}
	return a, nil
}

// ListActiveAlerts returns pending alerts matching the filter, newest first.
func (s *PostgresStore) ListActiveAlerts(ctx context.Context, f ActiveAlertFilter) ([]*model.Alert, error) {
	query := `
		SELECT id, alert_type, severity, status, message, equipment_id, sensor_id,
			resolved_by, resolution_note, resolved_at, created_at
		FROM alerts
		WHERE status = 'pending'
	`
	args := []interface{}{}

	if f.EquipmentID != 0 {
		args = append(args, f.EquipmentID)
		query += fmt.Sprintf(" AND equipment_id = $%d", len(args))
	}
	if f.Severity != "" {
		args = append(args, f.Severity)
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if f.EquipmentIDs != nil {
		args = append(args, pq.Array(f.EquipmentIDs))
		query += fmt.Sprintf(" AND equipment_id = ANY($%d)", len(args))
	}
	query += " ORDER BY created_at DESC"

	return s.queryAlerts(ctx, query, args...)
}

// ListAlertHistory returns alerts created within the window, newest first.
func (s *PostgresStore) ListAlertHistory(ctx context.Context, f HistoryFilter) ([]*model.Alert, error) {
	query := `
		SELECT id, alert_type, severity, status, message, equipment_id, sensor_id,
			resolved_by, resolution_note, resolved_at, created_at
		FROM alerts
		WHERE created_at >= $1 AND created_at <= $2
	`
	args := []interface{}{f.From, f.To}

	if f.EquipmentID != 0 {
		args = append(args, f.EquipmentID)
		query += fmt.Sprintf(" AND equipment_id = $%d", len(args))
	}
	if f.EquipmentIDs != nil {
		args = append(args, pq.Array(f.EquipmentIDs))
		query += fmt.Sprintf(" AND equipment_id = ANY($%d)", len(args))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 10000
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	return s.queryAlerts(ctx, query, args...)
}

func (s *PostgresStore) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]*model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []*model.Alert
	for rows.Next() {
		a, err := s.scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanAlert(row rowScanner) (*model.Alert, error) {
	var a model.Alert
	var sensorID sql.NullInt64
	err := row.Scan(&a.ID, &a.Type, &a.Severity, &a.Status, &a.Message, &a.EquipmentID,
		&sensorID, &a.ResolvedBy, &a.ResolutionNote, &a.ResolvedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if sensorID.Valid {
		a.SensorID = sensorID.Int64
	}
	return &a, nil
}
