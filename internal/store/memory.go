package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LuizPaulo1002/neuramaint/internal/model"
)

// MemoryStore is a thread-safe in-memory implementation of all repository
// interfaces, used in tests and standalone simulation runs.
type MemoryStore struct {
	mu            sync.RWMutex
	readings      []*model.SensorReading
	nextReadingID int64
	sensors       map[int64]*model.Sensor
	equipment     map[int64]*model.Equipment
	assignments   map[string]map[int64]bool
	alerts        map[string]*model.Alert
	alertOrder    []string
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextReadingID: 1,
		sensors:       make(map[int64]*model.Sensor),
		equipment:     make(map[int64]*model.Equipment),
		assignments:   make(map[string]map[int64]bool),
		alerts:        make(map[string]*model.Alert),
	}
}

// AddEquipment seeds an equipment unit.
func (s *MemoryStore) AddEquipment(e *model.Equipment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.equipment[e.ID] = &cp
}

// AddSensor seeds a sensor.
func (s *MemoryStore) AddSensor(sn *model.Sensor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sn
	s.sensors[sn.ID] = &cp
}

// Assign seeds a user-to-equipment assignment.
func (s *MemoryStore) Assign(userID string, equipmentID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignments[userID] == nil {
		s.assignments[userID] = make(map[int64]bool)
	}
	s.assignments[userID][equipmentID] = true
}

// CreateReading stores a reading, assigning the next id.
func (s *MemoryStore) CreateReading(ctx context.Context, r *model.SensorReading) (*model.SensorReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	cp.ID = s.nextReadingID
	s.nextReadingID++
	s.readings = append(s.readings, &cp)

	out := cp
	return &out, nil
}

// ListReadings returns readings for a sensor within [from, to], newest first.
func (s *MemoryStore) ListReadings(ctx context.Context, sensorID int64, from, to time.Time, limit int) ([]*model.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.SensorReading
	for i := len(s.readings) - 1; i >= 0; i-- {
		r := s.readings[i]
		if r.SensorID != sensorID {
			continue
		}
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		cp := *r
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetSensor returns the sensor or a not-found error.
func (s *MemoryStore) GetSensor(ctx context.Context, id int64) (*model.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sn, ok := s.sensors[id]
	if !ok {
		return nil, model.NewNotFoundError("sensor not found")
	}
	cp := *sn
	return &cp, nil
}

// ListActiveSensors returns all sensors flagged active, ordered by id.
func (s *MemoryStore) ListActiveSensors(ctx context.Context) ([]*model.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Sensor
	for _, sn := range s.sensors {
		if sn.Active {
			cp := *sn
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetEquipment returns the equipment or a not-found error.
func (s *MemoryStore) GetEquipment(ctx context.Context, id int64) (*model.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.equipment[id]
	if !ok {
		return nil, model.NewNotFoundError("equipment not found")
	}
	cp := *e
	return &cp, nil
}

// IsAssigned reports whether the user is assigned to the equipment.
func (s *MemoryStore) IsAssigned(ctx context.Context, userID string, equipmentID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignments[userID][equipmentID], nil
}

// ListAssignedEquipment returns the ids of equipment assigned to the user.
func (s *MemoryStore) ListAssignedEquipment(ctx context.Context, userID string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []int64
	for id := range s.assignments[userID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// CreateAlert stores a new alert.
func (s *MemoryStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.alerts[a.ID] = &cp
	s.alertOrder = append(s.alertOrder, a.ID)
	return nil
}

// GetAlert returns the alert or a not-found error.
func (s *MemoryStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, model.NewNotFoundError("alert not found")
	}
	cp := *a
	return &cp, nil
}

// UpdateAlert replaces the stored alert.
func (s *MemoryStore) UpdateAlert(ctx context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[a.ID]; !ok {
		return model.NewNotFoundError("alert not found")
	}
	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}

// FindPendingAlert returns the pending alert of the given type for the
// equipment, or nil when none exists.
func (s *MemoryStore) FindPendingAlert(ctx context.Context, equipmentID int64, typ model.AlertType) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.alertOrder {
		a := s.alerts[id]
		if a.Status == model.AlertPending && a.EquipmentID == equipmentID && a.Type == typ {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

// ListActiveAlerts returns pending alerts matching the filter, newest first.
func (s *MemoryStore) ListActiveAlerts(ctx context.Context, f ActiveAlertFilter) ([]*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Alert
	for i := len(s.alertOrder) - 1; i >= 0; i-- {
		a := s.alerts[s.alertOrder[i]]
		if a.Status != model.AlertPending {
			continue
		}
		if !matchesAlert(a, f.EquipmentID, f.Severity, f.EquipmentIDs) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

// ListAlertHistory returns alerts created within the window, newest first,
// honoring offset/limit pagination.
func (s *MemoryStore) ListAlertHistory(ctx context.Context, f HistoryFilter) ([]*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*model.Alert
	for i := len(s.alertOrder) - 1; i >= 0; i-- {
		a := s.alerts[s.alertOrder[i]]
		if a.CreatedAt.Before(f.From) || a.CreatedAt.After(f.To) {
			continue
		}
		if !matchesAlert(a, f.EquipmentID, "", f.EquipmentIDs) {
			continue
		}
		cp := *a
		all = append(all, &cp)
	}

	if f.Offset >= len(all) {
		return nil, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

func matchesAlert(a *model.Alert, equipmentID int64, severity model.Severity, visible []int64) bool {
	if equipmentID != 0 && a.EquipmentID != equipmentID {
		return false
	}
	if severity != "" && a.Severity != severity {
		return false
	}
	if visible != nil {
		found := false
		for _, id := range visible {
			if a.EquipmentID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
