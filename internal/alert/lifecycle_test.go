package alert

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuizPaulo1002/neuramaint/internal/metrics"
	"github.com/LuizPaulo1002/neuramaint/internal/model"
	"github.com/LuizPaulo1002/neuramaint/internal/store"
)

func newTestLifecycle(mem *store.MemoryStore) *Lifecycle {
	return NewLifecycle(mem, mem, metrics.NewMetrics(prometheus.NewRegistry()), testLogger())
}

func pendingAlert(t *testing.T, mem *store.MemoryStore, equipmentID int64) *model.Alert {
	t.Helper()
	a := &model.Alert{
		ID:          uuid.NewString(),
		Type:        model.AlertFailurePrediction,
		Severity:    model.SeverityCritical,
		Status:      model.AlertPending,
		Message:     "Failure probability 85% for sensor temp-a1 (reading 95.00)",
		EquipmentID: equipmentID,
		SensorID:    1,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, mem.CreateAlert(context.Background(), a))
	return a
}

func TestResolveHappyPath(t *testing.T) {
	mem := seededStore()
	mem.Assign("tech-1", 1)
	lc := newTestLifecycle(mem)

	a := pendingAlert(t, mem, 1)
	caller := model.Caller{ID: "tech-1", Role: model.RoleTechnician}

	resolved, err := lc.Resolve(context.Background(), a.ID, "fixed bearing", caller)
	require.NoError(t, err)

	assert.Equal(t, model.AlertResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "tech-1", *resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolutionNote)
	assert.Equal(t, "fixed bearing", *resolved.ResolutionNote)
	assert.NotNil(t, resolved.ResolvedAt)
}

func TestResolveTwiceIsInvalidState(t *testing.T) {
	mem := seededStore()
	mem.Assign("tech-1", 1)
	lc := newTestLifecycle(mem)

	a := pendingAlert(t, mem, 1)
	caller := model.Caller{ID: "tech-1", Role: model.RoleTechnician}

	_, err := lc.Resolve(context.Background(), a.ID, "fixed bearing", caller)
	require.NoError(t, err)

	_, err = lc.Resolve(context.Background(), a.ID, "fixed again", caller)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindInvalidState))
	assert.Contains(t, err.Error(), "resolved")
}

func TestResolveEmptyNote(t *testing.T) {
	mem := seededStore()
	lc := newTestLifecycle(mem)

	a := pendingAlert(t, mem, 1)

	_, err := lc.Resolve(context.Background(), a.ID, "  ", model.Caller{ID: "admin-1", Role: model.RoleAdmin})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))
}

func TestResolveUnassignedTechnicianForbidden(t *testing.T) {
	mem := seededStore()
	mem.Assign("tech-1", 1)
	lc := newTestLifecycle(mem)

	a := pendingAlert(t, mem, 2)

	_, err := lc.Resolve(context.Background(), a.ID, "tried", model.Caller{ID: "tech-1", Role: model.RoleTechnician})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindForbidden))
}

func TestResolveForbiddenBeforeStateCheck(t *testing.T) {
	mem := seededStore()
	mem.Assign("tech-1", 1)
	lc := newTestLifecycle(mem)
	ctx := context.Background()

	a := pendingAlert(t, mem, 1)
	_, err := lc.Resolve(ctx, a.ID, "fixed", model.Caller{ID: "tech-1", Role: model.RoleTechnician})
	require.NoError(t, err)

	// An unauthorized caller against an already-resolved alert must see
	// forbidden, not invalid-state.
	_, err = lc.Resolve(ctx, a.ID, "late", model.Caller{ID: "tech-2", Role: model.RoleTechnician})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindForbidden))
}

func TestResolveUnknownAlert(t *testing.T) {
	mem := seededStore()
	lc := newTestLifecycle(mem)

	_, err := lc.Resolve(context.Background(), "no-such-alert", "note", model.Caller{ID: "admin-1", Role: model.RoleAdmin})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindNotFound))
}

func TestCancelAdminOnly(t *testing.T) {
	mem := seededStore()
	mem.Assign("tech-1", 1)
	lc := newTestLifecycle(mem)
	ctx := context.Background()

	a := pendingAlert(t, mem, 1)

	_, err := lc.Cancel(ctx, a.ID, model.Caller{ID: "tech-1", Role: model.RoleTechnician})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindForbidden))

	cancelled, err := lc.Cancel(ctx, a.ID, model.Caller{ID: "admin-1", Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, model.AlertCancelled, cancelled.Status)

	_, err = lc.Cancel(ctx, a.ID, model.Caller{ID: "admin-1", Role: model.RoleAdmin})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindInvalidState))
}

func TestCreateManualRejectsPredictionType(t *testing.T) {
	mem := seededStore()
	lc := newTestLifecycle(mem)

	_, err := lc.CreateManual(context.Background(), model.AlertFailurePrediction, model.SeverityCritical,
		"manual prediction", 1, model.Caller{ID: "admin-1", Role: model.RoleAdmin})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))
}

func TestCreateManualMaintenance(t *testing.T) {
	mem := seededStore()
	lc := newTestLifecycle(mem)

	a, err := lc.CreateManual(context.Background(), model.AlertMaintenance, model.SeverityAttention,
		"scheduled bearing replacement", 1, model.Caller{ID: "mgr-1", Role: model.RoleManager})
	require.NoError(t, err)
	assert.Equal(t, model.AlertMaintenance, a.Type)
	assert.Equal(t, model.AlertPending, a.Status)
}

func TestListActiveVisibilityScoping(t *testing.T) {
	mem := seededStore()
	mem.Assign("tech-1", 1)
	lc := newTestLifecycle(mem)
	ctx := context.Background()

	pendingAlert(t, mem, 1)
	pendingAlert(t, mem, 2)

	all, err := lc.ListActive(ctx, model.Caller{ID: "mgr-1", Role: model.RoleManager}, 0, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := lc.ListActive(ctx, model.Caller{ID: "tech-1", Role: model.RoleTechnician}, 0, "")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, int64(1), scoped[0].EquipmentID)

	// A technician with no assignments sees nothing, not everything.
	none, err := lc.ListActive(ctx, model.Caller{ID: "tech-2", Role: model.RoleTechnician}, 0, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListActiveSeverityFilter(t *testing.T) {
	mem := seededStore()
	lc := newTestLifecycle(mem)
	ctx := context.Background()

	pendingAlert(t, mem, 1)

	_, err := lc.ListActive(ctx, model.Caller{ID: "admin-1", Role: model.RoleAdmin}, 0, "bogus")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))

	critical, err := lc.ListActive(ctx, model.Caller{ID: "admin-1", Role: model.RoleAdmin}, 0, model.SeverityCritical)
	require.NoError(t, err)
	assert.Len(t, critical, 1)
}

func TestListHistoryBounds(t *testing.T) {
	mem := seededStore()
	lc := newTestLifecycle(mem)
	ctx := context.Background()
	caller := model.Caller{ID: "admin-1", Role: model.RoleAdmin}

	now := time.Now().UTC()

	_, err := lc.ListHistory(ctx, caller, HistoryQuery{From: now, To: now.AddDate(0, 0, -1)})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))

	_, err = lc.ListHistory(ctx, caller, HistoryQuery{From: now.AddDate(-2, 0, 0), To: now})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))
}

func TestListHistoryPagination(t *testing.T) {
	mem := seededStore()
	lc := newTestLifecycle(mem)
	ctx := context.Background()
	caller := model.Caller{ID: "admin-1", Role: model.RoleAdmin}

	for n := 0; n < 5; n++ {
		a := pendingAlert(t, mem, 1)
		a.Status = model.AlertCancelled
		require.NoError(t, mem.UpdateAlert(ctx, a))
	}

	page1, err := lc.ListHistory(ctx, caller, HistoryQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page3, err := lc.ListHistory(ctx, caller, HistoryQuery{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	// Oversized page sizes are clamped, not rejected.
	clamped, err := lc.ListHistory(ctx, caller, HistoryQuery{Page: 1, PageSize: 10000})
	require.NoError(t, err)
	assert.Len(t, clamped, 5)
}

func TestStatistics(t *testing.T) {
	mem := seededStore()
	mem.Assign("tech-1", 1)
	lc := newTestLifecycle(mem)
	ctx := context.Background()

	resolved := pendingAlert(t, mem, 1)
	_, err := lc.Resolve(ctx, resolved.ID, "fixed", model.Caller{ID: "tech-1", Role: model.RoleTechnician})
	require.NoError(t, err)

	pendingAlert(t, mem, 2)

	stats, err := lc.Statistics(ctx, model.Caller{ID: "admin-1", Role: model.RoleAdmin}, 30)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 2, stats.Critical)
	assert.InDelta(t, 0.5, stats.ResolutionRate, 0.001)
	assert.InDelta(t, 1.0, stats.CriticalRate, 0.001)
	assert.GreaterOrEqual(t, stats.AvgResponseMinutes, 0.0)
}

func TestStatisticsLookbackValidation(t *testing.T) {
	mem := seededStore()
	lc := newTestLifecycle(mem)

	_, err := lc.Statistics(context.Background(), model.Caller{ID: "admin-1", Role: model.RoleAdmin}, 366)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))
}
