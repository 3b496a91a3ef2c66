package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LuizPaulo1002/neuramaint/internal/model"
)

func TestCanResolve(t *testing.T) {
	assert.True(t, CanResolve(model.RoleAdmin, false))
	assert.True(t, CanResolve(model.RoleManager, false))
	assert.True(t, CanResolve(model.RoleTechnician, true))
	assert.False(t, CanResolve(model.RoleTechnician, false))
	assert.False(t, CanResolve(model.RoleSystem, true))
}

func TestCanCancel(t *testing.T) {
	assert.True(t, CanCancel(model.RoleAdmin))
	assert.False(t, CanCancel(model.RoleManager))
	assert.False(t, CanCancel(model.RoleTechnician))
	assert.False(t, CanCancel(model.RoleSystem))
}

func TestSeesAllEquipment(t *testing.T) {
	assert.True(t, SeesAllEquipment(model.RoleAdmin))
	assert.True(t, SeesAllEquipment(model.RoleManager))
	assert.True(t, SeesAllEquipment(model.RoleSystem))
	assert.False(t, SeesAllEquipment(model.RoleTechnician))
}

func TestCanEvaluate(t *testing.T) {
	assert.True(t, CanEvaluate(model.RoleSystem))
	assert.True(t, CanEvaluate(model.RoleAdmin))
	assert.False(t, CanEvaluate(model.RoleManager))
	assert.False(t, CanEvaluate(model.RoleTechnician))
}
