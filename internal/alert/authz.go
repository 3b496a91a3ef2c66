package alert

import "github.com/LuizPaulo1002/neuramaint/internal/model"

// Permission checks are pure functions over the closed role enum so they
// can be tested without any HTTP plumbing.

// CanResolve reports whether a caller may resolve an alert. Admins and
// managers may resolve any alert; technicians only those on equipment they
// are assigned to.
func CanResolve(role model.Role, assigned bool) bool {
	switch role {
	case model.RoleAdmin, model.RoleManager:
		return true
	case model.RoleTechnician:
		return assigned
	}
	return false
}

// CanCancel reports whether a caller may cancel an alert. Admin-only.
func CanCancel(role model.Role) bool {
	return role == model.RoleAdmin
}

// SeesAllEquipment reports whether the caller's listings span every
// equipment unit. Technicians are scoped to their assignments.
func SeesAllEquipment(role model.Role) bool {
	return role == model.RoleAdmin || role == model.RoleManager || role == model.RoleSystem
}

// CanEvaluate reports whether a caller may drive the prediction evaluation
// path. The pipeline runs as RoleSystem; admins may trigger it manually.
func CanEvaluate(role model.Role) bool {
	return role == model.RoleSystem || role == model.RoleAdmin
}
