package access

import (
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
)

// ValidateChainFields rejects a profile whose chain fields point at itself.
func ValidateChainFields(p *repository.Profile) error {
	if p.ID == "" {
		return nil
	}
	fields := []struct {
		name string
		ref  *string
	}{
		{"reports_to_id", p.ReportsToID},
		{"supervisor_id", p.SupervisorID},
		{"manager_id", p.ManagerID},
		{"final_approver_id", p.FinalApproverID},
	}
	for _, f := range fields {
		if f.ref != nil && *f.ref == p.ID {
			return errors.InvalidInput(f.name, "a user cannot be their own approver")
		}
	}
	return nil
}

// PrepareNewUser applies the creation rules of actor's role to p, forcing
// fields where the role requires it.
func PrepareNewUser(actor Actor, p *repository.Profile) error {
	if p.Role == "" {
		p.Role = repository.RoleEmployee
	}
	if !p.Role.Valid() {
		return errors.InvalidInput("role", "invalid role")
	}

	switch actor.Role {
	case repository.RoleSuperAdmin:
		return nil
	case repository.RoleAdmin:
		if p.Role == repository.RoleSuperAdmin {
			return errors.Unauthorized("Only super admins can create super admin users")
		}
		return nil
	case repository.RoleManager, repository.RoleSupervisor:
		if p.FinalApproverID != nil && *p.FinalApproverID != "" {
			return errors.Unauthorized("Only admins can assign a final approver")
		}
		if !ownLine(actor, p.SupervisorID) || !ownLine(actor, p.ManagerID) {
			return errors.Unauthorized("You can only place new users under yourself")
		}
		self := actor.ID
		p.Role = repository.RoleEmployee
		p.ReportsToID = &self
		return nil
	default:
		return errors.Unauthorized("You do not have permission to create users")
	}
}

// AuthorizeUserUpdate checks that actor may turn existing into updated.
func AuthorizeUserUpdate(actor Actor, existing, updated *repository.Profile) error {
	if !CanSeeUser(actor, existing) {
		return errors.Unauthorized("You do not have access to this user")
	}

	if updated.Role != existing.Role {
		if actor.ID == existing.ID {
			return errors.Unauthorized("You cannot change your own role")
		}
		if !actor.IsAdmin() {
			return errors.Unauthorized("Only admins can change roles")
		}
		if !updated.Role.Valid() {
			return errors.InvalidInput("role", "invalid role")
		}
		if updated.Role.Rank() > actor.Role.Rank() {
			return errors.Unauthorized("You cannot grant a role above your own")
		}
	}

	if actor.IsAdmin() {
		return nil
	}

	if !sameRef(existing.FinalApproverID, updated.FinalApproverID) {
		return errors.Unauthorized("Only admins can assign a final approver")
	}
	chainChanged := !sameRef(existing.ReportsToID, updated.ReportsToID) ||
		!sameRef(existing.SupervisorID, updated.SupervisorID) ||
		!sameRef(existing.ManagerID, updated.ManagerID)
	if chainChanged && (actor.Role == repository.RoleEmployee || actor.ID == existing.ID) {
		return errors.Unauthorized("You cannot change your own reporting lines")
	}
	for _, pair := range [][2]*string{
		{existing.ReportsToID, updated.ReportsToID},
		{existing.SupervisorID, updated.SupervisorID},
		{existing.ManagerID, updated.ManagerID},
	} {
		if !sameRef(pair[0], pair[1]) && !ownLine(actor, pair[1]) {
			return errors.Unauthorized("You can only place users under yourself")
		}
	}
	return nil
}

// ownLine reports whether a chain field is unset or points at actor.
func ownLine(actor Actor, ref *string) bool {
	return ref == nil || *ref == "" || *ref == actor.ID
}

// AuthorizeUserDelete checks that actor may delete target. Nobody deletes
// their own account.
func AuthorizeUserDelete(actor Actor, target *repository.Profile) error {
	if actor.ID == target.ID {
		return errors.Unauthorized("You cannot delete your own account")
	}
	if !actor.IsAdmin() || !CanSeeUser(actor, target) {
		return errors.Unauthorized("Only admins can delete users")
	}
	return nil
}

func sameRef(a, b *string) bool {
	av, bv := "", ""
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}
