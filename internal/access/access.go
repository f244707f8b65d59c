// Package access is the single home of role checks. It decides which users,
// timesheets and sites an actor may see or act on; no other package looks
// at roles directly.
package access

import (
	"fmt"

	"github.com/pesio-ai/be-hr-timesheets/internal/approval"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
)

// Action is something an actor wants to do to a timesheet.
type Action string

const (
	ActionView           Action = "view"
	ActionEdit           Action = "edit"
	ActionSubmit         Action = "submit"
	ActionRecall         Action = "recall"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionClearRejection Action = "clear_rejection"
	ActionDelete         Action = "delete"
)

var deniedMessages = map[Action]string{
	ActionView:           "You do not have access to this timesheet",
	ActionEdit:           "You can only edit your own timesheets",
	ActionSubmit:         "You can only submit your own timesheets",
	ActionRecall:         "You can only recall your own timesheets",
	ActionApprove:        "You are not authorized to approve this timesheet",
	ActionReject:         "You are not authorized to reject this timesheet",
	ActionClearRejection: "You are not authorized to clear this rejection",
	ActionDelete:         "You can only delete your own timesheets",
}

// Actor is the authenticated user with the role read from their profile.
type Actor struct {
	ID   string
	Role repository.Role
}

// ActorFrom builds an Actor from the actor's own profile.
func ActorFrom(p *repository.Profile) Actor {
	return Actor{ID: p.ID, Role: p.Role}
}

// IsAdmin is true for admin and super_admin actors.
func (a Actor) IsAdmin() bool { return a.Role.IsAdmin() }

// CanSeeUser reports whether actor may see target's profile and timesheets.
func CanSeeUser(actor Actor, target *repository.Profile) bool {
	if target == nil {
		return false
	}
	if target.ID == actor.ID {
		return true
	}

	switch actor.Role {
	case repository.RoleSuperAdmin:
		return true
	case repository.RoleAdmin:
		return target.Role != repository.RoleSuperAdmin
	case repository.RoleManager:
		return target.RelatesTo(actor.ID) &&
			(target.Role == repository.RoleEmployee || target.Role == repository.RoleSupervisor)
	case repository.RoleSupervisor:
		return target.RelatesTo(actor.ID) && target.Role == repository.RoleEmployee
	default:
		return false
	}
}

// VisibleUsers filters profiles down to those actor may see.
func VisibleUsers(actor Actor, profiles []*repository.Profile) []*repository.Profile {
	out := make([]*repository.Profile, 0, len(profiles))
	for _, p := range profiles {
		if CanSeeUser(actor, p) {
			out = append(out, p)
		}
	}
	return out
}

// CanActOnTimesheet reports whether actor may perform action on a timesheet
// owned by owner. Status guards are not checked here.
func CanActOnTimesheet(actor Actor, owner *repository.Profile, action Action) bool {
	if owner == nil {
		return false
	}
	isOwner := owner.ID == actor.ID
	inChain := approval.InChain(approval.BuildChain(owner), actor.ID)
	// Employees never sign for others, even when named in a chain.
	chainApprover := inChain && actor.Role != repository.RoleEmployee
	adminScope := actor.IsAdmin() && CanSeeUser(actor, owner)

	switch action {
	case ActionView:
		return isOwner || inChain || CanSeeUser(actor, owner)
	case ActionEdit, ActionDelete:
		return isOwner || adminScope
	case ActionSubmit, ActionRecall:
		return isOwner
	case ActionApprove:
		if isOwner {
			return false
		}
		return chainApprover || adminScope || (actor.Role != repository.RoleEmployee && CanSeeUser(actor, owner))
	case ActionReject:
		return isOwner || chainApprover || adminScope ||
			(actor.Role != repository.RoleEmployee && CanSeeUser(actor, owner))
	case ActionClearRejection:
		return isOwner || chainApprover || adminScope
	default:
		return false
	}
}

// AuthorizeTimesheet is CanActOnTimesheet returning an Unauthorized error
// with an actor-facing reason.
func AuthorizeTimesheet(actor Actor, owner *repository.Profile, action Action) error {
	if CanActOnTimesheet(actor, owner, action) {
		return nil
	}
	msg, ok := deniedMessages[action]
	if !ok {
		msg = fmt.Sprintf("action %q is not permitted", action)
	}
	return errors.Unauthorized(msg)
}
