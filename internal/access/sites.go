package access

import (
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
)

// SiteScope says which sites an actor can see.
type SiteScope int

const (
	SiteScopeNone SiteScope = iota
	SiteScopeOwn
	SiteScopeOwnAndSubordinates
	SiteScopeAll
)

// SiteScopeFor returns the site scope of actor's role.
func SiteScopeFor(actor Actor) SiteScope {
	switch actor.Role {
	case repository.RoleAdmin, repository.RoleSuperAdmin:
		return SiteScopeAll
	case repository.RoleManager:
		return SiteScopeOwnAndSubordinates
	case repository.RoleSupervisor:
		return SiteScopeOwn
	default:
		return SiteScopeNone
	}
}

// AuthorizeSiteAssignment checks that actor may assign a site to target.
// siteAccessible is whether the site is within the actor's own site scope.
func AuthorizeSiteAssignment(actor Actor, target *repository.Profile, siteAccessible bool) error {
	switch actor.Role {
	case repository.RoleAdmin, repository.RoleSuperAdmin:
		if !CanSeeUser(actor, target) {
			return errors.Unauthorized("You do not have access to this user")
		}
		return nil
	case repository.RoleManager:
		if target.ID == actor.ID || !CanSeeUser(actor, target) {
			return errors.Unauthorized("You can only assign sites to your own team")
		}
		if !siteAccessible {
			return errors.Unauthorized("You can only assign sites you have access to")
		}
		return nil
	default:
		return errors.Unauthorized("You do not have permission to assign sites")
	}
}
