package service

import (
	"context"

	"github.com/pesio-ai/be-hr-timesheets/internal/access"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/logger"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
)

// SiteService exposes sites scoped to the actor's role.
type SiteService struct {
	core
}

// NewSiteService creates a new SiteService.
func NewSiteService(stores Stores, cfg Config, log *logger.Logger) *SiteService {
	if log == nil {
		log = logger.Nop()
	}
	return &SiteService{core: newCore(stores, cfg, log.Component("sites"))}
}

// List returns the sites the actor can see.
func (s *SiteService) List(ctx context.Context, actorID string) ([]*repository.Site, error) {
	actor, _, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.visibleSites(ctx, actor)
}

// Assign assigns a site to a user within the actor's scope.
func (s *SiteService) Assign(ctx context.Context, actorID, userID, siteID string) error {
	if err := validateID("user_id", userID); err != nil {
		return err
	}
	if err := validateID("site_id", siteID); err != nil {
		return err
	}
	actor, _, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}
	target, err := s.profile(ctx, userID)
	if err != nil {
		return err
	}
	return s.assign(ctx, actor, target, siteID)
}

func (s *SiteService) assign(ctx context.Context, actor access.Actor, target *repository.Profile, siteID string) error {
	accessible, err := s.siteAccessible(ctx, actor, siteID)
	if err != nil {
		return err
	}
	if err := access.AuthorizeSiteAssignment(actor, target, accessible); err != nil {
		return err
	}

	if err := s.exec(ctx, func(ctx context.Context) error { return s.stores.Sites.Assign(ctx, target.ID, siteID) }); err != nil {
		return err
	}
	s.log.Info().Str("user_id", target.ID).Str("site_id", siteID).Str("actor_id", actor.ID).Msg("Site assigned")
	return nil
}

func (s *SiteService) siteAccessible(ctx context.Context, actor access.Actor, siteID string) (bool, error) {
	if access.SiteScopeFor(actor) == access.SiteScopeAll {
		return true, nil
	}
	sites, err := s.visibleSites(ctx, actor)
	if err != nil {
		return false, err
	}
	for _, site := range sites {
		if site.ID == siteID {
			return true, nil
		}
	}
	return false, nil
}

func (s *SiteService) visibleSites(ctx context.Context, actor access.Actor) ([]*repository.Site, error) {
	var sites []*repository.Site

	switch access.SiteScopeFor(actor) {
	case access.SiteScopeAll:
		err := s.exec(ctx, func(ctx context.Context) (err error) {
			sites, err = s.stores.Sites.List(ctx)
			return err
		})
		return sites, err

	case access.SiteScopeOwn:
		err := s.exec(ctx, func(ctx context.Context) (err error) {
			sites, err = s.stores.Sites.ListAssigned(ctx, []string{actor.ID})
			return err
		})
		return sites, err

	case access.SiteScopeOwnAndSubordinates:
		var related []*repository.Profile
		err := s.exec(ctx, func(ctx context.Context) (err error) {
			related, err = s.stores.Profiles.ListByRelation(ctx, actor.ID)
			return err
		})
		if err != nil {
			return nil, err
		}
		userIDs := []string{actor.ID}
		for _, p := range access.VisibleUsers(actor, related) {
			userIDs = append(userIDs, p.ID)
		}
		err = s.exec(ctx, func(ctx context.Context) (err error) {
			sites, err = s.stores.Sites.ListAssigned(ctx, userIDs)
			return err
		})
		return sites, err

	default:
		return make([]*repository.Site, 0), nil
	}
}
