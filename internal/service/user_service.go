package service

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pesio-ai/be-hr-timesheets/internal/access"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/logger"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
)

// UserService manages profiles within the actor's visibility scope.
type UserService struct {
	core
	sites *SiteService
}

// NewUserService creates a new UserService. sites handles site assignment
// on creation.
func NewUserService(stores Stores, sites *SiteService, cfg Config, log *logger.Logger) *UserService {
	if log == nil {
		log = logger.Nop()
	}
	return &UserService{core: newCore(stores, cfg, log.Component("users")), sites: sites}
}

// CreateUserRequest represents a create user request.
type CreateUserRequest struct {
	ID              string   `json:"id,omitempty"` // identity provider account id
	Email           string   `json:"email"`
	FullName        string   `json:"full_name"`
	Role            string   `json:"role,omitempty"`
	ReportsToID     *string  `json:"reports_to_id,omitempty"`
	SupervisorID    *string  `json:"supervisor_id,omitempty"`
	ManagerID       *string  `json:"manager_id,omitempty"`
	FinalApproverID *string  `json:"final_approver_id,omitempty"`
	Department      *string  `json:"department,omitempty"`
	SiteIDs         []string `json:"site_ids,omitempty"`
}

// UpdateUserRequest is a partial update: nil leaves a field unchanged and
// an empty string clears an optional field.
type UpdateUserRequest struct {
	ID              string  `json:"id"`
	FullName        *string `json:"full_name,omitempty"`
	Role            *string `json:"role,omitempty"`
	ReportsToID     *string `json:"reports_to_id,omitempty"`
	SupervisorID    *string `json:"supervisor_id,omitempty"`
	ManagerID       *string `json:"manager_id,omitempty"`
	FinalApproverID *string `json:"final_approver_id,omitempty"`
	Department      *string `json:"department,omitempty"`
}

// List returns the profiles the actor may see. The actor's profile and the
// related profiles are fetched concurrently.
func (s *UserService) List(ctx context.Context, actorID string) ([]*repository.Profile, error) {
	if actorID == "" {
		return nil, errors.Unauthorized("Authentication required")
	}

	var (
		actorProfile *repository.Profile
		related      []*repository.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.exec(gctx, func(ctx context.Context) (err error) {
			actorProfile, err = s.stores.Profiles.Get(ctx, actorID)
			return err
		})
	})
	g.Go(func() error {
		return s.exec(gctx, func(ctx context.Context) (err error) {
			related, err = s.stores.Profiles.ListByRelation(ctx, actorID)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		if actorProfile == nil {
			return nil, unauthorized("Unable to verify your account", err)
		}
		return nil, err
	}
	actor := access.ActorFrom(actorProfile)

	candidates := append([]*repository.Profile{actorProfile}, related...)
	if actor.IsAdmin() {
		err := s.exec(ctx, func(ctx context.Context) (err error) {
			candidates, err = s.stores.Profiles.List(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return access.VisibleUsers(actor, candidates), nil
}

// Get returns a profile the actor may see.
func (s *UserService) Get(ctx context.Context, actorID, id string) (*repository.Profile, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	actor, _, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	p, err := s.profile(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanSeeUser(actor, p) {
		return nil, errors.Unauthorized("You do not have access to this user")
	}
	return p, nil
}

// Create creates a profile under the actor's creation rules and assigns the
// requested sites.
func (s *UserService) Create(ctx context.Context, actorID string, req *CreateUserRequest) (*repository.Profile, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.InvalidInput("email", "a valid email is required")
	}
	if req.ID != "" {
		if err := validateID("id", req.ID); err != nil {
			return nil, err
		}
	}

	actor, _, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	p := &repository.Profile{
		ID:              req.ID,
		Email:           email,
		FullName:        strings.TrimSpace(req.FullName),
		Role:            repository.Role(req.Role),
		ReportsToID:     blankToNil(req.ReportsToID),
		SupervisorID:    blankToNil(req.SupervisorID),
		ManagerID:       blankToNil(req.ManagerID),
		FinalApproverID: blankToNil(req.FinalApproverID),
		Department:      blankToNil(req.Department),
	}
	if err := access.PrepareNewUser(actor, p); err != nil {
		return nil, err
	}
	if err := access.ValidateChainFields(p); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, p); err != nil {
		return nil, err
	}
	if len(req.SiteIDs) > 0 && access.SiteScopeFor(actor) < access.SiteScopeOwnAndSubordinates {
		return nil, errors.Unauthorized("You do not have permission to assign sites")
	}
	for _, siteID := range req.SiteIDs {
		if err := validateID("site_ids", siteID); err != nil {
			return nil, err
		}
		if s.sites == nil {
			continue
		}
		ok, err := s.sites.siteAccessible(ctx, actor, siteID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Unauthorized("You can only assign sites you have access to")
		}
	}

	if err := s.exec(ctx, func(ctx context.Context) error { return s.stores.Profiles.Create(ctx, p) }); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", p.ID).Str("role", string(p.Role)).Str("created_by", actor.ID).Msg("User created")

	if s.sites != nil {
		for _, siteID := range req.SiteIDs {
			if err := s.sites.assign(ctx, actor, p, siteID); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// Update applies a partial profile update.
func (s *UserService) Update(ctx context.Context, actorID string, req *UpdateUserRequest) (*repository.Profile, error) {
	if err := validateID("id", req.ID); err != nil {
		return nil, err
	}
	actor, _, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	existing, err := s.profile(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.FullName != nil {
		updated.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Role != nil {
		updated.Role = repository.Role(*req.Role)
	}
	applyRef(&updated.ReportsToID, req.ReportsToID)
	applyRef(&updated.SupervisorID, req.SupervisorID)
	applyRef(&updated.ManagerID, req.ManagerID)
	applyRef(&updated.FinalApproverID, req.FinalApproverID)
	applyRef(&updated.Department, req.Department)

	if err := access.ValidateChainFields(&updated); err != nil {
		return nil, err
	}
	if err := access.AuthorizeUserUpdate(actor, existing, &updated); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, &updated); err != nil {
		return nil, err
	}

	if err := s.exec(ctx, func(ctx context.Context) error { return s.stores.Profiles.Update(ctx, &updated) }); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", updated.ID).Str("updated_by", actor.ID).Msg("User updated")
	return &updated, nil
}

// Delete removes a user. Deleting one's own account always fails with
// Unauthorized, before any lookup.
func (s *UserService) Delete(ctx context.Context, actorID, id string) error {
	if actorID != "" && actorID == id {
		return errors.Unauthorized("You cannot delete your own account")
	}
	if err := validateID("id", id); err != nil {
		return err
	}
	actor, _, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}
	target, err := s.profile(ctx, id)
	if err != nil {
		return err
	}
	if err := access.AuthorizeUserDelete(actor, target); err != nil {
		return err
	}

	if err := s.exec(ctx, func(ctx context.Context) error { return s.stores.Profiles.Delete(ctx, id) }); err != nil {
		return err
	}
	s.log.Info().Str("user_id", id).Str("deleted_by", actor.ID).Msg("User deleted")
	return nil
}

// checkReferences verifies, concurrently, that every chain field points at
// an existing profile.
func (s *UserService) checkReferences(ctx context.Context, p *repository.Profile) error {
	fields := []struct {
		name string
		ref  *string
	}{
		{"reports_to_id", p.ReportsToID},
		{"supervisor_id", p.SupervisorID},
		{"manager_id", p.ManagerID},
		{"final_approver_id", p.FinalApproverID},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range fields {
		if f.ref == nil {
			continue
		}
		name, id := f.name, *f.ref
		g.Go(func() error {
			if err := validateID(name, id); err != nil {
				return err
			}
			_, err := s.profile(gctx, id)
			if errors.Is(err, errors.ErrCodeNotFound) {
				return errors.InvalidInput(name, "referenced user does not exist")
			}
			return err
		})
	}
	return g.Wait()
}

func blankToNil(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

func applyRef(dst **string, v *string) {
	if v == nil {
		return
	}
	*dst = blankToNil(v)
}
