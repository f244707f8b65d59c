package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-hr-timesheets/internal/access"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/logger"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
)

const defaultStoreTimeout = 5 * time.Second

// Config tunes the services.
type Config struct {
	StoreTimeout  time.Duration
	WeekEndingDay time.Weekday
}

// core carries what every service needs: stores, the per-call timeout and
// the clock.
type core struct {
	stores  Stores
	timeout time.Duration
	log     *logger.Logger
	now     func() time.Time
}

func newCore(stores Stores, cfg Config, log *logger.Logger) core {
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return core{stores: stores, timeout: timeout, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// exec runs fn under the store timeout and maps failures that carry no
// domain meaning to Unavailable.
func (c *core) exec(ctx context.Context, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return storeErr(fn(cctx))
}

// actor loads the caller's profile. Any failure, including a timeout, means
// the caller cannot be authorized.
func (c *core) actor(ctx context.Context, actorID string) (access.Actor, *repository.Profile, error) {
	if actorID == "" {
		return access.Actor{}, nil, errors.Unauthorized("Authentication required")
	}
	var p *repository.Profile
	err := c.exec(ctx, func(ctx context.Context) (err error) {
		p, err = c.stores.Profiles.Get(ctx, actorID)
		return err
	})
	if err != nil {
		c.log.Warn().Err(err).Str("actor_id", actorID).Msg("Actor profile lookup failed")
		return access.Actor{}, nil, unauthorized("Unable to verify your account", err)
	}
	return access.ActorFrom(p), p, nil
}

// owner loads the owner profile of a timesheet for an authorization
// decision; failures are reported as Unauthorized.
func (c *core) owner(ctx context.Context, actor *repository.Profile, userID string) (*repository.Profile, error) {
	if actor != nil && actor.ID == userID {
		return actor, nil
	}
	var p *repository.Profile
	err := c.exec(ctx, func(ctx context.Context) (err error) {
		p, err = c.stores.Profiles.Get(ctx, userID)
		return err
	})
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("Owner profile lookup failed")
		return nil, unauthorized("Unable to resolve the timesheet owner", err)
	}
	return p, nil
}

// profile loads a profile where a missing user is a NotFound for the caller.
func (c *core) profile(ctx context.Context, id string) (*repository.Profile, error) {
	var p *repository.Profile
	err := c.exec(ctx, func(ctx context.Context) (err error) {
		p, err = c.stores.Profiles.Get(ctx, id)
		return err
	})
	return p, err
}

// appendAudit writes an audit entry and logs a warning on failure; it never
// returns an error.
func (c *core) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if c.stores.Audit == nil {
		return
	}
	err := c.exec(ctx, func(ctx context.Context) error {
		return c.stores.Audit.Append(ctx, entry)
	})
	if err != nil {
		c.log.Warn().Err(err).
			Str("timesheet_id", entry.TimesheetID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if code := errors.CodeOf(err); code != errors.ErrCodeInternal {
		return err
	}
	return &errors.Error{Code: errors.ErrCodeUnavailable, Message: "storage is temporarily unavailable, please retry", Err: err}
}

func unauthorized(msg string, cause error) error {
	return &errors.Error{Code: errors.ErrCodeUnauthorized, Message: msg, Err: cause}
}

func statusPtr(s repository.TimesheetStatus) *repository.TimesheetStatus { return &s }
