package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/logger"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository/memory"
	"github.com/pesio-ai/be-hr-timesheets/internal/service"
)

// stallingProfiles blocks Get until the context ends once stall is set.
type stallingProfiles struct {
	*memory.ProfileStore
	stall atomic.Bool
}

func (p *stallingProfiles) Get(ctx context.Context, id string) (*repository.Profile, error) {
	if p.stall.Load() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.ProfileStore.Get(ctx, id)
}

type stallingTimesheets struct {
	*memory.TimesheetStore
	stall atomic.Bool
}

func (t *stallingTimesheets) Get(ctx context.Context, id string) (*repository.Timesheet, error) {
	if t.stall.Load() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return t.TimesheetStore.Get(ctx, id)
}

func newStallingFixture(t *testing.T) (*fixture, *stallingProfiles, *stallingTimesheets, *service.TimesheetService) {
	t.Helper()
	store := memory.New()
	profiles := &stallingProfiles{ProfileStore: store.Profiles()}
	timesheets := &stallingTimesheets{TimesheetStore: store.Timesheets()}
	stores := service.Stores{
		Profiles:   profiles,
		Timesheets: timesheets,
		Signatures: store.Signatures(),
		Sites:      store.Sites(),
		Audit:      store.Audit(),
	}
	f := newFixtureWith(t, store, stores)
	fast := service.NewTimesheetService(stores, f.notifier, service.Config{
		StoreTimeout:  20 * time.Millisecond,
		WeekEndingDay: time.Sunday,
	}, logger.Nop())
	return f, profiles, timesheets, fast
}

func TestActorLookupTimeoutIsUnauthorized(t *testing.T) {
	f, profiles, _, fast := newStallingFixture(t)
	owner := f.profile("emp", repository.RoleEmployee)
	ts := f.draft(owner)

	profiles.stall.Store(true)
	start := time.Now()
	_, err := fast.Get(f.ctx, owner.ID, ts.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
	assert.Less(t, time.Since(start), time.Second)
}

func TestStoreTimeoutIsUnavailable(t *testing.T) {
	f, _, timesheets, fast := newStallingFixture(t)
	owner := f.profile("emp", repository.RoleEmployee)
	ts := f.draft(owner)

	timesheets.stall.Store(true)
	_, err := fast.Submit(f.ctx, owner.ID, ts.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnavailable))

	timesheets.stall.Store(false)
	got, err := fast.Get(f.ctx, owner.ID, ts.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDraft, got.Status)
}
