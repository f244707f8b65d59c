package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/logger"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository/memory"
	"github.com/pesio-ai/be-hr-timesheets/internal/service"
)

const week = "2026-10-11" // a Sunday

type event struct {
	eventType   string
	timesheetID string
	recipients  []string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) PublishTimesheetEvent(_ context.Context, eventType, timesheetID, _ string, recipients []string, _ map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{eventType: eventType, timesheetID: timesheetID, recipients: recipients})
}

func (n *recordingNotifier) last() event {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return event{}
	}
	return n.events[len(n.events)-1]
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      *memory.Store
	stores     service.Stores
	notifier   *recordingNotifier
	timesheets *service.TimesheetService
	users      *service.UserService
	sites      *service.SiteService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	stores := service.Stores{
		Profiles:   store.Profiles(),
		Timesheets: store.Timesheets(),
		Signatures: store.Signatures(),
		Sites:      store.Sites(),
		Audit:      store.Audit(),
	}
	return newFixtureWith(t, store, stores)
}

func newFixtureWith(t *testing.T, store *memory.Store, stores service.Stores) *fixture {
	t.Helper()
	cfg := service.Config{StoreTimeout: time.Second, WeekEndingDay: time.Sunday}
	notifier := &recordingNotifier{}
	sites := service.NewSiteService(stores, cfg, logger.Nop())
	return &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      store,
		stores:     stores,
		notifier:   notifier,
		timesheets: service.NewTimesheetService(stores, notifier, cfg, logger.Nop()),
		users:      service.NewUserService(stores, sites, cfg, logger.Nop()),
		sites:      sites,
	}
}

// profile seeds a profile directly in the store.
func (f *fixture) profile(name string, role repository.Role, opts ...func(*repository.Profile)) *repository.Profile {
	f.t.Helper()
	p := &repository.Profile{Email: name + "@example.com", FullName: name, Role: role}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(f.t, f.store.Profiles().Create(f.ctx, p))
	return p
}

func strp(s string) *string { return &s }

func supervisedBy(id string) func(*repository.Profile) {
	return func(p *repository.Profile) { p.SupervisorID = &id }
}

func reportsTo(id string) func(*repository.Profile) {
	return func(p *repository.Profile) { p.ReportsToID = &id }
}

func managedBy(id string) func(*repository.Profile) {
	return func(p *repository.Profile) { p.ManagerID = &id }
}

func finalApprover(id string) func(*repository.Profile) {
	return func(p *repository.Profile) { p.FinalApproverID = &id }
}

// draft opens the week for owner and adds one entry.
func (f *fixture) draft(owner *repository.Profile) *repository.Timesheet {
	f.t.Helper()
	ts, err := f.timesheets.OpenWeek(f.ctx, owner.ID, &service.OpenWeekRequest{WeekEnding: week})
	require.NoError(f.t, err)
	ts, err = f.timesheets.UpdateEntries(f.ctx, owner.ID, ts.ID, []*service.EntryInput{
		{WorkDate: "2026-10-06", Hours: 8},
	})
	require.NoError(f.t, err)
	return ts
}

func (f *fixture) submitted(owner *repository.Profile) *repository.Timesheet {
	f.t.Helper()
	ts := f.draft(owner)
	ts, err := f.timesheets.Submit(f.ctx, owner.ID, ts.ID)
	require.NoError(f.t, err)
	return ts
}

func (f *fixture) signatures(timesheetID string) []*repository.Signature {
	f.t.Helper()
	sigs, err := f.store.Signatures().ListByTimesheet(f.ctx, timesheetID)
	require.NoError(f.t, err)
	return sigs
}
