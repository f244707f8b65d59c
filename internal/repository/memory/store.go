// Package memory is an in-process implementation of the repository stores
// for tests and STORE_DRIVER=memory. It mirrors the constraints the
// Postgres schema enforces: unique (user, week) timesheets, unique
// (timesheet, signer) signatures, conditional status updates and cascades.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
)

// Store holds all tables behind one lock. Use the accessor methods to get
// the per-table views.
type Store struct {
	mu          sync.RWMutex
	profiles    map[string]*repository.Profile
	timesheets  map[string]*repository.Timesheet
	entries     map[string][]*repository.TimesheetEntry
	signatures  map[string][]*repository.Signature
	sites       map[string]*repository.Site
	assignments map[string]map[string]struct{}
	audit       map[string][]*repository.AuditEntry
	now         func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		profiles:    make(map[string]*repository.Profile),
		timesheets:  make(map[string]*repository.Timesheet),
		entries:     make(map[string][]*repository.TimesheetEntry),
		signatures:  make(map[string][]*repository.Signature),
		sites:       make(map[string]*repository.Site),
		assignments: make(map[string]map[string]struct{}),
		audit:       make(map[string][]*repository.AuditEntry),
		now:         time.Now,
	}
}

func (s *Store) Profiles() *ProfileStore { return &ProfileStore{s} }
func (s *Store) Timesheets() *TimesheetStore { return &TimesheetStore{s} }
func (s *Store) Signatures() *SignatureStore { return &SignatureStore{s} }
func (s *Store) Sites() *SiteStore { return &SiteStore{s} }
func (s *Store) Audit() *AuditStore { return &AuditStore{s} }

// AddSite seeds a site; sites have no write path in the service.
func (s *Store) AddSite(site *repository.Site) *repository.Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	if site.ID == "" {
		site.ID = uuid.NewString()
	}
	c := *site
	s.sites[c.ID] = &c
	return site
}

// ── profiles ─────────────────────────────────────────────────────────────────

type ProfileStore struct{ s *Store }

func (p *ProfileStore) Get(ctx context.Context, id string) (*repository.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	if prof, ok := p.s.profiles[id]; ok {
		return cloneProfile(prof), nil
	}
	return nil, errors.NotFound("profile", id)
}

func (p *ProfileStore) List(ctx context.Context) ([]*repository.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	return p.s.sortedProfiles(func(*repository.Profile) bool { return true }), nil
}

func (p *ProfileStore) ListByRelation(ctx context.Context, userID string) ([]*repository.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	return p.s.sortedProfiles(func(prof *repository.Profile) bool { return prof.RelatesTo(userID) }), nil
}

func (p *ProfileStore) Create(ctx context.Context, prof *repository.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	for _, existing := range p.s.profiles {
		if strings.EqualFold(existing.Email, prof.Email) {
			return errors.New(errors.ErrCodeConflict, "a user with this email already exists")
		}
	}
	if prof.ID == "" {
		prof.ID = uuid.NewString()
	}
	if _, ok := p.s.profiles[prof.ID]; ok {
		return errors.New(errors.ErrCodeConflict, "a user with this id already exists")
	}
	now := p.s.now()
	prof.CreatedAt, prof.UpdatedAt = now, now
	p.s.profiles[prof.ID] = cloneProfile(prof)
	return nil
}

func (p *ProfileStore) Update(ctx context.Context, prof *repository.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	existing, ok := p.s.profiles[prof.ID]
	if !ok {
		return errors.NotFound("profile", prof.ID)
	}
	prof.Email = existing.Email
	prof.CreatedAt = existing.CreatedAt
	prof.UpdatedAt = p.s.now()
	p.s.profiles[prof.ID] = cloneProfile(prof)
	return nil
}

func (p *ProfileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if _, ok := p.s.profiles[id]; !ok {
		return errors.NotFound("profile", id)
	}
	delete(p.s.profiles, id)
	delete(p.s.assignments, id)

	for _, other := range p.s.profiles {
		for _, ref := range []**string{&other.ReportsToID, &other.SupervisorID, &other.ManagerID, &other.FinalApproverID} {
			if *ref != nil && **ref == id {
				*ref = nil
			}
		}
	}
	for tsID, t := range p.s.timesheets {
		if t.UserID == id {
			p.s.dropTimesheet(tsID)
		}
	}
	for tsID, sigs := range p.s.signatures {
		kept := sigs[:0]
		for _, sig := range sigs {
			if sig.SignerID != id {
				kept = append(kept, sig)
			}
		}
		p.s.signatures[tsID] = kept
	}
	return nil
}

func (s *Store) sortedProfiles(keep func(*repository.Profile) bool) []*repository.Profile {
	out := make([]*repository.Profile, 0, len(s.profiles))
	for _, prof := range s.profiles {
		if keep(prof) {
			out = append(out, cloneProfile(prof))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].Email < out[j].Email
	})
	return out
}

// ── timesheets ───────────────────────────────────────────────────────────────

type TimesheetStore struct{ s *Store }

func (t *TimesheetStore) Create(ctx context.Context, ts *repository.Timesheet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, ok := t.s.profiles[ts.UserID]; !ok {
		return errors.NotFound("profile", ts.UserID)
	}
	for _, existing := range t.s.timesheets {
		if existing.UserID == ts.UserID && existing.WeekEnding.Equal(ts.WeekEnding) {
			return errors.New(errors.ErrCodeConflict, "a timesheet already exists for this week")
		}
	}
	if ts.Status == "" {
		ts.Status = repository.StatusDraft
	}
	ts.ID = uuid.NewString()
	now := t.s.now()
	ts.CreatedAt, ts.UpdatedAt = now, now
	if ts.Entries == nil {
		ts.Entries = make([]*repository.TimesheetEntry, 0)
	}
	t.s.timesheets[ts.ID] = cloneTimesheet(ts)
	return nil
}

func (t *TimesheetStore) Get(ctx context.Context, id string) (*repository.Timesheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	ts, ok := t.s.timesheets[id]
	if !ok {
		return nil, errors.NotFound("timesheet", id)
	}
	return t.s.withEntries(ts), nil
}

func (t *TimesheetStore) GetByWeek(ctx context.Context, userID string, weekEnding time.Time) (*repository.Timesheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	for _, ts := range t.s.timesheets {
		if ts.UserID == userID && ts.WeekEnding.Equal(weekEnding) {
			return t.s.withEntries(ts), nil
		}
	}
	return nil, errors.NotFound("timesheet", userID+"/"+weekEnding.Format(time.DateOnly))
}

func (t *TimesheetStore) List(ctx context.Context, f repository.TimesheetFilter) ([]*repository.Timesheet, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var users map[string]bool
	if f.UserIDs != nil {
		users = make(map[string]bool, len(f.UserIDs))
		for _, id := range f.UserIDs {
			users[id] = true
		}
	}

	out := make([]*repository.Timesheet, 0)
	for _, ts := range t.s.timesheets {
		if users != nil && !users[ts.UserID] {
			continue
		}
		if f.Status != nil && ts.Status != *f.Status {
			continue
		}
		if f.FromWeek != nil && ts.WeekEnding.Before(*f.FromWeek) {
			continue
		}
		if f.ToWeek != nil && ts.WeekEnding.After(*f.ToWeek) {
			continue
		}
		out = append(out, cloneTimesheet(ts))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WeekEnding.Equal(out[j].WeekEnding) {
			return out[i].WeekEnding.After(out[j].WeekEnding)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	total := int64(len(out))
	if f.Limit > 0 {
		start := f.Offset
		if start > len(out) {
			start = len(out)
		}
		end := start + f.Limit
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, total, nil
}

func (t *TimesheetStore) ReplaceEntries(ctx context.Context, timesheetID string, entries []*repository.TimesheetEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	ts, ok := t.s.timesheets[timesheetID]
	if !ok {
		return errors.NotFound("timesheet", timesheetID)
	}
	now := t.s.now()
	stored := make([]*repository.TimesheetEntry, 0, len(entries))
	for _, e := range entries {
		e.ID = uuid.NewString()
		e.TimesheetID = timesheetID
		e.CreatedAt = now
		c := *e
		stored = append(stored, &c)
	}
	t.s.entries[timesheetID] = stored
	ts.UpdatedAt = now
	return nil
}

func (t *TimesheetStore) MarkSubmitted(ctx context.Context, id string, at time.Time) (bool, error) {
	return t.update(ctx, id, func(ts *repository.Timesheet) bool {
		if ts.Status != repository.StatusDraft && ts.Status != repository.StatusRejected {
			return false
		}
		ts.Status = repository.StatusSubmitted
		ts.SubmittedAt = timePtr(at)
		ts.EmployeeSignedAt = timePtr(at)
		ts.ApprovedByID, ts.ApprovedAt = nil, nil
		ts.RejectedByID, ts.RejectedAt, ts.RejectionReason = nil, nil, nil
		delete(t.s.signatures, id)
		return true
	})
}

func (t *TimesheetStore) MarkApproved(ctx context.Context, id, approverID string, at time.Time) (bool, error) {
	return t.update(ctx, id, func(ts *repository.Timesheet) bool {
		if ts.Status != repository.StatusSubmitted {
			return false
		}
		ts.Status = repository.StatusApproved
		ts.ApprovedByID = strPtr(approverID)
		ts.ApprovedAt = timePtr(at)
		return true
	})
}

func (t *TimesheetStore) MarkRejected(ctx context.Context, id, rejectorID, reason string, at time.Time) (bool, error) {
	return t.update(ctx, id, func(ts *repository.Timesheet) bool {
		if ts.Status != repository.StatusSubmitted {
			return false
		}
		ts.Status = repository.StatusRejected
		ts.RejectedByID = strPtr(rejectorID)
		ts.RejectedAt = timePtr(at)
		ts.RejectionReason = strPtr(reason)
		return true
	})
}

func (t *TimesheetStore) Recall(ctx context.Context, id string) (bool, error) {
	return t.update(ctx, id, func(ts *repository.Timesheet) bool {
		if ts.Status != repository.StatusSubmitted || len(t.s.signatures[id]) > 0 {
			return false
		}
		ts.Status = repository.StatusDraft
		ts.SubmittedAt, ts.EmployeeSignedAt = nil, nil
		delete(t.s.signatures, id)
		return true
	})
}

func (t *TimesheetStore) ClearRejection(ctx context.Context, id string) error {
	_, err := t.update(ctx, id, func(ts *repository.Timesheet) bool {
		ts.RejectedByID, ts.RejectedAt, ts.RejectionReason = nil, nil, nil
		return true
	})
	return err
}

func (t *TimesheetStore) SetStatus(ctx context.Context, id string, status repository.TimesheetStatus, actorID string, at time.Time) error {
	if !status.Valid() {
		return errors.InvalidInput("status", "invalid timesheet status")
	}
	_, err := t.update(ctx, id, func(ts *repository.Timesheet) bool {
		ts.Status = status
		switch status {
		case repository.StatusDraft:
			ts.SubmittedAt, ts.EmployeeSignedAt = nil, nil
			ts.ApprovedByID, ts.ApprovedAt = nil, nil
			delete(t.s.signatures, id)
		case repository.StatusSubmitted:
			if ts.SubmittedAt == nil {
				ts.SubmittedAt = timePtr(at)
			}
			ts.ApprovedByID, ts.ApprovedAt = nil, nil
		case repository.StatusApproved:
			ts.ApprovedByID, ts.ApprovedAt = strPtr(actorID), timePtr(at)
			ts.RejectedByID, ts.RejectedAt, ts.RejectionReason = nil, nil, nil
		case repository.StatusRejected:
			ts.RejectedByID, ts.RejectedAt = strPtr(actorID), timePtr(at)
			ts.ApprovedByID, ts.ApprovedAt = nil, nil
		}
		return true
	})
	return err
}

func (t *TimesheetStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, ok := t.s.timesheets[id]; !ok {
		return errors.NotFound("timesheet", id)
	}
	t.s.dropTimesheet(id)
	return nil
}

// update applies fn under the write lock; fn reports whether its guard held.
func (t *TimesheetStore) update(ctx context.Context, id string, fn func(*repository.Timesheet) bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	ts, ok := t.s.timesheets[id]
	if !ok {
		return false, errors.NotFound("timesheet", id)
	}
	if !fn(ts) {
		return false, nil
	}
	ts.UpdatedAt = t.s.now()
	return true, nil
}

func (s *Store) withEntries(ts *repository.Timesheet) *repository.Timesheet {
	c := cloneTimesheet(ts)
	c.Entries = make([]*repository.TimesheetEntry, 0, len(s.entries[ts.ID]))
	for _, e := range s.entries[ts.ID] {
		ec := *e
		c.Entries = append(c.Entries, &ec)
	}
	sort.SliceStable(c.Entries, func(i, j int) bool { return c.Entries[i].WorkDate.Before(c.Entries[j].WorkDate) })
	return c
}

func (s *Store) dropTimesheet(id string) {
	delete(s.timesheets, id)
	delete(s.entries, id)
	delete(s.signatures, id)
	delete(s.audit, id)
}

// ── signatures ───────────────────────────────────────────────────────────────

type SignatureStore struct{ s *Store }

func (g *SignatureStore) ListByTimesheet(ctx context.Context, timesheetID string) ([]*repository.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()

	out := make([]*repository.Signature, 0, len(g.s.signatures[timesheetID]))
	for _, sig := range g.s.signatures[timesheetID] {
		c := *sig
		out = append(out, &c)
	}
	return out, nil
}

func (g *SignatureStore) Insert(ctx context.Context, sig *repository.Signature) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	if _, ok := g.s.timesheets[sig.TimesheetID]; !ok {
		return false, errors.NotFound("timesheet", sig.TimesheetID)
	}
	for _, existing := range g.s.signatures[sig.TimesheetID] {
		if existing.SignerID == sig.SignerID {
			return false, nil
		}
	}
	sig.ID = uuid.NewString()
	c := *sig
	g.s.signatures[sig.TimesheetID] = append(g.s.signatures[sig.TimesheetID], &c)
	return true, nil
}

func (g *SignatureStore) DeleteAllByTimesheet(ctx context.Context, timesheetID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	delete(g.s.signatures, timesheetID)
	return nil
}

// ── sites ────────────────────────────────────────────────────────────────────

type SiteStore struct{ s *Store }

func (st *SiteStore) List(ctx context.Context) ([]*repository.Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()

	out := make([]*repository.Site, 0, len(st.s.sites))
	for _, site := range st.s.sites {
		c := *site
		out = append(out, &c)
	}
	sortSites(out)
	return out, nil
}

func (st *SiteStore) ListAssigned(ctx context.Context, userIDs []string) ([]*repository.Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()

	seen := make(map[string]bool)
	out := make([]*repository.Site, 0)
	for _, userID := range userIDs {
		for siteID := range st.s.assignments[userID] {
			site, ok := st.s.sites[siteID]
			if !ok || seen[siteID] {
				continue
			}
			seen[siteID] = true
			c := *site
			out = append(out, &c)
		}
	}
	sortSites(out)
	return out, nil
}

func (st *SiteStore) Assign(ctx context.Context, userID, siteID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	if _, ok := st.s.profiles[userID]; !ok {
		return errors.New(errors.ErrCodeNotFound, "user or site not found")
	}
	if _, ok := st.s.sites[siteID]; !ok {
		return errors.New(errors.ErrCodeNotFound, "user or site not found")
	}
	if st.s.assignments[userID] == nil {
		st.s.assignments[userID] = make(map[string]struct{})
	}
	st.s.assignments[userID][siteID] = struct{}{}
	return nil
}

func sortSites(sites []*repository.Site) {
	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
}

// ── audit ────────────────────────────────────────────────────────────────────

type AuditStore struct{ s *Store }

func (a *AuditStore) Append(ctx context.Context, entry *repository.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	entry.ID = uuid.NewString()
	entry.PerformedAt = a.s.now()
	c := *entry
	a.s.audit[entry.TimesheetID] = append(a.s.audit[entry.TimesheetID], &c)
	return nil
}

func (a *AuditStore) ListByTimesheet(ctx context.Context, timesheetID string) ([]*repository.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	out := make([]*repository.AuditEntry, 0, len(a.s.audit[timesheetID]))
	for _, e := range a.s.audit[timesheetID] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

// ── copies ───────────────────────────────────────────────────────────────────

func cloneProfile(p *repository.Profile) *repository.Profile {
	c := *p
	c.ReportsToID = copyStr(p.ReportsToID)
	c.SupervisorID = copyStr(p.SupervisorID)
	c.ManagerID = copyStr(p.ManagerID)
	c.FinalApproverID = copyStr(p.FinalApproverID)
	c.Department = copyStr(p.Department)
	return &c
}

func cloneTimesheet(t *repository.Timesheet) *repository.Timesheet {
	c := *t
	c.SubmittedAt = copyTime(t.SubmittedAt)
	c.EmployeeSignedAt = copyTime(t.EmployeeSignedAt)
	c.ApprovedByID = copyStr(t.ApprovedByID)
	c.ApprovedAt = copyTime(t.ApprovedAt)
	c.RejectedByID = copyStr(t.RejectedByID)
	c.RejectedAt = copyTime(t.RejectedAt)
	c.RejectionReason = copyStr(t.RejectionReason)
	c.Entries = nil
	return &c
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	return strPtr(*s)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}

func strPtr(s string) *string { return &s }
func timePtr(t time.Time) *time.Time { return &t }
