package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-hr-timesheets/internal/approval"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
)

// ProfileStore is the profile directory.
type ProfileStore interface {
	Get(ctx context.Context, id string) (*repository.Profile, error)
	List(ctx context.Context) ([]*repository.Profile, error)
	ListByRelation(ctx context.Context, userID string) ([]*repository.Profile, error)
	Create(ctx context.Context, p *repository.Profile) error
	Update(ctx context.Context, p *repository.Profile) error
	Delete(ctx context.Context, id string) error
}

// TimesheetStore persists timesheets. The Mark* and Recall methods are
// conditional updates reporting whether their status guard still held.
type TimesheetStore interface {
	Create(ctx context.Context, t *repository.Timesheet) error
	Get(ctx context.Context, id string) (*repository.Timesheet, error)
	GetByWeek(ctx context.Context, userID string, weekEnding time.Time) (*repository.Timesheet, error)
	List(ctx context.Context, f repository.TimesheetFilter) ([]*repository.Timesheet, int64, error)
	ReplaceEntries(ctx context.Context, timesheetID string, entries []*repository.TimesheetEntry) error
	MarkSubmitted(ctx context.Context, id string, at time.Time) (bool, error)
	MarkApproved(ctx context.Context, id, approverID string, at time.Time) (bool, error)
	MarkRejected(ctx context.Context, id, rejectorID, reason string, at time.Time) (bool, error)
	Recall(ctx context.Context, id string) (bool, error)
	ClearRejection(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status repository.TimesheetStatus, actorID string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// SiteStore reads sites and assignments.
type SiteStore interface {
	List(ctx context.Context) ([]*repository.Site, error)
	ListAssigned(ctx context.Context, userIDs []string) ([]*repository.Site, error)
	Assign(ctx context.Context, userID, siteID string) error
}

// AuditStore is the timesheet audit trail.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	ListByTimesheet(ctx context.Context, timesheetID string) ([]*repository.AuditEntry, error)
}

// Notifier publishes workflow events. Implementations must not block on
// failure.
type Notifier interface {
	PublishTimesheetEvent(ctx context.Context, eventType, timesheetID, actorID string, recipients []string, payload map[string]interface{})
}

// Stores groups the persistence collaborators.
type Stores struct {
	Profiles   ProfileStore
	Timesheets TimesheetStore
	Signatures approval.SignatureStore
	Sites      SiteStore
	Audit      AuditStore
}
