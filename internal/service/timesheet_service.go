package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-hr-timesheets/internal/access"
	"github.com/pesio-ai/be-hr-timesheets/internal/approval"
	"github.com/pesio-ai/be-hr-timesheets/internal/client"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/logger"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
)

const dateLayout = "2006-01-02"

// TimesheetService runs the timesheet lifecycle and the approval chain.
type TimesheetService struct {
	core
	ledger        *approval.Ledger
	notifier      Notifier
	weekEndingDay time.Weekday
}

// NewTimesheetService creates a new TimesheetService. notifier may be nil.
func NewTimesheetService(stores Stores, notifier Notifier, cfg Config, log *logger.Logger) *TimesheetService {
	if log == nil {
		log = logger.Nop()
	}
	return &TimesheetService{
		core:          newCore(stores, cfg, log.Component("timesheets")),
		ledger:        approval.NewLedger(stores.Signatures),
		notifier:      notifier,
		weekEndingDay: cfg.WeekEndingDay,
	}
}

// OpenWeekRequest opens (or returns) the timesheet of a week.
type OpenWeekRequest struct {
	UserID     string `json:"user_id,omitempty"` // defaults to the actor
	WeekEnding string `json:"week_ending"`       // YYYY-MM-DD
}

// EntryInput is one line of hours.
type EntryInput struct {
	WorkDate      string  `json:"work_date"`
	Hours         float64 `json:"hours"`
	SiteID        *string `json:"site_id,omitempty"`
	PurchaseOrder *string `json:"purchase_order,omitempty"`
	Activity      *string `json:"activity,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// ListRequest filters the timesheet listing.
type ListRequest struct {
	UserID   string
	Status   string
	FromWeek string
	ToWeek   string
	Limit    int
	Offset   int
}

// ChainStep is one approver position with its signing state.
type ChainStep struct {
	UserID   string                `json:"user_id"`
	Role     repository.SignerRole `json:"role"`
	Signed   bool                  `json:"signed"`
	SignedAt *time.Time            `json:"signed_at,omitempty"`
}

// ApprovalStatus describes where a timesheet stands in its chain.
type ApprovalStatus struct {
	TimesheetID    string                     `json:"timesheet_id"`
	Status         repository.TimesheetStatus `json:"status"`
	Chain          []ChainStep                `json:"chain"`
	NextApproverID *string                    `json:"next_approver_id,omitempty"`
	Signatures     []*repository.Signature    `json:"signatures"`
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// OpenWeek returns the timesheet for (user, week ending), creating a draft
// when none exists.
func (s *TimesheetService) OpenWeek(ctx context.Context, actorID string, req *OpenWeekRequest) (*repository.Timesheet, error) {
	weekEnding, err := time.Parse(dateLayout, req.WeekEnding)
	if err != nil {
		return nil, errors.InvalidInput("week_ending", "invalid date format, expected YYYY-MM-DD")
	}
	if weekEnding.Weekday() != s.weekEndingDay {
		return nil, errors.InvalidInput("week_ending",
			fmt.Sprintf("week ending must be a %s", s.weekEndingDay))
	}

	actor, actorProfile, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	userID := req.UserID
	if userID == "" {
		userID = actor.ID
	}
	if err := validateID("user_id", userID); err != nil {
		return nil, err
	}
	owner, err := s.owner(ctx, actorProfile, userID)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorizeTimesheet(actor, owner, access.ActionEdit); err != nil {
		return nil, err
	}

	existing, err := s.getByWeek(ctx, userID, weekEnding)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errors.ErrCodeNotFound) {
		return nil, err
	}

	ts := &repository.Timesheet{UserID: userID, WeekEnding: weekEnding, Status: repository.StatusDraft}
	err = s.exec(ctx, func(ctx context.Context) error { return s.stores.Timesheets.Create(ctx, ts) })
	if errors.Is(err, errors.ErrCodeConflict) {
		// Lost a race with another open of the same week.
		return s.getByWeek(ctx, userID, weekEnding)
	}
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		TimesheetID: ts.ID,
		Action:      "created",
		PerformedBy: actor.ID,
		StatusAfter: statusPtr(repository.StatusDraft),
		Metadata:    map[string]interface{}{"week_ending": req.WeekEnding},
	})
	s.log.Info().Str("timesheet_id", ts.ID).Str("user_id", userID).Str("week_ending", req.WeekEnding).Msg("Timesheet opened")
	return ts, nil
}

// Get returns a timesheet the actor may view, reconciled against its ledger.
func (s *TimesheetService) Get(ctx context.Context, actorID, id string) (*repository.Timesheet, error) {
	ts, _, owner, err := s.load(ctx, actorID, id, access.ActionView)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, ts, owner), nil
}

// List returns the timesheets of users the actor may view.
func (s *TimesheetService) List(ctx context.Context, actorID string, req *ListRequest) ([]*repository.Timesheet, int64, error) {
	actor, _, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, 0, err
	}

	filter := repository.TimesheetFilter{Limit: req.Limit, Offset: req.Offset}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if req.Status != "" {
		status := repository.TimesheetStatus(req.Status)
		if !status.Valid() {
			return nil, 0, errors.InvalidInput("status", "invalid timesheet status")
		}
		filter.Status = &status
	}
	if req.FromWeek != "" {
		from, err := time.Parse(dateLayout, req.FromWeek)
		if err != nil {
			return nil, 0, errors.InvalidInput("from_week", "invalid date format, expected YYYY-MM-DD")
		}
		filter.FromWeek = &from
	}
	if req.ToWeek != "" {
		to, err := time.Parse(dateLayout, req.ToWeek)
		if err != nil {
			return nil, 0, errors.InvalidInput("to_week", "invalid date format, expected YYYY-MM-DD")
		}
		filter.ToWeek = &to
	}

	visible, err := s.viewableOwners(ctx, actor)
	if err != nil {
		return nil, 0, err
	}
	if req.UserID != "" {
		if !visible[req.UserID] && actor.Role != repository.RoleSuperAdmin {
			return nil, 0, errors.Unauthorized("You do not have access to this user's timesheets")
		}
		filter.UserIDs = []string{req.UserID}
	} else if actor.Role != repository.RoleSuperAdmin {
		filter.UserIDs = make([]string, 0, len(visible))
		for id := range visible {
			filter.UserIDs = append(filter.UserIDs, id)
		}
	}

	var (
		timesheets []*repository.Timesheet
		total      int64
	)
	err = s.exec(ctx, func(ctx context.Context) (err error) {
		timesheets, total, err = s.stores.Timesheets.List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return timesheets, total, nil
}

// ApprovalStatus returns the owner's chain with who signed and who is next.
func (s *TimesheetService) ApprovalStatus(ctx context.Context, actorID, id string) (*ApprovalStatus, error) {
	ts, _, owner, err := s.load(ctx, actorID, id, access.ActionView)
	if err != nil {
		return nil, err
	}
	ts = s.reconcile(ctx, ts, owner)

	sigs, signed, err := s.signatures(ctx, ts.ID)
	if err != nil {
		return nil, err
	}
	signedAt := make(map[string]time.Time, len(sigs))
	for _, sig := range sigs {
		signedAt[sig.SignerID] = sig.SignedAt
	}

	chain := approval.BuildChain(owner)
	out := &ApprovalStatus{
		TimesheetID: ts.ID,
		Status:      ts.Status,
		Chain:       make([]ChainStep, 0, len(chain)),
		Signatures:  sigs,
	}
	for _, member := range chain {
		step := ChainStep{
			UserID: member,
			Role:   approval.SignerRole(owner, chain, member, true),
			Signed: signed[member],
		}
		if at, ok := signedAt[member]; ok {
			step.SignedAt = &at
		}
		out.Chain = append(out.Chain, step)
	}
	if ts.Status == repository.StatusSubmitted {
		if next, ok := approval.NextApprover(chain, signed); ok {
			out.NextApproverID = &next
		}
	}
	return out, nil
}

// PendingApprovals returns submitted timesheets on which the actor is the
// next approver.
func (s *TimesheetService) PendingApprovals(ctx context.Context, actorID string) ([]*repository.Timesheet, error) {
	actor, _, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role == repository.RoleEmployee {
		return make([]*repository.Timesheet, 0), nil
	}

	var related []*repository.Profile
	err = s.exec(ctx, func(ctx context.Context) (err error) {
		related, err = s.stores.Profiles.ListByRelation(ctx, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	owners := make(map[string]*repository.Profile)
	userIDs := make([]string, 0, len(related))
	for _, p := range related {
		if approval.InChain(approval.BuildChain(p), actor.ID) {
			owners[p.ID] = p
			userIDs = append(userIDs, p.ID)
		}
	}
	if len(userIDs) == 0 {
		return make([]*repository.Timesheet, 0), nil
	}

	var submitted []*repository.Timesheet
	err = s.exec(ctx, func(ctx context.Context) (err error) {
		submitted, _, err = s.stores.Timesheets.List(ctx, repository.TimesheetFilter{
			UserIDs: userIDs,
			Status:  statusPtr(repository.StatusSubmitted),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	pending := make([]*repository.Timesheet, 0)
	for _, ts := range submitted {
		signed, err := s.signers(ctx, ts.ID)
		if err != nil {
			return nil, err
		}
		if next, ok := approval.NextApprover(approval.BuildChain(owners[ts.UserID]), signed); ok && next == actor.ID {
			pending = append(pending, ts)
		}
	}
	return pending, nil
}

// History returns the audit trail of a timesheet.
func (s *TimesheetService) History(ctx context.Context, actorID, id string) ([]*repository.AuditEntry, error) {
	if _, _, _, err := s.load(ctx, actorID, id, access.ActionView); err != nil {
		return nil, err
	}
	var entries []*repository.AuditEntry
	err := s.exec(ctx, func(ctx context.Context) (err error) {
		entries, err = s.stores.Audit.ListByTimesheet(ctx, id)
		return err
	})
	return entries, err
}

// ── Edits ─────────────────────────────────────────────────────────────────────

// UpdateEntries replaces the entries of a timesheet. Owners edit draft or
// rejected timesheets; admins edit in any status.
func (s *TimesheetService) UpdateEntries(ctx context.Context, actorID, id string, inputs []*EntryInput) (*repository.Timesheet, error) {
	ts, actor, owner, err := s.load(ctx, actorID, id, access.ActionEdit)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !approval.ValidTransition(approval.EventEdit, ts.Status) {
		return nil, errors.InvalidTransition("timesheet can only be edited while in draft or rejected status")
	}

	entries, err := buildEntries(ts.WeekEnding, inputs)
	if err != nil {
		return nil, err
	}

	err = s.exec(ctx, func(ctx context.Context) error {
		return s.stores.Timesheets.ReplaceEntries(ctx, ts.ID, entries)
	})
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		TimesheetID:  ts.ID,
		Action:       "entries_updated",
		PerformedBy:  actor.ID,
		StatusBefore: statusPtr(ts.Status),
		StatusAfter:  statusPtr(ts.Status),
		Metadata:     map[string]interface{}{"entries": len(entries), "owner_id": owner.ID},
	})
	return s.reload(ctx, ts.ID)
}

// Delete removes a timesheet: the owner while it is a draft, admins always.
func (s *TimesheetService) Delete(ctx context.Context, actorID, id string) error {
	ts, actor, _, err := s.load(ctx, actorID, id, access.ActionDelete)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && !approval.ValidTransition(approval.EventDelete, ts.Status) {
		return errors.InvalidTransition("only draft timesheets can be deleted")
	}

	if err := s.exec(ctx, func(ctx context.Context) error { return s.stores.Timesheets.Delete(ctx, ts.ID) }); err != nil {
		return err
	}
	s.log.Info().Str("timesheet_id", ts.ID).Str("actor_id", actor.ID).Msg("Timesheet deleted")
	return nil
}

// ── Transitions ───────────────────────────────────────────────────────────────

// Submit moves the owner's draft or rejected timesheet to submitted and
// auto-approves it when the owner has no approval chain.
func (s *TimesheetService) Submit(ctx context.Context, actorID, id string) (*repository.Timesheet, error) {
	ts, actor, owner, err := s.load(ctx, actorID, id, access.ActionSubmit)
	if err != nil {
		return nil, err
	}
	if !approval.ValidTransition(approval.EventSubmit, ts.Status) {
		return nil, errors.InvalidTransition("timesheet can only be submitted from draft or rejected status")
	}

	var ok bool
	err = s.exec(ctx, func(ctx context.Context) (err error) {
		ok, err = s.stores.Timesheets.MarkSubmitted(ctx, ts.ID, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.InvalidTransition("timesheet can only be submitted from draft or rejected status")
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		TimesheetID:  ts.ID,
		Action:       "submitted",
		PerformedBy:  actor.ID,
		StatusBefore: statusPtr(ts.Status),
		StatusAfter:  statusPtr(repository.StatusSubmitted),
	})
	s.log.Info().Str("timesheet_id", ts.ID).Str("user_id", owner.ID).Msg("Timesheet submitted")

	chain := approval.BuildChain(owner)
	if len(chain) == 0 {
		if _, err := s.autoApprove(ctx, ts.ID, owner); err != nil {
			return nil, err
		}
	} else {
		s.notify(ctx, client.EventTimesheetSubmitted, ts, actor.ID, chain)
		s.notify(ctx, client.EventTimesheetApprovalRequired, ts, actor.ID, []string{chain[0]})
	}
	return s.reload(ctx, ts.ID)
}

// AutoApprove approves a submitted timesheet whose owner has no approval
// chain, signing it as the owner. It is a no-op, returning false, for any
// other timesheet, so calling it twice yields one signature and one
// status change.
func (s *TimesheetService) AutoApprove(ctx context.Context, id string) (bool, error) {
	if err := validateID("id", id); err != nil {
		return false, err
	}
	ts, err := s.getTimesheet(ctx, id)
	if err != nil {
		return false, err
	}
	owner, err := s.profile(ctx, ts.UserID)
	if err != nil {
		return false, err
	}
	return s.autoApprove(ctx, id, owner)
}

func (s *TimesheetService) autoApprove(ctx context.Context, id string, owner *repository.Profile) (bool, error) {
	if len(approval.BuildChain(owner)) > 0 {
		return false, nil
	}
	ts, err := s.getTimesheet(ctx, id)
	if err != nil {
		return false, err
	}
	if ts.Status != repository.StatusSubmitted {
		return false, nil
	}
	signed, err := s.signers(ctx, id)
	if err != nil {
		return false, err
	}
	if len(signed) > 0 {
		return false, nil
	}

	err = s.exec(ctx, func(ctx context.Context) error {
		_, err := s.ledger.Record(ctx, id, owner.ID, repository.SignerFinalApprover)
		return err
	})
	if errors.Is(err, errors.ErrCodeDuplicateSignature) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var ok bool
	err = s.exec(ctx, func(ctx context.Context) (err error) {
		ok, err = s.stores.Timesheets.MarkApproved(ctx, id, owner.ID, s.now())
		return err
	})
	if err != nil || !ok {
		return false, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		TimesheetID:  id,
		Action:       "auto_approved",
		PerformedBy:  owner.ID,
		StatusBefore: statusPtr(repository.StatusSubmitted),
		StatusAfter:  statusPtr(repository.StatusApproved),
	})
	s.log.Info().Str("timesheet_id", id).Msg("Timesheet auto-approved: empty approval chain")
	return true, nil
}

// Approve signs a submitted timesheet. Chain members sign in order; admins
// may sign out of order, which finalises the timesheet.
func (s *TimesheetService) Approve(ctx context.Context, actorID, id string) (*repository.Timesheet, error) {
	ts, actor, owner, err := s.load(ctx, actorID, id, access.ActionApprove)
	if err != nil {
		return nil, err
	}
	if !approval.ValidTransition(approval.EventApprove, ts.Status) {
		return nil, errors.InvalidTransition("timesheet is not in submitted status")
	}

	chain := approval.BuildChain(owner)
	signed, err := s.signers(ctx, ts.ID)
	if err != nil {
		return nil, err
	}
	if signed[actor.ID] {
		return nil, errors.DuplicateSignature("You have already signed this timesheet")
	}

	next, pending := approval.NextApprover(chain, signed)
	inOrder := pending && next == actor.ID
	if !inOrder && !actor.IsAdmin() {
		return nil, errors.Unauthorized("You are not the next approver in line")
	}

	role := approval.SignerRole(owner, chain, actor.ID, inOrder)
	err = s.exec(ctx, func(ctx context.Context) error {
		_, err := s.ledger.Record(ctx, ts.ID, actor.ID, role)
		return err
	})
	if err != nil {
		return nil, err
	}

	approved := false
	if role == repository.SignerFinalApprover {
		err = s.exec(ctx, func(ctx context.Context) (err error) {
			approved, err = s.stores.Timesheets.MarkApproved(ctx, ts.ID, actor.ID, s.now())
			return err
		})
		if err != nil {
			return nil, err
		}
		if !approved {
			s.log.Info().Str("timesheet_id", ts.ID).Msg("Timesheet left submitted status concurrently; approval is a no-op")
		}
	}

	action, after := "signed", repository.StatusSubmitted
	if approved {
		action, after = "approved", repository.StatusApproved
	}
	s.appendAudit(ctx, &repository.AuditEntry{
		TimesheetID:  ts.ID,
		Action:       action,
		PerformedBy:  actor.ID,
		StatusBefore: statusPtr(repository.StatusSubmitted),
		StatusAfter:  statusPtr(after),
		Metadata:     map[string]interface{}{"signer_role": string(role), "in_order": inOrder},
	})
	s.log.Info().
		Str("timesheet_id", ts.ID).
		Str("signer_id", actor.ID).
		Str("signer_role", string(role)).
		Bool("approved", approved).
		Msg("Timesheet signed")

	if approved {
		s.notify(ctx, client.EventTimesheetApproved, ts, actor.ID, []string{owner.ID})
	} else {
		signed[actor.ID] = true
		if nextID, ok := approval.NextApprover(chain, signed); ok {
			s.notify(ctx, client.EventTimesheetApprovalRequired, ts, actor.ID, []string{nextID})
		}
	}
	return s.reload(ctx, ts.ID)
}

// Reject rejects a submitted timesheet with a mandatory reason.
func (s *TimesheetService) Reject(ctx context.Context, actorID, id, reason string) (*repository.Timesheet, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.InvalidInput("reason", "rejection reason is required")
	}

	ts, actor, owner, err := s.load(ctx, actorID, id, access.ActionReject)
	if err != nil {
		return nil, err
	}
	if !approval.ValidTransition(approval.EventReject, ts.Status) {
		return nil, errors.InvalidTransition("timesheet is not in submitted status")
	}

	var ok bool
	err = s.exec(ctx, func(ctx context.Context) (err error) {
		ok, err = s.stores.Timesheets.MarkRejected(ctx, ts.ID, actor.ID, reason, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.InvalidTransition("timesheet is not in submitted status")
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		TimesheetID:  ts.ID,
		Action:       "rejected",
		PerformedBy:  actor.ID,
		StatusBefore: statusPtr(repository.StatusSubmitted),
		StatusAfter:  statusPtr(repository.StatusRejected),
		Metadata:     map[string]interface{}{"reason": reason},
	})
	s.log.Info().Str("timesheet_id", ts.ID).Str("rejected_by", actor.ID).Msg("Timesheet rejected")

	if owner.ID != actor.ID {
		s.notify(ctx, client.EventTimesheetRejected, ts, actor.ID, []string{owner.ID})
	}
	return s.reload(ctx, ts.ID)
}

// Recall returns the owner's submitted timesheet to draft. It is refused
// once any approver has signed.
func (s *TimesheetService) Recall(ctx context.Context, actorID, id string) (*repository.Timesheet, error) {
	ts, actor, owner, err := s.load(ctx, actorID, id, access.ActionRecall)
	if err != nil {
		return nil, err
	}
	if !approval.ValidTransition(approval.EventRecall, ts.Status) {
		return nil, errors.InvalidTransition("only submitted timesheets can be recalled")
	}

	signed, err := s.signers(ctx, ts.ID)
	if err != nil {
		return nil, err
	}
	if len(signed) > 0 {
		return nil, errors.InvalidTransition("timesheet cannot be recalled after an approver has signed")
	}

	var ok bool
	err = s.exec(ctx, func(ctx context.Context) (err error) {
		ok, err = s.stores.Timesheets.Recall(ctx, ts.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.InvalidTransition("timesheet cannot be recalled after an approver has signed")
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		TimesheetID:  ts.ID,
		Action:       "recalled",
		PerformedBy:  actor.ID,
		StatusBefore: statusPtr(repository.StatusSubmitted),
		StatusAfter:  statusPtr(repository.StatusDraft),
	})
	s.log.Info().Str("timesheet_id", ts.ID).Msg("Timesheet recalled")

	if chain := approval.BuildChain(owner); len(chain) > 0 {
		s.notify(ctx, client.EventTimesheetRecalled, ts, actor.ID, chain[:1])
	}
	return s.reload(ctx, ts.ID)
}

// ClearRejection removes the rejection note from a rejected timesheet
// without changing its status.
func (s *TimesheetService) ClearRejection(ctx context.Context, actorID, id string) (*repository.Timesheet, error) {
	ts, actor, _, err := s.load(ctx, actorID, id, access.ActionClearRejection)
	if err != nil {
		return nil, err
	}
	if !approval.ValidTransition(approval.EventClearRejection, ts.Status) {
		return nil, errors.InvalidTransition("timesheet is not in rejected status")
	}

	if err := s.exec(ctx, func(ctx context.Context) error { return s.stores.Timesheets.ClearRejection(ctx, ts.ID) }); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		TimesheetID:  ts.ID,
		Action:       "rejection_cleared",
		PerformedBy:  actor.ID,
		StatusBefore: statusPtr(ts.Status),
		StatusAfter:  statusPtr(ts.Status),
	})
	return s.reload(ctx, ts.ID)
}

// SetStatus is the admin override. Forcing draft clears the ledger.
func (s *TimesheetService) SetStatus(ctx context.Context, actorID, id, status string) (*repository.Timesheet, error) {
	target := repository.TimesheetStatus(status)
	if !target.Valid() {
		return nil, errors.InvalidInput("status", "invalid timesheet status")
	}

	ts, actor, _, err := s.load(ctx, actorID, id, access.ActionEdit)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, errors.Unauthorized("Only admins can override a timesheet status")
	}

	err = s.exec(ctx, func(ctx context.Context) error {
		return s.stores.Timesheets.SetStatus(ctx, ts.ID, target, actor.ID, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		TimesheetID:  ts.ID,
		Action:       "status_overridden",
		PerformedBy:  actor.ID,
		StatusBefore: statusPtr(ts.Status),
		StatusAfter:  statusPtr(target),
	})
	s.log.Info().
		Str("timesheet_id", ts.ID).
		Str("from", string(ts.Status)).
		Str("to", status).
		Msg("Timesheet status overridden")
	return s.reload(ctx, ts.ID)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// load fetches a timesheet, the actor and the owner, and authorizes action.
func (s *TimesheetService) load(ctx context.Context, actorID, id string, action access.Action) (*repository.Timesheet, access.Actor, *repository.Profile, error) {
	if err := validateID("id", id); err != nil {
		return nil, access.Actor{}, nil, err
	}
	actor, actorProfile, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, access.Actor{}, nil, err
	}
	ts, err := s.getTimesheet(ctx, id)
	if err != nil {
		return nil, access.Actor{}, nil, err
	}
	owner, err := s.owner(ctx, actorProfile, ts.UserID)
	if err != nil {
		return nil, access.Actor{}, nil, err
	}
	if err := access.AuthorizeTimesheet(actor, owner, action); err != nil {
		return nil, access.Actor{}, nil, err
	}
	return ts, actor, owner, nil
}

// reconcile repairs states a crash between two writes can leave behind: a
// submitted timesheet whose chain has fully signed becomes approved, and a
// draft keeps no signatures. Failures are logged and the timesheet is
// returned as read.
func (s *TimesheetService) reconcile(ctx context.Context, ts *repository.Timesheet, owner *repository.Profile) *repository.Timesheet {
	switch ts.Status {
	case repository.StatusSubmitted:
		chain := approval.BuildChain(owner)
		if len(chain) == 0 {
			if ok, err := s.autoApprove(ctx, ts.ID, owner); err != nil || !ok {
				return ts
			}
			return s.reloadOr(ctx, ts)
		}
		signed, err := s.signers(ctx, ts.ID)
		if err != nil || !approval.Complete(chain, signed) {
			return ts
		}
		last := chain[len(chain)-1]
		var ok bool
		err = s.exec(ctx, func(ctx context.Context) (err error) {
			ok, err = s.stores.Timesheets.MarkApproved(ctx, ts.ID, last, s.now())
			return err
		})
		if err != nil {
			s.log.Warn().Err(err).Str("timesheet_id", ts.ID).Msg("Reconcile: failed to approve fully signed timesheet")
			return ts
		}
		if ok {
			s.log.Info().Str("timesheet_id", ts.ID).Msg("Reconcile: fully signed timesheet approved")
		}
		return s.reloadOr(ctx, ts)

	case repository.StatusDraft:
		signed, err := s.signers(ctx, ts.ID)
		if err != nil || len(signed) == 0 {
			return ts
		}
		if err := s.exec(ctx, func(ctx context.Context) error { return s.ledger.Clear(ctx, ts.ID) }); err != nil {
			s.log.Warn().Err(err).Str("timesheet_id", ts.ID).Msg("Reconcile: failed to clear stale signatures")
			return ts
		}
		s.log.Info().Str("timesheet_id", ts.ID).Msg("Reconcile: stale signatures cleared from draft")
	}
	return ts
}

func (s *TimesheetService) getTimesheet(ctx context.Context, id string) (*repository.Timesheet, error) {
	var ts *repository.Timesheet
	err := s.exec(ctx, func(ctx context.Context) (err error) {
		ts, err = s.stores.Timesheets.Get(ctx, id)
		return err
	})
	return ts, err
}

func (s *TimesheetService) getByWeek(ctx context.Context, userID string, weekEnding time.Time) (*repository.Timesheet, error) {
	var ts *repository.Timesheet
	err := s.exec(ctx, func(ctx context.Context) (err error) {
		ts, err = s.stores.Timesheets.GetByWeek(ctx, userID, weekEnding)
		return err
	})
	return ts, err
}

func (s *TimesheetService) reload(ctx context.Context, id string) (*repository.Timesheet, error) {
	return s.getTimesheet(ctx, id)
}

func (s *TimesheetService) reloadOr(ctx context.Context, fallback *repository.Timesheet) *repository.Timesheet {
	ts, err := s.getTimesheet(ctx, fallback.ID)
	if err != nil {
		return fallback
	}
	return ts
}

func (s *TimesheetService) signatures(ctx context.Context, id string) ([]*repository.Signature, map[string]bool, error) {
	var (
		sigs   []*repository.Signature
		signed map[string]bool
	)
	err := s.exec(ctx, func(ctx context.Context) (err error) {
		sigs, signed, err = s.ledger.Signatures(ctx, id)
		return err
	})
	return sigs, signed, err
}

func (s *TimesheetService) signers(ctx context.Context, id string) (map[string]bool, error) {
	_, signed, err := s.signatures(ctx, id)
	return signed, err
}

// viewableOwners returns the ids whose timesheets actor may view.
func (s *TimesheetService) viewableOwners(ctx context.Context, actor access.Actor) (map[string]bool, error) {
	var candidates []*repository.Profile
	err := s.exec(ctx, func(ctx context.Context) (err error) {
		if actor.IsAdmin() {
			candidates, err = s.stores.Profiles.List(ctx)
		} else {
			candidates, err = s.stores.Profiles.ListByRelation(ctx, actor.ID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	visible := map[string]bool{actor.ID: true}
	for _, p := range candidates {
		if access.CanActOnTimesheet(actor, p, access.ActionView) {
			visible[p.ID] = true
		}
	}
	return visible, nil
}

func (s *TimesheetService) notify(ctx context.Context, eventType string, ts *repository.Timesheet, actorID string, recipients []string) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishTimesheetEvent(ctx, eventType, ts.ID, actorID, recipients, map[string]interface{}{
		"user_id":     ts.UserID,
		"week_ending": ts.WeekEnding.Format(dateLayout),
	})
}

func buildEntries(weekEnding time.Time, inputs []*EntryInput) ([]*repository.TimesheetEntry, error) {
	weekStart := weekEnding.AddDate(0, 0, -6)
	perDay := make(map[string]float64)
	entries := make([]*repository.TimesheetEntry, 0, len(inputs))

	for i, in := range inputs {
		field := fmt.Sprintf("entries[%d]", i)
		workDate, err := time.Parse(dateLayout, in.WorkDate)
		if err != nil {
			return nil, errors.InvalidInput(field+".work_date", "invalid date format, expected YYYY-MM-DD")
		}
		if workDate.Before(weekStart) || workDate.After(weekEnding) {
			return nil, errors.InvalidInput(field+".work_date", "work date must fall within the timesheet week")
		}
		if in.Hours <= 0 || in.Hours > 24 {
			return nil, errors.InvalidInput(field+".hours", "hours must be greater than 0 and at most 24")
		}
		perDay[in.WorkDate] += in.Hours
		if perDay[in.WorkDate] > 24 {
			return nil, errors.InvalidInput(field+".hours", "total hours for a day cannot exceed 24")
		}
		if in.SiteID != nil {
			if err := validateID(field+".site_id", *in.SiteID); err != nil {
				return nil, err
			}
		}

		entries = append(entries, &repository.TimesheetEntry{
			WorkDate:      workDate,
			Hours:         in.Hours,
			SiteID:        in.SiteID,
			PurchaseOrder: in.PurchaseOrder,
			Activity:      in.Activity,
			Notes:         in.Notes,
		})
	}
	return entries, nil
}

func validateID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.InvalidInput(field, fmt.Sprintf("invalid %s", field))
	}
	return nil
}
