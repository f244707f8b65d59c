package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/database"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
)

const timesheetColumns = `
	id, user_id, week_ending, status,
	submitted_at, employee_signed_at,
	approved_by_id, approved_at,
	rejected_by_id, rejected_at, rejection_reason,
	created_at, updated_at`

// TimesheetRepository handles timesheet and entry persistence.
type TimesheetRepository struct {
	db *database.DB
}

// NewTimesheetRepository creates a new TimesheetRepository.
func NewTimesheetRepository(db *database.DB) *TimesheetRepository {
	return &TimesheetRepository{db: db}
}

// Create inserts a draft timesheet. A second timesheet for the same user and
// week is rejected with a conflict.
func (r *TimesheetRepository) Create(ctx context.Context, t *Timesheet) error {
	query := `
		INSERT INTO timesheets (user_id, week_ending, status)
		VALUES ($1, $2, $3::timesheet_status)
		RETURNING id, created_at, updated_at
	`

	if t.Status == "" {
		t.Status = StatusDraft
	}
	err := r.db.QueryRow(ctx, query, t.UserID, t.WeekEnding, t.Status).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.New(errors.ErrCodeConflict, "a timesheet already exists for this week")
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create timesheet")
	}
	if t.Entries == nil {
		t.Entries = make([]*TimesheetEntry, 0)
	}
	return nil
}

// Get returns a timesheet with its entries.
func (r *TimesheetRepository) Get(ctx context.Context, id string) (*Timesheet, error) {
	query := `SELECT ` + timesheetColumns + ` FROM timesheets WHERE id = $1`

	t, err := scanTimesheet(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("timesheet", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get timesheet")
	}

	t.Entries, err = r.entries(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByWeek returns the user's timesheet for the given week ending.
func (r *TimesheetRepository) GetByWeek(ctx context.Context, userID string, weekEnding time.Time) (*Timesheet, error) {
	query := `SELECT ` + timesheetColumns + ` FROM timesheets WHERE user_id = $1 AND week_ending = $2`

	t, err := scanTimesheet(r.db.QueryRow(ctx, query, userID, weekEnding))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("timesheet", userID+"/"+weekEnding.Format(time.DateOnly))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get timesheet")
	}

	t.Entries, err = r.entries(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List returns timesheets matching the filter, newest week first, together
// with the unpaginated total. Entries are not loaded.
func (r *TimesheetRepository) List(ctx context.Context, f TimesheetFilter) ([]*Timesheet, int64, error) {
	if f.UserIDs != nil && len(f.UserIDs) == 0 {
		return make([]*Timesheet, 0), 0, nil
	}

	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if f.UserIDs != nil {
		where += fmt.Sprintf(" AND user_id = ANY($%d::uuid[])", argCount)
		args = append(args, f.UserIDs)
		argCount++
	}

	if f.Status != nil {
		where += fmt.Sprintf(" AND status = $%d::timesheet_status", argCount)
		args = append(args, *f.Status)
		argCount++
	}

	if f.FromWeek != nil {
		where += fmt.Sprintf(" AND week_ending >= $%d", argCount)
		args = append(args, *f.FromWeek)
		argCount++
	}

	if f.ToWeek != nil {
		where += fmt.Sprintf(" AND week_ending <= $%d", argCount)
		args = append(args, *f.ToWeek)
		argCount++
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM timesheets`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count timesheets")
	}

	query := `SELECT ` + timesheetColumns + ` FROM timesheets` + where +
		" ORDER BY week_ending DESC, created_at DESC"
	queryArgs := args
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
		queryArgs = append(queryArgs, f.Limit, f.Offset)
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list timesheets")
	}
	defer rows.Close()

	timesheets := make([]*Timesheet, 0)
	for rows.Next() {
		t, err := scanTimesheet(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan timesheet")
		}
		timesheets = append(timesheets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to read timesheets")
	}

	return timesheets, total, nil
}

// ReplaceEntries swaps the timesheet's entries for the given set in one
// transaction.
func (r *TimesheetRepository) ReplaceEntries(ctx context.Context, timesheetID string, entries []*TimesheetEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE timesheets SET updated_at = NOW() WHERE id = $1`, timesheetID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to touch timesheet")
		}
		if tag.RowsAffected() == 0 {
			return errors.NotFound("timesheet", timesheetID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM timesheet_entries WHERE timesheet_id = $1`, timesheetID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear timesheet entries")
		}

		for _, e := range entries {
			e.TimesheetID = timesheetID
			err := tx.QueryRow(ctx, `
				INSERT INTO timesheet_entries (timesheet_id, work_date, hours, site_id,
				                               purchase_order, activity, notes)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id, created_at
			`,
				e.TimesheetID,
				e.WorkDate,
				e.Hours,
				e.SiteID,
				e.PurchaseOrder,
				e.Activity,
				e.Notes,
			).Scan(&e.ID, &e.CreatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert timesheet entry")
			}
		}
		return nil
	})
}

// MarkSubmitted moves a draft or rejected timesheet to submitted, clearing
// prior rejection fields and any stale signatures. It reports false when the
// timesheet was not in a submittable status.
func (r *TimesheetRepository) MarkSubmitted(ctx context.Context, id string, at time.Time) (bool, error) {
	var updated bool
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var got string
		err := tx.QueryRow(ctx, `
			UPDATE timesheets
			SET status             = 'submitted',
			    submitted_at       = $2,
			    employee_signed_at = $2,
			    approved_by_id     = NULL,
			    approved_at        = NULL,
			    rejected_by_id     = NULL,
			    rejected_at        = NULL,
			    rejection_reason   = NULL,
			    updated_at         = NOW()
			WHERE id = $1 AND status IN ('draft', 'rejected')
			RETURNING id
		`, id, at).Scan(&got)
		if err == pgx.ErrNoRows {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to submit timesheet")
		}

		if _, err := tx.Exec(ctx, `DELETE FROM timesheet_signatures WHERE timesheet_id = $1`, id); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear signatures")
		}
		updated = true
		return nil
	})
	return updated, err
}

// MarkApproved moves a submitted timesheet to approved. It is a no-op
// returning false when another request already moved it out of submitted.
func (r *TimesheetRepository) MarkApproved(ctx context.Context, id, approverID string, at time.Time) (bool, error) {
	query := `
		UPDATE timesheets
		SET status         = 'approved',
		    approved_by_id = $2,
		    approved_at    = $3,
		    updated_at     = NOW()
		WHERE id = $1 AND status = 'submitted'
		RETURNING id
	`

	var got string
	err := r.db.QueryRow(ctx, query, id, approverID, at).Scan(&got)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to approve timesheet")
	}
	return true, nil
}

// MarkRejected moves a submitted timesheet to rejected under the same
// conditional guard as MarkApproved.
func (r *TimesheetRepository) MarkRejected(ctx context.Context, id, rejectorID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE timesheets
		SET status           = 'rejected',
		    rejected_by_id   = $2,
		    rejected_at      = $3,
		    rejection_reason = $4,
		    updated_at       = NOW()
		WHERE id = $1 AND status = 'submitted'
		RETURNING id
	`

	var got string
	err := r.db.QueryRow(ctx, query, id, rejectorID, at, reason).Scan(&got)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to reject timesheet")
	}
	return true, nil
}

// Recall returns a submitted timesheet with no signatures to draft and
// clears its ledger in the same transaction. It reports false when the guard
// no longer holds.
func (r *TimesheetRepository) Recall(ctx context.Context, id string) (bool, error) {
	var updated bool
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var got string
		err := tx.QueryRow(ctx, `
			UPDATE timesheets
			SET status             = 'draft',
			    submitted_at       = NULL,
			    employee_signed_at = NULL,
			    updated_at         = NOW()
			WHERE id = $1
			  AND status = 'submitted'
			  AND NOT EXISTS (SELECT 1 FROM timesheet_signatures WHERE timesheet_id = $1)
			RETURNING id
		`, id).Scan(&got)
		if err == pgx.ErrNoRows {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to recall timesheet")
		}

		if _, err := tx.Exec(ctx, `DELETE FROM timesheet_signatures WHERE timesheet_id = $1`, id); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear signatures")
		}
		updated = true
		return nil
	})
	return updated, err
}

// ClearRejection removes the rejection note without touching the status.
func (r *TimesheetRepository) ClearRejection(ctx context.Context, id string) error {
	query := `
		UPDATE timesheets
		SET rejected_by_id   = NULL,
		    rejected_at      = NULL,
		    rejection_reason = NULL,
		    updated_at       = NOW()
		WHERE id = $1
		RETURNING id
	`

	var got string
	err := r.db.QueryRow(ctx, query, id).Scan(&got)
	if err == pgx.ErrNoRows {
		return errors.NotFound("timesheet", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear rejection")
	}
	return nil
}

// SetStatus forces a status as an administrative override. Moving to draft
// clears submission, approval and the ledger; approved and rejected record
// the acting user and clear the opposite outcome.
func (r *TimesheetRepository) SetStatus(ctx context.Context, id string, status TimesheetStatus, actorID string, at time.Time) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var query string
		args := []interface{}{id}

		switch status {
		case StatusDraft:
			query = `
				UPDATE timesheets
				SET status = 'draft', submitted_at = NULL, employee_signed_at = NULL,
				    approved_by_id = NULL, approved_at = NULL, updated_at = NOW()
				WHERE id = $1 RETURNING id`
		case StatusSubmitted:
			query = `
				UPDATE timesheets
				SET status = 'submitted', submitted_at = COALESCE(submitted_at, $2),
				    approved_by_id = NULL, approved_at = NULL, updated_at = NOW()
				WHERE id = $1 RETURNING id`
			args = append(args, at)
		case StatusApproved:
			query = `
				UPDATE timesheets
				SET status = 'approved', approved_by_id = $2, approved_at = $3,
				    rejected_by_id = NULL, rejected_at = NULL, rejection_reason = NULL, updated_at = NOW()
				WHERE id = $1 RETURNING id`
			args = append(args, actorID, at)
		case StatusRejected:
			query = `
				UPDATE timesheets
				SET status = 'rejected', rejected_by_id = $2, rejected_at = $3,
				    approved_by_id = NULL, approved_at = NULL, updated_at = NOW()
				WHERE id = $1 RETURNING id`
			args = append(args, actorID, at)
		default:
			return errors.InvalidInput("status", "invalid timesheet status")
		}

		var got string
		err := tx.QueryRow(ctx, query, args...).Scan(&got)
		if err == pgx.ErrNoRows {
			return errors.NotFound("timesheet", id)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to set timesheet status")
		}

		if status == StatusDraft {
			if _, err := tx.Exec(ctx, `DELETE FROM timesheet_signatures WHERE timesheet_id = $1`, id); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear signatures")
			}
		}
		return nil
	})
}

// Delete removes a timesheet; entries, signatures and audit rows cascade.
func (r *TimesheetRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM timesheets WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete timesheet")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("timesheet", id)
	}
	return nil
}

func (r *TimesheetRepository) entries(ctx context.Context, timesheetID string) ([]*TimesheetEntry, error) {
	query := `
		SELECT id, timesheet_id, work_date, hours::float8, site_id,
		       purchase_order, activity, notes, created_at
		FROM timesheet_entries
		WHERE timesheet_id = $1
		ORDER BY work_date ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, timesheetID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get timesheet entries")
	}
	defer rows.Close()

	entries := make([]*TimesheetEntry, 0)
	for rows.Next() {
		e := &TimesheetEntry{}
		err := rows.Scan(
			&e.ID,
			&e.TimesheetID,
			&e.WorkDate,
			&e.Hours,
			&e.SiteID,
			&e.PurchaseOrder,
			&e.Activity,
			&e.Notes,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan timesheet entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read timesheet entries")
	}
	return entries, nil
}

func scanTimesheet(row rowScanner) (*Timesheet, error) {
	t := &Timesheet{}
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.WeekEnding,
		&t.Status,
		&t.SubmittedAt,
		&t.EmployeeSignedAt,
		&t.ApprovedByID,
		&t.ApprovedAt,
		&t.RejectedByID,
		&t.RejectedAt,
		&t.RejectionReason,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
