package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/database"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
)

// SignatureRepository is the append-only signature ledger. Rows are only
// removed in bulk when a timesheet returns to draft.
type SignatureRepository struct {
	db *database.DB
}

// NewSignatureRepository creates a new SignatureRepository.
func NewSignatureRepository(db *database.DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

// ListByTimesheet returns a timesheet's signatures in signing order.
func (r *SignatureRepository) ListByTimesheet(ctx context.Context, timesheetID string) ([]*Signature, error) {
	query := `
		SELECT id, timesheet_id, signer_id, signer_role, signed_at
		FROM timesheet_signatures
		WHERE timesheet_id = $1
		ORDER BY signed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, timesheetID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list signatures")
	}
	defer rows.Close()

	signatures := make([]*Signature, 0)
	for rows.Next() {
		s := &Signature{}
		if err := rows.Scan(&s.ID, &s.TimesheetID, &s.SignerID, &s.SignerRole, &s.SignedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan signature")
		}
		signatures = append(signatures, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read signatures")
	}
	return signatures, nil
}

// Insert records a signature. It reports false, without error, when the
// signer already signed this timesheet; the unique constraint arbitrates
// concurrent inserts.
func (r *SignatureRepository) Insert(ctx context.Context, s *Signature) (bool, error) {
	query := `
		INSERT INTO timesheet_signatures (timesheet_id, signer_id, signer_role, signed_at)
		VALUES ($1, $2, $3::signer_role, $4)
		ON CONFLICT (timesheet_id, signer_id) DO NOTHING
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query, s.TimesheetID, s.SignerID, s.SignerRole, s.SignedAt).Scan(&s.ID)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to record signature")
	}
	return true, nil
}

// DeleteAllByTimesheet clears the ledger of a timesheet.
func (r *SignatureRepository) DeleteAllByTimesheet(ctx context.Context, timesheetID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM timesheet_signatures WHERE timesheet_id = $1`, timesheetID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear signatures")
	}
	return nil
}
