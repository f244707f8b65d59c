package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/database"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
)

const profileColumns = `
	id, email, full_name, role,
	reports_to_id, supervisor_id, manager_id, final_approver_id,
	department, created_at, updated_at`

// ProfileRepository is the profile directory backed by the profiles table.
type ProfileRepository struct {
	db *database.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *database.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Get returns a profile by id.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	p, err := scanProfile(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("profile", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get profile")
	}
	return p, nil
}

// List returns every profile ordered by name.
func (r *ProfileRepository) List(ctx context.Context) ([]*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY full_name, email`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list profiles")
	}
	defer rows.Close()

	return scanProfiles(rows)
}

// ListByRelation returns profiles whose reports_to, supervisor, manager or
// final approver is userID.
func (r *ProfileRepository) ListByRelation(ctx context.Context, userID string) ([]*Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM profiles
		WHERE reports_to_id = $1
		   OR supervisor_id = $1
		   OR manager_id = $1
		   OR final_approver_id = $1
		ORDER BY full_name, email`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list related profiles")
	}
	defer rows.Close()

	return scanProfiles(rows)
}

// Create inserts a profile. A caller-supplied id is kept (the id of the
// identity provider account); otherwise the database assigns one.
func (r *ProfileRepository) Create(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO profiles (id, email, full_name, role,
		                      reports_to_id, supervisor_id, manager_id, final_approver_id,
		                      department)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4::user_role,
		        $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		p.ID,
		p.Email,
		p.FullName,
		p.Role,
		p.ReportsToID,
		p.SupervisorID,
		p.ManagerID,
		p.FinalApproverID,
		p.Department,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.New(errors.ErrCodeConflict, "a user with this email already exists")
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create profile")
	}
	return nil
}

// Update overwrites the mutable profile fields.
func (r *ProfileRepository) Update(ctx context.Context, p *Profile) error {
	query := `
		UPDATE profiles
		SET full_name         = $2,
		    role              = $3::user_role,
		    reports_to_id     = $4,
		    supervisor_id     = $5,
		    manager_id        = $6,
		    final_approver_id = $7,
		    department        = $8,
		    updated_at        = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		p.ID,
		p.FullName,
		p.Role,
		p.ReportsToID,
		p.SupervisorID,
		p.ManagerID,
		p.FinalApproverID,
		p.Department,
	).Scan(&p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("profile", p.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update profile")
	}
	return nil
}

// Delete removes a profile; timesheets, signatures and assignments cascade.
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete profile")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("profile", id)
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.FullName,
		&p.Role,
		&p.ReportsToID,
		&p.SupervisorID,
		&p.ManagerID,
		&p.FinalApproverID,
		&p.Department,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanProfiles(rows pgx.Rows) ([]*Profile, error) {
	profiles := make([]*Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan profile")
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read profiles")
	}
	return profiles, nil
}
