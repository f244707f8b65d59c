package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/database"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
)

// SiteRepository reads sites and manages user site assignments.
type SiteRepository struct {
	db *database.DB
}

// NewSiteRepository creates a new SiteRepository.
func NewSiteRepository(db *database.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// List returns all sites ordered by name.
func (r *SiteRepository) List(ctx context.Context) ([]*Site, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, code FROM sites ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list sites")
	}
	defer rows.Close()

	return scanSites(rows)
}

// ListAssigned returns the distinct sites assigned to any of the given users.
func (r *SiteRepository) ListAssigned(ctx context.Context, userIDs []string) ([]*Site, error) {
	if len(userIDs) == 0 {
		return make([]*Site, 0), nil
	}

	query := `
		SELECT DISTINCT s.id, s.name, s.code
		FROM sites s
		JOIN site_assignments a ON a.site_id = s.id
		WHERE a.user_id = ANY($1::uuid[])
		ORDER BY s.name
	`

	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list assigned sites")
	}
	defer rows.Close()

	return scanSites(rows)
}

// Assign links a user to a site. Assigning twice is a no-op.
func (r *SiteRepository) Assign(ctx context.Context, userID, siteID string) error {
	query := `
		INSERT INTO site_assignments (user_id, site_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, site_id) DO NOTHING
	`

	if _, err := r.db.Exec(ctx, query, userID, siteID); err != nil {
		if isForeignKeyViolation(err) {
			return errors.New(errors.ErrCodeNotFound, "user or site not found")
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to assign site")
	}
	return nil
}

func scanSites(rows pgx.Rows) ([]*Site, error) {
	sites := make([]*Site, 0)
	for rows.Next() {
		s := &Site{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Code); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan site")
		}
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read sites")
	}
	return sites, nil
}
