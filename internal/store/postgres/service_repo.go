package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/scottylabs/kennel/internal/store"
)

// ServiceRepository is the Postgres implementation of store.ServiceRepository.
type ServiceRepository struct {
	db *sqlx.DB
}

type serviceRow struct {
	ID                     int64        `db:"id"`
	Project                string       `db:"project"`
	Name                   string       `db:"name"`
	Type                   string       `db:"type"`
	Package                string       `db:"package"`
	CustomDomain           string       `db:"custom_domain"`
	SPA                    bool         `db:"spa"`
	HealthCheckPath        string       `db:"health_check_path"`
	HealthCheckTimeoutSecs int          `db:"health_check_timeout_secs"`
	PreviewDatabase        bool         `db:"preview_database"`
	CreatedAt              sql.NullTime `db:"created_at"`
	UpdatedAt              sql.NullTime `db:"updated_at"`
}

func (r serviceRow) toModel() *store.Service {
	return &store.Service{
		ID:                     r.ID,
		Project:                r.Project,
		Name:                   r.Name,
		Type:                   store.ServiceType(r.Type),
		Package:                r.Package,
		CustomDomain:           r.CustomDomain,
		SPA:                    r.SPA,
		HealthCheckPath:        r.HealthCheckPath,
		HealthCheckTimeoutSecs: r.HealthCheckTimeoutSecs,
		PreviewDatabase:        r.PreviewDatabase,
		CreatedAt:              r.CreatedAt.Time,
		UpdatedAt:              r.UpdatedAt.Time,
	}
}

func (r *ServiceRepository) Create(ctx context.Context, s *store.Service) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO services (project, name, type, package, custom_domain, spa, health_check_path, health_check_timeout_secs, preview_database)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (project, name) DO UPDATE SET
			type=$3, package=$4, custom_domain=$5, spa=$6, health_check_path=$7, health_check_timeout_secs=$8, preview_database=$9, updated_at=now()
		RETURNING id`,
		s.Project, s.Name, string(s.Type), s.Package, s.CustomDomain, s.SPA, s.HealthCheckPath, s.HealthCheckTimeoutSecs, s.PreviewDatabase,
	).Scan(&s.ID)
}

func (r *ServiceRepository) Update(ctx context.Context, s *store.Service) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE services SET type=$2, package=$3, custom_domain=$4, spa=$5, health_check_path=$6,
			health_check_timeout_secs=$7, preview_database=$8, updated_at=now()
		WHERE id=$1`,
		s.ID, string(s.Type), s.Package, s.CustomDomain, s.SPA, s.HealthCheckPath, s.HealthCheckTimeoutSecs, s.PreviewDatabase)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	return nil
}

func (r *ServiceRepository) FindByID(ctx context.Context, id int64) (*store.Service, error) {
	var row serviceRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM services WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find service: %w", err)
	}
	return row.toModel(), nil
}

func (r *ServiceRepository) FindByProjectAndName(ctx context.Context, project, name string) (*store.Service, error) {
	var row serviceRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM services WHERE project=$1 AND name=$2`, project, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find service: %w", err)
	}
	return row.toModel(), nil
}

func (r *ServiceRepository) ListByProject(ctx context.Context, project string) ([]*store.Service, error) {
	var rows []serviceRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM services WHERE project=$1 ORDER BY name`, project); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	out := make([]*store.Service, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}
