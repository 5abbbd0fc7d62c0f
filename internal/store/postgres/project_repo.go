package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/scottylabs/kennel/internal/store"
)

// ProjectRepository is the Postgres implementation of store.ProjectRepository.
type ProjectRepository struct {
	db *sqlx.DB
}

type projectRow struct {
	Name          string    `db:"name"`
	RepoURL       string    `db:"repo_url"`
	RepoType      string    `db:"repo_type"`
	WebhookSecret string    `db:"webhook_secret"`
	DefaultBranch string    `db:"default_branch"`
	CreatedAt     sql.NullTime `db:"created_at"`
	UpdatedAt     sql.NullTime `db:"updated_at"`
}

func (r projectRow) toModel() *store.Project {
	return &store.Project{
		Name:          r.Name,
		RepoURL:       r.RepoURL,
		RepoType:      store.RepoType(r.RepoType),
		WebhookSecret: r.WebhookSecret,
		DefaultBranch: r.DefaultBranch,
		CreatedAt:     r.CreatedAt.Time,
		UpdatedAt:     r.UpdatedAt.Time,
	}
}

func (r *ProjectRepository) Create(ctx context.Context, p *store.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (name, repo_url, repo_type, webhook_secret, default_branch)
		VALUES ($1, $2, $3, $4, $5)`,
		p.Name, p.RepoURL, string(p.RepoType), p.WebhookSecret, p.DefaultBranch)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) Update(ctx context.Context, p *store.Project) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE projects SET repo_url=$2, repo_type=$3, webhook_secret=$4, default_branch=$5, updated_at=now()
		WHERE name=$1`,
		p.Name, p.RepoURL, string(p.RepoType), p.WebhookSecret, p.DefaultBranch)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) Delete(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE name=$1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) FindByName(ctx context.Context, name string) (*store.Project, error) {
	var row projectRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM projects WHERE name=$1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	return row.toModel(), nil
}

func (r *ProjectRepository) List(ctx context.Context) ([]*store.Project, error) {
	var rows []projectRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM projects ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	out := make([]*store.Project, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}
