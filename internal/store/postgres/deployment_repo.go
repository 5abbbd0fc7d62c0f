package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/scottylabs/kennel/internal/store"
)

// DeploymentRepository is the Postgres implementation of store.DeploymentRepository.
type DeploymentRepository struct {
	db *sqlx.DB
}

type deploymentRow struct {
	ID           int64          `db:"id"`
	Project      string         `db:"project"`
	Service      string         `db:"service"`
	Branch       string         `db:"branch"`
	BranchSlug   string         `db:"branch_slug"`
	Environment  string         `db:"environment"`
	GitRef       string         `db:"git_ref"`
	StorePath    string         `db:"store_path"`
	Port         sql.NullInt32  `db:"port"`
	Status       string         `db:"status"`
	Domain       string         `db:"domain"`
	DnsStatus    string         `db:"dns_status"`
	CreatedAt    sql.NullTime   `db:"created_at"`
	UpdatedAt    sql.NullTime   `db:"updated_at"`
	LastActivity sql.NullTime   `db:"last_activity"`
}

func (r deploymentRow) toModel() *store.Deployment {
	d := &store.Deployment{
		ID:           r.ID,
		Project:      r.Project,
		Service:      r.Service,
		Branch:       r.Branch,
		BranchSlug:   r.BranchSlug,
		Environment:  store.Environment(r.Environment),
		GitRef:       r.GitRef,
		StorePath:    r.StorePath,
		Status:       store.DeploymentStatus(r.Status),
		Domain:       r.Domain,
		DnsStatus:    store.DnsStatus(r.DnsStatus),
		CreatedAt:    r.CreatedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
		LastActivity: r.LastActivity.Time,
	}
	if r.Port.Valid {
		p := int(r.Port.Int32)
		d.Port = &p
	}
	return d
}

func (r *DeploymentRepository) Create(ctx context.Context, d *store.Deployment) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO deployments (project, service, branch, branch_slug, environment, git_ref, store_path, port, status, domain, dns_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at, updated_at, last_activity`,
		d.Project, d.Service, d.Branch, d.BranchSlug, string(d.Environment), d.GitRef, d.StorePath, d.Port, string(d.Status), d.Domain, string(d.DnsStatus),
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt, &d.LastActivity)
}

func (r *DeploymentRepository) Update(ctx context.Context, d *store.Deployment) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE deployments SET store_path=$2, port=$3, status=$4, domain=$5, dns_status=$6,
			updated_at=now(), last_activity=$7
		WHERE id=$1`,
		d.ID, d.StorePath, d.Port, string(d.Status), d.Domain, string(d.DnsStatus), d.LastActivity)
	if err != nil {
		return fmt.Errorf("failed to update deployment: %w", err)
	}
	return nil
}

func (r *DeploymentRepository) FindByID(ctx context.Context, id int64) (*store.Deployment, error) {
	var row deploymentRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM deployments WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find deployment: %w", err)
	}
	return row.toModel(), nil
}

// FindActiveByRef finds the current Active deployment for a service at a
// given git ref, used by the deployer to find the predecessor a new
// deployment replaces.
func (r *DeploymentRepository) FindActiveByRef(ctx context.Context, project, gitRef, service string) (*store.Deployment, error) {
	var row deploymentRow
	err := r.db.GetContext(ctx, &row, `
		SELECT * FROM deployments
		WHERE project=$1 AND git_ref=$2 AND service=$3 AND status='active'`,
		project, gitRef, service)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active deployment: %w", err)
	}
	return row.toModel(), nil
}

func (r *DeploymentRepository) ListActiveServicesByProjectBranch(ctx context.Context, project, branch string) ([]*store.Deployment, error) {
	var rows []deploymentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM deployments WHERE project=$1 AND branch=$2 AND status='active' ORDER BY service`,
		project, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list active deployments for branch: %w", err)
	}
	return toDeploymentModels(rows), nil
}

func (r *DeploymentRepository) ListActive(ctx context.Context) ([]*store.Deployment, error) {
	var rows []deploymentRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM deployments WHERE status='active' ORDER BY project, service, branch`); err != nil {
		return nil, fmt.Errorf("failed to list active deployments: %w", err)
	}
	return toDeploymentModels(rows), nil
}

// ListActiveServices returns every Active deployment backed by an actual
// running service (as opposed to a static site, which the router serves
// from disk rather than proxying). The health monitor and the resource
// reconcile use it; the router loads its table from ListActive.
func (r *DeploymentRepository) ListActiveServices(ctx context.Context) ([]*store.Deployment, error) {
	var rows []deploymentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT d.* FROM deployments d
		JOIN services s ON s.project = d.project AND s.name = d.service
		WHERE d.status='active' AND s.type != 'static'
		ORDER BY d.project, d.service, d.branch`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active service deployments: %w", err)
	}
	return toDeploymentModels(rows), nil
}

// FindExpired returns Active deployments whose last_activity is older than
// days, excluding any in excludeEnvs (prod/staging are never auto-expired).
func (r *DeploymentRepository) FindExpired(ctx context.Context, days int, excludeEnvs []string) ([]*store.Deployment, error) {
	placeholders := make([]string, len(excludeEnvs))
	args := make([]interface{}, 0, len(excludeEnvs)+1)
	args = append(args, days)
	for i, env := range excludeEnvs {
		args = append(args, env)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}

	query := `
		SELECT * FROM deployments
		WHERE status='active'
		  AND last_activity < now() - ($1 || ' days')::interval`
	if len(placeholders) > 0 {
		query += fmt.Sprintf(" AND environment NOT IN (%s)", strings.Join(placeholders, ","))
	}

	var rows []deploymentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find expired deployments: %w", err)
	}
	return toDeploymentModels(rows), nil
}

// MarkForTeardown transitions every Active deployment for (project, branch)
// to TearingDown in one statement and returns the affected IDs, so the
// caller can enqueue exactly one teardown task per deployment without a
// race against a concurrent deploy of the same branch.
func (r *DeploymentRepository) MarkForTeardown(ctx context.Context, project, branch string) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		UPDATE deployments SET status='tearing_down', updated_at=now()
		WHERE project=$1 AND branch=$2 AND status='active'
		RETURNING id`,
		project, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to mark deployments for teardown: %w", err)
	}
	return ids, nil
}

func (r *DeploymentRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM deployments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deployment: %w", err)
	}
	return nil
}

func toDeploymentModels(rows []deploymentRow) []*store.Deployment {
	out := make([]*store.Deployment, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out
}
