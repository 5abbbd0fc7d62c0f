package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
	"github.com/scottylabs/kennel/internal/config"
	"github.com/scottylabs/kennel/internal/store"
)

// PortAllocationRepository is the Postgres implementation of
// store.PortAllocationRepository. The database's primary key on port is the
// sole serialization point for exclusivity (spec section 5): concurrent
// allocators race to INSERT the same candidate port and the loser simply
// tries the next one.
type PortAllocationRepository struct {
	db *sqlx.DB
}

type portAllocationRow struct {
	Port         int           `db:"port"`
	DeploymentID sql.NullInt64 `db:"deployment_id"`
	Project      sql.NullString `db:"project"`
	Service      sql.NullString `db:"service"`
	Branch       sql.NullString `db:"branch"`
	CreatedAt    sql.NullTime  `db:"created_at"`
}

func (r portAllocationRow) toModel() *store.PortAllocation {
	p := &store.PortAllocation{
		Port:      r.Port,
		Project:   r.Project.String,
		Service:   r.Service.String,
		Branch:    r.Branch.String,
		CreatedAt: r.CreatedAt.Time,
	}
	if r.DeploymentID.Valid {
		p.DeploymentID = &r.DeploymentID.Int64
	}
	return p
}

// Allocate finds the lowest free port in [PortRangeStart, PortRangeEnd] and
// claims it. It queries for a gap first to keep allocations low and
// sequential, then falls back to inserting candidates in order, absorbing
// unique-violation races against concurrent allocators.
func (r *PortAllocationRepository) Allocate(ctx context.Context, deploymentID *int64, project, service, branch string) (int, error) {
	var candidate int
	err := r.db.GetContext(ctx, &candidate, `
		SELECT p.port FROM generate_series($1, $2) AS p(port)
		LEFT JOIN port_allocations pa ON pa.port = p.port
		WHERE pa.port IS NULL
		ORDER BY p.port
		LIMIT 1`,
		config.PortRangeStart, config.PortRangeEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.New(apperrors.ErrTypePortExhausted, "no free ports in configured range")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find free port: %w", err)
	}

	for candidate <= config.PortRangeEnd {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO port_allocations (port, deployment_id, project, service, branch)
			VALUES ($1,$2,$3,$4,$5)`,
			candidate, deploymentID, project, service, branch)
		if err == nil {
			return candidate, nil
		}
		if !isUniqueViolation(err) {
			return 0, fmt.Errorf("failed to allocate port: %w", err)
		}
		candidate++
	}
	return 0, apperrors.New(apperrors.ErrTypePortExhausted, "no free ports in configured range")
}

// AttachDeployment points an already-allocated port at a deployment once
// its row exists (spec section 4.5 step j).
func (r *PortAllocationRepository) AttachDeployment(ctx context.Context, port int, deploymentID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE port_allocations SET deployment_id=$1 WHERE port=$2`, deploymentID, port)
	if err != nil {
		return fmt.Errorf("failed to attach deployment to port: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrTypeNotFound, "port allocation not found")
	}
	return nil
}

func (r *PortAllocationRepository) Release(ctx context.Context, port int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM port_allocations WHERE port=$1`, port)
	if err != nil {
		return fmt.Errorf("failed to release port: %w", err)
	}
	return nil
}

func (r *PortAllocationRepository) FindByPort(ctx context.Context, port int) (*store.PortAllocation, error) {
	var row portAllocationRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM port_allocations WHERE port=$1`, port)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find port allocation: %w", err)
	}
	return row.toModel(), nil
}

func (r *PortAllocationRepository) FindByDeployment(ctx context.Context, deploymentID int64) (*store.PortAllocation, error) {
	var row portAllocationRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM port_allocations WHERE deployment_id=$1`, deploymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find port allocation by deployment: %w", err)
	}
	return row.toModel(), nil
}

func (r *PortAllocationRepository) List(ctx context.Context) ([]*store.PortAllocation, error) {
	var rows []portAllocationRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM port_allocations ORDER BY port`); err != nil {
		return nil, fmt.Errorf("failed to list port allocations: %w", err)
	}
	out := make([]*store.PortAllocation, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}
