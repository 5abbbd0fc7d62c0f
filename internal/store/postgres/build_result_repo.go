package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/scottylabs/kennel/internal/store"
)

// BuildResultRepository is the Postgres implementation of store.BuildResultRepository.
type BuildResultRepository struct {
	db *sqlx.DB
}

type buildResultRow struct {
	ID           int64          `db:"id"`
	BuildID      int64          `db:"build_id"`
	ServiceName  string         `db:"service_name"`
	Status       string         `db:"status"`
	StorePath    sql.NullString `db:"store_path"`
	LogPath      sql.NullString `db:"log_path"`
	ErrorMessage sql.NullString `db:"error_message"`
	Changed      bool           `db:"changed"`
	CreatedAt    sql.NullTime   `db:"created_at"`
}

func (r buildResultRow) toModel() *store.BuildResult {
	return &store.BuildResult{
		ID:           r.ID,
		BuildID:      r.BuildID,
		ServiceName:  r.ServiceName,
		Status:       store.BuildResultStatus(r.Status),
		StorePath:    r.StorePath.String,
		LogPath:      r.LogPath.String,
		ErrorMessage: r.ErrorMessage.String,
		Changed:      r.Changed,
		CreatedAt:    r.CreatedAt.Time,
	}
}

func (r *BuildResultRepository) Create(ctx context.Context, br *store.BuildResult) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO build_results (build_id, service_name, status, store_path, log_path, error_message, changed)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at`,
		br.BuildID, br.ServiceName, string(br.Status), nullableString(br.StorePath), nullableString(br.LogPath), nullableString(br.ErrorMessage), br.Changed,
	).Scan(&br.ID, &br.CreatedAt)
}

func (r *BuildResultRepository) Update(ctx context.Context, br *store.BuildResult) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE build_results SET status=$2, store_path=$3, log_path=$4, error_message=$5, changed=$6
		WHERE id=$1`,
		br.ID, string(br.Status), nullableString(br.StorePath), nullableString(br.LogPath), nullableString(br.ErrorMessage), br.Changed)
	if err != nil {
		return fmt.Errorf("failed to update build result: %w", err)
	}
	return nil
}

func (r *BuildResultRepository) ListByBuild(ctx context.Context, buildID int64) ([]*store.BuildResult, error) {
	var rows []buildResultRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM build_results WHERE build_id=$1 ORDER BY service_name`, buildID); err != nil {
		return nil, fmt.Errorf("failed to list build results: %w", err)
	}
	return toBuildResultModels(rows), nil
}

func (r *BuildResultRepository) ListSuccessByBuild(ctx context.Context, buildID int64) ([]*store.BuildResult, error) {
	var rows []buildResultRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM build_results WHERE build_id=$1 AND status='success' ORDER BY service_name`, buildID); err != nil {
		return nil, fmt.Errorf("failed to list successful build results: %w", err)
	}
	return toBuildResultModels(rows), nil
}

// FindRecentSuccessful returns the most recent successful build results for
// a service on a given ref. The build pool sets BuildResult.Changed when a
// fresh build's store path matches none of them; the build itself is always
// run.
func (r *BuildResultRepository) FindRecentSuccessful(ctx context.Context, project, gitRef, service string, limit int) ([]*store.BuildResult, error) {
	var rows []buildResultRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT br.* FROM build_results br
		JOIN builds b ON b.id = br.build_id
		WHERE b.project=$1 AND b.git_ref=$2 AND br.service_name=$3 AND br.status='success'
		ORDER BY br.created_at DESC
		LIMIT $4`,
		project, gitRef, service, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find recent successful build results: %w", err)
	}
	return toBuildResultModels(rows), nil
}

func toBuildResultModels(rows []buildResultRow) []*store.BuildResult {
	out := make([]*store.BuildResult, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
