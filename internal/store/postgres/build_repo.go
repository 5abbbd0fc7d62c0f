package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
	"github.com/scottylabs/kennel/internal/store"
)

// BuildRepository is the Postgres implementation of store.BuildRepository.
type BuildRepository struct {
	db *sqlx.DB
}

type buildRow struct {
	ID         int64        `db:"id"`
	Project    string       `db:"project"`
	Branch     string       `db:"branch"`
	GitRef     string       `db:"git_ref"`
	CommitSHA  string       `db:"commit_sha"`
	Status     string       `db:"status"`
	CreatedAt  sql.NullTime `db:"created_at"`
	StartedAt  sql.NullTime `db:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
}

func (r buildRow) toModel() *store.Build {
	b := &store.Build{
		ID:        r.ID,
		Project:   r.Project,
		Branch:    r.Branch,
		GitRef:    r.GitRef,
		CommitSHA: r.CommitSHA,
		Status:    store.BuildStatus(r.Status),
		CreatedAt: r.CreatedAt.Time,
	}
	if r.StartedAt.Valid {
		b.StartedAt = &r.StartedAt.Time
	}
	if r.FinishedAt.Valid {
		b.FinishedAt = &r.FinishedAt.Time
	}
	return b
}

// Create inserts a new Build row. (project, commit_sha) is unique; a
// duplicate delivery for the same commit returns a Conflict error so the
// webhook handler can absorb it without enqueueing a second build.
func (r *BuildRepository) Create(ctx context.Context, b *store.Build) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO builds (project, branch, git_ref, commit_sha, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at`,
		b.Project, b.Branch, b.GitRef, b.CommitSHA, string(b.Status),
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrTypeConflict, "build already exists for this commit")
		}
		return fmt.Errorf("failed to create build: %w", err)
	}
	return nil
}

func (r *BuildRepository) Update(ctx context.Context, b *store.Build) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE builds SET status=$2, started_at=$3, finished_at=$4
		WHERE id=$1`,
		b.ID, string(b.Status), b.StartedAt, b.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to update build: %w", err)
	}
	return nil
}

func (r *BuildRepository) FindByID(ctx context.Context, id int64) (*store.Build, error) {
	var row buildRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM builds WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find build: %w", err)
	}
	return row.toModel(), nil
}

func (r *BuildRepository) Exists(ctx context.Context, project, commitSHA string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM builds WHERE project=$1 AND commit_sha=$2)`, project, commitSHA)
	if err != nil {
		return false, fmt.Errorf("failed to check build existence: %w", err)
	}
	return exists, nil
}

func (r *BuildRepository) FindOldFinished(ctx context.Context, olderThanDays int) ([]*store.Build, error) {
	var rows []buildRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM builds
		WHERE finished_at IS NOT NULL AND finished_at < now() - ($1 || ' days')::interval`,
		olderThanDays)
	if err != nil {
		return nil, fmt.Errorf("failed to list old builds: %w", err)
	}
	out := make([]*store.Build, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

func (r *BuildRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM builds WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete build: %w", err)
	}
	return nil
}
