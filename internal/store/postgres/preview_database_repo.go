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

// PreviewDatabaseRepository is the Postgres implementation of
// store.PreviewDatabaseRepository.
type PreviewDatabaseRepository struct {
	db *sqlx.DB
}

type previewDatabaseRow struct {
	ID        int64        `db:"id"`
	Project   string       `db:"project"`
	Branch    string       `db:"branch"`
	ValkeyDB  int          `db:"valkey_db"`
	DBName    string       `db:"db_name"`
	CreatedAt sql.NullTime `db:"created_at"`
}

func (r previewDatabaseRow) toModel() *store.PreviewDatabase {
	return &store.PreviewDatabase{
		ID:        r.ID,
		Project:   r.Project,
		Branch:    r.Branch,
		ValkeyDB:  r.ValkeyDB,
		DBName:    r.DBName,
		CreatedAt: r.CreatedAt.Time,
	}
}

// Allocate is idempotent per (project, branch): a repeat deploy of the same
// branch reuses its previously assigned logical database index instead of
// claiming a new one, since services.preview_database just means "give me
// an isolated keyspace for this branch" rather than a fresh one every time.
func (r *PreviewDatabaseRepository) Allocate(ctx context.Context, project, branch, dbName string) (*store.PreviewDatabase, error) {
	if existing, err := r.Find(ctx, project, branch); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	var candidate int
	err := r.db.GetContext(ctx, &candidate, `
		SELECT n FROM generate_series($1, $2) AS n
		LEFT JOIN preview_databases pd ON pd.valkey_db = n
		WHERE pd.valkey_db IS NULL
		ORDER BY n
		LIMIT 1`,
		config.AuxDbMin, config.AuxDbMax)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrTypeAuxDbExhausted, "no free preview database indices in configured range")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find free preview database index: %w", err)
	}

	pd := &store.PreviewDatabase{Project: project, Branch: branch, ValkeyDB: candidate, DBName: dbName}
	for pd.ValkeyDB <= config.AuxDbMax {
		err := r.db.QueryRowContext(ctx, `
			INSERT INTO preview_databases (project, branch, valkey_db, db_name)
			VALUES ($1,$2,$3,$4)
			RETURNING id, created_at`,
			pd.Project, pd.Branch, pd.ValkeyDB, pd.DBName,
		).Scan(&pd.ID, &pd.CreatedAt)
		if err == nil {
			return pd, nil
		}
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to allocate preview database: %w", err)
		}
		pd.ValkeyDB++
	}
	return nil, apperrors.New(apperrors.ErrTypeAuxDbExhausted, "no free preview database indices in configured range")
}

func (r *PreviewDatabaseRepository) Find(ctx context.Context, project, branch string) (*store.PreviewDatabase, error) {
	var row previewDatabaseRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM preview_databases WHERE project=$1 AND branch=$2`, project, branch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find preview database: %w", err)
	}
	return row.toModel(), nil
}

func (r *PreviewDatabaseRepository) Release(ctx context.Context, project, branch string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM preview_databases WHERE project=$1 AND branch=$2`, project, branch)
	if err != nil {
		return fmt.Errorf("failed to release preview database: %w", err)
	}
	return nil
}

func (r *PreviewDatabaseRepository) List(ctx context.Context) ([]*store.PreviewDatabase, error) {
	var rows []previewDatabaseRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM preview_databases ORDER BY valkey_db`); err != nil {
		return nil, fmt.Errorf("failed to list preview databases: %w", err)
	}
	out := make([]*store.PreviewDatabase, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}
