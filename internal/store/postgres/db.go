// Package postgres is the Postgres-backed implementation of store.Store,
// built on pgx's database/sql driver and sqlx for struct scanning.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/scottylabs/kennel/internal/store"
)

// postgres error codes per https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrUniqueViolation = "23505"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

// Store is the Postgres implementation of store.Store.
type Store struct {
	db *sqlx.DB

	projects   *ProjectRepository
	services   *ServiceRepository
	builds     *BuildRepository
	results    *BuildResultRepository
	deploys    *DeploymentRepository
	ports      *PortAllocationRepository
	previewDbs *PreviewDatabaseRepository
	dnsRecords *DnsRecordRepository
}

// NewStore opens a connection pool against databaseURL and wires the
// per-entity repositories over it.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	s.projects = &ProjectRepository{db: db}
	s.services = &ServiceRepository{db: db}
	s.builds = &BuildRepository{db: db}
	s.results = &BuildResultRepository{db: db}
	s.deploys = &DeploymentRepository{db: db}
	s.ports = &PortAllocationRepository{db: db}
	s.previewDbs = &PreviewDatabaseRepository{db: db}
	s.dnsRecords = &DnsRecordRepository{db: db}
	return s, nil
}

func (s *Store) Projects() store.ProjectRepository                 { return s.projects }
func (s *Store) Services() store.ServiceRepository                 { return s.services }
func (s *Store) Builds() store.BuildRepository                     { return s.builds }
func (s *Store) BuildResults() store.BuildResultRepository         { return s.results }
func (s *Store) Deployments() store.DeploymentRepository           { return s.deploys }
func (s *Store) PortAllocations() store.PortAllocationRepository   { return s.ports }
func (s *Store) PreviewDatabases() store.PreviewDatabaseRepository { return s.previewDbs }
func (s *Store) DnsRecords() store.DnsRecordRepository             { return s.dnsRecords }

func (s *Store) Close() error { return s.db.Close() }

// Migrate idempotently creates the schema. Schema migrations beyond this
// are treated as an external collaborator per spec section 1; Kennel only
// needs the tables to exist, not a versioned migration history.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to run schema migration: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
    name TEXT PRIMARY KEY,
    repo_url TEXT NOT NULL,
    repo_type TEXT NOT NULL,
    webhook_secret TEXT NOT NULL,
    default_branch TEXT NOT NULL DEFAULT 'main',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS services (
    id BIGSERIAL PRIMARY KEY,
    project TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    package TEXT NOT NULL DEFAULT '',
    custom_domain TEXT NOT NULL DEFAULT '',
    spa BOOLEAN NOT NULL DEFAULT FALSE,
    health_check_path TEXT NOT NULL DEFAULT '/health',
    health_check_timeout_secs INTEGER NOT NULL DEFAULT 30,
    preview_database BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (project, name)
);

CREATE TABLE IF NOT EXISTS builds (
    id BIGSERIAL PRIMARY KEY,
    project TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
    branch TEXT NOT NULL,
    git_ref TEXT NOT NULL,
    commit_sha TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'queued',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at TIMESTAMPTZ,
    finished_at TIMESTAMPTZ,
    UNIQUE (project, commit_sha)
);

CREATE TABLE IF NOT EXISTS build_results (
    id BIGSERIAL PRIMARY KEY,
    build_id BIGINT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
    service_name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    store_path TEXT,
    log_path TEXT,
    error_message TEXT,
    changed BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deployments (
    id BIGSERIAL PRIMARY KEY,
    project TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
    service TEXT NOT NULL,
    branch TEXT NOT NULL,
    branch_slug TEXT NOT NULL,
    environment TEXT NOT NULL,
    git_ref TEXT NOT NULL,
    store_path TEXT NOT NULL,
    port INTEGER,
    status TEXT NOT NULL DEFAULT 'pending',
    domain TEXT NOT NULL,
    dns_status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_activity TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_deployments_active_unique
    ON deployments (project, service, branch)
    WHERE status = 'active';

CREATE INDEX IF NOT EXISTS idx_deployments_status ON deployments(status);
CREATE INDEX IF NOT EXISTS idx_deployments_project_branch ON deployments(project, branch);

CREATE TABLE IF NOT EXISTS port_allocations (
    port INTEGER PRIMARY KEY,
    deployment_id BIGINT REFERENCES deployments(id) ON DELETE SET NULL,
    project TEXT,
    service TEXT,
    branch TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS preview_databases (
    id BIGSERIAL PRIMARY KEY,
    project TEXT NOT NULL,
    branch TEXT NOT NULL,
    valkey_db INTEGER NOT NULL,
    db_name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (project, branch),
    UNIQUE (valkey_db)
);

CREATE TABLE IF NOT EXISTS dns_records (
    id BIGSERIAL PRIMARY KEY,
    domain TEXT NOT NULL UNIQUE,
    deployment_id BIGINT REFERENCES deployments(id) ON DELETE SET NULL,
    provider_record_id TEXT NOT NULL,
    record_type TEXT NOT NULL,
    ip_address TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
