package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/scottylabs/kennel/internal/store"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	db := sqlx.NewDb(mockDB, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestServiceRepositoryCreateUpserts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &ServiceRepository{db: db}

	mock.ExpectQuery(`INSERT INTO services`).
		WithArgs("myapp", "web", "service", ".#web", "", false, "/health", 30, false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	s := &store.Service{
		Project:                "myapp",
		Name:                   "web",
		Type:                   store.ServiceTypeService,
		Package:                ".#web",
		HealthCheckPath:        "/health",
		HealthCheckTimeoutSecs: 30,
	}
	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != 1 {
		t.Errorf("ID = %d, want 1", s.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestServiceRepositoryFindByProjectAndNameNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &ServiceRepository{db: db}

	mock.ExpectQuery(`SELECT \* FROM services WHERE project=\$1 AND name=\$2`).
		WithArgs("myapp", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project", "name", "type"}))

	svc, err := repo.FindByProjectAndName(context.Background(), "myapp", "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc != nil {
		t.Errorf("expected nil for a missing service, got %+v", svc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
