package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
)

func TestPortAllocationRepositoryAllocateFindsFreeCandidate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &PortAllocationRepository{db: db}

	mock.ExpectQuery(`SELECT p.port FROM generate_series`).
		WithArgs(18000, 19999).
		WillReturnRows(sqlmock.NewRows([]string{"port"}).AddRow(18003))
	mock.ExpectExec(`INSERT INTO port_allocations`).
		WithArgs(18003, nil, "myapp", "web", "feature-foo").
		WillReturnResult(sqlmock.NewResult(1, 1))

	port, err := repo.Allocate(context.Background(), nil, "myapp", "web", "feature-foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port != 18003 {
		t.Errorf("port = %d, want 18003", port)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPortAllocationRepositoryAllocateExhausted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &PortAllocationRepository{db: db}

	mock.ExpectQuery(`SELECT p.port FROM generate_series`).
		WithArgs(18000, 19999).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Allocate(context.Background(), nil, "myapp", "web", "feature-foo")
	if err == nil {
		t.Fatal("expected an error when the port range is exhausted")
	}
	if !apperrors.Is(err, apperrors.ErrTypePortExhausted) {
		t.Errorf("expected ErrTypePortExhausted, got %v", err)
	}
}

func TestPortAllocationRepositoryAttachDeployment(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &PortAllocationRepository{db: db}

	mock.ExpectExec(`UPDATE port_allocations SET deployment_id=\$1 WHERE port=\$2`).
		WithArgs(int64(42), 18003).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AttachDeployment(context.Background(), 18003, 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPortAllocationRepositoryAttachDeploymentNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &PortAllocationRepository{db: db}

	mock.ExpectExec(`UPDATE port_allocations SET deployment_id=\$1 WHERE port=\$2`).
		WithArgs(int64(42), 18003).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AttachDeployment(context.Background(), 18003, 42)
	if err == nil {
		t.Fatal("expected an error when no port allocation row matches")
	}
	if !apperrors.Is(err, apperrors.ErrTypeNotFound) {
		t.Errorf("expected ErrTypeNotFound, got %v", err)
	}
}
