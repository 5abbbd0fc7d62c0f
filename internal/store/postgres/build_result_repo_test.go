package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/scottylabs/kennel/internal/store"
)

func TestBuildResultRepositoryCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &BuildResultRepository{db: db}

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO build_results`).
		WithArgs(int64(1), "web", "success", "/nix/store/abc-web", "/var/log/kennel/builds/1/web.log", nil, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), now))

	br := &store.BuildResult{
		BuildID:     1,
		ServiceName: "web",
		Status:      store.ResultSuccess,
		StorePath:   "/nix/store/abc-web",
		LogPath:     "/var/log/kennel/builds/1/web.log",
		Changed:     true,
	}
	if err := repo.Create(context.Background(), br); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if br.ID != 10 {
		t.Errorf("ID = %d, want 10", br.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestBuildResultRepositoryToModelNullColumnsBecomeEmptyStrings(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &BuildResultRepository{db: db}

	mock.ExpectQuery(`SELECT \* FROM build_results WHERE build_id=\$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "build_id", "service_name", "status", "store_path", "log_path", "error_message", "changed", "created_at"}).
			AddRow(int64(1), int64(1), "web", "failed", nil, "/var/log/kennel/builds/1/web.log", "nix build failed", true, time.Now()))

	results, err := repo.ListByBuild(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	r := results[0]
	if r.StorePath != "" {
		t.Errorf("StorePath = %q, want empty for a NULL column", r.StorePath)
	}
	if r.ErrorMessage != "nix build failed" {
		t.Errorf("ErrorMessage = %q, want %q", r.ErrorMessage, "nix build failed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
