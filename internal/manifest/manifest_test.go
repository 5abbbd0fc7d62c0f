package manifest

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write test manifest: %v", err)
	}
	return dir
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := writeManifest(t, `
services:
  web:
    package: .#web
`)
	m, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := m.Services["web"]
	if svc.HealthCheckPath != "/health" {
		t.Errorf("HealthCheckPath = %q, want /health", svc.HealthCheckPath)
	}
	if svc.HealthCheckTimeoutSecs != 30 {
		t.Errorf("HealthCheckTimeoutSecs = %d, want 30", svc.HealthCheckTimeoutSecs)
	}
}

func TestLoadPreservesExplicitValues(t *testing.T) {
	dir := writeManifest(t, `
services:
  web:
    package: .#web
    health_check_path: /healthz
    health_check_timeout_secs: 10
`)
	m, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := m.Services["web"]
	if svc.HealthCheckPath != "/healthz" {
		t.Errorf("HealthCheckPath = %q, want /healthz", svc.HealthCheckPath)
	}
	if svc.HealthCheckTimeoutSecs != 10 {
		t.Errorf("HealthCheckTimeoutSecs = %d, want 10", svc.HealthCheckTimeoutSecs)
	}
}

func TestLoadRejectsEmptyManifest(t *testing.T) {
	dir := writeManifest(t, `{}`)
	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected an error for a manifest with no services and no static sites")
	}
	if !apperrors.Is(err, apperrors.ErrTypeInvalidConfig) {
		t.Errorf("expected ErrTypeInvalidConfig, got %v", err)
	}
}

func TestLoadRejectsInvalidServiceName(t *testing.T) {
	dir := writeManifest(t, `
services:
  "Web Service":
    package: .#web
`)
	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected an error for an invalid service name")
	}
	if !apperrors.Is(err, apperrors.ErrTypeInvalidName) {
		t.Errorf("expected ErrTypeInvalidName, got %v", err)
	}
}

func TestLoadStaticSitesDoNotRequireHealthCheckDefaults(t *testing.T) {
	dir := writeManifest(t, `
static_sites:
  docs:
    package: .#docs
    spa: true
`)
	m, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.StaticSites["docs"].SPA {
		t.Error("expected SPA flag to be preserved")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("expected an error for a missing manifest file")
	}
}
