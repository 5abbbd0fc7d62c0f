package build

import (
	"context"
	"errors"
	"testing"

	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/store"
)

// fakeBuildResults implements store.BuildResultRepository with just enough
// behavior for buildOne's reuse-detection path.
type fakeBuildResults struct {
	store.BuildResultRepository
	recent  []*store.BuildResult
	created []*store.BuildResult
}

func (f *fakeBuildResults) FindRecentSuccessful(ctx context.Context, project, gitRef, service string, limit int) ([]*store.BuildResult, error) {
	return f.recent, nil
}

func (f *fakeBuildResults) Create(ctx context.Context, r *store.BuildResult) error {
	f.created = append(f.created, r)
	return nil
}

type fakeStore struct {
	store.Store
	buildResults *fakeBuildResults
}

func (f *fakeStore) BuildResults() store.BuildResultRepository { return f.buildResults }

type fakeTool struct {
	storePath string
	logPath   string
	err       error
}

func (f fakeTool) Build(ctx context.Context, workDir, buildID, name, pkg string) (string, string, error) {
	return f.storePath, f.logPath, f.err
}

func newTestPool(br *fakeBuildResults, tool Tool) *Pool {
	return &Pool{
		store: &fakeStore{buildResults: br},
		tool:  tool,
		log:   logger.New("error"),
	}
}

func TestBuildOneSuccessRecordsStorePath(t *testing.T) {
	br := &fakeBuildResults{}
	p := newTestPool(br, fakeTool{storePath: "/nix/store/abc-web", logPath: "/var/log/kennel/builds/1/web.log"})

	ok, storePath := p.buildOne(context.Background(), &store.Build{ID: 1, Project: "myapp"}, "web", ".#web")

	if !ok {
		t.Fatal("expected buildOne to succeed")
	}
	if storePath != "/nix/store/abc-web" {
		t.Errorf("storePath = %q, want /nix/store/abc-web", storePath)
	}
	if len(br.created) != 1 {
		t.Fatalf("expected one BuildResult to be recorded, got %d", len(br.created))
	}
	result := br.created[0]
	if result.Status != store.ResultSuccess {
		t.Errorf("Status = %v, want success", result.Status)
	}
	if result.StorePath != "/nix/store/abc-web" {
		t.Errorf("StorePath = %q, want /nix/store/abc-web", result.StorePath)
	}
	if result.LogPath != "/var/log/kennel/builds/1/web.log" {
		t.Errorf("LogPath = %q, want /var/log/kennel/builds/1/web.log", result.LogPath)
	}
}

func TestBuildOneFailureRecordsErrorMessage(t *testing.T) {
	br := &fakeBuildResults{}
	p := newTestPool(br, fakeTool{err: errors.New("nix build failed"), logPath: "/var/log/kennel/builds/1/web.log"})

	ok, _ := p.buildOne(context.Background(), &store.Build{ID: 1, Project: "myapp"}, "web", ".#web")

	if ok {
		t.Fatal("expected buildOne to report failure")
	}
	if len(br.created) != 1 {
		t.Fatalf("expected one BuildResult to be recorded, got %d", len(br.created))
	}
	result := br.created[0]
	if result.Status != store.ResultFailed {
		t.Errorf("Status = %v, want failed", result.Status)
	}
	if result.ErrorMessage != "nix build failed" {
		t.Errorf("ErrorMessage = %q, want %q", result.ErrorMessage, "nix build failed")
	}
	if result.StorePath != "" {
		t.Errorf("StorePath = %q, want empty on failure", result.StorePath)
	}
}

func TestBuildOneMarksUnchangedWhenStorePathMatchesRecent(t *testing.T) {
	br := &fakeBuildResults{recent: []*store.BuildResult{
		{StorePath: "/nix/store/abc-web"},
	}}
	p := newTestPool(br, fakeTool{storePath: "/nix/store/abc-web"})

	p.buildOne(context.Background(), &store.Build{ID: 2, Project: "myapp"}, "web", ".#web")

	if br.created[0].Changed {
		t.Error("expected Changed to be false when the resolved store path matches a recent successful build")
	}
}

func TestBuildOneMarksChangedWhenStorePathDiffersFromRecent(t *testing.T) {
	br := &fakeBuildResults{recent: []*store.BuildResult{
		{StorePath: "/nix/store/old-web"},
	}}
	p := newTestPool(br, fakeTool{storePath: "/nix/store/new-web"})

	p.buildOne(context.Background(), &store.Build{ID: 3, Project: "myapp"}, "web", ".#web")

	if !br.created[0].Changed {
		t.Error("expected Changed to be true when the resolved store path differs from every recent build")
	}
}

func TestMatchesAny(t *testing.T) {
	recent := []*store.BuildResult{
		{StorePath: "/nix/store/a"},
		{StorePath: "/nix/store/b"},
	}
	if !matchesAny(recent, "/nix/store/b") {
		t.Error("expected matchesAny to find an exact store path match")
	}
	if matchesAny(recent, "/nix/store/c") {
		t.Error("expected matchesAny to report no match for an unseen store path")
	}
	if matchesAny(nil, "/nix/store/a") {
		t.Error("expected matchesAny to report no match against an empty list")
	}
}
