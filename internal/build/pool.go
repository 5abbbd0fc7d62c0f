package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/scottylabs/kennel/internal/config"
	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/manifest"
	"github.com/scottylabs/kennel/internal/store"
)

// DeployQueue is the outbound side of the build pool: one DeployRequest
// per successfully completed build.
type DeployQueue interface {
	Enqueue(req DeployRequest) bool
}

// DeployRequest is what a completed build hands to the deployer.
type DeployRequest struct {
	BuildID int64
	Project string
	GitRef  string
}

// Pool is the bounded-concurrency build worker pool. A fresh goroutine is
// spawned per build and bounded by a semaphore of MaxConcurrentBuilds
// permits; the inbound queue's capacity is the backpressure mechanism
// webhook ingress observes.
type Pool struct {
	store    store.Store
	deploys  DeployQueue
	cloner   Cloner
	tool     Tool
	log      logger.Logger
	workDir  string
	sem      *semaphore.Weighted
	inbound  chan int64

	wg sync.WaitGroup
}

func NewPool(s store.Store, deploys DeployQueue, cloner Cloner, tool Tool, workDir string, maxConcurrent int, log logger.Logger) *Pool {
	return &Pool{
		store:   s,
		deploys: deploys,
		cloner:  cloner,
		tool:    tool,
		log:     log,
		workDir: workDir,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		inbound: make(chan int64, config.BuildQueueCapacity),
	}
}

// Enqueue is the inbound side webhook ingress uses. Returns false if the
// queue is full.
func (p *Pool) Enqueue(buildID int64) bool {
	select {
	case p.inbound <- buildID:
		return true
	default:
		return false
	}
}

// Run is the dispatcher loop: receive a build id, acquire a permit, spawn
// an independent task. Blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case buildID := <-p.inbound:
			if err := p.sem.Acquire(ctx, 1); err != nil {
				return
			}
			p.wg.Add(1)
			go func(id int64) {
				defer p.wg.Done()
				defer p.sem.Release(1)
				p.runBuild(ctx, id)
			}(buildID)
		}
	}
}

// runBuild never panics the pool; every error degrades the build to
// failed and is recorded, per spec section 4.4/7.
func (p *Pool) runBuild(ctx context.Context, buildID int64) {
	b, err := p.store.Builds().FindByID(ctx, buildID)
	if err != nil || b == nil {
		p.log.Error("build worker could not load build row", logger.BuildID(buildID), logger.Err(err))
		return
	}

	b.Status = store.BuildBuilding
	now := time.Now()
	b.StartedAt = &now
	if err := p.store.Builds().Update(ctx, b); err != nil {
		p.log.Error("failed to mark build building", logger.BuildID(buildID), logger.Err(err))
	}

	if p.cancelled(ctx, buildID) {
		return
	}

	project, err := p.store.Projects().FindByName(ctx, b.Project)
	if err != nil || project == nil {
		p.fail(ctx, b, fmt.Errorf("project %q not found", b.Project))
		return
	}

	workDir := filepath.Join(p.workDir, fmt.Sprintf("%d", buildID), "repo")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		p.fail(ctx, b, err)
		return
	}
	if err := p.cloner.Clone(ctx, project.RepoURL, b.CommitSHA, workDir); err != nil {
		p.fail(ctx, b, err)
		return
	}

	m, err := manifest.Load(workDir)
	if err != nil {
		p.fail(ctx, b, err)
		return
	}

	if err := p.syncServices(ctx, b.Project, m); err != nil {
		p.log.Error("failed to sync services from manifest", logger.Project(b.Project), logger.Err(err))
	}

	allSucceeded := true
	var pushedPaths []string

	for name, svc := range m.Services {
		if p.cancelled(ctx, buildID) {
			return
		}
		ok, storePath := p.buildOne(ctx, b, name, svc.Package)
		allSucceeded = allSucceeded && ok
		if ok {
			pushedPaths = append(pushedPaths, storePath)
		}
	}
	for name, site := range m.StaticSites {
		if p.cancelled(ctx, buildID) {
			return
		}
		ok, storePath := p.buildOne(ctx, b, name, site.Package)
		allSucceeded = allSucceeded && ok
		if ok {
			pushedPaths = append(pushedPaths, storePath)
		}
	}

	if m.Cachix != nil {
		pushToCachix(ctx, m.Cachix, pushedPaths, p.log)
	}

	finishedAt := time.Now()
	b.FinishedAt = &finishedAt
	if allSucceeded {
		b.Status = store.BuildSuccess
	} else {
		b.Status = store.BuildFailed
	}
	if err := p.store.Builds().Update(ctx, b); err != nil {
		p.log.Error("failed to finalize build", logger.BuildID(buildID), logger.Err(err))
		return
	}

	if allSucceeded {
		p.deploys.Enqueue(DeployRequest{BuildID: buildID, Project: b.Project, GitRef: b.GitRef})
	}
}

// syncServices upserts one store.Service row per manifest entry, the
// step spec section 3 names as how Service rows are created/updated
// ("from the repo's manifest during build").
func (p *Pool) syncServices(ctx context.Context, project string, m *manifest.Manifest) error {
	upsert := func(name string, svc *store.Service) error {
		svc.Project = project
		svc.Name = name
		return p.store.Services().Create(ctx, svc)
	}

	for name, entry := range m.Services {
		err := upsert(name, &store.Service{
			Type:                   store.ServiceTypeService,
			Package:                entry.Package,
			CustomDomain:           entry.CustomDomain,
			HealthCheckPath:        entry.HealthCheckPath,
			HealthCheckTimeoutSecs: entry.HealthCheckTimeoutSecs,
			PreviewDatabase:        entry.PreviewDatabase,
		})
		if err != nil {
			return err
		}
	}
	for name, entry := range m.StaticSites {
		err := upsert(name, &store.Service{
			Type:         store.ServiceTypeStatic,
			Package:      entry.Package,
			CustomDomain: entry.CustomDomain,
			SPA:          entry.SPA,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// buildOne looks up recent successful results for the artifact, invokes the
// build tool, and records a BuildResult row whose Changed flag says whether
// the store path differs from every one of those recent results. Artifact names are
// validated earlier, by manifest.Load.
func (p *Pool) buildOne(ctx context.Context, b *store.Build, name, pkg string) (ok bool, storePath string) {
	recent, err := p.store.BuildResults().FindRecentSuccessful(ctx, b.Project, b.GitRef, name, 5)
	if err != nil {
		p.log.Warn("failed to look up recent build results", logger.BuildID(b.ID), logger.Err(err))
	}

	resolvedPath, logPath, buildErr := p.tool.Build(ctx, p.workDir, fmt.Sprintf("%d", b.ID), name, pkg)

	result := &store.BuildResult{BuildID: b.ID, ServiceName: name}
	if buildErr != nil {
		result.Status = store.ResultFailed
		result.LogPath = logPath
		result.ErrorMessage = buildErr.Error()
		result.Changed = true
	} else {
		result.Status = store.ResultSuccess
		result.StorePath = resolvedPath
		result.LogPath = logPath
		result.Changed = !matchesAny(recent, resolvedPath)
	}

	if err := p.store.BuildResults().Create(ctx, result); err != nil {
		p.log.Error("failed to record build result", logger.BuildID(b.ID), logger.Err(err))
	}

	return buildErr == nil, resolvedPath
}

func matchesAny(recent []*store.BuildResult, storePath string) bool {
	for _, r := range recent {
		if r.StorePath == storePath {
			return true
		}
	}
	return false
}

func (p *Pool) cancelled(ctx context.Context, buildID int64) bool {
	b, err := p.store.Builds().FindByID(ctx, buildID)
	if err != nil || b == nil {
		return false
	}
	return b.Status == store.BuildCancelled
}

func (p *Pool) fail(ctx context.Context, b *store.Build, cause error) {
	b.Status = store.BuildFailed
	finishedAt := time.Now()
	b.FinishedAt = &finishedAt
	if err := p.store.Builds().Update(ctx, b); err != nil {
		p.log.Error("failed to mark build failed", logger.BuildID(b.ID), logger.Err(err))
	}
	p.log.Error("build failed", logger.BuildID(b.ID), logger.Err(cause))
}
