// Package deployer consumes completed builds and publishes their
// artifacts as OS-supervised services or static sites, including the
// blue/green cutover of a predecessor deployment.
package deployer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/scottylabs/kennel/internal/allocator"
	"github.com/scottylabs/kennel/internal/config"
	apperrors "github.com/scottylabs/kennel/internal/core/errors"
	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/dns"
	"github.com/scottylabs/kennel/internal/manifest"
	"github.com/scottylabs/kennel/internal/router"
	"github.com/scottylabs/kennel/internal/store"
	"github.com/scottylabs/kennel/internal/supervisor"
)

// DeployRequest mirrors build.DeployRequest without importing the build
// package, keeping the deployer's dependency direction one-way.
type DeployRequest struct {
	BuildID int64
	Project string
	GitRef  string
}

// TeardownQueue is the outbound side used for blue/green predecessor cleanup.
type TeardownQueue interface {
	Enqueue(deploymentID int64)
}

// Deployer consumes DeployRequest messages sequentially. Parallelism
// exists across builds, not across deploys (spec section 4.5).
type Deployer struct {
	store       store.Store
	allocator   *allocator.Allocator
	supervisor  supervisor.Supervisor
	dnsProvider dns.Provider
	broadcaster *router.Broadcaster
	teardown    TeardownQueue
	log         logger.Logger

	baseDomain   string
	workDir      string
	dnsIPv4      string
	dnsIPv6      string
	healthClient *http.Client

	inbound chan DeployRequest
}

func New(
	s store.Store,
	a *allocator.Allocator,
	sup supervisor.Supervisor,
	dnsProvider dns.Provider,
	broadcaster *router.Broadcaster,
	teardown TeardownQueue,
	baseDomain, workDir, dnsIPv4, dnsIPv6 string,
	log logger.Logger,
) *Deployer {
	return &Deployer{
		store:        s,
		allocator:    a,
		supervisor:   sup,
		dnsProvider:  dnsProvider,
		broadcaster:  broadcaster,
		teardown:     teardown,
		log:          log,
		baseDomain:   baseDomain,
		workDir:      workDir,
		dnsIPv4:      dnsIPv4,
		dnsIPv6:      dnsIPv6,
		healthClient: &http.Client{Timeout: config.HealthCheckAttemptTimeout},
		inbound:      make(chan DeployRequest, config.DeployQueueCapacity),
	}
}

func (d *Deployer) Enqueue(req DeployRequest) bool {
	select {
	case d.inbound <- req:
		return true
	default:
		return false
	}
}

// Run is the single deployer loop. Blocks until ctx is cancelled.
func (d *Deployer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.inbound:
			d.processRequest(ctx, req)
		}
	}
}

func (d *Deployer) processRequest(ctx context.Context, req DeployRequest) {
	results, err := d.store.BuildResults().ListSuccessByBuild(ctx, req.BuildID)
	if err != nil {
		d.log.Error("deployer failed to list build results", logger.BuildID(req.BuildID), logger.Err(err))
		return
	}
	if len(results) == 0 {
		d.log.Info("no successful build results to deploy", logger.BuildID(req.BuildID))
		return
	}

	build, err := d.store.Builds().FindByID(ctx, req.BuildID)
	if err != nil || build == nil {
		d.log.Error("deployer failed to load build", logger.BuildID(req.BuildID), logger.Err(err))
		return
	}

	workDir := filepath.Join(d.workDir, fmt.Sprintf("%d", req.BuildID), "repo")
	m, err := manifest.Load(workDir)
	if err != nil {
		d.log.Error("deployer failed to reload manifest", logger.BuildID(req.BuildID), logger.Err(err))
		return
	}

	active, err := d.store.Deployments().ListActive(ctx)
	if err != nil {
		d.log.Error("deployer failed to list active deployments", logger.BuildID(req.BuildID), logger.Err(err))
		return
	}

	for _, result := range results {
		var liveBranches []string
		for _, a := range active {
			if a.Project == build.Project && a.Service == result.ServiceName {
				liveBranches = append(liveBranches, a.Branch)
			}
		}
		if _, err := d.allocator.ResolveBranchSlug(liveBranches, build.Branch); err != nil {
			d.log.Error("deploy rejected", logger.Project(build.Project), logger.Service(result.ServiceName), logger.Err(err))
			continue
		}
		if svc, ok := m.Services[result.ServiceName]; ok {
			if err := d.deployService(ctx, build, result, svc); err != nil {
				d.log.Error("service deploy failed", logger.Project(build.Project), logger.Service(result.ServiceName), logger.Err(err))
			}
			continue
		}
		if site, ok := m.StaticSites[result.ServiceName]; ok {
			if err := d.deployStaticSite(ctx, build, result, site); err != nil {
				d.log.Error("static site deploy failed", logger.Project(build.Project), logger.Service(result.ServiceName), logger.Err(err))
			}
		}
	}
}

func (d *Deployer) deployService(ctx context.Context, build *store.Build, result *store.BuildResult, svc manifest.ServiceEntry) error {
	project, service := build.Project, result.ServiceName
	branchSlug := allocator.BranchSlug(build.GitRef)
	unitName := fmt.Sprintf("kennel-%s-%s-%s", project, branchSlug, service)
	username := allocator.SanitizeUsername(project, build.Branch, service)

	predecessor, err := d.store.Deployments().FindActiveByRef(ctx, project, build.GitRef, service)
	if err != nil {
		return fmt.Errorf("failed to look up predecessor: %w", err)
	}

	if err := ensureOSUser(ctx, username); err != nil {
		return err
	}

	workDir := filepath.Join(config.ServicesBaseDir, project, branchSlug, service)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return apperrors.Wrap(apperrors.ErrTypeIo, "failed to create service workdir", err)
	}

	port, err := d.allocator.AllocatePort(ctx, nil, project, service, build.Branch)
	if err != nil {
		return err
	}

	env := map[string]string{}
	for k, v := range svc.Env {
		env[k] = v
	}
	if svc.PreviewDatabase {
		pdb, err := d.allocator.AllocatePreviewDatabase(ctx, project, build.Branch)
		if err != nil {
			d.allocator.ReleasePort(ctx, port)
			return err
		}
		env["VALKEY_URL"] = fmt.Sprintf("redis://127.0.0.1:6379/%d", pdb.ValkeyDB)
		env["DATABASE_URL"] = fmt.Sprintf("postgresql://127.0.0.1:5432/%s_%s",
			strings.ReplaceAll(project, "-", "_"), strings.ReplaceAll(build.Branch, "-", "_"))
	}

	secretsPath := filepath.Join(config.SecretsDir, fmt.Sprintf("%s-%s-%s.env", project, branchSlug, service))
	if err := renderEnvFile(secretsPath, port, env); err != nil {
		d.allocator.ReleasePort(ctx, port)
		return err
	}

	unitText, err := supervisor.RenderUnit(supervisor.UnitSpec{
		ServiceName: service,
		User:        username,
		WorkDir:     workDir,
		StorePath:   result.StorePath,
		Port:        port,
		Env:         env,
		SecretsPath: secretsPath,
	})
	if err != nil {
		d.allocator.ReleasePort(ctx, port)
		return err
	}

	if err := d.supervisor.InstallUnitFile(ctx, unitName, unitText); err != nil {
		d.allocator.ReleasePort(ctx, port)
		return err
	}
	if err := d.supervisor.DaemonReload(ctx); err != nil {
		return err
	}
	if err := d.supervisor.Enable(ctx, unitName); err != nil {
		return err
	}
	if err := d.supervisor.Start(ctx, unitName); err != nil {
		return err
	}

	if err := d.waitHealthy(ctx, port, svc.HealthCheckPath, svc.HealthCheckTimeoutSecs); err != nil {
		d.supervisor.Stop(ctx, unitName)
		d.allocator.ReleasePort(ctx, port)
		return err
	}

	domain := allocator.GenerateDomain(service, build.Branch, project, d.baseDomain)
	deployment := &store.Deployment{
		Project:     project,
		Service:     service,
		Branch:      build.Branch,
		BranchSlug:  branchSlug,
		Environment: allocator.Environment(build.Branch),
		GitRef:      build.GitRef,
		StorePath:   result.StorePath,
		Port:        &port,
		Status:      store.DeploymentActive,
		Domain:      domain,
		DnsStatus:   store.DnsPending,
	}
	if err := d.store.Deployments().Create(ctx, deployment); err != nil {
		return fmt.Errorf("failed to record deployment: %w", err)
	}
	if err := d.store.PortAllocations().AttachDeployment(ctx, port, deployment.ID); err != nil {
		d.log.Warn("failed to attach port allocation to deployment", logger.DeploymentID(deployment.ID), logger.Err(err))
	}

	if svc.CustomDomain != "" && d.dnsProvider != nil {
		d.createDNSRecords(ctx, svc.CustomDomain, deployment.ID)
	}

	d.broadcaster.Publish(router.Update{
		Kind:         router.UpdateDeploymentActive,
		DeploymentID: deployment.ID,
		Domain:       domain,
		Port:         port,
	})

	if predecessor != nil {
		d.cutoverPredecessor(ctx, predecessor, port)
	}

	return nil
}

// cutoverPredecessor waits the fixed blue/green drain interval, then
// transitions the predecessor to TearingDown and enqueues its full
// teardown. The drain happens synchronously in this goroutine since the
// deployer loop is single-consumer and the next deploy request can queue
// behind it without losing ordering guarantees for this service.
func (d *Deployer) cutoverPredecessor(ctx context.Context, predecessor *store.Deployment, newPort int) {
	select {
	case <-time.After(config.BlueGreenDrainTimeout):
	case <-ctx.Done():
		return
	}

	predecessor.Status = store.DeploymentTearingDown
	if err := d.store.Deployments().Update(ctx, predecessor); err != nil {
		d.log.Error("failed to mark predecessor tearing down", logger.DeploymentID(predecessor.ID), logger.Err(err))
		return
	}
	d.teardown.Enqueue(predecessor.ID)
}

func (d *Deployer) deployStaticSite(ctx context.Context, build *store.Build, result *store.BuildResult, site manifest.StaticSiteEntry) error {
	project, service := build.Project, result.ServiceName
	branchSlug := allocator.BranchSlug(build.GitRef)

	siteDir := filepath.Join(config.SitesBaseDir, project, branchSlug)
	if err := os.MkdirAll(siteDir, 0755); err != nil {
		return apperrors.Wrap(apperrors.ErrTypeIo, "failed to create site directory", err)
	}

	linkPath := filepath.Join(siteDir, service)
	tmpPath := linkPath + ".new"
	os.Remove(tmpPath)
	if err := os.Symlink(result.StorePath, tmpPath); err != nil {
		return apperrors.Wrap(apperrors.ErrTypeIo, "failed to stage site symlink", err)
	}
	if err := os.Rename(tmpPath, linkPath); err != nil {
		return apperrors.Wrap(apperrors.ErrTypeIo, "failed to publish site symlink", err)
	}

	domain := allocator.GenerateDomain(service, build.Branch, project, d.baseDomain)
	deployment := &store.Deployment{
		Project:     project,
		Service:     service,
		Branch:      build.Branch,
		BranchSlug:  branchSlug,
		Environment: allocator.Environment(build.Branch),
		GitRef:      build.GitRef,
		StorePath:   result.StorePath,
		Status:      store.DeploymentActive,
		Domain:      domain,
		DnsStatus:   store.DnsPending,
	}
	if err := d.store.Deployments().Create(ctx, deployment); err != nil {
		return fmt.Errorf("failed to record static site deployment: %w", err)
	}

	if site.CustomDomain != "" && d.dnsProvider != nil {
		d.createDNSRecords(ctx, site.CustomDomain, deployment.ID)
	}

	d.broadcaster.Publish(router.Update{
		Kind:         router.UpdateDeploymentActive,
		DeploymentID: deployment.ID,
		Domain:       domain,
		StorePath:    linkPath,
		SPA:          site.SPA,
	})

	return nil
}

func (d *Deployer) createDNSRecords(ctx context.Context, domain string, deploymentID int64) {
	ips := map[store.DnsRecordType]string{
		store.DnsRecordA:    d.dnsIPv4,
		store.DnsRecordAAAA: d.dnsIPv6,
	}
	for _, rt := range []store.DnsRecordType{store.DnsRecordA, store.DnsRecordAAAA} {
		ip := ips[rt]
		if ip == "" {
			continue
		}
		result, err := d.dnsProvider.CreateRecord(ctx, dns.RecordInput{Name: domain, RecordType: rt, IP: ip})
		if err != nil {
			d.log.Warn("dns record creation failed", logger.Domain(domain), logger.Err(err))
			continue
		}
		rec := &store.DnsRecord{
			Domain:           domain,
			DeploymentID:     &deploymentID,
			ProviderRecordID: result.ProviderRecordID,
			RecordType:       rt,
			IPAddress:        ip,
		}
		if err := d.store.DnsRecords().Create(ctx, rec); err != nil {
			d.log.Warn("failed to persist dns record", logger.Domain(domain), logger.Err(err))
		}
	}
}

func (d *Deployer) waitHealthy(ctx context.Context, port int, path string, timeoutSecs int) error {
	deadline := time.Now().Add(time.Duration(timeoutSecs) * time.Second)
	backoff := config.HealthCheckBackoffSchedule

	for attempt := 0; ; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, config.HealthCheckAttemptTimeout)
		req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d%s", port, path), nil)
		resp, err := d.healthClient.Do(req)
		cancel()

		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return apperrors.New(apperrors.ErrTypeHealthCheck, "health check timed out")
		}

		wait := backoff[min(attempt, len(backoff)-1)]
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func ensureOSUser(ctx context.Context, username string) error {
	if _, err := user.Lookup(username); err == nil {
		return nil
	}
	cmd := exec.CommandContext(ctx, "useradd", "--system", "--no-create-home", "--shell", "/bin/false", username)
	if out, err := cmd.CombinedOutput(); err != nil {
		return apperrors.Wrap(apperrors.ErrTypeSupervisor, fmt.Sprintf("useradd failed: %s", string(out)), err)
	}
	return nil
}

func renderEnvFile(path string, port int, env map[string]string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "PORT=%d\n", port)
	for k, v := range env {
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0400); err != nil {
		return apperrors.Wrap(apperrors.ErrTypeIo, "failed to write env file", err)
	}
	return nil
}
