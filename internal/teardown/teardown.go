// Package teardown consumes deployments marked TearingDown and retires
// their OS-level footprint: unit file, port, preview database, secrets,
// published symlink, and any DNS records, finishing by deleting the row
// (spec section 4.6). A single consumer processes requests in order,
// mirroring the deployer's one-at-a-time discipline.
package teardown

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/scottylabs/kennel/internal/allocator"
	"github.com/scottylabs/kennel/internal/config"
	apperrors "github.com/scottylabs/kennel/internal/core/errors"
	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/dns"
	"github.com/scottylabs/kennel/internal/router"
	"github.com/scottylabs/kennel/internal/store"
	"github.com/scottylabs/kennel/internal/supervisor"
)

// Teardown consumes deployment ids sequentially and retires everything
// a deploy created for them.
type Teardown struct {
	store       store.Store
	allocator   *allocator.Allocator
	supervisor  supervisor.Supervisor
	dnsProvider dns.Provider
	broadcaster *router.Broadcaster
	log         logger.Logger

	inbound chan int64
}

func New(
	s store.Store,
	a *allocator.Allocator,
	sup supervisor.Supervisor,
	dnsProvider dns.Provider,
	broadcaster *router.Broadcaster,
	log logger.Logger,
) *Teardown {
	return &Teardown{
		store:       s,
		allocator:   a,
		supervisor:  sup,
		dnsProvider: dnsProvider,
		broadcaster: broadcaster,
		log:         log,
		inbound:     make(chan int64, config.TeardownQueueCapacity),
	}
}

// Enqueue is the inbound side the deployer, webhook handler, and expiry
// job use. A full queue drops the request with a warning; the deployment
// stays TearingDown in the Store, and neither the reconcile pass nor the
// expiry job (both select only Active rows) enqueues it again.
func (t *Teardown) Enqueue(deploymentID int64) {
	select {
	case t.inbound <- deploymentID:
	default:
		t.log.Warn("teardown queue full, dropping request", logger.DeploymentID(deploymentID))
	}
}

// Run is the single teardown loop. Blocks until ctx is cancelled.
func (t *Teardown) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-t.inbound:
			t.process(ctx, id)
		}
	}
}

// process is idempotent: re-enqueueing an id already torn down (or one
// that never reached TearingDown) is a safe no-op rather than an error.
func (t *Teardown) process(ctx context.Context, deploymentID int64) {
	d, err := t.store.Deployments().FindByID(ctx, deploymentID)
	if err != nil {
		t.log.Error("teardown failed to load deployment", logger.DeploymentID(deploymentID), logger.Err(err))
		return
	}
	if d == nil {
		t.log.Warn("teardown skipped: deployment already gone", logger.DeploymentID(deploymentID))
		return
	}
	if d.Status != store.DeploymentTearingDown {
		t.log.Warn("teardown skipped: not in tearing_down state", logger.DeploymentID(deploymentID))
		return
	}

	branchSlug := d.BranchSlug
	unitName := fmt.Sprintf("kennel-%s-%s-%s", d.Project, branchSlug, d.Service)

	if d.Port != nil {
		if err := t.supervisor.Stop(ctx, unitName); err != nil {
			t.log.Warn("teardown: stop failed", logger.DeploymentID(deploymentID), logger.Err(err))
		}
		if err := t.supervisor.Disable(ctx, unitName); err != nil {
			t.log.Warn("teardown: disable failed", logger.DeploymentID(deploymentID), logger.Err(err))
		}
		if err := t.supervisor.RemoveUnitFile(ctx, unitName); err != nil {
			t.log.Warn("teardown: remove unit file failed", logger.DeploymentID(deploymentID), logger.Err(err))
		}
		if err := t.supervisor.DaemonReload(ctx); err != nil {
			t.log.Warn("teardown: daemon-reload failed", logger.DeploymentID(deploymentID), logger.Err(err))
		}
		if err := t.allocator.ReleasePort(ctx, *d.Port); err != nil {
			t.log.Warn("teardown: port release failed", logger.DeploymentID(deploymentID), logger.Err(err))
		}
	} else {
		linkPath := filepath.Join(config.SitesBaseDir, d.Project, branchSlug, d.Service)
		if err := os.Remove(linkPath); err != nil && !os.IsNotExist(err) {
			t.log.Warn("teardown: symlink removal failed", logger.DeploymentID(deploymentID), logger.Err(err))
		}
	}

	secretsPath := filepath.Join(config.SecretsDir, fmt.Sprintf("%s-%s-%s.env", d.Project, branchSlug, d.Service))
	if err := os.Remove(secretsPath); err != nil && !os.IsNotExist(err) {
		t.log.Warn("teardown: secrets file removal failed", logger.DeploymentID(deploymentID), logger.Err(err))
	}

	t.removeDNSRecords(ctx, d)

	if last, err := t.isLastForBranchService(ctx, d); err != nil {
		t.log.Warn("teardown: last-deployment check failed", logger.DeploymentID(deploymentID), logger.Err(err))
	} else if last {
		if err := t.allocator.ReleasePreviewDatabase(ctx, d.Project, d.Branch); err != nil {
			t.log.Warn("teardown: preview database release failed", logger.DeploymentID(deploymentID), logger.Err(err))
		}
		username := allocator.SanitizeUsername(d.Project, d.Branch, d.Service)
		if err := removeOSUser(ctx, username); err != nil {
			t.log.Warn("teardown: os user removal failed", logger.DeploymentID(deploymentID), logger.Err(err))
		}
	}

	d.Status = store.DeploymentTornDown
	if err := t.store.Deployments().Update(ctx, d); err != nil {
		t.log.Error("teardown: failed to mark torn down", logger.DeploymentID(deploymentID), logger.Err(err))
	}
	if err := t.store.Deployments().Delete(ctx, deploymentID); err != nil {
		t.log.Error("teardown: failed to delete deployment row", logger.DeploymentID(deploymentID), logger.Err(err))
	}

	t.broadcaster.Publish(router.Update{
		Kind:         router.UpdateDeploymentRemoved,
		DeploymentID: deploymentID,
		Domain:       d.Domain,
	})
}

func (t *Teardown) removeDNSRecords(ctx context.Context, d *store.Deployment) {
	if t.dnsProvider == nil {
		return
	}
	records, err := t.store.DnsRecords().ListByDeployment(ctx, d.ID)
	if err != nil {
		t.log.Warn("teardown: failed to list dns records", logger.DeploymentID(d.ID), logger.Err(err))
		return
	}
	for _, rec := range records {
		if err := t.dnsProvider.DeleteRecord(ctx, rec.ProviderRecordID); err != nil {
			t.log.Warn("teardown: dns record deletion failed", logger.Domain(rec.Domain), logger.Err(err))
			continue
		}
		if err := t.store.DnsRecords().Delete(ctx, rec.ID); err != nil {
			t.log.Warn("teardown: failed to delete dns record row", logger.Domain(rec.Domain), logger.Err(err))
		}
	}
}

// isLastForBranchService reports whether d is the only deployment left
// for its (project, service, branch), the signal spec section 4.6 uses
// to decide whether the preview database and OS user are still in use.
func (t *Teardown) isLastForBranchService(ctx context.Context, d *store.Deployment) (bool, error) {
	siblings, err := t.store.Deployments().ListActiveServicesByProjectBranch(ctx, d.Project, d.Branch)
	if err != nil {
		return false, err
	}
	for _, s := range siblings {
		if s.ID != d.ID && s.Service == d.Service {
			return false, nil
		}
	}
	return true, nil
}

func removeOSUser(ctx context.Context, username string) error {
	cmd := exec.CommandContext(ctx, "userdel", username)
	if out, err := cmd.CombinedOutput(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 6 {
			return nil // user already gone
		}
		return apperrors.Wrap(apperrors.ErrTypeSupervisor, fmt.Sprintf("userdel failed: %s", string(out)), err)
	}
	return nil
}
