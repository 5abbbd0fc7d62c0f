package teardown

import (
	"context"
	"testing"
	"time"

	"github.com/scottylabs/kennel/internal/allocator"
	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/router"
	"github.com/scottylabs/kennel/internal/store"
	"github.com/scottylabs/kennel/internal/supervisor"
)

// fakeDeployments implements store.DeploymentRepository with just enough
// behavior for teardown's idempotence tests: a single in-memory row and
// counters for the calls that must (or must not) happen.
type fakeDeployments struct {
	store.DeploymentRepository
	deployment  *store.Deployment
	updateCalls int
	deleteCalls int
}

func (f *fakeDeployments) FindByID(ctx context.Context, id int64) (*store.Deployment, error) {
	if f.deployment == nil || f.deployment.ID != id {
		return nil, nil
	}
	return f.deployment, nil
}

func (f *fakeDeployments) Update(ctx context.Context, d *store.Deployment) error {
	f.updateCalls++
	f.deployment = d
	return nil
}

func (f *fakeDeployments) Delete(ctx context.Context, id int64) error {
	f.deleteCalls++
	return nil
}

func (f *fakeDeployments) ListActiveServicesByProjectBranch(ctx context.Context, project, branch string) ([]*store.Deployment, error) {
	return nil, nil
}

type fakeDnsRecords struct {
	store.DnsRecordRepository
}

func (fakeDnsRecords) ListByDeployment(ctx context.Context, deploymentID int64) ([]*store.DnsRecord, error) {
	return nil, nil
}

type fakePorts struct {
	store.PortAllocationRepository
}

func (fakePorts) Release(ctx context.Context, port int) error { return nil }

type fakePreviewDbs struct {
	store.PreviewDatabaseRepository
}

func (fakePreviewDbs) Release(ctx context.Context, project, branch string) error { return nil }

type fakeStore struct {
	store.Store
	deployments *fakeDeployments
	dnsRecords  fakeDnsRecords
}

func (f *fakeStore) Deployments() store.DeploymentRepository { return f.deployments }
func (f *fakeStore) DnsRecords() store.DnsRecordRepository    { return f.dnsRecords }
func (f *fakeStore) PortAllocations() store.PortAllocationRepository { return fakePorts{} }
func (f *fakeStore) PreviewDatabases() store.PreviewDatabaseRepository { return fakePreviewDbs{} }

type noopSupervisor struct{ supervisor.Supervisor }

func (noopSupervisor) Stop(ctx context.Context, unitName string) error           { return nil }
func (noopSupervisor) Disable(ctx context.Context, unitName string) error        { return nil }
func (noopSupervisor) RemoveUnitFile(ctx context.Context, unitName string) error { return nil }
func (noopSupervisor) DaemonReload(ctx context.Context) error                   { return nil }

func newTestTeardown(s *fakeStore) *Teardown {
	return New(s, allocator.New(s), noopSupervisor{}, nil, router.NewBroadcaster(), logger.New("error"))
}

func TestProcessSkipsMissingDeployment(t *testing.T) {
	fd := &fakeDeployments{deployment: nil}
	fs := &fakeStore{deployments: fd}
	tw := newTestTeardown(fs)

	tw.process(context.Background(), 999)

	if fd.updateCalls != 0 || fd.deleteCalls != 0 {
		t.Fatalf("expected no mutation for a missing deployment, got update=%d delete=%d", fd.updateCalls, fd.deleteCalls)
	}
}

func TestProcessSkipsDeploymentNotTearingDown(t *testing.T) {
	fd := &fakeDeployments{deployment: &store.Deployment{ID: 1, Status: store.DeploymentActive}}
	fs := &fakeStore{deployments: fd}
	tw := newTestTeardown(fs)

	tw.process(context.Background(), 1)

	if fd.updateCalls != 0 || fd.deleteCalls != 0 {
		t.Fatalf("expected no mutation for a deployment not tearing_down, got update=%d delete=%d", fd.updateCalls, fd.deleteCalls)
	}
}

func TestProcessStaticSiteMarksTornDownAndDeletes(t *testing.T) {
	fd := &fakeDeployments{deployment: &store.Deployment{
		ID: 2, Project: "myapp", Service: "docs", Branch: "main", BranchSlug: "main",
		Status: store.DeploymentTearingDown, Domain: "docs-main.myapp.scottylabs.org",
	}}
	fs := &fakeStore{deployments: fd}
	tw := newTestTeardown(fs)

	updates := tw.broadcaster.Subscribe()
	defer tw.broadcaster.Unsubscribe(updates)

	tw.process(context.Background(), 2)

	if fd.updateCalls != 1 {
		t.Errorf("updateCalls = %d, want 1", fd.updateCalls)
	}
	if fd.deleteCalls != 1 {
		t.Errorf("deleteCalls = %d, want 1", fd.deleteCalls)
	}
	if fd.deployment.Status != store.DeploymentTornDown {
		t.Errorf("Status = %v, want torn_down", fd.deployment.Status)
	}

	select {
	case u := <-updates:
		if u.Kind != router.UpdateDeploymentRemoved || u.DeploymentID != 2 {
			t.Errorf("unexpected update: %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a routing update to be published")
	}
}

func TestProcessIsIdempotentOnRepeatedEnqueue(t *testing.T) {
	fd := &fakeDeployments{deployment: &store.Deployment{
		ID: 3, Project: "myapp", Service: "docs", Branch: "main", BranchSlug: "main",
		Status: store.DeploymentTearingDown,
	}}
	fs := &fakeStore{deployments: fd}
	tw := newTestTeardown(fs)

	tw.process(context.Background(), 3)
	firstUpdateCalls, firstDeleteCalls := fd.updateCalls, fd.deleteCalls

	// A second delivery of the same id (e.g. both the deployer's cutover
	// and the expiry job enqueued it) finds no row with that status
	// anymore and must be a safe no-op.
	fd.deployment.Status = store.DeploymentTornDown
	tw.process(context.Background(), 3)

	if fd.updateCalls != firstUpdateCalls || fd.deleteCalls != firstDeleteCalls {
		t.Fatalf("expected the second delivery to be a no-op, got update=%d delete=%d", fd.updateCalls, fd.deleteCalls)
	}
}
