package allocator

import (
	"context"
	"fmt"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
	"github.com/scottylabs/kennel/internal/config"
	"github.com/scottylabs/kennel/internal/store"
)

// InPortRange reports whether port falls within Kennel's configured
// allocation range, the same boundary check the original kennel-store
// crate's port_allocations::is_port_in_range performed before handing a
// candidate port to a caller.
func InPortRange(port int) bool {
	return port >= config.PortRangeStart && port <= config.PortRangeEnd
}

// Allocator wraps the store's exclusive-resource repositories (ports,
// preview databases) and the pure identifier helpers into the single
// entry point the deployer uses.
type Allocator struct {
	ports      store.PortAllocationRepository
	previewDbs store.PreviewDatabaseRepository
}

func New(s store.Store) *Allocator {
	return &Allocator{ports: s.PortAllocations(), previewDbs: s.PreviewDatabases()}
}

// AllocatePort claims the lowest free port for a deployment. Exhaustion and
// conflict handling is delegated to the repository, which owns the retry
// loop against the database's uniqueness constraint (spec section 4.2).
func (a *Allocator) AllocatePort(ctx context.Context, deploymentID *int64, project, service, branch string) (int, error) {
	return a.ports.Allocate(ctx, deploymentID, project, service, branch)
}

func (a *Allocator) ReleasePort(ctx context.Context, port int) error {
	return a.ports.Release(ctx, port)
}

// AllocatePreviewDatabase reserves (or reuses) an auxiliary-DB slot index
// in [0,15] for (project, branch), only meaningful for services whose
// manifest entry sets preview_database.
func (a *Allocator) AllocatePreviewDatabase(ctx context.Context, project, branch string) (*store.PreviewDatabase, error) {
	dbName := SanitizeIdentifier(fmt.Sprintf("%s_%s", project, branch))
	return a.previewDbs.Allocate(ctx, project, branch, dbName)
}

func (a *Allocator) ReleasePreviewDatabase(ctx context.Context, project, branch string) error {
	return a.previewDbs.Release(ctx, project, branch)
}

// ResolveBranchSlug computes the branch slug for a deploy and rejects it
// outright if a different branch in the same (project, service) already
// owns that slug. Sanitization is lossy (spec section 9's open question on
// identifier collisions): two distinct branches can collapse to the same
// slug, e.g. "foo/bar" and "foo-bar". Kennel's resolution is to reject the
// newer deploy with an InvalidName error rather than silently aliasing two branches
// onto one unit name, domain, and secrets path.
func (a *Allocator) ResolveBranchSlug(existingBranches []string, branch string) (string, error) {
	slug := BranchSlug(branch)
	for _, other := range existingBranches {
		if other == branch {
			continue
		}
		if BranchSlug(other) == slug {
			return "", apperrors.New(apperrors.ErrTypeInvalidName,
				fmt.Sprintf("branch %q collides with existing branch %q under slug %q", branch, other, slug))
		}
	}
	return slug, nil
}
