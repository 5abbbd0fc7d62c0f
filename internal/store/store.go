package store

import "context"

// ProjectRepository persists Project rows.
type ProjectRepository interface {
	Create(ctx context.Context, p *Project) error
	Update(ctx context.Context, p *Project) error
	Delete(ctx context.Context, name string) error
	FindByName(ctx context.Context, name string) (*Project, error)
	List(ctx context.Context) ([]*Project, error)
}

// ServiceRepository persists Service rows.
type ServiceRepository interface {
	Create(ctx context.Context, s *Service) error
	Update(ctx context.Context, s *Service) error
	FindByID(ctx context.Context, id int64) (*Service, error)
	FindByProjectAndName(ctx context.Context, project, name string) (*Service, error)
	ListByProject(ctx context.Context, project string) ([]*Service, error)
}

// BuildRepository persists Build rows.
type BuildRepository interface {
	Create(ctx context.Context, b *Build) error
	Update(ctx context.Context, b *Build) error
	FindByID(ctx context.Context, id int64) (*Build, error)
	Exists(ctx context.Context, project, commitSHA string) (bool, error)
	FindOldFinished(ctx context.Context, olderThanDays int) ([]*Build, error)
	Delete(ctx context.Context, id int64) error
}

// BuildResultRepository persists BuildResult rows.
type BuildResultRepository interface {
	Create(ctx context.Context, r *BuildResult) error
	Update(ctx context.Context, r *BuildResult) error
	ListByBuild(ctx context.Context, buildID int64) ([]*BuildResult, error)
	ListSuccessByBuild(ctx context.Context, buildID int64) ([]*BuildResult, error)
	FindRecentSuccessful(ctx context.Context, project, gitRef, service string, limit int) ([]*BuildResult, error)
}

// DeploymentRepository persists Deployment rows.
type DeploymentRepository interface {
	Create(ctx context.Context, d *Deployment) error
	Update(ctx context.Context, d *Deployment) error
	FindByID(ctx context.Context, id int64) (*Deployment, error)
	FindActiveByRef(ctx context.Context, project, gitRef, service string) (*Deployment, error)
	ListActiveServicesByProjectBranch(ctx context.Context, project, branch string) ([]*Deployment, error)
	ListActive(ctx context.Context) ([]*Deployment, error)
	ListActiveServices(ctx context.Context) ([]*Deployment, error)
	FindExpired(ctx context.Context, days int, excludeEnvs []string) ([]*Deployment, error)
	MarkForTeardown(ctx context.Context, project, branch string) ([]int64, error)
	Delete(ctx context.Context, id int64) error
}

// PortAllocationRepository persists PortAllocation rows and is the
// serialization point the port allocator uses for mutual exclusion.
type PortAllocationRepository interface {
	Allocate(ctx context.Context, deploymentID *int64, project, service, branch string) (int, error)
	// AttachDeployment points an already-allocated port at a deployment
	// id, used once the Deployment row exists (spec section 4.5 step j):
	// the port is claimed before the row does, since the health check
	// must pass against it first.
	AttachDeployment(ctx context.Context, port int, deploymentID int64) error
	Release(ctx context.Context, port int) error
	FindByPort(ctx context.Context, port int) (*PortAllocation, error)
	FindByDeployment(ctx context.Context, deploymentID int64) (*PortAllocation, error)
	List(ctx context.Context) ([]*PortAllocation, error)
}

// PreviewDatabaseRepository persists PreviewDatabase rows.
type PreviewDatabaseRepository interface {
	Allocate(ctx context.Context, project, branch, dbName string) (*PreviewDatabase, error)
	Find(ctx context.Context, project, branch string) (*PreviewDatabase, error)
	Release(ctx context.Context, project, branch string) error
	List(ctx context.Context) ([]*PreviewDatabase, error)
}

// DnsRecordRepository persists DnsRecord rows.
type DnsRecordRepository interface {
	Create(ctx context.Context, r *DnsRecord) error
	Delete(ctx context.Context, id int64) error
	ListByDeployment(ctx context.Context, deploymentID int64) ([]*DnsRecord, error)
	FindByDomain(ctx context.Context, domain string) (*DnsRecord, error)
	List(ctx context.Context) ([]*DnsRecord, error)
}

// Store aggregates every repository. A single writer process is assumed;
// the database itself is the serialization point for cross-task
// consistency (spec section 5) rather than any in-process lock.
type Store interface {
	Projects() ProjectRepository
	Services() ServiceRepository
	Builds() BuildRepository
	BuildResults() BuildResultRepository
	Deployments() DeploymentRepository
	PortAllocations() PortAllocationRepository
	PreviewDatabases() PreviewDatabaseRepository
	DnsRecords() DnsRecordRepository
	Migrate(ctx context.Context) error
	Close() error
}
