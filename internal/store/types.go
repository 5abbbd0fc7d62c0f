// Package store defines Kennel's persistent system-of-record: the entity
// types of spec section 3 and one repository interface per entity. A
// concrete implementation lives in internal/store/postgres.
package store

import "time"

// RepoType is the source-forge flavor a Project is hosted on.
type RepoType string

const (
	RepoForgejo RepoType = "forgejo"
	RepoGitHub  RepoType = "github"
)

// Project is a source repository Kennel deploys.
type Project struct {
	Name          string
	RepoURL       string
	RepoType      RepoType
	WebhookSecret string
	DefaultBranch string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ServiceType distinguishes the three buildable unit shapes a Service row
// can carry; a manifest declares only service and static entries.
type ServiceType string

const (
	ServiceTypeService ServiceType = "service"
	ServiceTypeStatic  ServiceType = "static"
	ServiceTypeImage   ServiceType = "image"
)

// Service is a named buildable unit under a project, declared in the
// project's repo manifest.
type Service struct {
	ID                     int64
	Project                string
	Name                   string
	Type                   ServiceType
	Package                string
	CustomDomain           string
	SPA                    bool
	HealthCheckPath        string
	HealthCheckTimeoutSecs int
	PreviewDatabase        bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// BuildStatus is the lifecycle state of a Build.
type BuildStatus string

const (
	BuildQueued    BuildStatus = "queued"
	BuildBuilding  BuildStatus = "building"
	BuildSuccess   BuildStatus = "success"
	BuildFailed    BuildStatus = "failed"
	BuildCancelled BuildStatus = "cancelled"
)

// Build is one attempt to process one commit of one project.
type Build struct {
	ID         int64
	Project    string
	Branch     string
	GitRef     string
	CommitSHA  string
	Status     BuildStatus
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// BuildResultStatus is the lifecycle state of one artifact within a Build.
type BuildResultStatus string

const (
	ResultPending  BuildResultStatus = "pending"
	ResultBuilding BuildResultStatus = "building"
	ResultSuccess  BuildResultStatus = "success"
	ResultSkipped  BuildResultStatus = "skipped"
	ResultFailed   BuildResultStatus = "failed"
)

// BuildResult is one artifact produced by one Build.
type BuildResult struct {
	ID           int64
	BuildID      int64
	ServiceName  string
	Status       BuildResultStatus
	StorePath    string
	LogPath      string
	ErrorMessage string
	Changed      bool
	CreatedAt    time.Time
}

// Environment is the deployment tier a branch maps to.
type Environment string

const (
	EnvProd    Environment = "prod"
	EnvStaging Environment = "staging"
	EnvDev     Environment = "dev"
	EnvPreview Environment = "preview"
)

// DeploymentStatus is the lifecycle state of a Deployment.
type DeploymentStatus string

const (
	DeploymentPending     DeploymentStatus = "pending"
	DeploymentBuilding     DeploymentStatus = "building"
	DeploymentActive      DeploymentStatus = "active"
	DeploymentFailed       DeploymentStatus = "failed"
	DeploymentTearingDown DeploymentStatus = "tearing_down"
	DeploymentTornDown    DeploymentStatus = "torn_down"
)

// DnsStatus tracks whether a deployment's DNS records have propagated.
type DnsStatus string

const (
	DnsPending DnsStatus = "pending"
	DnsActive  DnsStatus = "active"
)

// Deployment is one running instance of one service on one branch.
type Deployment struct {
	ID           int64
	Project      string
	Service      string
	Branch       string
	BranchSlug   string
	Environment  Environment
	GitRef       string
	StorePath    string
	Port         *int
	Status       DeploymentStatus
	Domain       string
	DnsStatus    DnsStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActivity time.Time
}

// PortAllocation is a row held for one allocated port in the range
// [PortRangeStart, PortRangeEnd].
type PortAllocation struct {
	Port         int
	DeploymentID *int64
	Project      string
	Service      string
	Branch       string
	CreatedAt    time.Time
}

// PreviewDatabase is an auxiliary-DB reservation per (project, branch).
type PreviewDatabase struct {
	ID        int64
	Project   string
	Branch    string
	ValkeyDB  int
	DBName    string
	CreatedAt time.Time
}

// DnsRecordType is the DNS record kind Kennel manages.
type DnsRecordType string

const (
	DnsRecordA    DnsRecordType = "A"
	DnsRecordAAAA DnsRecordType = "AAAA"
)

// DnsRecord is one external DNS record managed by Kennel.
type DnsRecord struct {
	ID               int64
	Domain           string
	DeploymentID     *int64
	ProviderRecordID string
	RecordType       DnsRecordType
	IPAddress        string
	CreatedAt        time.Time
}
