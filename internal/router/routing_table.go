// Package router owns the in-memory routing table and the HTTP(S)
// listener that serves requests against it: a reverse proxy for services,
// a static file server for static sites, ACME-backed TLS, and a
// broadcast-update consumer that keeps the table in sync with deploys.
package router

import (
	"sync"

	"github.com/scottylabs/kennel/internal/store"
)

// TargetKind distinguishes the two route shapes spec section 4.7 names.
type TargetKind int

const (
	TargetService TargetKind = iota
	TargetStaticSite
)

// Route is what one hostname resolves to.
type Route struct {
	Kind         TargetKind
	DeploymentID int64
	Port         int    // set iff Kind == TargetService
	Path         string // filesystem path, set iff Kind == TargetStaticSite
	SPA          bool   // set iff Kind == TargetStaticSite
}

// Table is the in-memory host -> Route map. Single-writer (the router's
// update-handler goroutine), many readers (request handlers); an
// RWMutex gives each individual Get/Insert/Remove an atomic snapshot
// without requiring a transactional view across hosts.
type Table struct {
	mu     sync.RWMutex
	routes map[string]Route
}

func NewTable() *Table {
	return &Table{routes: make(map[string]Route)}
}

func (t *Table) Get(host string) (Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.routes[host]
	return r, ok
}

func (t *Table) Insert(host string, route Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[host] = route
}

func (t *Table) Remove(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.routes, host)
}

// RemoveByDeployment removes every host currently pointing at a
// deployment, used when a teardown broadcasts DeploymentRemoved keyed by
// deployment id rather than by domain.
func (t *Table) RemoveByDeployment(deploymentID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for host, r := range t.routes {
		if r.DeploymentID == deploymentID {
			delete(t.routes, host)
		}
	}
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}

// DeploymentService pairs an active deployment with the service it
// deploys, the input LoadFrom needs to know how to register a route (the
// service's type/custom domain aren't on the Deployment row itself).
type DeploymentService struct {
	Deployment *store.Deployment
	Service    *store.Service
	SitesDir   func(project, branchSlug, service string) string
}

// LoadFrom wipes and repopulates the table from a full list of active
// deployments, registering both the generated domain and, when present, a
// service's custom domain against the same route.
func (t *Table) LoadFrom(entries []DeploymentService) {
	next := make(map[string]Route, len(entries)*2)

	for _, e := range entries {
		d, s := e.Deployment, e.Service
		var route Route
		route.DeploymentID = d.ID
		if d.Port != nil {
			route.Kind = TargetService
			route.Port = *d.Port
		} else {
			route.Kind = TargetStaticSite
			route.Path = e.SitesDir(d.Project, d.BranchSlug, d.Service)
			route.SPA = s.SPA
		}

		next[d.Domain] = route
		if s.CustomDomain != "" {
			next[s.CustomDomain] = route
		}
	}

	t.mu.Lock()
	t.routes = next
	t.mu.Unlock()
}
