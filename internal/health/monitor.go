// Package health polls active service deployments and evicts unhealthy
// routes from the router's table without mutating the deployment row
// itself (spec section 4.8): the Store stays the record of what should be
// running, the routing table tracks what is currently safe to serve.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/scottylabs/kennel/internal/config"
	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/router"
	"github.com/scottylabs/kennel/internal/store"
)

// Monitor polls active service deployments on a fixed interval.
type Monitor struct {
	store    store.Store
	bus      *router.Broadcaster
	log      logger.Logger
	client   *http.Client
	interval time.Duration

	mu      sync.Mutex
	state   map[string]*domainState // keyed by domain
}

type domainState struct {
	consecutiveFailures int
	healthy             bool
}

func NewMonitor(s store.Store, bus *router.Broadcaster, log logger.Logger) *Monitor {
	return &Monitor{
		store:    s,
		bus:      bus,
		log:      log,
		client:   &http.Client{Timeout: config.HealthCheckAttemptTimeout},
		interval: config.HealthCheckInterval,
		state:    make(map[string]*domainState),
	}
}

// Run polls forever until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *Monitor) probeAll(ctx context.Context) {
	deployments, err := m.store.Deployments().ListActiveServices(ctx)
	if err != nil {
		m.log.Error("health monitor failed to list active deployments", logger.Err(err))
		return
	}

	for _, d := range deployments {
		if d.Port == nil {
			continue
		}
		healthy := m.probe(ctx, *d.Port)
		m.record(d.Domain, d.ID, healthy)
	}
}

func (m *Monitor) probe(ctx context.Context, port int) bool {
	reqCtx, cancel := context.WithTimeout(ctx, config.HealthCheckAttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fmt.Sprintf("http://localhost:%d/health", port), nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (m *Monitor) record(domain string, deploymentID int64, healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.state[domain]
	if !ok {
		s = &domainState{healthy: true}
		m.state[domain] = s
	}

	if healthy {
		s.consecutiveFailures = 0
		s.healthy = true
		return
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= config.MaxConsecutiveHealthFailures && s.healthy {
		s.healthy = false
		m.log.Warn("evicting unhealthy route", logger.Domain(domain), logger.DeploymentID(deploymentID))
		m.bus.Publish(router.Update{Kind: router.UpdateDeploymentRemoved, Domain: domain, DeploymentID: deploymentID})
	}
}
