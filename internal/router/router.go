package router

import (
	"context"
	"crypto/tls"
	"net/http"
	"sort"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/scottylabs/kennel/internal/config"
	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/store"
)

// SitesDirFunc resolves a static site's published symlink path.
type SitesDirFunc func(project, branchSlug, service string) string

// Router owns the routing table, the HTTP(S) listener, the update
// consumer, and the periodic full reload.
type Router struct {
	table        *Table
	broadcaster  *Broadcaster
	store        store.Store
	sitesDir     SitesDirFunc
	log          logger.Logger
	addr         string
	tlsEnabled   bool
	acmeManager  *autocert.Manager
	httpServer   *http.Server
	reloadPeriod time.Duration
}

func New(s store.Store, broadcaster *Broadcaster, sitesDir SitesDirFunc, cfg *config.Config, log logger.Logger) *Router {
	r := &Router{
		table:        NewTable(),
		broadcaster:  broadcaster,
		store:        s,
		sitesDir:     sitesDir,
		log:          log,
		addr:         cfg.RouterAddr,
		tlsEnabled:   cfg.TLSEnabled,
		reloadPeriod: config.RouterReloadInterval,
	}

	if cfg.TLSEnabled {
		r.acmeManager = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      autocert.DirCache(cfg.ACMECacheDir),
			Email:      cfg.ACMEEmail,
			HostPolicy: r.hostPolicy,
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", r.serveHTTP)
	r.httpServer = &http.Server{Addr: r.addr, Handler: mux}
	if r.acmeManager != nil {
		r.httpServer.TLSConfig = &tls.Config{GetCertificate: r.acmeManager.GetCertificate}
	}

	return r
}

// hostPolicy only certifies domains currently present in the routing
// table; the set is recomputed from the Store on every reload, so this
// reads the live table rather than a static allowlist.
func (r *Router) hostPolicy(ctx context.Context, host string) error {
	if _, ok := r.table.Get(host); ok {
		return nil
	}
	return autocert.HostPolicyError("host not routable")
}

// Run starts the HTTP(S) listener, the update consumer, and the periodic
// reload loop. It blocks until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	if err := r.Reload(ctx); err != nil {
		r.log.Error("initial routing table load failed", logger.Err(err))
	}

	updates := r.broadcaster.Subscribe()
	defer r.broadcaster.Unsubscribe(updates)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if r.tlsEnabled {
			err = r.httpServer.ListenAndServeTLS("", "")
		} else {
			err = r.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(r.reloadPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
			defer cancel()
			return r.httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		case update := <-updates:
			r.applyUpdate(update)
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				r.log.Error("periodic routing table reload failed", logger.Err(err))
			}
		}
	}
}

func (r *Router) applyUpdate(u Update) {
	switch u.Kind {
	case UpdateDeploymentActive:
		route := Route{DeploymentID: u.DeploymentID}
		if u.Port != 0 {
			route.Kind = TargetService
			route.Port = u.Port
		} else {
			route.Kind = TargetStaticSite
			route.Path = u.StorePath
			route.SPA = u.SPA
		}
		r.table.Insert(u.Domain, route)
	case UpdateDeploymentRemoved:
		if u.Domain != "" {
			r.table.Remove(u.Domain)
		} else {
			r.table.RemoveByDeployment(u.DeploymentID)
		}
	case UpdateFullReload:
		_ = r.Reload(context.Background())
	}
}

// Reload rereads active deployments (services and static sites) from the Store and rebuilds
// the table, defensively masking any lost broadcast message.
func (r *Router) Reload(ctx context.Context) error {
	deployments, err := r.store.Deployments().ListActive(ctx)
	if err != nil {
		return err
	}

	entries := make([]DeploymentService, 0, len(deployments))
	for _, d := range deployments {
		svc, err := r.store.Services().FindByProjectAndName(ctx, d.Project, d.Service)
		if err != nil || svc == nil {
			continue
		}
		entries = append(entries, DeploymentService{Deployment: d, Service: svc, SitesDir: r.sitesDir})
	}

	r.table.LoadFrom(entries)
	return nil
}

func (r *Router) serveHTTP(w http.ResponseWriter, req *http.Request) {
	route, ok := r.table.Get(req.Host)
	if !ok {
		http.NotFound(w, req)
		return
	}

	switch route.Kind {
	case TargetService:
		newReverseProxy(route.Port).ServeHTTP(w, req)
	case TargetStaticSite:
		newStaticHandler(route.Path, route.SPA).ServeHTTP(w, req)
	}
}

// Domains returns the sorted, deduplicated set of hosts currently in the
// routing table.
func (r *Router) Domains() []string {
	r.table.mu.RLock()
	defer r.table.mu.RUnlock()
	domains := make([]string, 0, len(r.table.routes))
	for host := range r.table.routes {
		domains = append(domains, host)
	}
	sort.Strings(domains)
	return domains
}
