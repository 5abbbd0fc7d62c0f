// Command kennel is the single-binary daemon: it ingests forge webhooks,
// builds branches with Nix, deploys them as systemd-supervised services
// or published static sites, routes traffic to them, and reaps them when
// they expire.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/scottylabs/kennel/internal/allocator"
	"github.com/scottylabs/kennel/internal/api"
	"github.com/scottylabs/kennel/internal/build"
	"github.com/scottylabs/kennel/internal/config"
	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/deployer"
	"github.com/scottylabs/kennel/internal/dns"
	"github.com/scottylabs/kennel/internal/health"
	"github.com/scottylabs/kennel/internal/reconcile"
	"github.com/scottylabs/kennel/internal/router"
	"github.com/scottylabs/kennel/internal/store/postgres"
	"github.com/scottylabs/kennel/internal/supervisor"
	"github.com/scottylabs/kennel/internal/teardown"
	"github.com/scottylabs/kennel/internal/version"
	"github.com/scottylabs/kennel/internal/webhook"
)

// deployQueue lets the build pool hand finished builds to the deployer; the
// two packages each declare a DeployRequest with the same fields.
type deployQueue struct{ d *deployer.Deployer }

func (q deployQueue) Enqueue(req build.DeployRequest) bool {
	return q.d.Enqueue(deployer.DeployRequest(req))
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var log logger.Logger
	if cfg.LogFormat == "text" {
		log = logger.NewText(cfg.LogLevel)
	} else {
		log = logger.New(cfg.LogLevel)
	}

	log.Info("starting kennel",
		"version", version.Version,
		"base_domain", cfg.BaseDomain,
		"work_dir", cfg.WorkDir,
	)

	st, err := postgres.NewStore(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", logger.Err(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		log.Error("failed to run migrations", logger.Err(err))
		os.Exit(1)
	}

	sup := supervisor.NewSystemd(config.SystemdUnitDir)

	dnsProvider, err := buildDNSProvider(cfg)
	if err != nil {
		log.Error("failed to configure dns provider", logger.Err(err))
		os.Exit(1)
	}

	if err := reconcile.Projects(ctx, st, config.ProjectsConfigPath, log); err != nil {
		log.Error("startup project reconcile failed", logger.Err(err))
	}
	if err := reconcile.Resources(ctx, st, sup, log); err != nil {
		log.Error("startup resource reconcile failed", logger.Err(err))
	}

	alloc := allocator.New(st)
	broadcaster := router.NewBroadcaster()

	teardownWorker := teardown.New(st, alloc, sup, dnsProvider, broadcaster, log)

	dep := deployer.New(st, alloc, sup, dnsProvider, broadcaster, teardownWorker,
		cfg.BaseDomain, cfg.WorkDir, cfg.DNSServerIPv4, cfg.DNSServerIPv6, log)

	buildPool := build.NewPool(st, deployQueue{dep}, build.GitCloner{}, build.NixTool{}, cfg.WorkDir, cfg.MaxConcurrentBuilds, log)

	sitesDir := func(project, branchSlug, service string) string {
		return filepath.Join(config.SitesBaseDir, project, branchSlug, service)
	}
	rt := router.New(st, broadcaster, sitesDir, cfg, log)
	healthMonitor := health.NewMonitor(st, broadcaster, log)

	webhookHandler := webhook.NewHandler(st, buildPool, teardownWorker, log)
	apiServer := api.NewServer(api.ServerConfig{Host: cfg.APIHost, Port: cfg.APIPort}, st, webhookHandler, log)

	go teardownWorker.Run(ctx)
	go dep.Run(ctx)
	go buildPool.Run(ctx)
	go healthMonitor.Run(ctx)
	go reconcile.RunExpiryJob(ctx, st, teardownWorker, log)
	go reconcile.RunLogRetentionJob(ctx, st, log)

	go func() {
		if err := rt.Run(ctx); err != nil {
			log.Error("router stopped with error", logger.Err(err))
		}
	}()

	go func() {
		log.Info("api server listening", "host", cfg.APIHost, "port", cfg.APIPort)
		if err := apiServer.Start(); err != nil {
			log.Error("api server stopped with error", logger.Err(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("api server forced to shutdown", logger.Err(err))
	}

	log.Info("kennel stopped")
}

// buildDNSProvider parses DNS_CLOUDFLARE_ZONES (a JSON object mapping
// zone suffix to Cloudflare zone id) and wires a circuit-breaker-backed
// Cloudflare provider, or returns nil when DNS integration is disabled.
func buildDNSProvider(cfg *config.Config) (dns.Provider, error) {
	if !cfg.DNSEnabled {
		return nil, nil
	}

	zones := map[string]string{}
	if cfg.DNSCloudflareZones != "" {
		if err := json.Unmarshal([]byte(cfg.DNSCloudflareZones), &zones); err != nil {
			return nil, fmt.Errorf("failed to parse DNS_CLOUDFLARE_ZONES: %w", err)
		}
	}

	return dns.NewCloudflare(dns.CloudflareConfig{
		APIToken:     cfg.CloudflareAPIToken,
		ZoneByDomain: zones,
	}), nil
}
