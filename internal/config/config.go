// Package config loads Kennel's runtime configuration the way the rest of
// the ambient stack does it: defaults set in code, overridden by
// environment variables, with an optional YAML file for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Filesystem and network constants named in spec section 6. These are not
// environment-configurable; they are part of the on-disk contract between
// Kennel and the units/symlinks it manages.
const (
	PortRangeStart = 18000
	PortRangeEnd   = 19999
	AuxDbMin       = 0
	AuxDbMax       = 15

	WorkDirDefault      = "/var/lib/kennel/builds"
	SitesBaseDir        = "/var/lib/kennel/sites"
	ServicesBaseDir     = "/var/lib/kennel/services"
	SecretsDir          = "/run/kennel/secrets"
	LogsDir             = "/var/lib/kennel/logs"
	SystemdUnitDir      = "/etc/systemd/system"
	AcmeCacheDirDefault = "/var/lib/kennel/acme"
	ProjectsConfigPath  = "/etc/kennel/projects.json"

	HealthCheckInterval          = 30 * time.Second
	HealthCheckAttemptTimeout    = 5 * time.Second
	MaxConsecutiveHealthFailures = 3

	RouterReloadInterval = 60 * time.Second

	CleanupJobInterval = 10 * time.Minute
	LogCleanupInterval = 24 * time.Hour
	LogRetentionDays   = 30
	ExpiryDays         = 7

	BuildQueueCapacity    = 1000
	DeployQueueCapacity   = 100
	TeardownQueueCapacity = 100
	RouterUpdateCapacity  = 100

	BlueGreenDrainTimeout = 30 * time.Second
	ShutdownTimeout       = 300 * time.Second
)

// HealthCheckBackoffSchedule is the retry schedule the deployer uses while
// waiting for a freshly started service to answer its health check.
var HealthCheckBackoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	15 * time.Second,
}

// ExpiryExcludedEnvironments are the environments find_expired_deployments
// never reaps regardless of last_activity.
var ExpiryExcludedEnvironments = []string{"prod", "staging"}

// Config holds all environment-derived configuration.
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`

	APIHost string `mapstructure:"api_host"`
	APIPort int    `mapstructure:"api_port"`

	RouterAddr string `mapstructure:"router_addr"`

	TLSEnabled     bool   `mapstructure:"tls_enabled"`
	ACMEEmail      string `mapstructure:"acme_email"`
	ACMEProduction bool   `mapstructure:"acme_production"`
	ACMECacheDir   string `mapstructure:"acme_cache_dir"`

	MaxConcurrentBuilds int    `mapstructure:"max_concurrent_builds"`
	WorkDir             string `mapstructure:"work_dir"`
	BaseDomain          string `mapstructure:"base_domain"`

	DNSEnabled         bool   `mapstructure:"dns_enabled"`
	DNSServerIPv4      string `mapstructure:"dns_server_ipv4"`
	DNSServerIPv6      string `mapstructure:"dns_server_ipv6"`
	DNSCloudflareZones string `mapstructure:"dns_cloudflare_zones"`
	CloudflareAPIToken string `mapstructure:"cloudflare_api_token"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// envVars lists every environment variable spec section 6 names, bound
// unprefixed (Kennel's env vars, unlike the teacher's NEBULA_-prefixed
// ones, are the literal names operators set in their unit files).
var envVars = map[string]string{
	"database_url":          "DATABASE_URL",
	"api_host":              "API_HOST",
	"api_port":              "API_PORT",
	"router_addr":           "ROUTER_ADDR",
	"tls_enabled":           "TLS_ENABLED",
	"acme_email":            "ACME_EMAIL",
	"acme_production":       "ACME_PRODUCTION",
	"acme_cache_dir":        "ACME_CACHE_DIR",
	"max_concurrent_builds": "MAX_CONCURRENT_BUILDS",
	"work_dir":              "WORK_DIR",
	"base_domain":           "BASE_DOMAIN",
	"dns_enabled":           "DNS_ENABLED",
	"dns_server_ipv4":       "DNS_SERVER_IPV4",
	"dns_server_ipv6":       "DNS_SERVER_IPV6",
	"dns_cloudflare_zones":  "DNS_CLOUDFLARE_ZONES",
	"cloudflare_api_token":  "CLOUDFLARE_API_TOKEN",
	"log_level":             "LOG_LEVEL",
	"log_format":            "LOG_FORMAT",
}

// Load reads configuration from an optional file and the process
// environment. configPath may be empty, in which case only defaults and
// the environment apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api_host", "0.0.0.0")
	v.SetDefault("api_port", 3000)
	v.SetDefault("router_addr", "0.0.0.0:80")
	v.SetDefault("tls_enabled", false)
	v.SetDefault("acme_cache_dir", AcmeCacheDirDefault)
	v.SetDefault("max_concurrent_builds", 2)
	v.SetDefault("work_dir", WorkDirDefault)
	v.SetDefault("base_domain", "scottylabs.org")
	v.SetDefault("dns_enabled", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envVars {
		_ = v.BindEnv(key, env)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &cfg, nil
}
