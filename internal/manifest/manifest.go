// Package manifest parses the per-repo .kennel.yaml manifest that declares
// a project's buildable services and static sites.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
)

var validName = regexp.MustCompile(`^[a-z0-9-]+$`)

// ServiceEntry is one entry under the manifest's services map.
type ServiceEntry struct {
	Package                string            `yaml:"package"`
	HealthCheckPath        string            `yaml:"health_check_path"`
	HealthCheckTimeoutSecs int               `yaml:"health_check_timeout_secs"`
	PreviewDatabase        bool              `yaml:"preview_database"`
	SPA                    bool              `yaml:"spa"`
	Env                    map[string]string `yaml:"env"`
	Secrets                []string          `yaml:"secrets"`
	CustomDomain           string            `yaml:"custom_domain"`
}

// StaticSiteEntry is one entry under the manifest's static_sites map.
type StaticSiteEntry struct {
	Package      string `yaml:"package"`
	SPA          bool   `yaml:"spa"`
	CustomDomain string `yaml:"custom_domain"`
}

// Cachix is the optional artifact-cache push configuration.
type Cachix struct {
	CacheName string `yaml:"cache_name"`
	AuthToken string `yaml:"auth_token"`
}

// Manifest is the parsed shape of a project's .kennel.yaml.
type Manifest struct {
	Services    map[string]ServiceEntry     `yaml:"services"`
	StaticSites map[string]StaticSiteEntry  `yaml:"static_sites"`
	Cachix      *Cachix                     `yaml:"cachix"`
}

const fileName = ".kennel.yaml"

// Load reads and parses the manifest from a cloned repository's work
// directory and applies the documented defaults.
func Load(workDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(workDir, fileName))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTypeInvalidConfig, "failed to read manifest", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTypeInvalidConfig, "failed to parse manifest", err)
	}

	if len(m.Services) == 0 && len(m.StaticSites) == 0 {
		return nil, apperrors.New(apperrors.ErrTypeInvalidConfig, "manifest declares no services and no static sites")
	}

	for name, svc := range m.Services {
		if !validName.MatchString(name) {
			return nil, apperrors.New(apperrors.ErrTypeInvalidName, fmt.Sprintf("invalid service name %q", name))
		}
		if svc.HealthCheckPath == "" {
			svc.HealthCheckPath = "/health"
		}
		if svc.HealthCheckTimeoutSecs == 0 {
			svc.HealthCheckTimeoutSecs = 30
		}
		m.Services[name] = svc
	}
	for name := range m.StaticSites {
		if !validName.MatchString(name) {
			return nil, apperrors.New(apperrors.ErrTypeInvalidName, fmt.Sprintf("invalid static site name %q", name))
		}
	}

	return &m, nil
}
