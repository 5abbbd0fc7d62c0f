// Package reconcile converges OS-level state and the Project table to
// an external config file, and runs the periodic expiry and
// log-retention jobs (spec section 4.9).
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/store"
)

// projectConfigEntry is one entry of the projects config file.
type projectConfigEntry struct {
	Name              string        `json:"name"`
	RepoURL           string        `json:"repo_url"`
	RepoType          store.RepoType `json:"repo_type"`
	WebhookSecretFile string        `json:"webhook_secret_file"`
	DefaultBranch     string        `json:"default_branch"`
}

// Projects reads the external projects config file, upserts each entry,
// and deletes any Store project absent from it.
func Projects(ctx context.Context, s store.Store, configPath string, log logger.Logger) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("projects config file not found, skipping project reconcile", "path", configPath)
			return nil
		}
		return apperrors.Wrap(apperrors.ErrTypeIo, "failed to read projects config", err)
	}

	var entries []projectConfigEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return apperrors.Wrap(apperrors.ErrTypeInvalidConfig, "failed to parse projects config", err)
	}

	wanted := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		wanted[e.Name] = struct{}{}

		secretRaw, err := os.ReadFile(e.WebhookSecretFile)
		if err != nil {
			log.Error("failed to read webhook secret file, skipping project", logger.Project(e.Name), logger.Err(err))
			continue
		}
		secret := strings.TrimSpace(string(secretRaw))

		existing, err := s.Projects().FindByName(ctx, e.Name)
		if err != nil {
			log.Error("failed to look up project", logger.Project(e.Name), logger.Err(err))
			continue
		}

		if existing == nil {
			p := &store.Project{
				Name:          e.Name,
				RepoURL:       e.RepoURL,
				RepoType:      e.RepoType,
				WebhookSecret: secret,
				DefaultBranch: e.DefaultBranch,
			}
			if err := s.Projects().Create(ctx, p); err != nil {
				log.Error("failed to create project", logger.Project(e.Name), logger.Err(err))
			}
			continue
		}

		existing.RepoURL = e.RepoURL
		existing.RepoType = e.RepoType
		existing.WebhookSecret = secret
		existing.DefaultBranch = e.DefaultBranch
		if err := s.Projects().Update(ctx, existing); err != nil {
			log.Error("failed to update project", logger.Project(e.Name), logger.Err(err))
		}
	}

	all, err := s.Projects().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list projects for reconcile: %w", err)
	}
	for _, p := range all {
		if _, ok := wanted[p.Name]; !ok {
			if err := s.Projects().Delete(ctx, p.Name); err != nil {
				log.Error("failed to delete stale project", logger.Project(p.Name), logger.Err(err))
			}
		}
	}

	return nil
}
