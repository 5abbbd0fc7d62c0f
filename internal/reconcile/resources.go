package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/scottylabs/kennel/internal/config"
	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/store"
	"github.com/scottylabs/kennel/internal/supervisor"
)

// Resources converges OS-level state (service units, port allocations,
// static-site symlinks) to the Store, run once at startup before any
// worker consumes the queues (spec section 4.9).
func Resources(ctx context.Context, s store.Store, sup supervisor.Supervisor, log logger.Logger) error {
	active, err := s.Deployments().ListActiveServices(ctx)
	if err != nil {
		return err
	}
	activeUnits := make(map[string]struct{}, len(active))
	activeDeploymentIDs := make(map[int64]struct{}, len(active))
	for _, d := range active {
		unitName := "kennel-" + d.Project + "-" + d.BranchSlug + "-" + d.Service
		activeUnits[unitName] = struct{}{}
		activeDeploymentIDs[d.ID] = struct{}{}
	}

	if err := reconcileUnits(ctx, sup, activeUnits, log); err != nil {
		log.Error("unit reconcile failed", logger.Err(err))
	}
	if err := reconcilePorts(ctx, s, activeDeploymentIDs, log); err != nil {
		log.Error("port reconcile failed", logger.Err(err))
	}

	allActive, err := s.Deployments().ListActive(ctx)
	if err != nil {
		return err
	}
	expectedSymlinks := make(map[string]struct{})
	for _, d := range allActive {
		if d.Port == nil {
			expectedSymlinks[filepath.Join(config.SitesBaseDir, d.Project, d.BranchSlug, d.Service)] = struct{}{}
		}
	}
	if err := reconcileStaticSites(expectedSymlinks, log); err != nil {
		log.Error("static site reconcile failed", logger.Err(err))
	}

	return nil
}

func reconcileUnits(ctx context.Context, sup supervisor.Supervisor, activeUnits map[string]struct{}, log logger.Logger) error {
	matches, err := filepath.Glob(filepath.Join(config.SystemdUnitDir, "kennel-*.service"))
	if err != nil {
		return err
	}

	removed := false
	for _, path := range matches {
		unitName := strings.TrimSuffix(filepath.Base(path), ".service")
		if _, ok := activeUnits[unitName]; ok {
			continue
		}

		log.Info("reconcile: removing orphaned unit", "unit", unitName)
		if err := sup.Stop(ctx, unitName); err != nil {
			log.Warn("reconcile: stop failed", "unit", unitName, logger.Err(err))
		}
		if err := sup.Disable(ctx, unitName); err != nil {
			log.Warn("reconcile: disable failed", "unit", unitName, logger.Err(err))
		}
		if err := sup.RemoveUnitFile(ctx, unitName); err != nil {
			log.Warn("reconcile: remove unit file failed", "unit", unitName, logger.Err(err))
		}
		removed = true
	}

	if removed {
		return sup.DaemonReload(ctx)
	}
	return nil
}

func reconcilePorts(ctx context.Context, s store.Store, activeDeploymentIDs map[int64]struct{}, log logger.Logger) error {
	allocs, err := s.PortAllocations().List(ctx)
	if err != nil {
		return err
	}
	for _, a := range allocs {
		if a.DeploymentID == nil {
			continue
		}
		if _, ok := activeDeploymentIDs[*a.DeploymentID]; ok {
			continue
		}
		log.Info("reconcile: releasing orphaned port", logger.Port(a.Port), logger.DeploymentID(*a.DeploymentID))
		if err := s.PortAllocations().Release(ctx, a.Port); err != nil {
			log.Warn("reconcile: port release failed", logger.Port(a.Port), logger.Err(err))
		}
	}
	return nil
}

// reconcileStaticSites walks the static-sites root and removes any
// symlink not corresponding to an active static deployment, then prunes
// the branch and project directories it leaves empty.
func reconcileStaticSites(expected map[string]struct{}, log logger.Logger) error {
	projectDirs, err := os.ReadDir(config.SitesBaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, projectEntry := range projectDirs {
		if !projectEntry.IsDir() {
			continue
		}
		projectPath := filepath.Join(config.SitesBaseDir, projectEntry.Name())

		branchDirs, err := os.ReadDir(projectPath)
		if err != nil {
			continue
		}
		for _, branchEntry := range branchDirs {
			if !branchEntry.IsDir() {
				continue
			}
			branchPath := filepath.Join(projectPath, branchEntry.Name())

			links, err := os.ReadDir(branchPath)
			if err != nil {
				continue
			}
			for _, link := range links {
				linkPath := filepath.Join(branchPath, link.Name())
				if _, ok := expected[linkPath]; ok {
					continue
				}
				log.Info("reconcile: removing orphaned static site symlink", "path", linkPath)
				if err := os.Remove(linkPath); err != nil {
					log.Warn("reconcile: symlink removal failed", "path", linkPath, logger.Err(err))
				}
			}

			removeIfEmpty(branchPath)
		}

		removeIfEmpty(projectPath)
	}

	return nil
}

func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	os.Remove(dir)
}
