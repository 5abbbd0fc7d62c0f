package build

import (
	"context"
	"os/exec"

	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/manifest"
)

// pushToCachix pushes every successfully built store path to the
// configured artifact cache. Per spec section 4.4 this is
// logged-but-tolerated: a cache outage must never fail a build whose
// artifacts already built successfully.
func pushToCachix(ctx context.Context, cachix *manifest.Cachix, storePaths []string, log logger.Logger) {
	if cachix == nil || len(storePaths) == 0 {
		return
	}

	args := append([]string{"push", cachix.CacheName}, storePaths...)
	cmd := exec.CommandContext(ctx, "cachix", args...)
	if cachix.AuthToken != "" {
		cmd.Env = append(cmd.Environ(), "CACHIX_AUTH_TOKEN="+cachix.AuthToken)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		log.Warn("cachix push failed", logger.Err(err), "output", string(out))
	}
}
