package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/scottylabs/kennel/internal/config"
	apperrors "github.com/scottylabs/kennel/internal/core/errors"
)

// NixTool is the default Tool: it shells out to `nix build`, producing an
// out-link under {workDir}/{buildID}/{name} and resolving it to the
// content-addressed store path the symlink points at. The build tool
// itself is an external collaborator (spec section 1); this is only its
// invocation contract.
type NixTool struct{}

func (NixTool) Build(ctx context.Context, workDir, buildID, name, pkg string) (storePath, logPath string, err error) {
	outLink := filepath.Join(workDir, buildID, name)
	if err := os.MkdirAll(filepath.Dir(outLink), 0755); err != nil {
		return "", "", apperrors.Wrap(apperrors.ErrTypeIo, "failed to create build out-link directory", err)
	}

	logPath = filepath.Join(config.LogsDir, buildID, name+".log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return "", "", apperrors.Wrap(apperrors.ErrTypeIo, "failed to create build log directory", err)
	}
	cmd := exec.CommandContext(ctx, "nix", "build", pkg, "--out-link", outLink, "--print-build-logs")
	cmd.Dir = filepath.Join(workDir, buildID, "repo")

	out, buildErr := cmd.CombinedOutput()
	if writeErr := os.WriteFile(logPath, out, 0644); writeErr != nil {
		return "", "", apperrors.Wrap(apperrors.ErrTypeIo, "failed to write build log", writeErr)
	}
	if buildErr != nil {
		return "", logPath, apperrors.Wrap(apperrors.ErrTypeBuildTool, fmt.Sprintf("nix build failed for %s", name), buildErr)
	}

	resolved, err := os.Readlink(outLink)
	if err != nil {
		return "", logPath, apperrors.Wrap(apperrors.ErrTypeBuildTool, "failed to resolve build out-link", err)
	}
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(outLink), resolved)
	}
	return resolved, logPath, nil
}
