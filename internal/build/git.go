package build

import (
	"context"
	"os/exec"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
)

// Cloner clones a project's repository and checks out a specific commit.
// A concrete implementation shells out to git; the repository host itself
// (Forgejo or GitHub) is an external collaborator, not something Kennel
// talks to beyond cloning over its URL.
type Cloner interface {
	Clone(ctx context.Context, repoURL, commitSHA, destDir string) error
}

// GitCloner shells out to the git CLI for a shallow fetch-then-checkout,
// which works for any ref including a commit that isn't the tip of a
// branch by the time the build task runs.
type GitCloner struct{}

func (GitCloner) Clone(ctx context.Context, repoURL, commitSHA, destDir string) error {
	if err := run(ctx, destDir, "git", "init"); err != nil {
		return err
	}
	if err := run(ctx, destDir, "git", "remote", "add", "origin", repoURL); err != nil {
		return err
	}
	if err := run(ctx, destDir, "git", "fetch", "--depth", "1", "origin", commitSHA); err != nil {
		return err
	}
	if err := run(ctx, destDir, "git", "checkout", "FETCH_HEAD"); err != nil {
		return err
	}
	return nil
}

func run(ctx context.Context, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return apperrors.Wrap(apperrors.ErrTypeGit, string(out), err)
	}
	return nil
}
