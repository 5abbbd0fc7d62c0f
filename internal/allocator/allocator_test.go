package allocator

import (
	"testing"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
)

func TestResolveBranchSlugNoCollision(t *testing.T) {
	a := &Allocator{}
	existing := []string{"main", "feature/bar"}
	slug, err := a.ResolveBranchSlug(existing, "feature/foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slug != "feature-foo" {
		t.Errorf("slug = %q, want %q", slug, "feature-foo")
	}
}

func TestResolveBranchSlugCollisionRejected(t *testing.T) {
	a := &Allocator{}
	existing := []string{"feature-foo", "main"}
	_, err := a.ResolveBranchSlug(existing, "feature/foo")
	if err == nil {
		t.Fatal("expected a collision error, got nil")
	}
	if !apperrors.Is(err, apperrors.ErrTypeInvalidName) {
		t.Errorf("expected ErrTypeInvalidName, got %v", err)
	}
}

func TestResolveBranchSlugSameBranchIsNotACollision(t *testing.T) {
	a := &Allocator{}
	existing := []string{"feature/foo"}
	slug, err := a.ResolveBranchSlug(existing, "feature/foo")
	if err != nil {
		t.Fatalf("redeploying the same branch should not collide: %v", err)
	}
	if slug != "feature-foo" {
		t.Errorf("slug = %q, want %q", slug, "feature-foo")
	}
}
