// Package allocator derives deterministic identifiers from project/branch/
// service names and wraps the store's exclusive-resource repositories
// (ports, preview databases) behind a small allocation API.
package allocator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/scottylabs/kennel/internal/store"
)

var notAllowed = regexp.MustCompile(`[^a-z0-9-]`)

// SanitizeIdentifier lowercases s and replaces every character outside
// [a-z0-9-] with a hyphen. Idempotent: SanitizeIdentifier(SanitizeIdentifier(s)) == SanitizeIdentifier(s).
func SanitizeIdentifier(s string) string {
	lowered := strings.ToLower(s)
	return notAllowed.ReplaceAllString(lowered, "-")
}

// SanitizeUsername builds the OS username Kennel creates to run a
// deployed service under, per spec section 4.
func SanitizeUsername(project, branch, service string) string {
	return fmt.Sprintf("kennel-%s-%s-%s", SanitizeIdentifier(project), SanitizeIdentifier(branch), SanitizeIdentifier(service))
}

// GenerateDomain builds the default generated domain for a deployment.
func GenerateDomain(service, branch, project, baseDomain string) string {
	return fmt.Sprintf("%s-%s.%s.%s", SanitizeIdentifier(service), SanitizeIdentifier(branch), project, baseDomain)
}

// BranchSlug is the sanitized, hostname-safe form of a branch or PR ref
// used in domains, unit names, and filesystem paths.
func BranchSlug(gitRef string) string {
	return SanitizeIdentifier(gitRef)
}

// Environment maps a branch name to the deployment environment it belongs
// to. main -> prod, staging -> staging, dev -> dev, any pr-* ref ->
// preview, anything else -> dev. Richer environment rules must preserve
// the pr-* -> preview mapping since auxiliary-DB allocation depends on it.
func Environment(branch string) store.Environment {
	switch {
	case branch == "main":
		return store.EnvProd
	case branch == "staging":
		return store.EnvStaging
	case branch == "dev":
		return store.EnvDev
	case strings.HasPrefix(branch, "pr-"):
		return store.EnvPreview
	default:
		return store.EnvDev
	}
}
