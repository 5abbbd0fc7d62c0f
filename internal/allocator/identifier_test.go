package allocator

import "testing"

func TestSanitizeIdentifierIdempotent(t *testing.T) {
	cases := []string{
		"feature/foo-bar",
		"PR_123",
		"Already-Lower",
		"weird..chars!!",
		"",
	}
	for _, c := range cases {
		once := SanitizeIdentifier(c)
		twice := SanitizeIdentifier(once)
		if once != twice {
			t.Errorf("SanitizeIdentifier(%q) not idempotent: %q vs %q", c, once, twice)
		}
	}
}

func TestSanitizeIdentifierLowersAndReplaces(t *testing.T) {
	got := SanitizeIdentifier("Feature/Foo_Bar.Baz")
	want := "feature-foo-bar-baz"
	if got != want {
		t.Errorf("SanitizeIdentifier() = %q, want %q", got, want)
	}
}

func TestSanitizeUsername(t *testing.T) {
	got := SanitizeUsername("myapp", "feature/foo", "web")
	want := "kennel-myapp-feature-foo-web"
	if got != want {
		t.Errorf("SanitizeUsername() = %q, want %q", got, want)
	}
}

func TestGenerateDomain(t *testing.T) {
	got := GenerateDomain("web", "feature/foo", "myapp", "scottylabs.org")
	want := "web-feature-foo.myapp.scottylabs.org"
	if got != want {
		t.Errorf("GenerateDomain() = %q, want %q", got, want)
	}
}

func TestBranchSlugMatchesSanitizeIdentifier(t *testing.T) {
	ref := "refs/heads/feature/foo"
	if BranchSlug(ref) != SanitizeIdentifier(ref) {
		t.Errorf("BranchSlug should delegate to SanitizeIdentifier")
	}
}

func TestEnvironment(t *testing.T) {
	cases := []struct {
		branch string
		want   string
	}{
		{"main", "prod"},
		{"staging", "staging"},
		{"dev", "dev"},
		{"pr-42", "preview"},
		{"some-other-branch", "dev"},
	}
	for _, c := range cases {
		if got := string(Environment(c.branch)); got != c.want {
			t.Errorf("Environment(%q) = %q, want %q", c.branch, got, c.want)
		}
	}
}

func TestInPortRange(t *testing.T) {
	cases := []struct {
		port int
		want bool
	}{
		{17999, false},
		{18000, true},
		{19000, true},
		{19999, true},
		{20000, false},
	}
	for _, c := range cases {
		if got := InPortRange(c.port); got != c.want {
			t.Errorf("InPortRange(%d) = %v, want %v", c.port, got, c.want)
		}
	}
}
