package router

import (
	"testing"

	"github.com/scottylabs/kennel/internal/store"
)

func TestTableInsertGetRemove(t *testing.T) {
	tbl := NewTable()
	tbl.Insert("foo.example.org", Route{Kind: TargetService, DeploymentID: 1, Port: 18000})

	route, ok := tbl.Get("foo.example.org")
	if !ok {
		t.Fatal("expected route to be found")
	}
	if route.Port != 18000 {
		t.Errorf("Port = %d, want 18000", route.Port)
	}

	tbl.Remove("foo.example.org")
	if _, ok := tbl.Get("foo.example.org"); ok {
		t.Fatal("expected route to be removed")
	}
}

func TestTableRemoveByDeployment(t *testing.T) {
	tbl := NewTable()
	tbl.Insert("a.example.org", Route{Kind: TargetService, DeploymentID: 1, Port: 18000})
	tbl.Insert("custom.example.com", Route{Kind: TargetService, DeploymentID: 1, Port: 18000})
	tbl.Insert("b.example.org", Route{Kind: TargetService, DeploymentID: 2, Port: 18001})

	tbl.RemoveByDeployment(1)

	if _, ok := tbl.Get("a.example.org"); ok {
		t.Error("expected a.example.org to be removed")
	}
	if _, ok := tbl.Get("custom.example.com"); ok {
		t.Error("expected custom.example.com to be removed")
	}
	if _, ok := tbl.Get("b.example.org"); !ok {
		t.Error("expected b.example.org to survive")
	}
}

func TestLoadFromRegistersGeneratedAndCustomDomains(t *testing.T) {
	tbl := NewTable()
	port := 18005
	entries := []DeploymentService{
		{
			Deployment: &store.Deployment{ID: 1, Project: "myapp", Service: "web", BranchSlug: "main", Domain: "web-main.myapp.scottylabs.org", Port: &port},
			Service:    &store.Service{CustomDomain: "myapp.com"},
		},
	}

	tbl.LoadFrom(entries)

	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	if _, ok := tbl.Get("web-main.myapp.scottylabs.org"); !ok {
		t.Error("expected generated domain to be routable")
	}
	if _, ok := tbl.Get("myapp.com"); !ok {
		t.Error("expected custom domain to be routable")
	}
}

func TestLoadFromStaticSiteUsesSitesDir(t *testing.T) {
	tbl := NewTable()
	called := false
	entries := []DeploymentService{
		{
			Deployment: &store.Deployment{ID: 2, Project: "myapp", Service: "docs", BranchSlug: "main", Domain: "docs-main.myapp.scottylabs.org"},
			Service:    &store.Service{SPA: true},
			SitesDir: func(project, branchSlug, service string) string {
				called = true
				return "/var/lib/kennel/sites/" + project + "/" + branchSlug + "/" + service
			},
		},
	}

	tbl.LoadFrom(entries)

	route, ok := tbl.Get("docs-main.myapp.scottylabs.org")
	if !ok {
		t.Fatal("expected static site route to be registered")
	}
	if !called {
		t.Fatal("expected SitesDir to be invoked for a static site route")
	}
	if route.Kind != TargetStaticSite {
		t.Errorf("Kind = %v, want TargetStaticSite", route.Kind)
	}
	if !route.SPA {
		t.Error("expected SPA flag to propagate from the Service")
	}
}

func TestLoadFromReplacesPreviousContents(t *testing.T) {
	tbl := NewTable()
	tbl.Insert("stale.example.org", Route{Kind: TargetService, DeploymentID: 99, Port: 18099})

	tbl.LoadFrom(nil)

	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after reloading an empty deployment set", tbl.Len())
	}
}
