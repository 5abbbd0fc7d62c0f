package webhook

import "testing"

func TestParsePushBuild(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/feature/foo","after":"abc123","pusher":{"username":"alice"}}`)
	ev, err := ParsePush(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventBuild {
		t.Fatalf("Kind = %v, want EventBuild", ev.Kind)
	}
	if ev.Branch != "feature/foo" {
		t.Errorf("Branch = %q, want %q", ev.Branch, "feature/foo")
	}
	if ev.CommitSHA != "abc123" {
		t.Errorf("CommitSHA = %q, want %q", ev.CommitSHA, "abc123")
	}
}

func TestParsePushBranchDeletion(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/feature/foo","after":"0000000000000000000000000000000000000000"}`)
	ev, err := ParsePush(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventTeardown {
		t.Fatalf("Kind = %v, want EventTeardown", ev.Kind)
	}
	if ev.Branch != "feature/foo" {
		t.Errorf("Branch = %q, want %q", ev.Branch, "feature/foo")
	}
}

func TestParsePullRequestOpenedBuilds(t *testing.T) {
	body := []byte(`{"action":"opened","number":42,"pull_request":{"head":{"sha":"def456"}}}`)
	ev, err := ParsePullRequest(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventBuild {
		t.Fatalf("Kind = %v, want EventBuild", ev.Kind)
	}
	if ev.Branch != "pr-42" {
		t.Errorf("Branch = %q, want %q", ev.Branch, "pr-42")
	}
	if ev.CommitSHA != "def456" {
		t.Errorf("CommitSHA = %q, want %q", ev.CommitSHA, "def456")
	}
}

func TestParsePullRequestSynchronizeBuilds(t *testing.T) {
	body := []byte(`{"action":"synchronize","number":7,"pull_request":{"head":{"sha":"aaa"}}}`)
	ev, err := ParsePullRequest(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventBuild {
		t.Fatalf("Kind = %v, want EventBuild", ev.Kind)
	}
}

func TestParsePullRequestClosedTearsDown(t *testing.T) {
	body := []byte(`{"action":"closed","number":42,"pull_request":{"head":{"sha":"def456"}}}`)
	ev, err := ParsePullRequest(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventTeardown {
		t.Fatalf("Kind = %v, want EventTeardown", ev.Kind)
	}
	if ev.Branch != "pr-42" {
		t.Errorf("Branch = %q, want %q", ev.Branch, "pr-42")
	}
}

func TestParsePullRequestOtherActionsIgnored(t *testing.T) {
	body := []byte(`{"action":"labeled","number":42,"pull_request":{"head":{"sha":"def456"}}}`)
	ev, err := ParsePullRequest(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventIgnore {
		t.Fatalf("Kind = %v, want EventIgnore", ev.Kind)
	}
}
