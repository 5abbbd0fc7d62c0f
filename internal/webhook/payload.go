package webhook

import (
	"encoding/json"
	"strconv"
	"strings"
)

const zeroSHA = "0000000000000000000000000000000000000000"

// Forge identifies which webhook flavor delivered an event.
type Forge string

const (
	ForgeForgejo Forge = "forgejo"
	ForgeGitHub  Forge = "github"
)

// EventKind is the outcome of classifying a webhook delivery.
type EventKind int

const (
	EventIgnore EventKind = iota
	EventBuild
	EventTeardown
)

// Event is the pipeline-facing translation of a forge webhook delivery,
// independent of which forge or payload shape produced it.
type Event struct {
	Kind      EventKind
	Branch    string
	GitRef    string
	CommitSHA string
}

type pushPayload struct {
	Ref    string `json:"ref"`
	After  string `json:"after"`
	Pusher struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	} `json:"pusher"`
}

type pullRequestPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

// ParsePush translates a push event body into a pipeline Event. A push
// whose "after" is the all-zero SHA is a branch deletion and is mapped to
// EventTeardown instead of EventBuild.
func ParsePush(body []byte) (Event, error) {
	var p pushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, err
	}
	branch := strings.TrimPrefix(p.Ref, "refs/heads/")
	if p.After == zeroSHA {
		return Event{Kind: EventTeardown, Branch: branch}, nil
	}
	return Event{Kind: EventBuild, Branch: branch, GitRef: p.Ref, CommitSHA: p.After}, nil
}

// ParsePullRequest translates a pull_request event body into a pipeline
// Event. The synthesized branch is "pr-{number}".
func ParsePullRequest(body []byte) (Event, error) {
	var pr pullRequestPayload
	if err := json.Unmarshal(body, &pr); err != nil {
		return Event{}, err
	}
	branch := prBranch(pr.Number)

	switch pr.Action {
	case "opened", "synchronize", "synchronized", "reopened":
		return Event{Kind: EventBuild, Branch: branch, GitRef: branch, CommitSHA: pr.PullRequest.Head.SHA}, nil
	case "closed":
		return Event{Kind: EventTeardown, Branch: branch}, nil
	default:
		return Event{Kind: EventIgnore, Branch: branch}, nil
	}
}

func prBranch(number int) string {
	return "pr-" + strconv.Itoa(number)
}
