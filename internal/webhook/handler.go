// Package webhook implements the HTTP ingress that turns forge webhook
// deliveries into queued builds or teardown requests.
package webhook

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/store"
)

// BuildQueue is the inbound side of the build worker pool.
type BuildQueue interface {
	// Enqueue returns false if the queue is full, signaling the caller to
	// reply 503 per spec section 4.3.
	Enqueue(buildID int64) bool
}

// TeardownQueue is the inbound side of the teardown worker.
type TeardownQueue interface {
	Enqueue(deploymentID int64)
}

// Handler implements POST /webhook/{project}.
type Handler struct {
	store    store.Store
	builds   BuildQueue
	teardown TeardownQueue
	log      logger.Logger
}

func NewHandler(s store.Store, builds BuildQueue, teardown TeardownQueue, log logger.Logger) *Handler {
	return &Handler{store: s, builds: builds, teardown: teardown, log: log}
}

// Register mounts the webhook route onto a gin router.
func (h *Handler) Register(router gin.IRouter) {
	router.POST("/webhook/:project", h.handle)
}

func (h *Handler) handle(c *gin.Context) {
	ctx := c.Request.Context()
	projectName := c.Param("project")

	project, err := h.store.Projects().FindByName(ctx, projectName)
	if err != nil {
		h.log.Error("failed to look up project", logger.Project(projectName), logger.Err(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	if project == nil {
		c.Status(http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	var forge Forge
	var eventType string
	switch {
	case c.GetHeader("X-Forgejo-Event") != "":
		forge = ForgeForgejo
		eventType = c.GetHeader("X-Forgejo-Event")
	case c.GetHeader("X-GitHub-Event") != "":
		forge = ForgeGitHub
		eventType = c.GetHeader("X-GitHub-Event")
	default:
		c.Status(http.StatusBadRequest)
		return
	}

	var signature string
	if forge == ForgeForgejo {
		signature = c.GetHeader("X-Forgejo-Signature")
	} else {
		signature = c.GetHeader("X-Hub-Signature-256")
	}
	if !VerifySignature(project.WebhookSecret, signature, body) {
		c.Status(http.StatusUnauthorized)
		return
	}

	var event Event
	switch eventType {
	case "push":
		event, err = ParsePush(body)
	case "pull_request":
		event, err = ParsePullRequest(body)
	default:
		c.Status(http.StatusOK)
		return
	}
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	switch event.Kind {
	case EventIgnore:
		c.Status(http.StatusOK)

	case EventTeardown:
		ids, err := h.store.Deployments().MarkForTeardown(ctx, projectName, event.Branch)
		if err != nil {
			h.log.Error("failed to mark deployments for teardown", logger.Project(projectName), logger.Branch(event.Branch), logger.Err(err))
			c.Status(http.StatusInternalServerError)
			return
		}
		for _, id := range ids {
			h.teardown.Enqueue(id)
		}
		c.Status(http.StatusAccepted)

	case EventBuild:
		h.handleBuild(c, projectName, event)
	}
}

func (h *Handler) handleBuild(c *gin.Context, projectName string, event Event) {
	ctx := c.Request.Context()

	exists, err := h.store.Builds().Exists(ctx, projectName, event.CommitSHA)
	if err != nil {
		h.log.Error("failed to check build existence", logger.Project(projectName), logger.Err(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	if exists {
		c.Status(http.StatusOK)
		return
	}

	build := &store.Build{
		Project:   projectName,
		Branch:    event.Branch,
		GitRef:    event.GitRef,
		CommitSHA: event.CommitSHA,
		Status:    store.BuildQueued,
	}
	if err := h.store.Builds().Create(ctx, build); err != nil {
		if apperrors.Is(err, apperrors.ErrTypeConflict) {
			// Duplicate delivery raced us to the unique (project, commit_sha)
			// constraint; absorb it the same as the Exists check above.
			c.Status(http.StatusOK)
			return
		}
		h.log.Error("failed to create build", logger.Project(projectName), logger.Err(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	if !h.builds.Enqueue(build.ID) {
		c.Status(http.StatusServiceUnavailable)
		return
	}

	c.Status(http.StatusOK)
}
