// Package api hosts the operator HTTP surface: a health check and the
// build-cancellation endpoint (spec section 6), plus the webhook
// ingress mounted alongside it so the daemon exposes one listener.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/store"
	"github.com/scottylabs/kennel/internal/webhook"
)

// ServerConfig holds the listener configuration.
type ServerConfig struct {
	Host string
	Port int
}

// Server is the operator + webhook HTTP server.
type Server struct {
	config     ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	store      store.Store
	log        logger.Logger
}

// NewServer builds the gin router and wires the health, cancel, and
// webhook routes onto it. webhookHandler may be nil in contexts that
// don't exercise webhook ingress.
func NewServer(cfg ServerConfig, s store.Store, webhookHandler *webhook.Handler, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	srv := &Server{
		config: cfg,
		router: router,
		store:  s,
		log:    log,
	}

	router.Use(gin.Recovery())
	router.Use(srv.requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.POST("/builds/:id/cancel", srv.cancelBuild)

	if webhookHandler != nil {
		webhookHandler.Register(router)
	}

	return srv
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}

// cancelBuild implements POST /builds/{id}/cancel: 200 on success, 404
// missing, 400 if the build is not in queued|building (spec section 6).
func (s *Server) cancelBuild(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	build, err := s.store.Builds().FindByID(ctx, id)
	if err != nil {
		s.log.Error("failed to look up build for cancel", logger.BuildID(id), logger.Err(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	if build == nil {
		c.Status(http.StatusNotFound)
		return
	}
	if build.Status != store.BuildQueued && build.Status != store.BuildBuilding {
		c.Status(http.StatusBadRequest)
		return
	}

	build.Status = store.BuildCancelled
	if err := s.store.Builds().Update(ctx, build); err != nil {
		s.log.Error("failed to cancel build", logger.BuildID(id), logger.Err(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Status(http.StatusOK)
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return apperrors.Wrap(apperrors.ErrTypeOther, "api server failed", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
