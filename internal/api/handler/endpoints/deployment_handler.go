package endpoints

import (
	"net/http"

	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"atelier"
	"atelier/internal/api/handler/middleware"
	"atelier/internal/api/repo"
	"atelier/internal/api/service"
)

type deploymentHandler struct {
	deployments *service.DeploymentService
	statusCache *repo.StatusCacheRepository
	config      atelier.AppConfig
	logger      zerolog.Logger
}

func newDeploymentHandler(deployments *service.DeploymentService) *deploymentHandler {
	return &deploymentHandler{
		deployments: deployments,
		statusCache: repo.NewStatusCacheRepository(),
		config:      atelier.GetConfig(),
		logger:      atelier.Logger,
	}
}

func DeploymentHandler(router *graceful.Graceful, deployments *service.DeploymentService) {
	h := newDeploymentHandler(deployments)

	routes := router.Group("/api/v1/deployments")
	routes.Use(middleware.AuthMiddleware(h.config))
	{
		routes.GET("", h.getAll)
		routes.GET("/status", h.status)
	}
}

// getAll returns the registered deployments, lowest priority value first
func (slf *deploymentHandler) getAll(c *gin.Context) {
	c.JSON(http.StatusOK, slf.deployments.List())
}

// status returns the health snapshot: the monitor's cached sweep when one
// is fresh enough, otherwise a live probe of every deployment
func (slf *deploymentHandler) status(c *gin.Context) {
	if c.Query("live") == "" {
		statuses, err := slf.statusCache.Find()
		if err != nil {
			slf.logger.Warn().Err(err).Msg("Failed to read cached deployment statuses")
		}
		if len(statuses) > 0 {
			c.JSON(http.StatusOK, gin.H{"statuses": statuses, "cached": true})
			return
		}
	}

	statuses := slf.deployments.StatusSnapshot(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"statuses": statuses, "cached": false})
}
