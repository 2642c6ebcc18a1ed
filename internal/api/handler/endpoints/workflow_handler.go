package endpoints

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"atelier"
	"atelier/internal/api/handler/middleware"
	"atelier/internal/api/handler/request"
	"atelier/internal/api/handler/response"
	"atelier/internal/api/models"
	"atelier/internal/api/service"
	"atelier/internal/comfy"
	"atelier/pkg"
)

type workflowHandler struct {
	selector    *service.SelectorService
	workflows   *service.WorkflowService
	deployments *service.DeploymentService
	clients     service.ClientFactory
	config      atelier.AppConfig
	logger      zerolog.Logger
}

func newWorkflowHandler(selector *service.SelectorService, workflows *service.WorkflowService, deployments *service.DeploymentService) *workflowHandler {
	return &workflowHandler{
		selector:    selector,
		workflows:   workflows,
		deployments: deployments,
		clients: func(baseURL string) service.BackendClient {
			return comfy.NewClient(baseURL)
		},
		config: atelier.GetConfig(),
		logger: atelier.Logger,
	}
}

func WorkflowHandler(router *graceful.Graceful, selector *service.SelectorService, workflows *service.WorkflowService, deployments *service.DeploymentService) {
	h := newWorkflowHandler(selector, workflows, deployments)

	routes := router.Group("/api/v1/workflows")
	routes.Use(middleware.AuthMiddleware(h.config))
	{
		routes.GET("", h.getAll)
		routes.POST("/validate", h.validate)
		routes.GET("/recommend", h.recommend)
	}
}

// getAll inventories every obtainable workflow. History comes from the
// best reachable deployment; when none is reachable the listing degrades
// to templates with the failure reported alongside.
func (slf *workflowHandler) getAll(c *gin.Context) {
	var src service.HistorySource
	deployment, err := slf.deployments.SelectBest(c.Request.Context(), models.DeploymentPreferences{})
	if err != nil {
		slf.logger.Warn().Err(err).Msg("No deployment reachable for history listing")
		src = unreachableHistory{err: err}
	} else {
		src = slf.clients(deployment.BaseURL)
	}

	c.JSON(http.StatusOK, slf.selector.ListAvailable(c.Request.Context(), src))
}

func (slf *workflowHandler) validate(c *gin.Context) {
	var req request.ValidateWorkflow
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: "Invalid request", Data: err.Error()})
		return
	}

	graph, err := models.ParseGraph(req.Graph)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: "Unparseable workflow graph", Data: err.Error()})
		return
	}

	c.JSON(http.StatusOK, slf.workflows.Validate(graph))
}

func (slf *workflowHandler) recommend(c *gin.Context) {
	reqs := models.WorkflowRequirements{
		NeedsControlNet: c.Query("controlnet") == "true",
		NeedsLora:       c.Query("lora") == "true",
	}
	if v, err := strconv.Atoi(c.Query("steps")); err == nil {
		reqs.PreferredSteps = v
	}
	if v, err := strconv.Atoi(c.Query("maxNodes")); err == nil {
		reqs.MaxNodes = v
	}

	recs, err := slf.workflows.Recommend(reqs)
	if err != nil {
		c.JSON(http.StatusNotFound, response.APIError{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

// unreachableHistory lets the inventory listing proceed without a live
// deployment: every history read fails with the selection error, which
// ListAvailable surfaces as a problem entry.
type unreachableHistory struct{ err error }

func (slf unreachableHistory) History(context.Context, int) (map[string]comfy.HistoryEntry, error) {
	return nil, slf.err
}

func (slf unreachableHistory) HistoryEntry(context.Context, string) (*comfy.HistoryEntry, error) {
	return nil, slf.err
}
