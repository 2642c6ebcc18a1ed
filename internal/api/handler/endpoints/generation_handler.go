package endpoints

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"atelier"
	"atelier/internal/api/handler/mapper"
	"atelier/internal/api/handler/middleware"
	"atelier/internal/api/handler/request"
	"atelier/internal/api/handler/response"
	"atelier/internal/api/models"
	"atelier/internal/api/repo"
	"atelier/internal/api/service"
	"atelier/pkg"
)

type generationHandler struct {
	generations *service.GenerationService
	records     *repo.GenerationRepository
	mapper      mapper.GenerationMapper
	config      atelier.AppConfig
	logger      zerolog.Logger
}

func newGenerationHandler(generations *service.GenerationService) *generationHandler {
	return &generationHandler{
		generations: generations,
		records:     repo.NewGenerationRepository(),
		mapper:      mapper.NewGenerationMapper(),
		config:      atelier.GetConfig(),
		logger:      atelier.Logger,
	}
}

func GenerationHandler(router *graceful.Graceful, generations *service.GenerationService) {
	h := newGenerationHandler(generations)

	routes := router.Group("/api/v1/generations")
	routes.Use(middleware.AuthMiddleware(h.config))
	{
		routes.POST("", h.create)
		routes.GET("", h.getAll)
		routes.GET("/stats", h.stats)
		routes.GET("/:id", h.getByID)
	}
}

// create accepts a generation, answers once the workflow is prepared and
// runs the submission in the background
func (slf *generationHandler) create(c *gin.Context) {
	callerID, ok := pkg.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.APIError{Message: "User not authenticated"})
		return
	}

	var req request.CreateGeneration
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		slf.logger.Error().Err(err).Msg("Failed to parse create generation request")
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	prepared, err := slf.generations.Prepare(c.Request.Context(), slf.mapper.ToOptions(req, callerID))
	if err != nil {
		slf.respondSelectionError(c, err)
		return
	}

	// Submission and execution outlive the HTTP request.
	go func() {
		if _, err := slf.generations.Execute(context.Background(), prepared); err != nil {
			slf.logger.Error().Err(err).Uint("recordId", prepared.Record.ID).Msg("Generation execution failed")
		}
	}()

	c.JSON(http.StatusAccepted, slf.mapper.ToAccepted(prepared))
}

// respondSelectionError maps pipeline preparation failures onto API errors
func (slf *generationHandler) respondSelectionError(c *gin.Context, err error) {
	var verr *models.GraphValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, response.APIError{Message: "Workflow failed validation", Data: verr.Report})
	case errors.Is(err, models.ErrNoDeploymentAvailable):
		c.JSON(http.StatusServiceUnavailable, response.APIError{Message: "No healthy deployment available"})
	case errors.Is(err, models.ErrHistoryEntryNotFound),
		errors.Is(err, models.ErrNoWorkflowFound),
		errors.Is(err, models.ErrNoTemplatesAvailable):
		c.JSON(http.StatusNotFound, response.APIError{Message: err.Error()})
	default:
		slf.logger.Error().Err(err).Msg("Failed to prepare generation")
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to prepare generation"})
	}
}

// getAll returns one page of the caller's generations, newest first
func (slf *generationHandler) getAll(c *gin.Context) {
	callerID, ok := pkg.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.APIError{Message: "User not authenticated"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	records, total, err := slf.records.FindPageByCaller(callerID, page, pageSize)
	if err != nil {
		slf.logger.Error().Err(err).Msg("Failed to list generations")
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to retrieve generations"})
		return
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	c.JSON(http.StatusOK, response.Page[response.Generation]{
		Data:       slf.mapper.ToGenerationResponses(records),
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// getByID returns a single generation record
func (slf *generationHandler) getByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: "Invalid ID"})
		return
	}

	record, err := slf.records.FindByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, response.APIError{Message: "Generation not found"})
		return
	}

	c.JSON(http.StatusOK, slf.mapper.ToGenerationResponse(record))
}

// stats returns how many generations sit in each status
func (slf *generationHandler) stats(c *gin.Context) {
	counts, err := slf.records.CountByStatus()
	if err != nil {
		slf.logger.Error().Err(err).Msg("Failed to count generations")
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to retrieve stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"statuses": counts})
}
