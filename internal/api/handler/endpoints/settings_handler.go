package endpoints

import (
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
	"atelier/internal/api/repo"
	"atelier/pkg"
)

type settingsHandler struct {
	settings *repo.SettingsRepository
	config   atelier.AppConfig
	logger   zerolog.Logger
}

func newSettingsHandler() *settingsHandler {
	return &settingsHandler{
		settings: repo.NewSettingsRepository(),
		config:   atelier.GetConfig(),
		logger:   atelier.Logger,
	}
}

func SettingsHandler(router *graceful.Graceful) {
	h := newSettingsHandler()

	routes := router.Group("/api/v1/settings")
	routes.Use(middleware.AuthMiddleware(h.config))
	{
		routes.GET("/:callerId", h.get)
		routes.PUT("/:callerId", h.update)
		routes.DELETE("/:callerId", h.delete)
	}
}

// callerID resolves the path parameter, falling back to the
// authenticated caller when the parameter is "me".
func (slf *settingsHandler) callerID(c *gin.Context) (uint, bool) {
	raw := c.Param("callerId")
	if raw == "me" {
		id, ok := pkg.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, response.APIError{Message: "Unauthorized"})
			return 0, false
		}
		return id, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: "Invalid caller ID"})
		return 0, false
	}
	return uint(id), true
}

func (slf *settingsHandler) get(c *gin.Context) {
	callerID, ok := slf.callerID(c)
	if !ok {
		return
	}

	settings, err := slf.settings.Find(callerID)
	if err != nil {
		slf.logger.Error().Err(err).Uint("callerId", callerID).Msg("Failed to load caller settings")
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to load settings"})
		return
	}
	if settings == nil {
		settings = &models.CallerSettings{}
	}
	c.JSON(http.StatusOK, settings)
}

func (slf *settingsHandler) update(c *gin.Context) {
	callerID, ok := slf.callerID(c)
	if !ok {
		return
	}

	var req request.UpdateSettings
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: "Invalid request", Data: err.Error()})
		return
	}

	settings := models.CallerSettings{
		DefaultModel:   req.DefaultModel,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
	}
	if err := slf.settings.Save(callerID, settings); err != nil {
		slf.logger.Error().Err(err).Uint("callerId", callerID).Msg("Failed to save caller settings")
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to save settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (slf *settingsHandler) delete(c *gin.Context) {
	callerID, ok := slf.callerID(c)
	if !ok {
		return
	}

	if err := slf.settings.Delete(callerID); err != nil {
		slf.logger.Error().Err(err).Uint("callerId", callerID).Msg("Failed to delete caller settings")
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to delete settings"})
		return
	}
	c.Status(http.StatusNoContent)
}
