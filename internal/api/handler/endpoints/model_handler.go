package endpoints

import (
	"net/http"

	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"

	"atelier"
	"atelier/internal/api/handler/middleware"
	"atelier/internal/api/service"
)

type modelHandler struct {
	catalog *service.CatalogService
	config  atelier.AppConfig
}

func newModelHandler(catalog *service.CatalogService) *modelHandler {
	return &modelHandler{
		catalog: catalog,
		config:  atelier.GetConfig(),
	}
}

func ModelHandler(router *graceful.Graceful, catalog *service.CatalogService) {
	h := newModelHandler(catalog)

	routes := router.Group("/api/v1/models")
	routes.Use(middleware.AuthMiddleware(h.config))
	{
		routes.GET("", h.getAll)
		routes.GET("/resolve", h.resolve)
	}
}

func (slf *modelHandler) getAll(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": slf.catalog.List(), "default": slf.catalog.Default().Key})
}

// resolve maps any handle a caller might hold, a key, a checkpoint
// filename or flag text, onto the catalog entry that will serve it.
func (slf *modelHandler) resolve(c *gin.Context) {
	if text := c.Query("flags"); text != "" {
		desc, flags := slf.catalog.ResolveWithFlags(text)
		c.JSON(http.StatusOK, gin.H{"model": desc, "flags": flags})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": slf.catalog.Resolve(c.Query("handle"))})
}
