package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/aleph/api/handlers"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/validation"
)

func setupRoutes(router *gin.Engine, logger logger.Logger, backend handlers.Backend, validator *validation.Validator) {
	router.GET("/health", health())

	handlers.SetupSearch(router, logger, backend, validator)
	handlers.SetupOpen(router, logger, backend, validator)
	handlers.SetupIndex(router, logger, backend, validator)
}

func health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	}
}

func newRouter(logger logger.Logger, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.UseRawPath = true
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(logger))
	router.Use(gin.Recovery())
	router.Use(loopbackOnlyMiddleware(logger))
	router.Use(_CORSMiddleware(logger, allowedOrigins))
	router.Use(requireJSONMiddleware(logger))

	return router
}
