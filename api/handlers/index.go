package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/services/backend"
	"github.com/meghashyamc/aleph/validation"
)

type CrawlRequest struct {
	Scope string `json:"scope" validate:"required,valid_scope,max=255"`
}

type StatusResponse struct {
	Scopes []backend.ScopeStatus `json:"scopes"`
}

func SetupIndex(router gin.IRoutes, logger logger.Logger, service Backend, validator *validation.Validator) {
	router.POST("/crawl", handleCrawl(service, logger, validator))
	router.GET("/status", handleStatus(service))
}

func handleCrawl(service Backend, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := CrawlRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected params from crawl request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate crawl request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		run, err := service.Crawl(c.Request.Context(), request.Scope)
		if err != nil {
			logger.Warn("could not crawl scope", "scope", request.Scope, "err", err.Error())
			c.Abort()
			writeResponse(c, run, statusForError(err), []string{err.Error()})
			return
		}

		writeResponse(c, run, http.StatusOK, nil)
	}
}

func handleStatus(service Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeResponse(c, StatusResponse{Scopes: service.Status()}, http.StatusOK, nil)
	}
}
