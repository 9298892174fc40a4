package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/services/apps"
	"github.com/meghashyamc/aleph/services/search"
	"github.com/meghashyamc/aleph/validation"
)

type SearchRequest struct {
	Query string `form:"query" validate:"valid_query,max=1000"`
}

type SearchResponse struct {
	Results []search.ScoredResult `json:"results"`
}

type AppsResponse struct {
	Results []apps.Result `json:"results"`
}

func SetupSearch(router gin.IRoutes, logger logger.Logger, service Backend, validator *validation.Validator) {
	router.GET("/search", handleSearchFiles(service, logger, validator))
	router.GET("/apps", handleSearchApps(service, logger, validator))
}

func bindSearchRequest(c *gin.Context, logger logger.Logger, validator *validation.Validator) (SearchRequest, bool) {
	request := SearchRequest{}
	if err := c.ShouldBindQuery(&request); err != nil {
		logger.Warn("could not extract expected params from search request", "err", err.Error())
		c.Abort()
		writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request parameters"})
		return request, false
	}

	if err := validator.Validate(request); err != nil {
		logger.Warn("could not validate search request", "err", err.Error())
		c.Abort()
		writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
		return request, false
	}
	return request, true
}

func handleSearchFiles(service Backend, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request, ok := bindSearchRequest(c, logger, validator)
		if !ok {
			return
		}

		results, err := service.SearchFiles(c.Request.Context(), request.Query)
		if err != nil {
			logger.Error("file search failed", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, statusForError(err), []string{err.Error()})
			return
		}

		writeResponse(c, SearchResponse{Results: results}, http.StatusOK, nil)
	}
}

func handleSearchApps(service Backend, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request, ok := bindSearchRequest(c, logger, validator)
		if !ok {
			return
		}

		results, err := service.SearchApps(c.Request.Context(), request.Query)
		if err != nil {
			logger.Error("application search failed", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, statusForError(err), []string{err.Error()})
			return
		}

		writeResponse(c, AppsResponse{Results: results}, http.StatusOK, nil)
	}
}
