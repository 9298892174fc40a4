package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/aleph/db/searchdb"
	"github.com/meghashyamc/aleph/services/apps"
	"github.com/meghashyamc/aleph/services/backend"
	"github.com/meghashyamc/aleph/services/index"
	"github.com/meghashyamc/aleph/services/opener"
	"github.com/meghashyamc/aleph/services/search"
)

// Backend is what the HTTP layer needs from the search backend.
type Backend interface {
	SearchFiles(ctx context.Context, query string) ([]search.ScoredResult, error)
	SearchApps(ctx context.Context, query string) ([]apps.Result, error)
	Open(path string) error
	Crawl(ctx context.Context, scopeName string) (*index.Run, error)
	Status() []backend.ScopeStatus
}

type response struct {
	Data   any      `json:"data"`
	Errors []string `json:"errors"`
}

func writeResponse(c *gin.Context, data interface{}, statusCode int, errors []string) {

	if statusCode == http.StatusNoContent {
		c.Status(statusCode)
		return

	}

	response := response{
		Data:   data,
		Errors: errors,
	}

	c.JSON(statusCode, response)
}

// statusForError maps backend errors to the status code reported to the client.
func statusForError(err error) int {
	switch {
	case errors.Is(err, searchdb.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, opener.ErrPathNotFound), errors.Is(err, backend.ErrUnknownScope):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
