package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/validation"
)

type OpenRequest struct {
	Path string `json:"path" validate:"valid_path"`
}

func SetupOpen(router gin.IRoutes, logger logger.Logger, service Backend, validator *validation.Validator) {
	router.POST("/open", handleOpen(service, logger, validator))
}

func handleOpen(service Backend, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := OpenRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected params from open request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate open request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		if err := service.Open(request.Path); err != nil {
			logger.Warn("could not open path", "path", request.Path, "err", err.Error())
			c.Abort()
			writeResponse(c, nil, statusForError(err), []string{err.Error()})
			return
		}

		writeResponse(c, nil, http.StatusNoContent, nil)
	}
}
