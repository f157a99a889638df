package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mentorship-chat/internal/service"
)

type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, apiResponse{Success: true, Message: message, Data: data})
}

func respondFail(c *gin.Context, status int, message string, errs ...string) {
	if errs == nil {
		errs = []string{}
	}
	c.JSON(status, apiResponse{Success: false, Message: message, Errors: errs})
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		respondFail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		respondFail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		respondFail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		respondFail(c, http.StatusBadRequest, err.Error())
	default:
		respondFail(c, http.StatusInternalServerError, "internal server error")
	}
}
