package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
	"github.com/jwalitptl/tenant-billing/pkg/validator"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// NewValidationResponse lists the offending fields of a rejected body.
func NewValidationResponse(err error) *Response {
	return &Response{
		Status:  "error",
		Message: validator.Summary(err),
		Data:    gin.H{"errors": validator.Describe(err)},
	}
}

// RespondError writes err with the status of its AppError class. Internal
// details and the reason for authentication failures are never exposed.
func RespondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}
	status := appErr.StatusCode()

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}
	_ = c.Error(err)

	c.AbortWithStatusJSON(status, NewErrorResponse(appErr.Message))
}

// BindJSON binds the request body and writes a 400 when it is invalid.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, NewValidationResponse(err))
		return false
	}
	return true
}
