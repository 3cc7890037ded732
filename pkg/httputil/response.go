package httputil

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/personas-api/pkg/errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: StatusSuccess,
		Data:   data,
	}
}

func NewErrorResponse(message string, details interface{}) *Response {
	return &Response{
		Status:  StatusError,
		Message: message,
		Details: details,
	}
}

// RespondWithSuccess sends a success envelope with the given status code
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, NewSuccessResponse(data))
}

// RespondWithError sends an error envelope. A passed request deadline
// anywhere in the chain is a 504. Other errors that are not an AppError are
// reported as a generic 500; their cause is only logged.
func RespondWithError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		appErr = errors.Timeout(err)
	case !ok:
		appErr = errors.Internal(err)
	}

	status := appErr.StatusCode()
	if status == http.StatusGatewayTimeout {
		log.Warn().
			Err(appErr.Unwrap()).
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request timed out")
		c.AbortWithStatusJSON(status, NewErrorResponse(appErr.Message, nil))
		return
	}
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(appErr.Unwrap()).
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		c.AbortWithStatusJSON(status, NewErrorResponse("internal server error", nil))
		return
	}

	c.AbortWithStatusJSON(status, NewErrorResponse(appErr.Message, appErr.Details))
}
