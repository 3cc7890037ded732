package httputil

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/personas-api/pkg/errors"
)

// QueryInt reads an integer query parameter, falling back to def when the
// parameter is absent or blank.
func QueryInt(c *gin.Context, name string, def int) (int, *errors.FieldError) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &errors.FieldError{Field: name, Message: "must be an integer"}
	}
	return v, nil
}

// ParamID reads a positive integer path parameter.
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Validation("invalid path parameter", errors.FieldError{
			Field:   name,
			Message: "must be a positive integer",
		})
	}
	return id, nil
}
