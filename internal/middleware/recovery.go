package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/personas-api/pkg/httputil"
)

// Recovery turns a panic into the generic 500 envelope. The panic value
// and stack only reach the log.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := c.GetString(ContextRequestID)
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("request_id", rid).
				Msg("panic recovered")

			var details interface{}
			if rid != "" {
				details = map[string]string{"request_id": rid}
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				httputil.NewErrorResponse("internal server error", details))
		}()
		c.Next()
	}
}
