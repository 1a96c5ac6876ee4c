package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/tenant-billing/internal/handler"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
)

// Recovery turns a panic into the standard internal error envelope. The
// panic value is logged, never returned.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			zerolog.Ctx(c.Request.Context()).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Msg("Request panic recovered")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			handler.RespondError(c, apperrors.Internal(fmt.Errorf("panic: %v", rec)))
		}()
		c.Next()
	}
}
