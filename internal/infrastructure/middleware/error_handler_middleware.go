package middleware

import (
	"net/http"

	apperrors "physlab/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware renders the last error attached to the context as the
// {"error": {...}} envelope.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status, body := apperrors.Response(err)

		if status >= http.StatusInternalServerError {
			logger.Errorw("request failed",
				"code", body.Error.Code,
				"status", status,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err,
			)
		} else {
			logger.Debugw("request rejected",
				"code", body.Error.Code,
				"status", status,
				"path", c.Request.URL.Path,
				"message", body.Error.Message,
			)
		}

		c.JSON(status, body)
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				status, body := apperrors.Response(apperrors.NewInternalError("internal server error"))
				c.AbortWithStatusJSON(status, body)
			}
		}()

		c.Next()
	}
}

func abortWithError(c *gin.Context, err error) {
	status, body := apperrors.Response(err)
	c.AbortWithStatusJSON(status, body)
}
