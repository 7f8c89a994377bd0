package middleware

import (
	"net/http"
	"strings"
	"time"

	apperrors "physlab/pkg/errors"
	"physlab/pkg/logger"
	"physlab/pkg/utils"

	"github.com/gin-gonic/gin"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware propagates or assigns a request id.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = utils.GenerateRequestID()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// HTTPRecorder receives per-request metrics.
type HTTPRecorder interface {
	RecordHTTPRequest(method, route string, status int, d time.Duration)
}

// RequestLogger logs and records every request once it has been served.
func RequestLogger(log *logger.ContextLogger, metrics HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d := time.Since(start)

		route := c.FullPath()
		if metrics != nil {
			metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), d)
		}
		if route == "" {
			route = c.Request.URL.Path
		}
		log.LogRequest(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), d.Milliseconds())
	}
}

// CORSMiddleware allows the configured origins. "*" allows any origin.
func CORSMiddleware(allowed []string) gin.HandlerFunc {
	anyOrigin := false
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			anyOrigin = true
		}
		set[strings.ToLower(o)] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			_, ok := set[strings.ToLower(origin)]
			if anyOrigin || ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
				c.Header("Vary", "Origin")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// BodyLimitMiddleware rejects bodies larger than limit bytes.
func BodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			abortWithError(c, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "request body too large", http.StatusRequestEntityTooLarge))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
