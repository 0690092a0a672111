// internal/middleware/logging_middleware.go
package middleware

import (
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"gnss-configurator/internal/utils"
)

// probePaths are polled by supervisors and only logged at debug level
var probePaths = []string{"/health", "/ready", "/live"}

// LoggingMiddleware logs every API request once it completes
func LoggingMiddleware(logger *utils.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		logger.LogAPIRequest(utils.APIRequestLog{
			Method:    c.Request.Method,
			Route:     c.FullPath(),
			Path:      c.Request.URL.Path,
			ClientIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			RequestID: c.GetString(utils.RequestIDKey),
			Status:    c.Writer.Status(),
			Bytes:     c.Writer.Size(),
			Duration:  time.Since(startTime),
			Probe:     slices.Contains(probePaths, c.Request.URL.Path),
		})
	}
}
