// internal/middleware/recovery_middleware.go
package middleware

import (
	"errors"
	"net/http"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gnss-configurator/internal/utils"
)

// RecoveryMiddleware turns handler panics into a 500 envelope. A panic caused
// by a client that went away aborts without writing a response.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		fields := []zap.Field{
			zap.Any("panic", recovered),
			zap.String("route", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.String("request_id", c.GetString(utils.RequestIDKey)),
		}

		if err, ok := recovered.(error); ok && clientGone(err) {
			logger.Warn("Client connection lost", fields...)
			c.Abort()
			return
		}

		logger.Error("Panic recovered", append(fields, zap.Stack("stacktrace"))...)
		utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", nil)
	})
}

func clientGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
