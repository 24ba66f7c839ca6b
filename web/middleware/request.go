package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
	requestIDKey    = "requestID"
)

// RequestContext tags every request with an ID and a logger carrying it, then
// logs the outcome.
func RequestContext(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		reqLogger := logger.With(zap.String("request_id", requestID))
		c.Set(requestIDKey, requestID)
		c.Set(loggerKey, reqLogger)
		c.Header(RequestIDHeader, requestID)

		start := time.Now()
		c.Next()

		reqLogger.Info("Request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// LoggerFrom returns the request-scoped logger, or nil outside RequestContext.
func LoggerFrom(c *gin.Context) *zap.Logger {
	v, ok := c.Get(loggerKey)
	if !ok {
		return nil
	}
	logger, _ := v.(*zap.Logger)
	return logger
}

func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
