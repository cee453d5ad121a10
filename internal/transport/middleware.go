package transport

import (
	"fmt"
	"net/http"
	"time"

	"go-vision-analyzer/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDKey = "request_id"

// corsMiddleware allows cross-origin calls from any origin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware attaches a request ID, honoring one supplied by the
// caller. It runs first so every later middleware can log it.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// requestLoggerMiddleware logs request start and end with the request ID
func requestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"ip":         c.ClientIP(),
		}
		logger.WithFields(fields).Info("Request started")

		c.Next()

		fields["status"] = c.Writer.Status()
		logger.WithFields(fields).Info("Request finished")
	}
}

// timingMiddleware measures execution time and reports it in a header
func timingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		logger.WithFields(logrus.Fields{
			"request_id":         c.GetString(requestIDKey),
			"path":               c.Request.URL.Path,
			"processing_time_ms": elapsed.Milliseconds(),
		}).Debug("Request timed")
	}
}

// requestSizeLimiter caps the request body size
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// errorHandler converts errors attached to the gin context into responses
func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   http.StatusText(http.StatusInternalServerError),
				Message: fmt.Sprintf("request processing failed: %v", err),
			})
		}
	}
}
