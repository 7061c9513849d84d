package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/PaulBabatuyi/filesync/internal/observability"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Chain returns the standard middleware stack. Recovery sits inside the
// access log and metrics so a recovered panic is recorded with its 500.
func Chain(logger *zap.Logger, metrics *observability.Metrics) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{RequestID(), AccessLog(logger)}
	if metrics != nil {
		chain = append(chain, Metrics(metrics))
	}
	return append(chain, Recovery(logger), CallerIdentity())
}

// Recovery turns a panic into a 500 with the usual error envelope.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", GetRequestID(c)),
			zap.Stack("stack"),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal server error",
		})
	})
}

// Metrics records request counts and latency. Routes are labelled by their
// pattern, never by the raw path, to keep cardinality bounded.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
