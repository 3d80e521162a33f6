package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"docqa/internal/observability/metrics"
)

// Metrics records request count, latency and in-flight gauge per route.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		m.RequestStarted()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RequestFinished(c.Request.Method, path, c.Writer.Status(), time.Since(started))
	}
}
