package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/tradepost/pkg/metrics"
)

const unmatchedRoute = "unmatched"

// Metrics records request latency metrics for each HTTP request. Paths are labelled by their
// route template so ids never become label values.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.APILatency.WithLabelValues(c.Request.Method, routeLabel(c), status).Observe(time.Since(start).Seconds())
	}
}

// routeLabel returns the matched route template, e.g. /api/profiles/:id.
func routeLabel(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return unmatchedRoute
}
