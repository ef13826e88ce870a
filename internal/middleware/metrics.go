package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mesa-scheduler/internal/service"
)

// unmatchedRoute labels requests that hit no route, so probing clients cannot
// grow the path label without bound.
const unmatchedRoute = "unmatched"

// Metrics observes each request against its route template. Requests for the
// skipped paths, typically the Prometheus scrape endpoint, are not recorded.
func Metrics(metrics *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(started))
	}
}
