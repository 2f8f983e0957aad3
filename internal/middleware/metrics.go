package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PixlGalaxy/EagleDocs/internal/service"
)

// Metrics records method, route template, status and latency for every request except
// the listed routes, which are typically probes and the scrape endpoint itself.
// Streaming chat turns are observed once the event stream closes.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		if p != "" {
			skipped[p] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			return
		}
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
