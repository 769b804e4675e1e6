package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/weekend-academy-api/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics observes every request by route template. Requests that matched no
// route share one label so probing random URLs cannot grow the series count.
// Paths listed in skip, such as the scrape endpoint itself, are not observed.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
