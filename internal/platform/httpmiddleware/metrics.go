package httpmiddleware

import (
	"strconv"
	"time"

	"imgopt.local/gee"
	"imgopt.local/internal/platform/metrics"
)

// Metrics 按路由模板记录请求数和耗时；未匹配的路由统一记为 UNMATCHED
func Metrics() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		start := time.Now()
		metrics.HTTPInflightRequests.Inc()
		defer metrics.HTTPInflightRequests.Dec()

		ctx.Next()

		route := ctx.RoutePattern
		if route == "" {
			route = "UNMATCHED"
		}
		status := strconv.Itoa(ctx.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(ctx.Method, route, status).Inc()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(ctx.Method, route).Observe(time.Since(start).Seconds())
	}
}
