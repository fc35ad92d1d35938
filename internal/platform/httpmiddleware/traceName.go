package httpmiddleware

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"imgopt.local/gee"
)

// TraceName 把 otelhttp 创建的 span 重命名为 "METHOD /route/pattern"
func TraceName() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		span := trace.SpanFromContext(ctx.Req.Context())
		if ctx.RoutePattern != "" {
			span.SetName(ctx.Method + " " + ctx.RoutePattern)
			span.SetAttributes(attribute.String("http.route", ctx.RoutePattern))
		}
		ctx.Next()
	}
}
