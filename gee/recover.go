package gee

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery 捕获 handler 的 panic，记录调用栈并返回 500。
// 响应头已经写出时只能中止，不再覆盖响应。
func Recovery() HandlerFunc {
	return func(ctx *Context) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				slog.Error("panic recovered",
					"request_id", ctx.Req.Header.Get("X-Request-ID"),
					"method", ctx.Method,
					"path", ctx.Path,
					"panic", err,
					"stack", string(debug.Stack()),
				)
				if ctx.Writer.Written() {
					ctx.Abort()
					return
				}
				ctx.AbortWithError(http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		ctx.Next()
	}
}
