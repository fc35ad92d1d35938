package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"imgopt.local/gee"
	"imgopt.local/internal/app/derivative"
	"imgopt.local/internal/platform/auth"
	"imgopt.local/internal/platform/metrics"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewLoginHandler(admin Admin, ts auth.TokenService) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req LoginRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		if err := auth.CheckCredentials(admin.Username, admin.PasswordHash, req.Username, req.Password); err != nil {
			slog.Warn("admin login rejected", "username", req.Username, "request_id", ctx.Req.Header.Get("X-Request-ID"))
			ctx.AbortWithError(http.StatusUnauthorized, "invalid credentials")
			return
		}
		token, exp, err := ts.Sign(req.Username, auth.RoleAdmin)
		if err != nil {
			slog.Error("sign admin token failed", "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "internal error")
			return
		}
		ctx.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: exp})
	}
}

// Notice 是后台操作结果提示，type 为 success 或 error
type Notice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Removed int    `json:"removed"`
}

// NewClearCacheHandler 清空缓存目录。失败时仍返回已删除数量和出错的路径。
func NewClearCacheHandler(resizer *derivative.Resizer) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, _ := auth.GetIdentity(ctx.Req.Context())
		root := resizer.CacheRoot()

		removed, err := derivative.Clear(root)
		if err != nil {
			metrics.CacheClears.WithLabelValues("error").Inc()
			msg := "cache clear failed"
			var de *derivative.DeleteError
			if errors.As(err, &de) {
				msg = "cannot delete " + de.Path
			}
			slog.Error("cache clear failed", "by", id.Subject, "dir", root, "removed", removed, "err", err)
			ctx.JSON(http.StatusInternalServerError, Notice{Type: "error", Message: msg, Removed: removed})
			return
		}

		metrics.CacheClears.WithLabelValues("success").Inc()
		slog.Info("cache cleared", "by", id.Subject, "dir", root, "removed", removed)
		ctx.JSON(http.StatusOK, Notice{Type: "success", Message: "cache cleared", Removed: removed})
	}
}
