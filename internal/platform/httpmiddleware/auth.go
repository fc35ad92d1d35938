package httpmiddleware

import (
	"net/http"
	"strings"

	"imgopt.local/gee"
	"imgopt.local/internal/platform/auth"
)

// bearerToken 取出 "Bearer <token>" 里的 token，格式不对返回空串
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireRole 校验 JWT 并要求指定角色，身份写入请求 context
func RequireRole(ts auth.TokenService, role string) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		header := ctx.Req.Header.Get("Authorization")
		if header == "" {
			ctx.AbortWithError(http.StatusUnauthorized, "missing authorization header")
			return
		}
		token := bearerToken(header)
		if token == "" {
			ctx.AbortWithError(http.StatusUnauthorized, "invalid authorization format")
			return
		}
		id, err := ts.Verify(token)
		if err != nil {
			ctx.AbortWithError(http.StatusUnauthorized, "invalid token")
			return
		}
		if id.Role != role {
			ctx.AbortWithError(http.StatusForbidden, "forbidden")
			return
		}
		ctx.Req = ctx.Req.WithContext(auth.WithIdentity(ctx.Req.Context(), id))
		ctx.Next()
	}
}
