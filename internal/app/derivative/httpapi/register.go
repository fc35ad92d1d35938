package httpapi

import (
	"time"

	"imgopt.local/gee"
	"imgopt.local/internal/app/derivative"
	"imgopt.local/internal/platform/auth"
	"imgopt.local/internal/platform/httpmiddleware"
)

// FileIndex 判断一个衍生图路径是否可能存在，nil 表示不做过滤
type FileIndex interface {
	MightExist(path string) bool
}

// Admin 是配置里唯一的管理员账号
type Admin struct {
	Username     string
	PasswordHash string
}

type Deps struct {
	Resizer        *derivative.Resizer
	Renderer       *derivative.Renderer
	Index          FileIndex
	Tokens         auth.TokenService
	Admin          Admin
	Limiter        httpmiddleware.Allower
	RenderLimit    int // 每分钟
	DefaultQuality int
}

// RegisterAPIRoutes 挂载 /api/v1 下的 JSON 接口
func RegisterAPIRoutes(api *gee.RouterGroup, d Deps) {
	limit := d.RenderLimit
	if limit <= 0 {
		limit = 300
	}
	api.GET("/images/render", httpmiddleware.RateLimit(d.Limiter, "render", limit, time.Minute), NewRenderHandler(d.Renderer, d.DefaultQuality))

	// 登录 5次/分钟
	api.POST("/admin/login", httpmiddleware.RateLimit(d.Limiter, "login", 5, time.Minute), NewLoginHandler(d.Admin, d.Tokens))

	admin := api.Group("/admin/cache")
	admin.Use(httpmiddleware.RequireRole(d.Tokens, auth.RoleAdmin))
	admin.POST("/clear", NewClearCacheHandler(d.Resizer))
}

// RegisterPublicRoutes 在根路由上挂载缓存文件下载，URL 和 Result.Path 一致，例如 /img/web/a-400x300-80.jpg
func RegisterPublicRoutes(engine *gee.Engine, d Deps) {
	pattern := "/" + d.Resizer.CacheDir() + "/*filepath"
	h := NewFileHandler(d.Resizer, d.Index)
	engine.GET(pattern, h)
	engine.HEAD(pattern, h)
}
