package gee

import (
	"log/slog"
	"net/http"
	"strings"
)

type Engine struct {
	*RouterGroup
	router   *router
	groups   []*RouterGroup
	noMethod []HandlerFunc
	noRoute  []HandlerFunc
}

type RouterGroup struct {
	prefix      string
	middlewares []HandlerFunc
	parent      *RouterGroup
	engine      *Engine
}

func New() *Engine {
	engine := &Engine{
		router: newRouter(),
	}
	engine.noRoute = []HandlerFunc{func(ctx *Context) { ctx.AbortWithError(http.StatusNotFound, "not found") }}
	engine.noMethod = []HandlerFunc{func(ctx *Context) { ctx.AbortWithError(http.StatusMethodNotAllowed, "method not allowed") }}
	engine.RouterGroup = &RouterGroup{engine: engine}
	engine.groups = []*RouterGroup{engine.RouterGroup}
	return engine
}

func (e *Engine) NoRoute(handlers ...HandlerFunc) {
	e.noRoute = handlers
}

func (e *Engine) NoMethod(handlers ...HandlerFunc) {
	e.noMethod = handlers
}

// Group 创建子路由组，前缀和中间件按父子顺序叠加
func (group *RouterGroup) Group(prefix string) *RouterGroup {
	engine := group.engine
	newGroup := &RouterGroup{
		prefix: group.prefix + prefix,
		parent: group,
		engine: engine,
	}
	engine.groups = append(engine.groups, newGroup)
	return newGroup
}

// Use 添加中间件
func (group *RouterGroup) Use(middlewares ...HandlerFunc) {
	group.middlewares = append(group.middlewares, middlewares...)
}

func (group *RouterGroup) Handle(method string, comp string, handlers ...HandlerFunc) {
	pattern := group.prefix + comp
	slog.Debug("route registered", "method", method, "pattern", pattern)
	group.engine.router.addRoute(method, pattern, handlers...)
}

func (group *RouterGroup) GET(pattern string, handlers ...HandlerFunc) {
	group.Handle(http.MethodGet, pattern, handlers...)
}

func (group *RouterGroup) HEAD(pattern string, handlers ...HandlerFunc) {
	group.Handle(http.MethodHead, pattern, handlers...)
}

func (group *RouterGroup) POST(pattern string, handlers ...HandlerFunc) {
	group.Handle(http.MethodPost, pattern, handlers...)
}

func (group *RouterGroup) DELETE(pattern string, handlers ...HandlerFunc) {
	group.Handle(http.MethodDelete, pattern, handlers...)
}

// ServeHTTP implements http.Handler interface
func (e *Engine) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var middlewares []HandlerFunc
	for _, group := range e.groups {
		if strings.HasPrefix(req.URL.Path, group.prefix) {
			middlewares = append(middlewares, group.middlewares...)
		}
	}
	ctx := newContext(w, req)
	ctx.handlers = middlewares
	ctx.engine = e
	e.router.handle(ctx)
}
