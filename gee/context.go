package gee

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"
)

type H map[string]any

// abortIndex must be large enough to exceed any real handler index, but not so
// large that nested Next() loops can overflow when multiple stack frames
// increment c.index after Abort().
const abortIndex = math.MaxInt32

type Context struct {
	Writer *ResponseWriter
	Req    *http.Request
	//请求消息
	Path         string
	Method       string
	Params       map[string]string
	RoutePattern string
	//中间件
	handlers []HandlerFunc
	index    int
	//engine
	engine *Engine
}

func newContext(w http.ResponseWriter, req *http.Request) *Context {
	return &Context{
		Writer: NewResponseWriter(w),
		Req:    req,
		Path:   req.URL.Path,
		Method: req.Method,
		index:  -1,
	}
}

func (c *Context) Param(key string) string {
	return c.Params[key]
}

func (c *Context) Next() {
	c.index++
	s := len(c.handlers)
	for ; c.index < s && !c.IsAborted(); c.index++ {
		c.handlers[c.index](c)
	}
}

// Query 返回查询参数的第一个值，不存在时为空串
func (c *Context) Query(key string) string {
	return c.Req.URL.Query().Get(key)
}

// QueryInt 解析整数查询参数；缺省返回 def，格式错误返回 error
func (c *Context) QueryInt(key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("query %s: %w", key, err)
	}
	return n, nil
}

func (c *Context) Status(code int) {
	c.Writer.WriteHeader(code)
}

func (c *Context) SetHeader(key string, value string) {
	c.Writer.SetHeader(key, value)
}

func (c *Context) String(code int, format string, values ...any) {
	c.SetHeader("Content-Type", "text/plain; charset=utf-8")
	c.Status(code)
	fmt.Fprintf(c.Writer, format, values...)
}

func (c *Context) JSON(code int, obj any) {
	c.SetHeader("Content-Type", "application/json")
	c.Status(code)
	if err := json.NewEncoder(c.Writer).Encode(obj); err != nil {
		http.Error(c.Writer, err.Error(), http.StatusInternalServerError)
	}
}

// File 直接输出磁盘文件，Range / If-Modified-Since 交给 http.ServeContent 处理。
// contentType 为空时按文件名推断。
func (c *Context) File(name string, contentType string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return os.ErrNotExist
	}
	if contentType != "" {
		c.SetHeader("Content-Type", contentType)
	}
	http.ServeContent(c.Writer, c.Req, st.Name(), st.ModTime(), f)
	return nil
}

func (c *Context) Abort() {
	c.index = abortIndex
}

func (c *Context) IsAborted() bool {
	return c.index >= abortIndex
}

func (c *Context) AbortWithStatus(code int) {
	c.Status(code)
	c.Abort()
}

func (c *Context) AbortWithStatusJSON(code int, obj any) {
	c.Abort()

	if c.Writer.Written() {
		return
	}

	bytes, err := json.Marshal(obj)
	if err != nil {
		code = http.StatusInternalServerError
		bytes = []byte(`{"code":500,"message":"Internal Server Error"}`)
	}
	c.SetHeader("Content-Type", "application/json")
	c.Status(code)
	c.Writer.Write(bytes)
}

func (c *Context) AbortWithError(code int, message string) {
	c.AbortWithStatusJSON(code, NewErrorResponse(c, code, message))
}
