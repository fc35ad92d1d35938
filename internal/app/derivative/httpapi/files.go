package httpapi

import (
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"imgopt.local/gee"
	"imgopt.local/internal/app/derivative"
)

// NewFileHandler 输出缓存目录里已经生成的衍生图。
// 写入中的临时文件和索引里从没出现过的名字直接 404，不碰磁盘。
func NewFileHandler(resizer *derivative.Resizer, index FileIndex) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		name := strings.TrimLeft(ctx.Param("filepath"), "/")
		if name == "" || strings.HasSuffix(name, derivative.TempSuffix) || !filepath.IsLocal(filepath.FromSlash(name)) {
			ctx.AbortWithError(http.StatusNotFound, "not found")
			return
		}
		base := path.Base(name)
		if strings.HasPrefix(base, ".") {
			ctx.AbortWithError(http.StatusNotFound, "not found")
			return
		}

		rel := resizer.CacheDir() + "/" + name
		if index != nil && !index.MightExist(rel) {
			ctx.AbortWithError(http.StatusNotFound, "not found")
			return
		}

		format := derivative.ParseFormat(strings.TrimPrefix(path.Ext(base), "."))
		ctx.SetHeader("Cache-Control", "public, max-age=31536000, immutable")
		if err := ctx.File(filepath.Join(resizer.CacheRoot(), filepath.FromSlash(name)), format.ContentType()); err != nil {
			ctx.SetHeader("Cache-Control", "no-store")
			ctx.AbortWithError(http.StatusNotFound, "not found")
			return
		}
	}
}
