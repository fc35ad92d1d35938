package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"imgopt.local/gee"
	"imgopt.local/internal/app/derivative"
)

// NewRenderHandler 按查询参数生成图片组件：主图加每个 breakpoint 一张
//
//	GET /api/v1/images/render?id_image=12&width=400&height=300&breakpoints=800,200
func NewRenderHandler(renderer *derivative.Renderer, defaultQuality int) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		cfg, err := parseWidgetConfig(ctx, defaultQuality)
		if err != nil {
			ctx.AbortWithError(http.StatusBadRequest, err.Error())
			return
		}
		ctx.JSON(http.StatusOK, renderer.Render(ctx.Req.Context(), cfg))
	}
}

type badRequest string

func (e badRequest) Error() string { return string(e) }

func parseWidgetConfig(ctx *gee.Context, defaultQuality int) (derivative.WidgetConfig, error) {
	cfg := derivative.WidgetConfig{
		ImagePath:   strings.TrimSpace(ctx.Query("image_path")),
		ImageName:   ctx.Query("image_name"),
		Ext:         ctx.Query("ext"),
		Breakpoints: ctx.Query("breakpoints"),
		Class:       ctx.Query("class"),
		Alt:         ctx.Query("alt"),
	}

	if v := ctx.Query("id_image"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return cfg, badRequest("invalid id_image")
		}
		cfg.IDImage = id
	}
	if cfg.IDImage == 0 && cfg.ImagePath == "" {
		return cfg, badRequest("id_image or image_path is required")
	}

	var err error
	if cfg.Width, err = ctx.QueryInt("width", 0); err != nil || cfg.Width < 0 {
		return cfg, badRequest("invalid width")
	}
	if cfg.Height, err = ctx.QueryInt("height", 0); err != nil || cfg.Height < 0 {
		return cfg, badRequest("invalid height")
	}
	if defaultQuality < 0 || defaultQuality > 100 {
		defaultQuality = derivative.DefaultQuality
	}
	if cfg.Quality, err = ctx.QueryInt("quality", defaultQuality); err != nil || cfg.Quality < 0 || cfg.Quality > 100 {
		return cfg, badRequest("invalid quality")
	}
	return cfg, nil
}
