package derivative

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// DefaultQuality 未指定 quality 时使用的质量。
const DefaultQuality = 100

// WidgetConfig 是图片组件的展示配置。
// IDImage 和 ImagePath 至少给一个；两者都有时 ImagePath 决定源文件。
type WidgetConfig struct {
	IDImage     int64
	ImagePath   string // 相对 Root
	Width       int
	Height      int
	Quality     int // 0 表示 DefaultQuality
	ImageName   string
	Ext         string
	Breakpoints string // 逗号分隔的额外宽度，例如 "800,400,200"
	Class       string
	Alt         string
}

// Source 是响应式图片的一个候选尺寸。
type Source struct {
	Width int    `json:"width"`
	Image Result `json:"image"`
}

// Widget 是交给模板渲染的结果；Image 为 nil 表示主图生成失败，调用方应降级。
type Widget struct {
	Image   *Result  `json:"image"`
	Sources []Source `json:"sources"` // 按宽度降序
	Class   string   `json:"class"`
	Alt     string   `json:"alt"`
}

type Renderer struct {
	resizer  *Resizer
	resolver SourceResolver
}

func NewRenderer(resizer *Resizer, resolver SourceResolver) *Renderer {
	return &Renderer{resizer: resizer, resolver: resolver}
}

// Render 生成主图和每个 breakpoint 的衍生图。任何一张失败都只记日志并跳过。
func (r *Renderer) Render(ctx context.Context, cfg WidgetConfig) Widget {
	w := Widget{
		Sources: []Source{},
		Class:   cfg.Class,
		Alt:     cfg.Alt,
	}

	source, name := r.resolveSource(ctx, cfg)
	if source == "" {
		return w
	}

	quality := cfg.Quality
	if quality == 0 {
		quality = DefaultQuality
	}
	req := Request{
		SourcePath:   source,
		MaxWidth:     cfg.Width,
		MaxHeight:    cfg.Height,
		Quality:      quality,
		TargetName:   name,
		TargetFormat: cfg.Ext,
	}
	if res, err := r.resizer.Resize(ctx, req); err != nil {
		slog.Warn("widget image resize failed", "source", source, "err", err)
	} else {
		w.Image = &res
	}

	for _, width := range ParseBreakpoints(cfg.Breakpoints) {
		req.MaxWidth = width
		res, err := r.resizer.Resize(ctx, req)
		if err != nil {
			slog.Warn("widget breakpoint resize failed", "source", source, "width", width, "err", err)
			continue
		}
		w.Sources = append(w.Sources, Source{Width: width, Image: res})
	}
	return w
}

func (r *Renderer) resolveSource(ctx context.Context, cfg WidgetConfig) (string, string) {
	var source string
	name := cfg.ImageName

	if cfg.IDImage > 0 && r.resolver != nil {
		p, err := r.resolver.SourcePath(ctx, cfg.IDImage)
		if err != nil {
			slog.Warn("widget image id not resolved", "id_image", cfg.IDImage, "err", err)
		} else {
			source = p
			if name != "" {
				name = strconv.FormatInt(cfg.IDImage, 10) + "-" + name
			}
		}
	}

	if cfg.ImagePath != "" {
		p, ok := r.LocalPath(cfg.ImagePath)
		if !ok {
			slog.Warn("widget image path rejected", "image_path", cfg.ImagePath)
			return "", name
		}
		source = p
	}
	return source, name
}

// LocalPath 把相对 Root 的路径转成绝对路径；跑出 Root 的路径返回 false。
func (r *Renderer) LocalPath(rel string) (string, bool) {
	rel = filepath.FromSlash(strings.TrimLeft(filepath.ToSlash(rel), "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.Join(r.resizer.Root(), rel), true
}

// ParseBreakpoints 解析 "800, 400,200" 这样的列表：非正数和无法解析的项被忽略，
// 重复项合并，结果按降序排列。
func ParseBreakpoints(s string) []int {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var widths []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			continue
		}
		if !slices.Contains(widths, n) {
			widths = append(widths, n)
		}
	}
	slices.Sort(widths)
	slices.Reverse(widths)
	return widths
}
