package derivative

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/image/draw"
	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"

	"imgopt.local/internal/app/derivative/stats"
	"imgopt.local/internal/platform/metrics"
)

// DefaultCacheDir 相对 Root 的默认缓存目录。
const DefaultCacheDir = "img/web"

// TempSuffix 标记写入中的临时文件，它永远不会和缓存文件名相同。
const TempSuffix = ".tmp"

// Request 描述一次衍生图请求。
//
// MaxWidth/MaxHeight 为 0 表示该方向不限制；Quality 只对 jpeg/webp 生效。
// TargetName 为空时沿用源文件名；TargetFormat 为空时沿用源扩展名；
// CacheDir 为空时使用 Resizer 的默认目录。
type Request struct {
	SourcePath   string
	MaxWidth     int
	MaxHeight    int
	Quality      int
	TargetName   string
	TargetFormat string
	CacheDir     string
}

// Result 是成功时返回的衍生图元数据，三个字段要么都有效，要么返回 error。
type Result struct {
	Path   string `json:"path"` // 相对 Root，'/' 分隔
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DimensionCache memoizes header-decoded source sizes.
type DimensionCache interface {
	Get(key string) (image.Point, bool)
	Set(key string, size image.Point)
}

// Index is told about every derivative written to disk.
type Index interface {
	Add(path string)
}

type Options struct {
	Root       string // 绝对路径，缓存目录和 widget 的 image_path 都相对它
	CacheDir   string
	StrictKeys bool // 文件名里加入源文件指纹，源文件替换后自动生成新缓存

	Dims      DimensionCache
	Index     Index
	Collector stats.Collector // nil 时丢弃事件
}

type Resizer struct {
	root       string
	cacheDir   string
	strictKeys bool

	dims      DimensionCache
	index     Index
	collector stats.Collector

	group  singleflight.Group
	tracer trace.Tracer
}

func NewResizer(opts Options) (*Resizer, error) {
	if strings.TrimSpace(opts.Root) == "" {
		return nil, errors.New("derivative: root is empty")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("derivative: resolve root: %w", err)
	}
	cacheDir := trimDir(opts.CacheDir)
	if cacheDir == "" {
		cacheDir = DefaultCacheDir
	}
	if !isLocalDir(cacheDir) {
		return nil, fmt.Errorf("derivative: cache dir %q escapes root", opts.CacheDir)
	}
	collector := opts.Collector
	if collector == nil {
		collector = stats.NopCollector{}
	}
	return &Resizer{
		root:       root,
		cacheDir:   cacheDir,
		strictKeys: opts.StrictKeys,
		dims:       opts.Dims,
		index:      opts.Index,
		collector:  collector,
		tracer:     otel.Tracer("imgopt.local/derivative"),
	}, nil
}

// Root returns the absolute root directory.
func (r *Resizer) Root() string { return r.root }

// CacheDir returns the default cache dir, relative to Root and '/'-separated.
func (r *Resizer) CacheDir() string { return r.cacheDir }

// CacheRoot returns the absolute path of the default cache dir.
func (r *Resizer) CacheRoot() string {
	return filepath.Join(r.root, filepath.FromSlash(r.cacheDir))
}

// Resize 返回满足约束的衍生图；同一组 (名字, 宽, 高, 质量, 扩展名) 只会编码一次。
//
// 缓存命中只看文件是否存在，不校验源文件是否变化（StrictKeys 除外）。
// 预期内的失败（源文件缺失、格式不支持、目录不可写、编解码失败）都以 error 返回。
func (r *Resizer) Resize(ctx context.Context, req Request) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "derivative.Resize", trace.WithAttributes(
		attribute.Int("image.max_width", req.MaxWidth),
		attribute.Int("image.max_height", req.MaxHeight),
		attribute.Int("image.quality", req.Quality),
	))
	defer span.End()

	res, hit, err := r.resize(ctx, req)
	if err != nil {
		metrics.DerivativeOperations.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	if hit {
		metrics.DerivativeOperations.WithLabelValues("hit").Inc()
	} else {
		metrics.DerivativeOperations.WithLabelValues("miss").Inc()
	}
	span.SetAttributes(
		attribute.String("image.path", res.Path),
		attribute.Int("image.width", res.Width),
		attribute.Int("image.height", res.Height),
		attribute.Bool("image.cache_hit", hit),
	)
	return res, nil
}

func (r *Resizer) resize(ctx context.Context, req Request) (Result, bool, error) {
	info, err := os.Stat(req.SourcePath)
	if err != nil {
		return Result{}, false, fmt.Errorf("%w: %s: %v", ErrSourceNotFound, req.SourcePath, err)
	}
	if !info.Mode().IsRegular() {
		return Result{}, false, fmt.Errorf("%w: %s is not a regular file", ErrSourceNotFound, req.SourcePath)
	}

	srcName, srcExt, ok := splitName(req.SourcePath)
	if !ok {
		return Result{}, false, fmt.Errorf("%w: cannot parse file name %q", ErrSourceNotFound, req.SourcePath)
	}

	srcFormat := ParseFormat(srcExt)
	if !CanDecode(srcFormat) {
		return Result{}, false, fmt.Errorf("%w: cannot decode %q", ErrUnsupportedFormat, srcExt)
	}
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(req.TargetFormat), "."))
	if ext == "" {
		ext = strings.ToLower(srcExt)
	}
	dstFormat := ParseFormat(ext)
	if !CanEncode(dstFormat) {
		return Result{}, false, fmt.Errorf("%w: cannot encode %q", ErrUnsupportedFormat, ext)
	}

	baseName := srcName
	if req.TargetName != "" {
		if slug := Slugify(req.TargetName); slug != "" {
			baseName = slug
		}
	}
	if r.strictKeys {
		baseName += DefaultSeparator + fingerprint(req.SourcePath, info)
	}

	relDir, dir, err := r.prepareDir(req.CacheDir)
	if err != nil {
		return Result{}, false, err
	}

	size, err := r.sourceSize(req.SourcePath, info, srcFormat)
	if err != nil {
		return Result{}, false, err
	}

	width, height := FitDimensions(size.X, size.Y, max(req.MaxWidth, 0), max(req.MaxHeight, 0))
	quality := clampQuality(req.Quality)

	filename := baseName + "-" + strconv.Itoa(width) + "x" + strconv.Itoa(height) + "-" + strconv.Itoa(quality) + "." + ext
	res := Result{
		Path:   joinRel(relDir, filename),
		Width:  width,
		Height: height,
	}
	dest := filepath.Join(dir, filename)

	if fileExists(dest) {
		return res, true, nil
	}

	// 同一进程内相同 key 的并发请求只编码一次；跨进程靠 rename 的原子性兜底。
	// 等待者共享结果，发起者断开不能让它们拿到 context.Canceled
	genCtx := context.WithoutCancel(ctx)
	_, err, _ = r.group.Do(dest, func() (any, error) {
		if fileExists(dest) {
			return nil, nil
		}
		return nil, r.generate(genCtx, job{
			source:    req.SourcePath,
			srcFormat: srcFormat,
			dstFormat: dstFormat,
			dir:       dir,
			filename:  filename,
			relPath:   res.Path,
			width:     width,
			height:    height,
			quality:   quality,
		})
	})
	if err != nil {
		return Result{}, false, err
	}
	return res, false, nil
}

type job struct {
	source    string
	srcFormat Format
	dstFormat Format
	dir       string
	filename  string
	relPath   string
	width     int
	height    int
	quality   int
}

func (r *Resizer) generate(ctx context.Context, j job) error {
	_, span := r.tracer.Start(ctx, "derivative.generate", trace.WithAttributes(
		attribute.String("image.format", j.dstFormat.String()),
	))
	defer span.End()
	start := time.Now()

	src, err := decodeFile(j.source, j.srcFormat)
	if err != nil {
		return err
	}

	dst := image.NewRGBA(image.Rect(0, 0, j.width, j.height))
	sb := src.Bounds()
	if sb.Dx() == j.width && sb.Dy() == j.height {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
	} else {
		draw.BiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	}

	written, err := r.writeAtomic(j, dst)
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	metrics.DerivativeEncodeDuration.WithLabelValues(j.dstFormat.String()).Observe(elapsed.Seconds())
	if r.index != nil {
		r.index.Add(j.relPath)
	}
	if written > 0 {
		r.collector.Collect(stats.GenerateEvent{
			Path:      j.relPath,
			Format:    j.dstFormat.String(),
			Width:     j.width,
			Height:    j.height,
			Bytes:     written,
			Duration:  elapsed,
			CreatedAt: time.Now(),
		})
	}
	return nil
}

// writeAtomic 先写同目录下的临时文件，再 rename 到目标位置；
// 任何失败都会删掉临时文件，目标路径上不会出现半截文件。
// 如果别的写入者已经放好了目标文件，丢弃自己的结果并返回 0。
func (r *Resizer) writeAtomic(j job, img image.Image) (int64, error) {
	tmp, err := os.CreateTemp(j.dir, "."+j.filename+".*"+TempSuffix)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheDirUnwritable, err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (int64, error) {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}

	bw := bufio.NewWriter(tmp)
	if err := encoders[j.dstFormat](bw, img, j.quality); err != nil {
		return fail(fmt.Errorf("%w: %s: %v", ErrEncodeFailed, j.dstFormat, err))
	}
	if err := bw.Flush(); err != nil {
		return fail(fmt.Errorf("%w: write %s: %v", ErrEncodeFailed, tmpName, err))
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(fmt.Errorf("%w: chmod %s: %v", ErrEncodeFailed, tmpName, err))
	}
	info, err := tmp.Stat()
	if err != nil {
		return fail(fmt.Errorf("%w: stat %s: %v", ErrEncodeFailed, tmpName, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: close %s: %v", ErrEncodeFailed, tmpName, err)
	}

	dest := filepath.Join(j.dir, j.filename)
	if fileExists(dest) {
		os.Remove(tmpName)
		return 0, nil
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: rename into %s: %v", ErrEncodeFailed, dest, err)
	}
	return info.Size(), nil
}

// prepareDir 返回缓存目录的相对路径和绝对路径，不存在时创建。
// 目录已存在（包括并发创建）不是错误，但必须可写。
func (r *Resizer) prepareDir(cacheDir string) (string, string, error) {
	rel := r.cacheDir
	if cacheDir != "" {
		rel = trimDir(cacheDir)
		if !isLocalDir(rel) {
			return "", "", fmt.Errorf("%w: %q escapes root", ErrCacheDirUnwritable, cacheDir)
		}
	}
	dir := filepath.Join(r.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrCacheDirUnwritable, err)
	}
	// 缓存命中也要求目录可写
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return "", "", fmt.Errorf("%w: %s: %v", ErrCacheDirUnwritable, dir, err)
	}
	return rel, dir, nil
}

func (r *Resizer) sourceSize(name string, info fs.FileInfo, f Format) (image.Point, error) {
	key := name + "|" + strconv.FormatInt(info.Size(), 10) + "|" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
	if r.dims != nil {
		if size, ok := r.dims.Get(key); ok {
			return size, nil
		}
	}

	file, err := os.Open(name)
	if err != nil {
		return image.Point{}, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}
	defer file.Close()

	cfg, err := decoders[f].config(bufio.NewReader(file))
	if err != nil {
		return image.Point{}, fmt.Errorf("%w: read header of %s: %v", ErrDecodeFailed, name, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Point{}, fmt.Errorf("%w: %s has empty dimensions", ErrDecodeFailed, name)
	}
	size := image.Pt(cfg.Width, cfg.Height)
	if r.dims != nil {
		r.dims.Set(key, size)
	}
	return size, nil
}

func decodeFile(name string, f Format) (image.Image, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}
	defer file.Close()

	img, err := decoders[f].decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, name, err)
	}
	return img, nil
}

// splitName 拆出不带扩展名的文件名和扩展名（不含点）。
func splitName(p string) (string, string, bool) {
	base := filepath.Base(p)
	ext := filepath.Ext(base)
	if len(ext) < 2 {
		return "", "", false
	}
	name := strings.TrimSuffix(base, ext)
	if name == "" {
		return "", "", false
	}
	return name, ext[1:], true
}

func fingerprint(name string, info fs.FileInfo) string {
	abs, err := filepath.Abs(name)
	if err != nil {
		abs = name
	}
	sum := xxhash.Sum64String(abs + "|" + strconv.FormatInt(info.Size(), 10) + "|" + strconv.FormatInt(info.ModTime().UnixNano(), 10))
	return fmt.Sprintf("%08x", uint32(sum))
}

func clampQuality(q int) int {
	return min(max(q, 0), 100)
}

func trimDir(dir string) string {
	dir = filepath.ToSlash(strings.TrimSpace(dir))
	return strings.Trim(dir, "/")
}

// isLocalDir 拒绝 ".." 之类会跑出 Root 的目录。
func isLocalDir(rel string) bool {
	if rel == "" {
		return true
	}
	return filepath.IsLocal(filepath.FromSlash(rel))
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}

func fileExists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}
