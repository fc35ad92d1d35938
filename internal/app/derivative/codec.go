package derivative

import (
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/chai2010/webp"
)

// Format 是受支持编解码器的封闭集合。
type Format int

const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatPNG
	FormatGIF
	FormatWebP
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatGIF:
		return "gif"
	case FormatWebP:
		return "webp"
	default:
		return "unknown"
	}
}

// ContentType returns the MIME type used when serving a derivative.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatGIF:
		return "image/gif"
	case FormatWebP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// ParseFormat 按扩展名（不含点，大小写不敏感）识别格式，jpg/jpeg 都是 JPEG。
func ParseFormat(ext string) Format {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "gif":
		return FormatGIF
	case "webp":
		return FormatWebP
	default:
		return FormatUnknown
	}
}

type decoder struct {
	config func(io.Reader) (image.Config, error)
	decode func(io.Reader) (image.Image, error)
}

type encodeFunc func(w io.Writer, img image.Image, quality int) error

// 解码与编码能力分开维护：某个格式可以只读或只写。
var decoders = map[Format]decoder{
	FormatJPEG: {config: jpeg.DecodeConfig, decode: jpeg.Decode},
	FormatPNG:  {config: png.DecodeConfig, decode: png.Decode},
	FormatGIF:  {config: gif.DecodeConfig, decode: gif.Decode},
	FormatWebP: {config: webp.DecodeConfig, decode: webp.Decode},
}

var encoders = map[Format]encodeFunc{
	FormatJPEG: func(w io.Writer, img image.Image, quality int) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	},
	FormatWebP: func(w io.Writer, img image.Image, quality int) error {
		return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	},
	// png/gif 没有质量参数，quality 被忽略
	FormatPNG: func(w io.Writer, img image.Image, _ int) error {
		return png.Encode(w, img)
	},
	FormatGIF: func(w io.Writer, img image.Image, _ int) error {
		return gif.Encode(w, img, nil)
	},
}

// CanDecode reports whether f can be read as a source.
func CanDecode(f Format) bool {
	_, ok := decoders[f]
	return ok
}

// CanEncode reports whether f can be written as a derivative.
func CanEncode(f Format) bool {
	_, ok := encoders[f]
	return ok
}
