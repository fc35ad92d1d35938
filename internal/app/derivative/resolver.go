package derivative

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// SourceResolver 把图片实体 id 解析成源文件的绝对路径。
type SourceResolver interface {
	SourcePath(ctx context.Context, id int64) (string, error)
}

// FolderResolver 按商品图目录布局解析：id 123 -> <root>/img/p/1/2/3/123.jpg。
type FolderResolver struct {
	Root string
	Dir  string // 相对 Root，默认 img/p
	Ext  string // 默认 jpg
}

func (f FolderResolver) SourcePath(_ context.Context, id int64) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("%w: invalid image id %d", ErrSourceNotFound, id)
	}
	dir := f.Dir
	if dir == "" {
		dir = "img/p"
	}
	ext := f.Ext
	if ext == "" {
		ext = "jpg"
	}
	digits := strconv.FormatInt(id, 10)
	parts := make([]string, 0, len(digits)+3)
	parts = append(parts, f.Root, filepath.FromSlash(dir))
	for _, d := range digits {
		parts = append(parts, string(d))
	}
	parts = append(parts, digits+"."+strings.TrimPrefix(ext, "."))
	return filepath.Join(parts...), nil
}
