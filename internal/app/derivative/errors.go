package derivative

import (
	"errors"
	"fmt"
)

// 领域错误：httpapi 层用 errors.Is 映射到状态码，渲染层据此决定降级（不出图）。
var (
	ErrSourceNotFound     = errors.New("source image not found")
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrCacheDirUnwritable = errors.New("cache directory is not writable")
	ErrDecodeFailed       = errors.New("image decode failed")
	ErrEncodeFailed       = errors.New("image encode failed")
	ErrDeleteFailed       = errors.New("cache delete failed")
)

// DeleteError reports the entry that stopped a cache clear.
// Entries removed before it stay removed.
type DeleteError struct {
	Path string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete %s: %v", e.Path, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

func (e *DeleteError) Is(target error) bool { return target == ErrDeleteFailed }
