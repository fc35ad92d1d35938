package derivative

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// maxClearDepth 限制递归深度。符号链接不会被跟随，
// 这里防的是 bind mount 之类造成的目录环。
const maxClearDepth = 64

var errTooDeep = errors.New("directory nesting too deep")

// Clear 删除 root 下的所有文件和子目录，root 本身保留（不存在时创建）。
//
// 符号链接按链接本身删除，不会删到链接目标。遇到第一个删不掉的条目就停下，
// 返回带路径的 *DeleteError；之前已经删掉的不会恢复。写入中的临时文件也会被删除。
// 返回值是已删除的条目数。
func Clear(root string) (int, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return 0, &DeleteError{Path: root, Err: err}
	}
	removed := 0
	err := clearDir(root, 0, &removed)
	return removed, err
}

func clearDir(dir string, depth int, removed *int) error {
	if depth >= maxClearDepth {
		return &DeleteError{Path: dir, Err: errTooDeep}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &DeleteError{Path: dir, Err: fmt.Errorf("read dir: %w", err)}
	}
	for _, entry := range entries {
		current := filepath.Join(dir, entry.Name())
		// DirEntry.Type 来自 lstat：符号链接不会被当成目录
		if entry.IsDir() {
			if err := clearDir(current, depth+1, removed); err != nil {
				return err
			}
		}
		if err := os.Remove(current); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// 并发写入方的临时文件可能已经被 rename 或清理
				continue
			}
			return &DeleteError{Path: current, Err: err}
		}
		*removed++
	}
	return nil
}
