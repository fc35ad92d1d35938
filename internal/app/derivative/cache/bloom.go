package cache

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"imgopt.local/internal/platform/metrics"
)

// DerivativeIndex 记录写出过的衍生图路径，挡住对不存在文件名的扫描式请求。
//
// 返回 false 表示一定没生成过，可以直接 404；返回 true 仍需查磁盘
// （误判，或者文件已经被清缓存删掉）。
type DerivativeIndex struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewDerivativeIndex 创建布隆过滤器
// expectedItems: 预期衍生图数量
// falsePositiveRate: 误判率（建议 0.01 即 1%）
func NewDerivativeIndex(expectedItems uint, falsePositiveRate float64) *DerivativeIndex {
	return &DerivativeIndex{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

// Add records a root-relative, '/'-separated derivative path.
func (d *DerivativeIndex) Add(p string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter.AddString(p)
}

func (d *DerivativeIndex) MightExist(p string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ok := d.filter.TestString(p)
	if ok {
		metrics.DerivativeLookups.WithLabelValues("bloom", "maybe").Inc()
	} else {
		metrics.DerivativeLookups.WithLabelValues("bloom", "absent").Inc()
	}
	return ok
}

// Count 返回已添加的元素数量（估算）
func (d *DerivativeIndex) Count() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter.ApproximatedSize()
}

// Seed 遍历 root 下的 cacheDir，把已有的衍生图登记进过滤器（进程重启后预热）。
// 临时文件跳过。返回登记的数量。
func (d *DerivativeIndex) Seed(root, cacheDir string) (int, error) {
	base := filepath.Join(root, filepath.FromSlash(cacheDir))
	n := 0
	err := filepath.WalkDir(base, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if p == base && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		d.Add(path.Clean(filepath.ToSlash(rel)))
		n++
		return nil
	})
	return n, err
}
