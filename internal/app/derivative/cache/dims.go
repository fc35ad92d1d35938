package cache

import (
	"image"
	"time"

	"github.com/dgraph-io/ristretto"

	"imgopt.local/internal/platform/metrics"
)

// DimsCache 基于 ristretto 的源图尺寸缓存。
//
// key 里带着源文件的 size 和 mtime，源文件被替换后 key 随之改变，
// 旧条目只会自然过期，不会被读到。
type DimsCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewDimsCache 创建尺寸缓存
// maxItems: 最大缓存条目数（每个条目 cost=1）
func NewDimsCache(maxItems int64) (*DimsCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10, // 计数器数量，建议为 maxItems 的 10 倍
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &DimsCache{
		cache: cache,
		ttl:   time.Hour,
	}, nil
}

func (d *DimsCache) Get(key string) (image.Point, bool) {
	if v, ok := d.cache.Get(key); ok {
		metrics.DerivativeLookups.WithLabelValues("dims", "hit").Inc()
		return v.(image.Point), true
	}
	metrics.DerivativeLookups.WithLabelValues("dims", "miss").Inc()
	return image.Point{}, false
}

func (d *DimsCache) Set(key string, size image.Point) {
	d.cache.SetWithTTL(key, size, 1, d.ttl)
}

// Wait blocks until buffered writes are applied; tests use it before Get.
func (d *DimsCache) Wait() {
	d.cache.Wait()
}

func (d *DimsCache) Close() {
	d.cache.Close()
}
