// clearcache 清空配置的衍生图缓存目录（IMAGE_ROOT/IMAGE_CACHE_DIR），失败时打印出错路径并返回非零
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"imgopt.local/internal/app/derivative"
	"imgopt.local/internal/platform/config"
)

func main() {
	cfg := config.Load()

	resizer, err := derivative.NewResizer(derivative.Options{Root: cfg.ImageRoot, CacheDir: cfg.ImageCacheDir})
	if err != nil {
		log.Fatal(err)
	}

	removed, err := derivative.Clear(resizer.CacheRoot())
	if err != nil {
		var de *derivative.DeleteError
		if errors.As(err, &de) {
			fmt.Fprintf(os.Stderr, "cannot delete %s: %v (removed %d)\n", de.Path, de.Err, removed)
		} else {
			fmt.Fprintf(os.Stderr, "clear %s: %v\n", resizer.CacheRoot(), err)
		}
		os.Exit(1)
	}
	fmt.Printf("cleared %s: %d entries removed\n", resizer.CacheRoot(), removed)
}
