// registerimage 把相对 IMAGE_ROOT 的源图登记到 images 表，打印分配的 id
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"imgopt.local/internal/app/derivative/repo"
	"imgopt.local/internal/platform/config"
	"imgopt.local/internal/platform/db"
	"imgopt.local/internal/platform/migrate"
	"imgopt.local/migrations"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: go run ./cmd/tools/registerimage <path relative to IMAGE_ROOT>...")
	}
	cfg := config.Load()
	if cfg.DBDSN == "" {
		log.Fatal("DB_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if _, err := migrate.Up(ctx, pool, migrate.Options{Dir: cfg.MigrationsDir, FS: migrations.FS}); err != nil {
		log.Fatal(err)
	}

	root, err := filepath.Abs(cfg.ImageRoot)
	if err != nil {
		log.Fatal(err)
	}
	images := repo.NewImagesRepo(pool, root)
	for _, rel := range os.Args[1:] {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			log.Fatalf("%s: %v", rel, err)
		}
		id, err := images.Register(ctx, rel)
		if err != nil {
			log.Fatalf("%s: %v", rel, err)
		}
		fmt.Printf("%d\t%s\n", id, rel)
	}
}
