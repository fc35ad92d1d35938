package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"imgopt.local/internal/app/derivative"
)

var ErrImageNotFound = errors.New("image not found")

// ImagesRepo 通过 images 表把图片 id 解析成源文件路径（实现 derivative.SourceResolver）。
// 表里存的是相对 root 的路径。
type ImagesRepo struct {
	db   *pgxpool.Pool
	root string
}

func NewImagesRepo(db *pgxpool.Pool, root string) *ImagesRepo {
	return &ImagesRepo{db: db, root: root}
}

func (r *ImagesRepo) SourcePath(ctx context.Context, id int64) (string, error) {
	dbctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var rel string
	if err := r.db.QueryRow(dbctx, "SELECT path FROM images WHERE id=$1 AND NOT disabled", id).Scan(&rel); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %w: id=%d", derivative.ErrSourceNotFound, ErrImageNotFound, id)
		}
		slog.Error("images: lookup failed", "id", id, "err", err)
		return "", err
	}

	rel = filepath.FromSlash(strings.TrimLeft(rel, "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: stored path for id=%d escapes root", derivative.ErrSourceNotFound, id)
	}
	return filepath.Join(r.root, rel), nil
}

// Register 登记一张源图，返回新 id。
func (r *ImagesRepo) Register(ctx context.Context, rel string) (int64, error) {
	rel = strings.TrimLeft(filepath.ToSlash(strings.TrimSpace(rel)), "/")
	if rel == "" || !filepath.IsLocal(filepath.FromSlash(rel)) {
		return 0, fmt.Errorf("invalid image path %q", rel)
	}
	dbctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var id int64
	if err := r.db.QueryRow(dbctx,
		"INSERT INTO images (path) VALUES ($1) ON CONFLICT (path) DO UPDATE SET disabled=false RETURNING id", rel).
		Scan(&id); err != nil {
		slog.Error("images: register failed", "path", rel, "err", err)
		return 0, err
	}
	return id, nil
}
