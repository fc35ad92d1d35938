package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Options struct {
	// Dir 不为空时从磁盘读取脚本，覆盖 FS
	Dir string
	FS  fs.FS
}

type Result struct {
	AppliedFiles []string
	SkippedFiles []string
}

// Up 按文件名顺序执行还没执行过的 .sql 脚本，每个脚本一个事务
func Up(ctx context.Context, db *pgxpool.Pool, opts Options) (*Result, error) {
	fsys := opts.FS
	if strings.TrimSpace(opts.Dir) != "" {
		fsys = os.DirFS(opts.Dir)
	}
	if fsys == nil {
		return nil, fmt.Errorf("migrate: no migrations source")
	}

	files, err := listSQLFiles(fsys)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	if _, err := db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	res := &Result{}
	for _, name := range files {
		var applied bool
		if err := db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, name).Scan(&applied); err != nil {
			return nil, err
		}
		if applied {
			res.SkippedFiles = append(res.SkippedFiles, name)
			continue
		}
		if err := applyFile(ctx, db, fsys, name); err != nil {
			return nil, err
		}
		res.AppliedFiles = append(res.AppliedFiles, name)
	}
	return res, nil
}

// listSQLFiles 只看顶层目录
func listSQLFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(path.Ext(e.Name()), ".sql") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

func applyFile(ctx context.Context, db *pgxpool.Pool, fsys fs.FS, name string) error {
	sqlBytes, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return tx.Commit(ctx)
}
