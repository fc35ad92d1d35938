package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sink 是一批生成事件的最终去处
type Sink interface {
	Write(ctx context.Context, events []GenerateEvent) error
}

const insertEventSQL = `INSERT INTO derivative_events (path,format,width,height,bytes,duration_ms,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`

// PGSink 写入 derivative_events 表，一批一个 pgx.Batch
type PGSink struct {
	db *pgxpool.Pool
}

func NewPGSink(db *pgxpool.Pool) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) Write(ctx context.Context, events []GenerateEvent) error {
	b := &pgx.Batch{}
	for _, e := range events {
		b.Queue(insertEventSQL, e.Path, e.Format, e.Width, e.Height, e.Bytes, e.Duration.Milliseconds(), e.CreatedAt)
	}
	return s.db.SendBatch(ctx, b).Close()
}

// LogSink 没有数据库时使用，只汇总到日志
type LogSink struct{}

func (LogSink) Write(_ context.Context, events []GenerateEvent) error {
	var bytes int64
	for _, e := range events {
		bytes += e.Bytes
	}
	slog.Info("derivatives generated", "count", len(events), "bytes", bytes)
	return nil
}

// flushEvents 失败只记日志，统计丢了不影响出图
func flushEvents(sink Sink, events []GenerateEvent) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sink.Write(ctx, events); err != nil {
		slog.Error("generate events: flush failed", "err", err, "count", len(events))
		return
	}
	slog.Debug("generate events: flushed", "count", len(events))
}
