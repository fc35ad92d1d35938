package stats

import (
	"context"
	"time"
)

// Consumer 消费 channel 里的生成事件，攒批后交给 Sink
type Consumer struct {
	sink      Sink
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(sink Sink, collector *ChannelCollector) *Consumer {
	return &Consumer{
		sink:      sink,
		collector: collector,
		batchSize: 100,         //批量写入大小
		interval:  time.Second, //最大等待时间
	}
}

// Run 阻塞消费，ctx 结束或 channel 关闭时把剩余事件写出后返回
func (c *Consumer) Run(ctx context.Context) {
	runBatches(ctx, c.collector.Events(), c.sink, c.batchSize, c.interval)
}

// runBatches 满 batchSize 或每隔 interval 写一次
func runBatches(ctx context.Context, events <-chan GenerateEvent, sink Sink, batchSize int, interval time.Duration) {
	batch := make([]GenerateEvent, 0, batchSize)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushEvents(sink, batch)
			return
		case event, ok := <-events:
			if !ok {
				flushEvents(sink, batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchSize {
				flushEvents(sink, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flushEvents(sink, batch)
				batch = batch[:0]
			}
		}
	}
}
