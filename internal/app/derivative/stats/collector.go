package stats

import (
	"sync"
	"time"
)

// GenerateEvent 每次缓存未命中并成功写出衍生图时产生一条。
type GenerateEvent struct {
	Path      string        `json:"path"` // 相对 Root 的缓存路径
	Format    string        `json:"format"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Bytes     int64         `json:"bytes"`
	Duration  time.Duration `json:"duration"` // 解码+缩放+编码耗时
	CreatedAt time.Time     `json:"created_at"`
}

// Collector 收集器接口（channel / Kafka 两种实现）
type Collector interface {
	Collect(event GenerateEvent)
	Close()
}

// ChannelCollector 基于 channel 的收集器，满了直接丢弃，不阻塞出图。
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan GenerateEvent
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{
		ch: make(chan GenerateEvent, bufferSize),
	}
}

func (c *ChannelCollector) Collect(event GenerateEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
	default:
		// 通道满了，丢弃
	}
}

func (c *ChannelCollector) Events() <-chan GenerateEvent {
	return c.ch
}

func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// NopCollector drops every event.
type NopCollector struct{}

func (NopCollector) Collect(GenerateEvent) {}
func (NopCollector) Close()                {}
