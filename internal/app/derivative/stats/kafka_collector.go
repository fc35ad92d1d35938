package stats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

type KafkaCollector struct {
	writer *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
			Async:    true, // 异步发送
		},
	}
}

func (k *KafkaCollector) Collect(event GenerateEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("generate event marshal failed", "err", err)
		return
	}
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event.Path),
		Value: data,
	}); err != nil {
		slog.Error("kafka write failed", "err", err)
	}
}

func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Error("kafka writer close failed", "err", err)
	}
}
