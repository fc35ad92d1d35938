package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const consumerGroup = "derivative-events-consumer"

type KafkaConsumer struct {
	reader    *kafka.Reader
	sink      Sink
	batchSize int
	interval  time.Duration
}

func NewKafkaConsumer(brokers []string, topic string, sink Sink) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  consumerGroup,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		sink:      sink,
		batchSize: 100,
		interval:  time.Second,
	}
}

func (k *KafkaConsumer) Run(ctx context.Context) {
	// ReadMessage 是阻塞的，单独的协程读，runBatches 负责攒批
	msgCh := make(chan GenerateEvent, k.batchSize)
	go func() {
		defer close(msgCh)
		for {
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("kafka read failed", "err", err)
				continue
			}
			var event GenerateEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				slog.Error("unmarshal generate event failed", "err", err, "offset", msg.Offset)
				continue
			}
			select {
			case msgCh <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	runBatches(ctx, msgCh, k.sink, k.batchSize, k.interval)
}

func (k *KafkaConsumer) Close() {
	if err := k.reader.Close(); err != nil {
		slog.Error("kafka reader close failed", "err", err)
	}
}
