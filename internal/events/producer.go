// Package events publishes committed state changes to a kafka topic as an
// audit stream. Delivery is best-effort and never gates the operation that
// produced the change.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-events/internal/rides"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &Producer{writer: w}
}

// Publish writes the change keyed by ride id, so changes to one ride land in
// partition order.
func (p *Producer) Publish(ctx context.Context, c rides.Change) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(c.RideID), Value: b})
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
