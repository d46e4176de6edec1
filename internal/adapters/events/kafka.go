package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Kafka writes events to a topic keyed by account id, so events of one
// wallet keep their order within a partition.
type Kafka struct {
	writer *kafka.Writer
}

type kafkaOption func(*kafka.Writer)

func KafkaLogger(log *zap.Logger) kafkaOption {
	return func(w *kafka.Writer) {
		if log == nil {
			return
		}
		w.ErrorLogger = kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Warn(fmt.Sprintf(msg, args...))
		})
	}
}

func NewKafka(brokers []string, topic string, options ...kafkaOption) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
	for _, opt := range options {
		opt(w)
	}
	return &Kafka{writer: w}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.AccountID),
		Value: payload,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed write event to kafka: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed close kafka writer: %w", err)
	}
	return nil
}
