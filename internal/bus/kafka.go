// README: Kafka transport over segmentio/kafka-go; synchronous writes acknowledged by all replicas.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"taxi/internal/infra"
)

const redeliverBackoff = time.Second

type Kafka struct {
	brokers []string
	groupID string
	writer  *kafka.Writer
	log     *slog.Logger
}

func NewKafka(brokers []string, groupID string, writeTimeout time.Duration, log *slog.Logger) *Kafka {
	return &Kafka{
		brokers: brokers,
		groupID: groupID,
		log:     log,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Async:                  false,
			WriteTimeout:           writeTimeout,
			AllowAutoTopicCreation: true,
		},
	}
}

// Send writes one message; keys hash to a partition so events of one ride stay ordered.
func (k *Kafka) Send(ctx context.Context, topic, key string, body []byte) error {
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

func (k *Kafka) Subscribe(ctx context.Context, topic string, fn Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		Topic:    topic,
		GroupID:  k.groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	log := infra.Action(k.log, "kafka_consume").With("topic", topic)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch %s: %w", topic, err)
		}
		// Retry the same offset until it is handled; committing only after success keeps at-least-once.
		for {
			err = fn(ctx, msg.Value)
			if err == nil {
				break
			}
			log.Warn("handler failed, redelivering", "offset", msg.Offset, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(redeliverBackoff):
			}
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("kafka commit %s: %w", topic, err)
		}
	}
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
