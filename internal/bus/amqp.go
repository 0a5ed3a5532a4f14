// README: RabbitMQ transport over amqp091-go; topic exchange, publisher confirms, persistent delivery.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"taxi/internal/infra"
)

type AMQP struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queuePfx string
	log      *slog.Logger
	mu       sync.Mutex
}

func NewAMQP(url, exchange, queuePrefix string, log *slog.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &AMQP{conn: conn, ch: ch, exchange: exchange, queuePfx: queuePrefix, log: log}, nil
}

// Send publishes with the topic as routing key and waits for the broker confirm.
func (a *AMQP) Send(ctx context.Context, topic, key string, body []byte) error {
	if a.conn.IsClosed() {
		return ErrClosed
	}
	a.mu.Lock()
	conf, err := a.ch.PublishWithDeferredConfirmWithContext(ctx, a.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Body:         body,
	})
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", topic, err)
	}
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("amqp confirm %s: %w", topic, err)
	}
	if !acked {
		return fmt.Errorf("amqp publish %s: broker nacked", topic)
	}
	return nil
}

func (a *AMQP) Subscribe(ctx context.Context, topic string, fn Handler) error {
	ch, err := a.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	queue := a.queuePfx + "." + topic
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, topic, a.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	log := infra.Action(a.log, "amqp_consume").With("queue", queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrClosed
			}
			if err := fn(ctx, d.Body); err != nil {
				log.Warn("handler failed, requeueing", "error", err)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (a *AMQP) Close() error {
	if a.ch != nil && !a.ch.IsClosed() {
		if err := a.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if a.conn != nil && !a.conn.IsClosed() {
		if err := a.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}
