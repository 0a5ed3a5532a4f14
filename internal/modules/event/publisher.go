// README: Event publisher; on any publish failure it runs the per-kind compensation before failing the caller.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"taxi/internal/apperr"
	"taxi/internal/bus"
	"taxi/internal/infra"
	"taxi/internal/modules/saga"
)

type Compensator interface {
	Submit(ctx context.Context, cmd saga.Command) error
}

type Publisher struct {
	transport bus.Publisher
	saga      Compensator
	timeout   time.Duration
	log       *slog.Logger
}

func NewPublisher(transport bus.Publisher, compensator Compensator, timeout time.Duration, log *slog.Logger) *Publisher {
	return &Publisher{transport: transport, saga: compensator, timeout: timeout, log: log}
}

// Publish sends e and, on failure, waits for its compensation. The request context is detached:
// a disconnected client neither fails the send nor skips the compensation.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	ctx = context.WithoutCancel(ctx)
	topic, ok := e.Kind.Topic()
	if !ok {
		return apperr.Internal("publish event", fmt.Errorf("unknown event kind %q", e.Kind))
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	log := infra.Action(p.log, "PublishEvent").With("kind", string(e.Kind), "ride_id", e.RideID, "event_id", e.EventID)

	err := p.send(ctx, topic, e)
	if err == nil {
		log.Info("event published")
		return nil
	}
	log.Error("event publish failed; compensating", "error", err)

	if cerr := p.saga.Submit(ctx, e.CompensationCommand()); cerr != nil {
		log.Error("compensation failed", "error", cerr)
		return apperr.Internal("publish "+string(e.Kind), errors.Join(err, cerr))
	}
	return apperr.Internal("publish "+string(e.Kind), err)
}

func (p *Publisher) send(ctx context.Context, topic string, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.transport.Send(ctx, topic, strconv.FormatInt(e.RideID, 10), body)
}
