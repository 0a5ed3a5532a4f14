// README: Call intake consumer; records every ride-request message in the geo index.
package call

import (
	"context"
	"encoding/json"
	"log/slog"

	"taxi/internal/apperr"
	"taxi/internal/bus"
	"taxi/internal/infra"
)

type Intake struct {
	sub bus.Subscriber
	svc *Service
	log *slog.Logger
}

func NewIntake(sub bus.Subscriber, svc *Service, log *slog.Logger) *Intake {
	return &Intake{sub: sub, svc: svc, log: infra.Action(log, "CallIntake")}
}

func (in *Intake) Run(ctx context.Context) error {
	in.log.Info("call intake started", "topic", bus.TopicRideRequest)
	return in.sub.Subscribe(ctx, bus.TopicRideRequest, in.Handle)
}

// Handle drops messages that can never succeed and returns store failures for redelivery.
func (in *Intake) Handle(ctx context.Context, body []byte) error {
	var r Request
	if err := json.Unmarshal(body, &r); err != nil {
		in.log.Error("malformed call request dropped", "error", err)
		return nil
	}
	err := in.svc.Record(ctx, r)
	switch {
	case err == nil:
		in.log.Debug("call recorded", "passenger_id", r.PassengerID)
		return nil
	case apperr.KindOf(err) == apperr.KindBadRequest:
		in.log.Warn("invalid call request dropped", "passenger_id", r.PassengerID, "error", err)
		return nil
	default:
		in.log.Error("record call failed", "passenger_id", r.PassengerID, "error", err)
		return err
	}
}
