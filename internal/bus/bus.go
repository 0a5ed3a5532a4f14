// README: Message bus contracts shared by the call intake consumer and the event publisher.
package bus

import (
	"context"
	"errors"
)

const (
	TopicRideRequest  = "ride-request"
	TopicRideAccept   = "ride-accept"
	TopicRideCancel   = "ride-cancel"
	TopicRideStart    = "ride-start"
	TopicRideComplete = "ride-complete"
)

var ErrClosed = errors.New("bus: transport closed")

// Handler processes one message body. A non-nil error asks the transport to redeliver.
type Handler func(ctx context.Context, body []byte) error

type Publisher interface {
	Send(ctx context.Context, topic, key string, body []byte) error
	Close() error
}

type Subscriber interface {
	// Subscribe blocks until ctx is done or the transport fails.
	Subscribe(ctx context.Context, topic string, fn Handler) error
}
