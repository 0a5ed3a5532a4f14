package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"taxi/internal/apperr"
	"taxi/internal/bus"
	"taxi/internal/modules/saga"
)

type fakeCompensator struct {
	cmds []saga.Command
	err  error
}

func (f *fakeCompensator) Submit(_ context.Context, cmd saga.Command) error {
	f.cmds = append(f.cmds, cmd)
	return f.err
}

func newTestPublisher() (*Publisher, *bus.Memory, *fakeCompensator) {
	mem := bus.NewMemory()
	comp := &fakeCompensator{}
	return NewPublisher(mem, comp, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil))), mem, comp
}

func TestPublish_SendsToKindTopic(t *testing.T) {
	pub, mem, comp := newTestPublisher()

	e := Event{Kind: KindAccept, RideID: 42, Status: "ACCEPT", PassengerEmail: "p@taxi.com", DriverUserID: 2}
	if err := pub.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	sent := mem.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].Topic != bus.TopicRideAccept || sent[0].Key != "42" {
		t.Errorf("unexpected routing: %+v", sent[0])
	}
	var got Event
	if err := json.Unmarshal(sent[0].Body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventID == "" || got.OccurredAt.IsZero() {
		t.Errorf("eventId/timestamp not stamped: %+v", got)
	}
	if got.PassengerEmail != "p@taxi.com" || got.RideID != 42 {
		t.Errorf("payload mismatch: %+v", got)
	}
	if len(comp.cmds) != 0 {
		t.Errorf("no compensation expected, got %+v", comp.cmds)
	}
}

func TestPublish_FailureCompensatesPerKind(t *testing.T) {
	cases := []struct {
		kind Kind
		want saga.Action
	}{
		{KindAccept, saga.ActionRevert},
		{KindCancel, saga.ActionRevert},
		{KindStart, saga.ActionForceStart},
		{KindComplete, saga.ActionForceComplete},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			pub, mem, comp := newTestPublisher()
			mem.FailWith(errors.New("broker unreachable"))

			err := pub.Publish(context.Background(), Event{Kind: tc.kind, RideID: 9, DriverUserID: 3, Fare: 50000})
			if apperr.KindOf(err) != apperr.KindInternal {
				t.Fatalf("expected internal error, got %v", err)
			}
			if len(comp.cmds) != 1 {
				t.Fatalf("expected 1 compensation, got %d", len(comp.cmds))
			}
			cmd := comp.cmds[0]
			if cmd.Action != tc.want || cmd.RideID != 9 || cmd.DriverUserID != 3 || cmd.Fare != 50000 {
				t.Errorf("unexpected command: %+v", cmd)
			}
		})
	}
}

func TestPublish_CompensationFailureIsReported(t *testing.T) {
	pub, mem, comp := newTestPublisher()
	sendErr := errors.New("broker unreachable")
	mem.FailWith(sendErr)
	comp.err = errors.New("db down")

	err := pub.Publish(context.Background(), Event{Kind: KindAccept, RideID: 1})
	if !errors.Is(err, sendErr) || !errors.Is(err, comp.err) {
		t.Fatalf("expected both causes in %v", err)
	}
}

func TestPublish_UnknownKind(t *testing.T) {
	pub, mem, comp := newTestPublisher()
	err := pub.Publish(context.Background(), Event{Kind: "ride-teleport", RideID: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(mem.Sent()) != 0 || len(comp.cmds) != 0 {
		t.Error("unknown kind must not send or compensate")
	}
}

type countingHandler struct {
	n atomic.Int64
}

func (h *countingHandler) Compensate(context.Context, saga.Command) error {
	h.n.Add(1)
	return nil
}

func TestPublish_CancelledRequestStillCompensates(t *testing.T) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := bus.NewMemory()
	mem.FailWith(context.Canceled)

	h := &countingHandler{}
	q := saga.NewQueue(2, 1, time.Millisecond, discard)
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go q.Run(runCtx, h)
	pub := NewPublisher(mem, q, time.Second, discard)

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()

	const n = 200
	for i := 0; i < n; i++ {
		err := pub.Publish(reqCtx, Event{Kind: KindAccept, RideID: int64(i + 1), DriverUserID: 2})
		if apperr.KindOf(err) != apperr.KindInternal {
			t.Fatalf("publish %d: expected internal error, got %v", i, err)
		}
	}
	if got := h.n.Load(); got != n {
		t.Fatalf("expected %d compensations, got %d", n, got)
	}
}

func TestPublish_CancelledRequestDoesNotAbortSend(t *testing.T) {
	pub, mem, comp := newTestPublisher()

	received := make(chan struct{}, 1)
	subCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() {
		_ = mem.Subscribe(subCtx, bus.TopicRideStart, func(context.Context, []byte) error {
			select {
			case received <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	// Wait until the subscriber is registered.
	deadline := time.Now().Add(time.Second)
	for ready := false; !ready; {
		_ = mem.Send(context.Background(), bus.TopicRideStart, "0", []byte("{}"))
		select {
		case <-received:
			ready = true
		case <-time.After(5 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("subscriber never registered")
			}
		}
	}

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()
	const n = 50
	for i := 0; i < n; i++ {
		if err := pub.Publish(reqCtx, Event{Kind: KindStart, RideID: int64(i + 1)}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if len(comp.cmds) != 0 {
		t.Errorf("no compensation expected, got %d", len(comp.cmds))
	}
}
