package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemory_SendRecordsAndFansOut(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	go func() {
		_ = m.Subscribe(ctx, TopicRideRequest, func(_ context.Context, body []byte) error {
			got <- string(body)
			return nil
		})
	}()
	waitForSubscriber(t, m, TopicRideRequest)

	if err := m.Send(ctx, TopicRideRequest, "p@x.com", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case body := <-got:
		if body != `{"a":1}` {
			t.Errorf("body = %s", body)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive message")
	}

	sent := m.Sent()
	if len(sent) != 1 || sent[0].Topic != TopicRideRequest || sent[0].Key != "p@x.com" {
		t.Errorf("unexpected sent log: %+v", sent)
	}
}

func TestMemory_RedeliversUntilHandled(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts int32
	done := make(chan struct{})
	go func() {
		_ = m.Subscribe(ctx, TopicRideAccept, func(_ context.Context, _ []byte) error {
			if atomic.AddInt32(&attempts, 1) < 3 {
				return errors.New("store down")
			}
			close(done)
			return nil
		})
	}()
	waitForSubscriber(t, m, TopicRideAccept)

	if err := m.Send(ctx, TopicRideAccept, "1", []byte("x")); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("message was not redelivered")
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestMemory_FailWith(t *testing.T) {
	m := NewMemory()
	boom := errors.New("broker unavailable")
	m.FailWith(boom)
	if err := m.Send(context.Background(), TopicRideStart, "1", nil); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if len(m.Sent()) != 0 {
		t.Fatal("failed send must not be recorded")
	}
	m.FailWith(nil)
	_ = m.Close()
	if err := m.Send(context.Background(), TopicRideStart, "1", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func waitForSubscriber(t *testing.T, m *Memory, topic string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		n := len(m.subs[topic])
		m.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no subscriber on %s", topic)
}
