// README: In-process transport used by tests and local runs without a broker.
package bus

import (
	"context"
	"sync"
)

type Message struct {
	Topic string
	Key   string
	Body  []byte
}

// Memory records every sent message and fans it out to subscribers of the topic.
type Memory struct {
	mu     sync.Mutex
	sent   []Message
	subs   map[string][]chan []byte
	fail   error
	closed bool
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]chan []byte)}
}

// FailWith makes subsequent sends return err; nil restores normal delivery.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *Memory) Send(ctx context.Context, topic, key string, body []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.fail != nil {
		err := m.fail
		m.mu.Unlock()
		return err
	}
	cp := append([]byte(nil), body...)
	m.sent = append(m.sent, Message{Topic: topic, Key: key, Body: cp})
	subs := append([]chan []byte(nil), m.subs[topic]...)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- cp:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topic string, fn Handler) error {
	ch := make(chan []byte, 16)
	m.mu.Lock()
	m.subs[topic] = append(m.subs[topic], ch)
	m.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil
		case body := <-ch:
			// Redeliver until handled or cancelled.
			for fn(ctx, body) != nil {
				if ctx.Err() != nil {
					return nil
				}
			}
		}
	}
}

// Sent returns a snapshot of delivered messages.
func (m *Memory) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
