package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/beka-birhanu/pairpad-api/service/i"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "test:requests"

// memBroker is an in-process PubSub double with subscriber introspection.
type memBroker struct {
	mu   sync.Mutex
	subs map[string][]*memSub
}

type memSub struct {
	topic  string
	ch     chan []byte
	broker *memBroker
	once   sync.Once
}

func newMemBroker() *memBroker {
	return &memBroker{subs: make(map[string][]*memSub)}
}

func (b *memBroker) Publish(_ context.Context, topic string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs[topic] {
		select {
		case s.ch <- data:
		default:
		}
	}
	return nil
}

func (b *memBroker) Subscribe(_ context.Context, topic string) (i.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &memSub{topic: topic, ch: make(chan []byte, 64), broker: b}
	b.subs[topic] = append(b.subs[topic], s)
	return s, nil
}

func (b *memBroker) subscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

func (s *memSub) Messages() <-chan []byte { return s.ch }

func (s *memSub) Close() error {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		remaining := b.subs[s.topic][:0]
		for _, sub := range b.subs[s.topic] {
			if sub != s {
				remaining = append(remaining, sub)
			}
		}
		if len(remaining) == 0 {
			delete(b.subs, s.topic)
		} else {
			b.subs[s.topic] = remaining
		}
		close(s.ch)
		b.mu.Unlock()
	})
	return nil
}

// respond publishes a response envelope to the destination.
func respond(b *memBroker, replyTo string, correlationID uuid.UUID, payload string) {
	data, _ := json.Marshal(Response{CorrelationID: correlationID, Payload: []byte(payload)})
	_ = b.Publish(context.Background(), replyTo, data)
}

// awaitRequest consumes one request envelope from the topic subscription.
func awaitRequest(t *testing.T, sub i.Subscription) Request {
	t.Helper()
	select {
	case raw := <-sub.Messages():
		var req Request
		require.NoError(t, json.Unmarshal(raw, &req))
		return req
	case <-time.After(time.Second):
		t.Fatal("no request published")
		return Request{}
	}
}

func TestCaller_Call(t *testing.T) {
	t.Run("resolves with the correlated reply", func(t *testing.T) {
		broker := newMemBroker()
		worker, err := broker.Subscribe(context.Background(), testTopic)
		require.NoError(t, err)

		go func() {
			req := awaitRequest(t, worker)
			respond(broker, req.ReplyTo, req.CorrelationID, `{"ok":true}`)
		}()

		caller := NewCaller(broker, testTopic)
		payload, err := caller.Call(context.Background(), []byte(`{"topic":"arrays"}`), time.Second)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(payload))
	})

	t.Run("drops mismatched correlation ids and keeps waiting", func(t *testing.T) {
		broker := newMemBroker()
		worker, err := broker.Subscribe(context.Background(), testTopic)
		require.NoError(t, err)

		go func() {
			req := awaitRequest(t, worker)
			respond(broker, req.ReplyTo, uuid.New(), `{"stale":true}`)
			respond(broker, req.ReplyTo, req.CorrelationID, `{"ok":true}`)
		}()

		caller := NewCaller(broker, testTopic)
		payload, err := caller.Call(context.Background(), []byte(`{}`), time.Second)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(payload))
	})

	t.Run("only the first correlated reply resolves the call", func(t *testing.T) {
		broker := newMemBroker()
		worker, err := broker.Subscribe(context.Background(), testTopic)
		require.NoError(t, err)

		go func() {
			req := awaitRequest(t, worker)
			respond(broker, req.ReplyTo, req.CorrelationID, `{"n":1}`)
			respond(broker, req.ReplyTo, req.CorrelationID, `{"n":2}`)
		}()

		caller := NewCaller(broker, testTopic)
		payload, err := caller.Call(context.Background(), []byte(`{}`), time.Second)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"n":1}`, string(payload))
	})

	t.Run("concurrent calls never receive each other's reply", func(t *testing.T) {
		broker := newMemBroker()
		worker, err := broker.Subscribe(context.Background(), testTopic)
		require.NoError(t, err)

		// The responder publishes both replies to BOTH destinations; the
		// correlation check alone must keep them apart.
		go func() {
			first := awaitRequest(t, worker)
			second := awaitRequest(t, worker)
			for _, dest := range []string{first.ReplyTo, second.ReplyTo} {
				respond(broker, dest, first.CorrelationID, `{"for":"first"}`)
				respond(broker, dest, second.CorrelationID, `{"for":"second"}`)
			}
		}()

		caller := NewCaller(broker, testTopic)

		var wg sync.WaitGroup
		results := make([]string, 2)
		for idx, body := range []string{`{"n":1}`, `{"n":2}`} {
			wg.Add(1)
			go func(idx int, body string) {
				defer wg.Done()
				payload, err := caller.Call(context.Background(), []byte(body), time.Second)
				assert.NoError(t, err)
				results[idx] = string(payload)
			}(idx, body)
			time.Sleep(10 * time.Millisecond) // deterministic request order
		}
		wg.Wait()

		assert.JSONEq(t, `{"for":"first"}`, results[0])
		assert.JSONEq(t, `{"for":"second"}`, results[1])
	})

	t.Run("times out as ErrCallTimeout when no reply arrives", func(t *testing.T) {
		broker := newMemBroker()
		caller := NewCaller(broker, testTopic)

		start := time.Now()
		payload, err := caller.Call(context.Background(), []byte(`{}`), 50*time.Millisecond)
		assert.ErrorIs(t, err, ErrCallTimeout)
		assert.Nil(t, payload)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("caller cancellation aborts the wait", func(t *testing.T) {
		broker := newMemBroker()
		caller := NewCaller(broker, testTopic)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := caller.Call(ctx, []byte(`{}`), time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("reply destination is released on every terminal path", func(t *testing.T) {
		broker := newMemBroker()
		worker, err := broker.Subscribe(context.Background(), testTopic)
		require.NoError(t, err)

		caller := NewCaller(broker, testTopic)

		// Timeout path.
		_, err = caller.Call(context.Background(), []byte(`{}`), 20*time.Millisecond)
		assert.ErrorIs(t, err, ErrCallTimeout)

		// Success path.
		go func() {
			awaitRequest(t, worker) // the timed-out request
			req := awaitRequest(t, worker)
			respond(broker, req.ReplyTo, req.CorrelationID, `{}`)
		}()
		_, err = caller.Call(context.Background(), []byte(`{}`), time.Second)
		assert.NoError(t, err)

		// Only the worker's own topic subscription should remain.
		assert.Equal(t, 1, broker.subscriberCount(testTopic))
		broker.mu.Lock()
		assert.Len(t, broker.subs, 1)
		broker.mu.Unlock()
	})
}
