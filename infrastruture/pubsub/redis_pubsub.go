// Package pubsub adapts Redis Pub/Sub to the broker contract used by the
// matching path. Delivery is at-most-once: a message published to a channel
// with no subscriber is gone, which is exactly the behavior expected of
// ephemeral reply destinations.
package pubsub

import (
	"context"
	"sync"

	"github.com/beka-birhanu/pairpad-api/service/i"
	"github.com/redis/go-redis/v9"
)

const subscriptionBuffer = 16

// RedisPubSub implements the PubSub contract over a shared Redis client.
type RedisPubSub struct {
	client *redis.Client
}

// NewRedisPubSub creates a broker adapter on the given Redis client.
func NewRedisPubSub(client *redis.Client) (i.PubSub, error) {
	return &RedisPubSub{client: client}, nil
}

// Publish sends data to every current subscriber of the topic.
func (r *RedisPubSub) Publish(ctx context.Context, topic string, data []byte) error {
	return r.client.Publish(ctx, topic, data).Err()
}

// Subscribe opens a subscription on the topic. It blocks until Redis has
// confirmed the subscription, so a publish issued after Subscribe returns is
// guaranteed to reach the new subscriber.
func (r *RedisPubSub) Subscribe(ctx context.Context, topic string) (i.Subscription, error) {
	ps := r.client.Subscribe(ctx, topic)

	// Waits for the subscription confirmation from Redis.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub: ps,
		msgs:   make(chan []byte, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go sub.forward(ps.Channel())
	return sub, nil
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	msgs      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// forward copies payloads from the Redis channel until the subscription is
// closed, then closes the message channel so consumers see the teardown.
func (s *redisSubscription) forward(ch <-chan *redis.Message) {
	defer close(s.msgs)
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.msgs <- []byte(m.Payload):
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.msgs
}

func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return s.pubsub.Close()
}
