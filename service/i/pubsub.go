package i

import "context"

// Subscription is a live feed of messages from one topic. Closing it releases
// the underlying broker resources; the Messages channel is closed afterwards.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// PubSub is a topic-based message broker with at-most-once delivery to
// subscribers that are connected at publish time.
type PubSub interface {
	// Publish sends data to every current subscriber of the topic.
	Publish(ctx context.Context, topic string, data []byte) error

	// Subscribe opens a new subscription on the topic. The subscription is
	// receiving before Subscribe returns.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}
