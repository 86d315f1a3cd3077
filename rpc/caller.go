package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/beka-birhanu/pairpad-api/service/i"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Error types
var (
	// ErrCallTimeout is returned when no correlated reply arrived within the
	// deadline. It is a normal terminal outcome, not a transport failure.
	ErrCallTimeout = errors.New("rpc: call timed out")

	// ErrDestinationClosed is returned when the reply destination was torn
	// down under a waiting call.
	ErrDestinationClosed = errors.New("rpc: reply destination closed")
)

// reply destination name format
const replyTopicFmt = "rpc:reply:%s"

// Caller issues request/response calls over a PubSub broker. One Caller may
// serve any number of concurrent calls; every call owns a fresh correlation id
// and a fresh reply destination, so replies can never cross between calls.
type Caller struct {
	broker i.PubSub
	topic  string
}

// NewCaller creates a Caller publishing requests to the given topic.
func NewCaller(broker i.PubSub, topic string) *Caller {
	return &Caller{
		broker: broker,
		topic:  topic,
	}
}

// Call publishes payload to the caller's topic and blocks until a reply with
// the matching correlation id arrives, the timeout elapses, or ctx is
// canceled. Replies carrying a foreign correlation id, and frames that do not
// decode as a response envelope, are dropped and the wait continues.
//
// The reply destination is subscribed before the request is published and is
// released on every terminal path. At most one reply is ever accepted.
func (c *Caller) Call(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	correlationID := uuid.New()
	replyTo := fmt.Sprintf(replyTopicFmt, uuid.New())

	sub, err := c.broker.Subscribe(ctx, replyTo)
	if err != nil {
		return nil, fmt.Errorf("rpc: opening reply destination: %w", err)
	}
	defer func() {
		_ = sub.Close()
	}()

	data, err := json.Marshal(Request{
		CorrelationID: correlationID,
		ReplyTo:       replyTo,
		Payload:       payload,
	})
	if err != nil {
		return nil, fmt.Errorf("rpc: encoding request: %w", err)
	}

	if err := c.broker.Publish(ctx, c.topic, data); err != nil {
		return nil, fmt.Errorf("rpc: publishing request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrCallTimeout
		case raw, ok := <-sub.Messages():
			if !ok {
				return nil, ErrDestinationClosed
			}

			var resp Response
			if err := json.Unmarshal(raw, &resp); err != nil {
				log.Warn().Str("module", "rpc").Err(err).Msg("undecodable reply, dropping")
				continue
			}
			if resp.CorrelationID != correlationID {
				log.Warn().Str("module", "rpc").Str("got", resp.CorrelationID.String()).Msg("correlation id does not match, dropping")
				continue
			}

			return resp.Payload, nil
		}
	}
}
