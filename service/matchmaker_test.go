package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/beka-birhanu/pairpad-api/rpc"
	"github.com/beka-birhanu/pairpad-api/service/i"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSub is an in-memory subscription handed out by fakeBroker.
type fakeSub struct {
	broker *fakeBroker
	topic  string
	ch     chan []byte
	once   sync.Once
}

func (s *fakeSub) Messages() <-chan []byte { return s.ch }

func (s *fakeSub) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.once.Do(func() {
		subs := s.broker.subs[s.topic]
		for n, sub := range subs {
			if sub == s {
				s.broker.subs[s.topic] = append(subs[:n], subs[n+1:]...)
				break
			}
		}
		close(s.ch)
	})
	return nil
}

// fakeBroker is an in-memory PubSub. Every publish is recorded per topic,
// subscribers or not, so tests can assert on frames sent to destinations
// nobody is listening on.
type fakeBroker struct {
	mu   sync.Mutex
	subs map[string][]*fakeSub
	log  map[string][][]byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		subs: map[string][]*fakeSub{},
		log:  map[string][][]byte{},
	}
}

func (b *fakeBroker) Publish(_ context.Context, topic string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log[topic] = append(b.log[topic], data)
	for _, s := range b.subs[topic] {
		s.ch <- data
	}
	return nil
}

func (b *fakeBroker) Subscribe(_ context.Context, topic string) (i.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &fakeSub{broker: b, topic: topic, ch: make(chan []byte, 16)}
	b.subs[topic] = append(b.subs[topic], s)
	return s, nil
}

func (b *fakeBroker) published(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.log[topic]...)
}

func (b *fakeBroker) subscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// fakeQueue is an in-memory SortedQueue with the same member and pop semantics
// as the redis one: re-adding a member updates its score, and DequeTops pops
// nothing when fewer than amount members are queued.
type fakeQueue struct {
	mu    sync.Mutex
	items map[string]map[string]float64
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{items: map[string]map[string]float64{}}
}

func (q *fakeQueue) Enqueue(_ context.Context, queueKey string, score float64, member string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items[queueKey] == nil {
		q.items[queueKey] = map[string]float64{}
	}
	q.items[queueKey][member] = score
	return nil
}

func (q *fakeQueue) DequeTops(_ context.Context, queueKey string, amount int64) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	members := q.items[queueKey]
	if int64(len(members)) < amount {
		return nil, nil
	}

	type entry struct {
		member string
		score  float64
	}
	entries := make([]entry, 0, len(members))
	for member, score := range members {
		entries = append(entries, entry{member, score})
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].score < entries[b].score })

	popped := make([]string, 0, amount)
	for _, e := range entries[:amount] {
		delete(members, e.member)
		popped = append(popped, e.member)
	}
	return popped, nil
}

func (q *fakeQueue) Count(_ context.Context, queueKey string) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items[queueKey]))
}

// encodeMatchRequest builds the wire frame a caller would publish for the
// given user and criteria, returning the frame and its correlation id.
func encodeMatchRequest(t *testing.T, userID uuid.UUID, username, topic, difficulty, replyTo string) ([]byte, uuid.UUID) {
	t.Helper()

	payload, err := json.Marshal(matchRequest{
		UserID:     userID,
		Username:   username,
		Topic:      topic,
		Difficulty: difficulty,
	})
	require.NoError(t, err)

	correlationID := uuid.New()
	raw, err := json.Marshal(rpc.Request{
		CorrelationID: correlationID,
		ReplyTo:       replyTo,
		Payload:       payload,
	})
	require.NoError(t, err)
	return raw, correlationID
}

// decodeMatchReply decodes the single frame published to replyTo.
func decodeMatchReply(t *testing.T, broker *fakeBroker, replyTo string) (uuid.UUID, matchResponse) {
	t.Helper()

	frames := broker.published(replyTo)
	require.Len(t, frames, 1)

	var envelope rpc.Response
	require.NoError(t, json.Unmarshal(frames[0], &envelope))
	var resp matchResponse
	require.NoError(t, json.Unmarshal(envelope.Payload, &resp))
	return envelope.CorrelationID, resp
}

func TestMatchmaker_Handle(t *testing.T) {
	ctx := context.Background()
	aliceID := uuid.New()
	bobID := uuid.New()

	t.Run("pairs the two oldest compatible callers", func(t *testing.T) {
		broker := newFakeBroker()
		queue := newFakeQueue()
		mm, err := NewMatchmaker(broker, queue, nil)
		require.NoError(t, err)

		aliceRaw, aliceCorr := encodeMatchRequest(t, aliceID, "alice", "arrays", "easy", "rpc:reply:alice")
		bobRaw, bobCorr := encodeMatchRequest(t, bobID, "bob", "arrays", "easy", "rpc:reply:bob")

		mm.handle(ctx, aliceRaw)
		assert.Empty(t, broker.published("rpc:reply:alice"))

		mm.handle(ctx, bobRaw)

		gotCorr, aliceReply := decodeMatchReply(t, broker, "rpc:reply:alice")
		assert.Equal(t, aliceCorr, gotCorr)
		assert.Equal(t, bobID, aliceReply.PartnerID)
		assert.Equal(t, "bob", aliceReply.PartnerName)
		assert.NotEqual(t, uuid.Nil, aliceReply.MatchedRoomID)

		gotCorr, bobReply := decodeMatchReply(t, broker, "rpc:reply:bob")
		assert.Equal(t, bobCorr, gotCorr)
		assert.Equal(t, aliceID, bobReply.PartnerID)
		assert.Equal(t, "alice", bobReply.PartnerName)
		assert.Equal(t, aliceReply.MatchedRoomID, bobReply.MatchedRoomID)

		assert.Zero(t, queue.Count(ctx, queueKey("arrays", "easy")))
	})

	t.Run("callers with different criteria keep waiting", func(t *testing.T) {
		broker := newFakeBroker()
		queue := newFakeQueue()
		mm, err := NewMatchmaker(broker, queue, nil)
		require.NoError(t, err)

		aliceRaw, _ := encodeMatchRequest(t, aliceID, "alice", "arrays", "easy", "rpc:reply:alice")
		bobRaw, _ := encodeMatchRequest(t, bobID, "bob", "graphs", "hard", "rpc:reply:bob")

		mm.handle(ctx, aliceRaw)
		mm.handle(ctx, bobRaw)

		assert.Empty(t, broker.published("rpc:reply:alice"))
		assert.Empty(t, broker.published("rpc:reply:bob"))
		assert.EqualValues(t, 1, queue.Count(ctx, queueKey("arrays", "easy")))
		assert.EqualValues(t, 1, queue.Count(ctx, queueKey("graphs", "hard")))
	})

	t.Run("redelivered request does not grow the queue", func(t *testing.T) {
		broker := newFakeBroker()
		queue := newFakeQueue()
		mm, err := NewMatchmaker(broker, queue, nil)
		require.NoError(t, err)

		aliceRaw, _ := encodeMatchRequest(t, aliceID, "alice", "arrays", "easy", "rpc:reply:alice")
		mm.handle(ctx, aliceRaw)
		mm.handle(ctx, aliceRaw)

		assert.EqualValues(t, 1, queue.Count(ctx, queueKey("arrays", "easy")))
		assert.Empty(t, broker.published("rpc:reply:alice"))
	})

	t.Run("a user is never matched with themselves", func(t *testing.T) {
		broker := newFakeBroker()
		queue := newFakeQueue()
		mm, err := NewMatchmaker(broker, queue, nil)
		require.NoError(t, err)

		staleRaw, _ := encodeMatchRequest(t, aliceID, "alice", "arrays", "easy", "rpc:reply:alice-stale")
		retryRaw, retryCorr := encodeMatchRequest(t, aliceID, "alice", "arrays", "easy", "rpc:reply:alice-retry")

		mm.handle(ctx, staleRaw)
		mm.handle(ctx, retryRaw)

		// The stale call is dropped; the retried one keeps waiting.
		assert.Empty(t, broker.published("rpc:reply:alice-stale"))
		assert.Empty(t, broker.published("rpc:reply:alice-retry"))
		assert.EqualValues(t, 1, queue.Count(ctx, queueKey("arrays", "easy")))

		bobRaw, _ := encodeMatchRequest(t, bobID, "bob", "arrays", "easy", "rpc:reply:bob")
		mm.handle(ctx, bobRaw)

		gotCorr, reply := decodeMatchReply(t, broker, "rpc:reply:alice-retry")
		assert.Equal(t, retryCorr, gotCorr)
		assert.Equal(t, "bob", reply.PartnerName)
		assert.Empty(t, broker.published("rpc:reply:alice-stale"))
	})

	t.Run("redelivery after a match earns no second response", func(t *testing.T) {
		broker := newFakeBroker()
		queue := newFakeQueue()
		mm, err := NewMatchmaker(broker, queue, nil)
		require.NoError(t, err)

		aliceRaw, _ := encodeMatchRequest(t, aliceID, "alice", "arrays", "easy", "rpc:reply:alice")
		bobRaw, _ := encodeMatchRequest(t, bobID, "bob", "arrays", "easy", "rpc:reply:bob")
		mm.handle(ctx, aliceRaw)
		mm.handle(ctx, bobRaw)
		require.Len(t, broker.published("rpc:reply:alice"), 1)

		// The broker redelivers alice's frame after she was already paired.
		// It must not re-enter the queue.
		mm.handle(ctx, aliceRaw)
		assert.Zero(t, queue.Count(ctx, queueKey("arrays", "easy")))

		// A later caller must wait for a real partner, not pair with the
		// redelivered ghost of alice's call.
		carolRaw, _ := encodeMatchRequest(t, uuid.New(), "carol", "arrays", "easy", "rpc:reply:carol")
		mm.handle(ctx, carolRaw)

		assert.Len(t, broker.published("rpc:reply:alice"), 1)
		assert.Empty(t, broker.published("rpc:reply:carol"))
		assert.EqualValues(t, 1, queue.Count(ctx, queueKey("arrays", "easy")))
	})

	t.Run("undecodable frames are dropped without queueing", func(t *testing.T) {
		broker := newFakeBroker()
		queue := newFakeQueue()
		mm, err := NewMatchmaker(broker, queue, nil)
		require.NoError(t, err)

		mm.handle(ctx, []byte("not json"))
		assert.Zero(t, queue.Count(ctx, queueKey("arrays", "easy")))
	})
}
