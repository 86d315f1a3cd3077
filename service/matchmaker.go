package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/beka-birhanu/pairpad-api/rpc"
	"github.com/beka-birhanu/pairpad-api/service/i"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultWorkers = 2
	pairSize       = 2

	queueTopicDifficultyKeyFmt = "matchmaker:queue:topic_%s:difficulty_%s"

	// answeredTTL is how long a correlation id is remembered after its
	// response went out. It must outlive the broker's redelivery window,
	// which is itself bounded by the caller's timeout.
	answeredTTL = 2 * time.Minute
)

// pendingCaller is one waiting match request as stored in the queue. The
// serialized form doubles as the queue member, so redelivery of the same
// request lands on the same member and cannot grow the queue.
type pendingCaller struct {
	CorrelationID uuid.UUID `json:"correlationId"`
	ReplyTo       string    `json:"replyTo"`
	UserID        uuid.UUID `json:"userId"`
	Username      string    `json:"username"`
}

// MatchmakerOptions configures a Matchmaker.
type MatchmakerOptions struct {
	// Workers is the number of goroutines consuming the request topic.
	Workers int
}

// Matchmaker is the worker side of the matching call: it consumes requests
// from the matching topic, parks callers in a criteria-keyed sorted queue, and
// pairs the two oldest compatible callers into a fresh room. Each paired
// caller gets exactly one response, on its own reply destination, stamped with
// its own correlation id.
type Matchmaker struct {
	broker i.PubSub
	queue  i.SortedQueue
	opts   *MatchmakerOptions

	// answered remembers correlation ids that already received a response.
	// ZADD idempotence only covers a request redelivered while its caller is
	// still queued; a frame redelivered after the caller was matched would
	// otherwise re-enter the queue as a fresh member and earn a second
	// response, or pair a phantom entry with a live caller.
	mu       sync.Mutex
	answered map[uuid.UUID]time.Time
}

// NewMatchmaker creates a Matchmaker over the given broker and queue.
func NewMatchmaker(broker i.PubSub, queue i.SortedQueue, opts *MatchmakerOptions) (*Matchmaker, error) {
	if opts == nil {
		opts = &MatchmakerOptions{}
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	return &Matchmaker{
		broker:   broker,
		queue:    queue,
		opts:     opts,
		answered: make(map[uuid.UUID]time.Time),
	}, nil
}

// Serve subscribes to the matching topic and consumes requests until ctx is
// canceled. It blocks for the lifetime of the worker pool.
func (mm *Matchmaker) Serve(ctx context.Context) error {
	sub, err := mm.broker.Subscribe(ctx, MatchTopic)
	if err != nil {
		return fmt.Errorf("subscribing to match topic: %w", err)
	}

	var wg sync.WaitGroup
	for n := 0; n < mm.opts.Workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for raw := range sub.Messages() {
				mm.handle(ctx, raw)
			}
		}()
	}

	<-ctx.Done()
	_ = sub.Close()
	wg.Wait()
	return nil
}

// handle processes one request frame from the matching topic.
func (mm *Matchmaker) handle(ctx context.Context, raw []byte) {
	var req rpc.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Warn().Str("module", "matchmaker").Err(err).Msg("undecodable request envelope, dropping")
		return
	}

	if mm.alreadyAnswered(req.CorrelationID) {
		log.Info().Str("module", "matchmaker").Str("correlationId", req.CorrelationID.String()).Msg("request already answered, dropping redelivery")
		return
	}

	var body matchRequest
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		log.Warn().Str("module", "matchmaker").Err(err).Msg("undecodable match request payload, dropping")
		return
	}

	member, err := json.Marshal(pendingCaller{
		CorrelationID: req.CorrelationID,
		ReplyTo:       req.ReplyTo,
		UserID:        body.UserID,
		Username:      body.Username,
	})
	if err != nil {
		log.Error().Str("module", "matchmaker").Err(err).Msg("encoding pending caller")
		return
	}

	key := queueKey(body.Topic, body.Difficulty)
	score := float64(time.Now().UnixNano())
	if err := mm.queue.Enqueue(ctx, key, score, string(member)); err != nil {
		log.Error().Str("module", "matchmaker").Err(err).Msg("enqueueing caller")
		return
	}

	log.Info().Str("module", "matchmaker").Str("user", body.Username).Str("topic", body.Topic).Str("difficulty", body.Difficulty).Msg("caller queued")
	mm.tryMatch(ctx, key)
}

// tryMatch pops the two oldest waiting callers on the key, if present, and
// pairs them into a fresh room.
func (mm *Matchmaker) tryMatch(ctx context.Context, key string) {
	if mm.queue.Count(ctx, key) < pairSize {
		return
	}

	members, err := mm.queue.DequeTops(ctx, key, pairSize)
	if err != nil {
		log.Error().Str("module", "matchmaker").Err(err).Msg("popping waiting callers")
		return
	}
	if len(members) < pairSize {
		return
	}

	var callers []pendingCaller
	for _, raw := range members {
		var pc pendingCaller
		if err := json.Unmarshal([]byte(raw), &pc); err != nil {
			log.Warn().Str("module", "matchmaker").Err(err).Msg("non-caller value in queue, dropping")
			continue
		}
		callers = append(callers, pc)
	}
	if len(callers) < pairSize {
		mm.requeue(ctx, key, callers)
		return
	}

	if callers[0].UserID == callers[1].UserID {
		// Same user queued twice (e.g. a retried call). Keep the newer call
		// waiting, drop the stale one.
		mm.requeue(ctx, key, callers[1:])
		return
	}

	roomID := uuid.New()
	log.Info().Str("module", "matchmaker").Str("room", roomID.String()).Str("user1", callers[0].Username).Str("user2", callers[1].Username).Msg("match found")

	mm.respond(ctx, callers[0], callers[1], roomID)
	mm.respond(ctx, callers[1], callers[0], roomID)
}

// respond publishes the pairing result to one caller's reply destination. A
// caller that timed out meanwhile has no subscriber there; the publish is then
// a no-op by broker semantics.
func (mm *Matchmaker) respond(ctx context.Context, to, partner pendingCaller, roomID uuid.UUID) {
	mm.markAnswered(to.CorrelationID)

	payload, err := json.Marshal(matchResponse{
		MatchedRoomID: roomID,
		PartnerID:     partner.UserID,
		PartnerName:   partner.Username,
	})
	if err != nil {
		log.Error().Str("module", "matchmaker").Err(err).Msg("encoding match response")
		return
	}

	data, err := json.Marshal(rpc.Response{
		CorrelationID: to.CorrelationID,
		Payload:       payload,
	})
	if err != nil {
		log.Error().Str("module", "matchmaker").Err(err).Msg("encoding response envelope")
		return
	}

	if err := mm.broker.Publish(ctx, to.ReplyTo, data); err != nil {
		log.Error().Str("module", "matchmaker").Err(err).Str("replyTo", to.ReplyTo).Msg("publishing match response")
	}
}

// requeue puts callers back on the queue after an aborted pairing.
func (mm *Matchmaker) requeue(ctx context.Context, key string, callers []pendingCaller) {
	for _, pc := range callers {
		member, err := json.Marshal(pc)
		if err != nil {
			continue
		}
		if err := mm.queue.Enqueue(ctx, key, float64(time.Now().UnixNano()), string(member)); err != nil {
			log.Error().Str("module", "matchmaker").Err(err).Msg("requeueing caller")
		}
	}
}

// markAnswered records that a response went out for the correlation id and
// prunes entries older than the redelivery window.
func (mm *Matchmaker) markAnswered(id uuid.UUID) {
	now := time.Now()
	mm.mu.Lock()
	for answeredID, at := range mm.answered {
		if now.Sub(at) > answeredTTL {
			delete(mm.answered, answeredID)
		}
	}
	mm.answered[id] = now
	mm.mu.Unlock()
}

func (mm *Matchmaker) alreadyAnswered(id uuid.UUID) bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	at, ok := mm.answered[id]
	return ok && time.Since(at) <= answeredTTL
}

func queueKey(topic, difficulty string) string {
	return fmt.Sprintf(queueTopicDifficultyKeyFmt, topic, difficulty)
}
