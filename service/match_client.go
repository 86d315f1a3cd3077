package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	dmn "github.com/beka-birhanu/pairpad-api/domain"
	"github.com/beka-birhanu/pairpad-api/rpc"
	"github.com/beka-birhanu/pairpad-api/service/i"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MatchTopic is the well-known topic matchmaking requests are published to.
const MatchTopic = "matchmaking:requests"

// matchRequest is the payload a caller publishes to the matching topic.
type matchRequest struct {
	UserID     uuid.UUID `json:"userId"`
	Username   string    `json:"username"`
	Topic      string    `json:"topic"`
	Difficulty string    `json:"difficulty"`
}

// matchResponse is the pairing result a worker publishes back to the caller's
// reply destination.
type matchResponse struct {
	MatchedRoomID uuid.UUID `json:"matchedRoomId"`
	PartnerID     uuid.UUID `json:"partnerId"`
	PartnerName   string    `json:"partnerName"`
}

// MatchClient issues matchmaking calls over the broker and waits for the
// correlated pairing result.
type MatchClient struct {
	caller  *rpc.Caller
	timeout time.Duration
}

// NewMatchClient creates a MatchClient. timeout bounds how long one find-match
// call may wait for a partner.
func NewMatchClient(broker i.PubSub, timeout time.Duration) (i.Matcher, error) {
	if timeout <= 0 {
		return nil, errors.New("match client timeout must be positive")
	}
	return &MatchClient{
		caller:  rpc.NewCaller(broker, MatchTopic),
		timeout: timeout,
	}, nil
}

// FindMatch publishes a match request for the user and blocks until a partner
// is found or the timeout elapses. A nil result with a nil error means no
// match was found; that includes replies that fail schema validation, which
// are deliberately masked rather than surfaced as errors.
func (m *MatchClient) FindMatch(ctx context.Context, user *dmn.User, criteria i.MatchCriteria) (*i.MatchResult, error) {
	payload, err := json.Marshal(matchRequest{
		UserID:     user.ID,
		Username:   user.Username,
		Topic:      criteria.Topic,
		Difficulty: criteria.Difficulty,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding match request: %w", err)
	}

	reply, err := m.caller.Call(ctx, payload, m.timeout)
	if errors.Is(err, rpc.ErrCallTimeout) {
		log.Info().Str("module", "matching").Str("user", user.Username).Msg("no match found before deadline")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var resp matchResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		log.Warn().Str("module", "matching").Err(err).Msg("malformed match response, treating as no match")
		return nil, nil
	}
	if resp.MatchedRoomID == uuid.Nil || resp.PartnerID == uuid.Nil {
		log.Warn().Str("module", "matching").Msg("incomplete match response, treating as no match")
		return nil, nil
	}

	return &i.MatchResult{
		RoomID:      resp.MatchedRoomID,
		PartnerID:   resp.PartnerID,
		PartnerName: resp.PartnerName,
	}, nil
}
