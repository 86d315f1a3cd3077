package i

import (
	"context"

	dmn "github.com/beka-birhanu/pairpad-api/domain"
	"github.com/google/uuid"
)

// MatchCriteria is what a caller wants to be matched on.
type MatchCriteria struct {
	Topic      string
	Difficulty string
}

// MatchResult is a successful pairing: the room both users were assigned to
// and the identity of the partner.
type MatchResult struct {
	RoomID      uuid.UUID
	PartnerID   uuid.UUID
	PartnerName string
}

// Matcher pairs a user with a partner asking for the same criteria.
type Matcher interface {
	// FindMatch blocks until a partner is found or the configured deadline
	// elapses. A nil result with a nil error means no match was found; callers
	// must treat that as a normal terminal outcome.
	FindMatch(ctx context.Context, user *dmn.User, criteria MatchCriteria) (*MatchResult, error)
}
