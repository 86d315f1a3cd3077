// Package match exposes the find-match endpoint: one synchronous HTTP call
// that rides the asynchronous matching pipeline underneath.
package match

import "github.com/google/uuid"

// FindMatchRequest carries the criteria the caller wants matched on.
type FindMatchRequest struct {
	Topic      string `json:"topic" binding:"required"`
	Difficulty string `json:"difficulty" binding:"required"`
}

// FindMatchResponse reports the outcome of a find-match call. Matched is
// false for the no-match outcome, which is a normal result, not an error.
type FindMatchResponse struct {
	Matched     bool      `json:"matched"`
	RoomID      uuid.UUID `json:"roomId,omitempty"`
	PartnerID   uuid.UUID `json:"partnerId,omitempty"`
	PartnerName string    `json:"partnerName,omitempty"`
	Message     string    `json:"message,omitempty"`
}
