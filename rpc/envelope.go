// Package rpc implements synchronous-feeling request/response calls over an
// asynchronous pub/sub broker, using a correlation id and an exclusive,
// per-call reply destination.
package rpc

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Request is the correlation envelope wrapped around an outgoing request. It
// binds an opaque payload to a unique request id and the destination the
// response must be published to.
type Request struct {
	CorrelationID uuid.UUID       `json:"correlationId"`
	ReplyTo       string          `json:"replyTo"`
	Payload       json.RawMessage `json:"payload"`
}

// Response carries a reply payload stamped with the correlation id of the
// request it answers. Responders must copy the id from the request verbatim.
type Response struct {
	CorrelationID uuid.UUID       `json:"correlationId"`
	Payload       json.RawMessage `json:"payload"`
}
