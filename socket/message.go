package socket

import "encoding/json"

// Room event names. All frames on a room connection share one envelope shape
// discriminated by Event; relay direction and per-sender ordering are the
// contract, the payload fields are opaque to the server.
const (
	// server -> room
	EventRoomCount = "room_count"
	// server -> existing participant, naming the newcomer to sync with
	EventRequestCode     = "request_code"
	EventRequestLanguage = "request_language"
	// client -> server, addressed to one participant
	EventSendCode     = "send_code"
	EventSendLanguage = "send_language"
	// server -> addressed participant
	EventReceiveCode     = "receive_code"
	EventReceiveLanguage = "receive_language"
	// client -> server, relayed to the other participant
	EventCodeDelta      = "code_delta"
	EventCodeFormat     = "code_format"
	EventChangeLanguage = "change_language"
	EventChat           = "chat"
	// client -> server, explicit goodbye
	EventLeave = "leave"
	// server -> remaining participant
	EventPeerLeft = "peer_left"
)

// Message is the discriminated-union wire frame for room connections. Fields
// other than Event are populated per event kind and omitted otherwise.
type Message struct {
	Event    string          `json:"event"`
	To       string          `json:"to,omitempty"`
	ID       string          `json:"id,omitempty"`
	Count    int             `json:"count,omitempty"`
	Code     string          `json:"code,omitempty"`
	Language string          `json:"language,omitempty"`
	Delta    json.RawMessage `json:"delta,omitempty"`
	Text     string          `json:"text,omitempty"`
	Time     string          `json:"time,omitempty"`
	Name     string          `json:"name,omitempty"`
}
