// Package socket implements the per-room realtime relay: admission of at most
// two participants, the state handshake when the second one joins, and
// forwarding of edit, format, language, and chat events between them. The
// server never stores document content; correctness rests on faithful relay
// ordering, not on server-side state.
package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/beka-birhanu/pairpad-api/service/i"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Coordinator owns room admission and event routing. All relay decisions go
// through the registry; the coordinator itself keeps no per-room state.
type Coordinator struct {
	registry  *Registry
	tokenizer i.Tokenizer
}

// NewCoordinator creates a Coordinator over the given registry. The tokenizer
// only resolves the display name carried in the connection token; room access
// itself is granted by knowing the room id.
func NewCoordinator(registry *Registry, tokenizer i.Tokenizer) *Coordinator {
	return &Coordinator{
		registry:  registry,
		tokenizer: tokenizer,
	}
}

// HandleConnection validates the join parameters, upgrades the connection,
// and runs it until disconnect. Admission errors are rejected before the
// participant enters the room state machine.
func (c *Coordinator) HandleConnection(ctx *gin.Context) {
	roomID := ctx.Query("roomId")
	if roomID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": ErrMissingRoomID.Error()})
		return
	}

	name := c.senderName(ctx.Query("token"))

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Error().Str("module", "socket").Err(err).Msg("websocket upgrade")
		return
	}

	p := NewParticipant(conn, name)
	if err := c.Admit(roomID, p); err != nil {
		log.Info().Str("module", "socket").Str("room", roomID).Err(err).Msg("join refused")
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	log.Info().Str("module", "socket").Str("room", roomID).Str("participant", p.ID.String()).Str("name", name).Msg("participant joined")

	go c.writePump(p)
	c.readPump(p)
}

// senderName pulls the display name from a connection token, falling back to
// a placeholder when the token is absent or invalid.
func (c *Coordinator) senderName(token string) string {
	if token == "" {
		return "anonymous"
	}
	claims, err := c.tokenizer.Decode(token)
	if err != nil {
		log.Warn().Str("module", "socket").Err(err).Msg("invalid connection token, using placeholder name")
		return "anonymous"
	}
	if username, ok := claims["username"].(string); ok && username != "" {
		return username
	}
	return "anonymous"
}

// Admit moves the room through its join transition: the participant is added
// to the registry, everyone hears the new occupancy, and when this join fills
// the room the existing participant is asked, point-to-point, to bring the
// newcomer up to its current document and language state. That handshake
// fires exactly once per transition into a full room.
func (c *Coordinator) Admit(roomID string, p *Participant) error {
	occupancy, err := c.registry.Join(roomID, p)
	if err != nil {
		return err
	}
	p.Room = roomID

	c.broadcast(roomID, Message{Event: EventRoomCount, Count: occupancy})

	if occupancy == maxOccupancy {
		holder := c.registry.Peer(roomID, p)
		newcomer := p.ID.String()
		c.sendTo(holder, Message{Event: EventRequestCode, To: newcomer})
		c.sendTo(holder, Message{Event: EventRequestLanguage, To: newcomer})
	}
	return nil
}

// Depart runs the leave transition: the registry slot is released, the
// remaining participant (if any) hears who left and the new occupancy, and the
// participant's resources are torn down. Safe to call for participants that
// never joined a room.
func (c *Coordinator) Depart(p *Participant) {
	if p.Room != "" {
		occupancy := c.registry.Leave(p.Room, p)
		if occupancy > 0 {
			c.broadcast(p.Room, Message{Event: EventPeerLeft, ID: p.ID.String()})
			c.broadcast(p.Room, Message{Event: EventRoomCount, Count: occupancy})
		}
	}
	p.Close()
}

// Dispatch routes one inbound frame from p. Snapshot and language answers go
// to the addressed participant; everything else is relayed to the other
// participant only, never echoed back. Relaying with no peer present is a
// silent no-op: occupancy gating is the client's convention, the server does
// not block a lone participant's events.
func (c *Coordinator) Dispatch(p *Participant, raw []byte) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Warn().Str("module", "socket").Err(err).Msg("undecodable frame, dropping")
		return
	}

	switch m.Event {
	case EventSendCode:
		c.sendTo(c.registry.Member(p.Room, m.To), Message{Event: EventReceiveCode, Code: m.Code})
	case EventSendLanguage:
		c.sendTo(c.registry.Member(p.Room, m.To), Message{Event: EventReceiveLanguage, Language: m.Language})
	case EventCodeDelta:
		c.sendTo(c.registry.Peer(p.Room, p), Message{Event: EventCodeDelta, Delta: m.Delta})
	case EventCodeFormat:
		c.sendTo(c.registry.Peer(p.Room, p), Message{Event: EventCodeFormat, Code: m.Code})
	case EventChangeLanguage:
		c.sendTo(c.registry.Peer(p.Room, p), Message{Event: EventChangeLanguage, Language: m.Language})
	case EventChat:
		c.sendTo(c.registry.Peer(p.Room, p), Message{Event: EventChat, Text: m.Text, Time: m.Time, Name: m.Name})
	case EventLeave:
		// The client is done with the session; the read pump unwinds and the
		// leave transition runs from there.
		p.Close()
	default:
		log.Warn().Str("module", "socket").Str("event", m.Event).Msg("unknown event")
	}
}

// broadcast sends a frame to every participant of the room.
func (c *Coordinator) broadcast(roomID string, m Message) {
	for _, member := range c.registry.Members(roomID) {
		c.sendTo(member, m)
	}
}

// sendTo delivers one frame to one participant. Delivery is fire-and-forget:
// a slow or departed receiver costs a dropped frame, never a stalled sender.
func (c *Coordinator) sendTo(p *Participant, m Message) {
	if p == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		log.Error().Str("module", "socket").Err(err).Msg("encoding frame")
		return
	}
	if err := p.trySend(data); err != nil {
		log.Warn().Str("module", "socket").Str("participant", p.ID.String()).Str("event", m.Event).Err(err).Msg("dropping frame")
	}
}

// readPump consumes frames from the transport until it errors, then runs the
// leave transition synchronously before returning, so the registry slot is
// released and the peer notified before the connection's resources go away.
func (c *Coordinator) readPump(p *Participant) {
	defer func() {
		c.Depart(p)
	}()

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			log.Info().Str("module", "socket").Str("participant", p.ID.String()).Str("reason", err.Error()).Msg("participant disconnected")
			return
		}
		c.Dispatch(p, data)
	}
}

// writePump drains the participant's send buffer onto the transport in order.
func (c *Coordinator) writePump(p *Participant) {
	for data := range p.send {
		if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Str("module", "socket").Str("participant", p.ID.String()).Err(err).Msg("write failed")
			return
		}
	}
}
