package socket

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const sendBuffer = 32

// Error types
var (
	ErrBackpressure = errors.New("participant send buffer full")
	ErrClosed       = errors.New("participant connection closed")
)

// Participant is one connected room member: the connection handle, its
// outbound buffer, and the identity used as chat sender name.
type Participant struct {
	ID   uuid.UUID
	Name string
	Room string

	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

// NewParticipant wraps an upgraded connection into a participant handle.
func NewParticipant(conn *websocket.Conn, name string) *Participant {
	return &Participant{
		ID:   uuid.New(),
		Name: name,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// trySend queues a frame without blocking. A full buffer fails with
// ErrBackpressure instead of stalling the sender's relay loop.
func (p *Participant) trySend(data []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close tears the participant down exactly once: the send channel is closed so
// the write pump drains out, then the transport is closed.
func (p *Participant) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.send)
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.mu.Unlock()
}
