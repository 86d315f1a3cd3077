package socket

import (
	"errors"
	"sync"
)

// maxOccupancy is the hard participant limit per room.
const maxOccupancy = 2

// Error types
var (
	ErrRoomFull      = errors.New("session full")
	ErrMissingRoomID = errors.New("missing room id")
)

// Registry maps room identifiers to their connected participants. It is the
// only shared mutable structure in the session path; Join and Leave are the
// only mutators and one mutex linearizes them, so occupancy transitions are
// never observed half-done.
type Registry struct {
	mu    sync.Mutex
	rooms map[string][]*Participant
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string][]*Participant),
	}
}

// Join admits a participant into the room, creating the room on first join.
// It returns the resulting occupancy. A room already holding two participants
// refuses the join with ErrRoomFull and keeps its occupancy.
func (r *Registry) Join(roomID string, p *Participant) (int, error) {
	if roomID == "" {
		return 0, ErrMissingRoomID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	if len(members) >= maxOccupancy {
		return len(members), ErrRoomFull
	}

	r.rooms[roomID] = append(members, p)
	return len(r.rooms[roomID]), nil
}

// Leave removes the participant from the room and returns the remaining
// occupancy. The room entry is reclaimed the instant it empties; a later join
// with the same token starts a fresh room.
func (r *Registry) Leave(roomID string, p *Participant) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	remaining := members[:0]
	for _, m := range members {
		if m.ID != p.ID {
			remaining = append(remaining, m)
		}
	}

	if len(remaining) == 0 {
		delete(r.rooms, roomID)
		return 0
	}
	r.rooms[roomID] = remaining
	return len(remaining)
}

// Occupancy returns the live participant count of the room.
func (r *Registry) Occupancy(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomID])
}

// Peer returns the other participant in the room, or nil when p is alone.
func (r *Registry) Peer(roomID string, p *Participant) *Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.rooms[roomID] {
		if m.ID != p.ID {
			return m
		}
	}
	return nil
}

// Member returns the room participant with the given socket id, or nil.
func (r *Registry) Member(roomID string, id string) *Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.rooms[roomID] {
		if m.ID.String() == id {
			return m
		}
	}
	return nil
}

// Members returns a snapshot of the room's participants.
func (r *Registry) Members(roomID string) []*Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[roomID]
	out := make([]*Participant, len(members))
	copy(out, members)
	return out
}
