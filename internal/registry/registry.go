// Package registry tracks which participants are in which room.
//
// A room exists only while it has members: Join creates it, and the Leave
// that removes the last member deletes it on the spot.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// MaxParticipants is the room capacity. A call is always one-to-one.
const MaxParticipants = 2

var (
	ErrRoomFull      = errors.New("room is full")
	ErrAlreadyJoined = errors.New("participant already in a room")
	ErrEmptyRoomID   = errors.New("empty room id")
)

// Participant is one connected client within a room.
type Participant struct {
	ID       string
	UserName string
	JoinedAt time.Time
}

// RoomInfo is a point-in-time view of one room.
type RoomInfo struct {
	ID           string
	Participants []Participant
}

// Registry maps room ids to their members. All methods are safe for
// concurrent use.
type Registry struct {
	mu     sync.Mutex
	store  Store
	roomOf map[string]string // participant id -> room id
}

// New creates a Registry on top of store. A nil store means an in-memory one.
func New(store Store) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{
		store:  store,
		roomOf: make(map[string]string),
	}
}

// Join adds p to room and returns the members that were already there,
// excluding p. The room is created if it does not exist.
func (r *Registry) Join(room string, p Participant) ([]Participant, error) {
	if room == "" {
		return nil, ErrEmptyRoomID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roomOf[p.ID]; ok {
		return nil, ErrAlreadyJoined
	}

	members, _ := r.store.Load(room)
	if len(members) >= MaxParticipants {
		return nil, ErrRoomFull
	}

	peers := clone(members)
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	r.store.Save(room, append(clone(members), p))
	r.roomOf[p.ID] = room

	return peers, nil
}

// Leave removes the participant from room and returns who is left. The
// second result reports whether the participant was a member at all.
func (r *Registry) Leave(room, participantID string) ([]Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.store.Load(room)
	if !ok {
		return nil, false
	}

	idx := -1
	for i, m := range members {
		if m.ID == participantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return clone(members), false
	}

	remaining := make([]Participant, 0, len(members)-1)
	remaining = append(remaining, members[:idx]...)
	remaining = append(remaining, members[idx+1:]...)
	delete(r.roomOf, participantID)

	if len(remaining) == 0 {
		r.store.Delete(room)
		return nil, true
	}

	r.store.Save(room, remaining)
	return clone(remaining), true
}

// RoomOf reports the room the participant is in.
func (r *Registry) RoomOf(participantID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.roomOf[participantID]
	return room, ok
}

// Members returns a copy of the room's members in join order.
func (r *Registry) Members(room string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, _ := r.store.Load(room)
	return clone(members)
}

// Contains reports whether the participant is a member of room.
func (r *Registry) Contains(room, participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomOf[participantID] == room && room != ""
}

// Rooms returns every live room, sorted by id.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rooms []RoomInfo
	r.store.Range(func(room string, members []Participant) bool {
		rooms = append(rooms, RoomInfo{ID: room, Participants: clone(members)})
		return true
	})
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

func clone(members []Participant) []Participant {
	if len(members) == 0 {
		return nil
	}
	out := make([]Participant, len(members))
	copy(out, members)
	return out
}
