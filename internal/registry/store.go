package registry

import "sync"

// Store is the backing storage for room membership. The Registry
// serializes every call, so implementations need not be safe for
// concurrent use on their own. MemoryStore is the only one today.
type Store interface {
	Load(room string) ([]Participant, bool)
	Save(room string, members []Participant)
	Delete(room string)
	Range(fn func(room string, members []Participant) bool)
}

// MemoryStore keeps rooms in a process-local map.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]Participant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]Participant)}
}

func (s *MemoryStore) Load(room string) ([]Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.rooms[room]
	return members, ok
}

func (s *MemoryStore) Save(room string, members []Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room] = members
}

func (s *MemoryStore) Delete(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
}

func (s *MemoryStore) Range(fn func(room string, members []Participant) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for room, members := range s.rooms {
		if !fn(room, members) {
			return
		}
	}
}
