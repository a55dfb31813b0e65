// internal/room/room_store.go
package room

import (
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// RoomStore manages active ephemeral rooms in memory.
// It provides thread-safe access to add, retrieve, and delete rooms.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
	codes map[string]uuid.UUID // join code -> room ID
}

// NewRoomStore initializes and returns an empty RoomStore.
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[uuid.UUID]*Room),
		codes: make(map[string]uuid.UUID),
	}
}

// AddRoom adds a new room instance to the store. Configure the room's
// OnEmpty callback before adding it so an abandoned room cleans itself up.
func (s *RoomStore) AddRoom(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[r.ID]; exists {
		log.Printf("RoomStore: attempted to add room %s which already exists", r.ID)
		return
	}
	// Regenerate on the rare code collision.
	for {
		if _, taken := s.codes[r.Code]; !taken {
			break
		}
		r.Code = NewJoinCode()
	}
	s.rooms[r.ID] = r
	s.codes[r.Code] = r.ID
	log.Printf("RoomStore: added room %s (code %s)", r.ID, r.Code)
}

// DeleteRoom removes a room instance from the store by its ID.
// This is typically called via the room's OnEmpty callback.
func (s *RoomStore) DeleteRoom(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, exists := s.rooms[id]
	if !exists {
		log.Printf("RoomStore: attempted to delete non-existent room %s", id)
		return
	}
	delete(s.codes, r.Code)
	delete(s.rooms, id)
	log.Printf("RoomStore: deleted room %s", id)
}

// GetRoom retrieves a room by its ID.
func (s *RoomStore) GetRoom(id uuid.UUID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// GetRoomByCode retrieves a room by its join code.
func (s *RoomStore) GetRoomByCode(code string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.codes[code]
	if !ok {
		return nil, false
	}
	r, ok := s.rooms[id]
	return r, ok
}

// NameInUse reports whether an active room already claimed the given name.
// Comparison is case-insensitive.
func (s *RoomStore) NameInUse(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

// ListRooms snapshots the directory of all active rooms.
func (s *RoomStore) ListRooms() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}
