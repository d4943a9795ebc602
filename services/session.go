package services

import (
	"sync"

	"github.com/google/uuid"

	"stream-chat/contract"
	"stream-chat/domain"
)

// Session is the per-connection state: the verified identity, the
// connection's event sink, and the set of rooms currently joined.
// A session may hold membership in several rooms at once.
type Session struct {
	ID       string
	Identity domain.Identity

	sink contract.EventSink

	mu    sync.Mutex
	rooms map[string]struct{}
}

func NewSession(identity domain.Identity, sink contract.EventSink) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Identity: identity,
		sink:     sink,
		rooms:    make(map[string]struct{}),
	}
}

func (s *Session) addRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = struct{}{}
}

func (s *Session) removeRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// roomList snapshots the joined rooms, so disconnect can iterate while
// the leave logic mutates the set.
func (s *Session) roomList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]string, 0, len(s.rooms))
	for roomID := range s.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}
