// Package presence tracks which users are currently inside which room.
// A room exists in the registry if and only if it has at least one member;
// leaving the last member evicts the room together with its counters.
package presence

import (
	"sort"
	"sync"
	"time"

	"stream-chat/domain"
)

type room struct {
	mu            sync.Mutex
	members       map[string]domain.Member
	totalMessages int
	// evicted marks a room removed from the registry while another
	// goroutine still holds a stale pointer to it.
	evicted bool
}

// Registry is the process-wide room membership authority.
// The registry lock only guards the room map; each room carries its own
// lock so traffic on one room never serializes the others.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
	clock func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room), clock: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source, for deterministic tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Join inserts or overwrites the member entry for userID and returns the
// updated member count. Re-joining refreshes JoinedAt. The room is created
// on first join.
func (r *Registry) Join(roomID, userID, displayName string) int {
	for {
		rm := r.getOrCreate(roomID)
		rm.mu.Lock()
		if rm.evicted {
			// Lost a race against the last leave; start over.
			rm.mu.Unlock()
			continue
		}
		rm.members[userID] = domain.Member{
			UserID:      userID,
			DisplayName: displayName,
			JoinedAt:    r.clock(),
		}
		count := len(rm.members)
		rm.mu.Unlock()
		return count
	}
}

// Leave removes the member and reports the remaining count and whether the
// user actually was a member. Removing the last member evicts the room and
// its counters entirely.
func (r *Registry) Leave(roomID, userID string) (count int, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return 0, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.members[userID]; ok {
		delete(rm.members, userID)
		removed = true
	}
	if len(rm.members) == 0 {
		rm.evicted = true
		delete(r.rooms, roomID)
	}
	return len(rm.members), removed
}

// IsMember reports whether userID currently belongs to the room.
func (r *Registry) IsMember(roomID, userID string) bool {
	rm := r.lookup(roomID)
	if rm == nil {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	_, ok := rm.members[userID]
	return ok
}

// RecordMessage bumps the room's message counter. Counts are best-effort:
// a room evicted since the send is a silent no-op, not an error.
func (r *Registry) RecordMessage(roomID string) {
	rm := r.lookup(roomID)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.evicted {
		return
	}
	rm.totalMessages++
}

// Snapshot returns a point-in-time view of the room. Unknown rooms yield a
// zeroed snapshot. Members are ordered by join time for stable output.
func (r *Registry) Snapshot(roomID string) domain.Snapshot {
	rm := r.lookup(roomID)
	if rm == nil {
		return domain.Snapshot{}
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	members := make([]domain.Member, 0, len(rm.members))
	for _, m := range rm.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].DisplayName < members[j].DisplayName
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})

	return domain.Snapshot{
		ActiveUserCount: len(rm.members),
		TotalMessages:   rm.totalMessages,
		Members:         members,
	}
}

// Totals reports the live room and member counts, for telemetry.
func (r *Registry) Totals() (rooms, members int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rm := range r.rooms {
		rm.mu.Lock()
		rooms++
		members += len(rm.members)
		rm.mu.Unlock()
	}
	return rooms, members
}

func (r *Registry) lookup(roomID string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

func (r *Registry) getOrCreate(roomID string) *room {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[roomID]; !ok {
		rm = &room{members: make(map[string]domain.Member)}
		r.rooms[roomID] = rm
	}
	return rm
}
