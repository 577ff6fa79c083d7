package ws

import "sync"

// Rooms tracks which users are actively joined to each conversation right
// now. It is never persisted and starts empty on every restart; clients
// re-join the conversations they care about after reconnecting.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

// NewRooms creates an empty tracker.
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]map[string]struct{})}
}

// Join adds the user to the conversation's joined set.
func (r *Rooms) Join(userID, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[conversationID]; !ok {
		r.rooms[conversationID] = make(map[string]struct{})
	}
	r.rooms[conversationID][userID] = struct{}{}
}

// Leave removes the user; empty sets are dropped entirely.
func (r *Rooms) Leave(userID, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[conversationID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.rooms, conversationID)
		}
	}
}

// LeaveAll removes the user from every conversation; used on disconnect.
// It returns the conversation IDs that were left.
func (r *Rooms) LeaveAll(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var left []string
	for conversationID, members := range r.rooms {
		if _, ok := members[userID]; ok {
			delete(members, userID)
			left = append(left, conversationID)
			if len(members) == 0 {
				delete(r.rooms, conversationID)
			}
		}
	}
	return left
}

// Members returns the users currently joined to the conversation.
func (r *Rooms) Members(conversationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]string, 0, len(r.rooms[conversationID]))
	for userID := range r.rooms[conversationID] {
		members = append(members, userID)
	}
	return members
}

// IsJoined reports whether the user is currently joined.
func (r *Rooms) IsJoined(userID, conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[conversationID][userID]
	return ok
}
