package chathub

import (
	"sort"
	"sync"
)

// RoomRegistry maps room names to the connections joined to them.
// Rooms exist implicitly while they have at least one member.
type RoomRegistry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Client   // room -> connection id -> client
	joined map[string]map[string]struct{} // connection id -> rooms
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]map[string]Client),
		joined: make(map[string]map[string]struct{}),
	}
}

// Join adds c to room and reports whether it was not a member before.
func (r *RoomRegistry) Join(room string, c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Client)
		r.rooms[room] = members
	}
	if _, ok := members[c.ID()]; ok {
		return false
	}
	members[c.ID()] = c

	rooms, ok := r.joined[c.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[c.ID()] = rooms
	}
	rooms[room] = struct{}{}
	return true
}

// Leave removes c from room and reports whether it was a member.
func (r *RoomRegistry) Leave(room string, c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(room, c.ID())
}

// LeaveAll removes c from every room it joined and returns those rooms.
func (r *RoomRegistry) LeaveAll(c Client) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := make([]string, 0, len(r.joined[c.ID()]))
	for room := range r.joined[c.ID()] {
		left = append(left, room)
	}
	for _, room := range left {
		r.leaveLocked(room, c.ID())
	}
	sort.Strings(left)
	return left
}

func (r *RoomRegistry) leaveLocked(room, id string) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[id]; !ok {
		return false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}

	if rooms, ok := r.joined[id]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, id)
		}
	}
	return true
}

// Members returns a snapshot of the connections in room.
func (r *RoomRegistry) Members(room string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

func (r *RoomRegistry) IsMember(room string, c Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][c.ID()]
	return ok
}

// RoomsOf returns the sorted rooms c has joined.
func (r *RoomRegistry) RoomsOf(c Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.joined[c.ID()]))
	for room := range r.joined[c.ID()] {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// RoomCount returns the number of rooms with at least one member.
func (r *RoomRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
