package domain

// RoomID is chosen by the client creating the room.
type RoomID string

// Room is a password-gated group of connections.
// Members keep their join order.
type Room struct {
	ID      RoomID
	Secret  string
	members []ConnectionID
}

func NewRoom(id RoomID, secret string) *Room {
	return &Room{ID: id, Secret: secret}
}

// Add appends the connection unless it is already a member.
func (r *Room) Add(id ConnectionID) bool {
	if r.Has(id) {
		return false
	}
	r.members = append(r.members, id)
	return true
}

// Remove reports whether the connection was a member.
func (r *Room) Remove(id ConnectionID) bool {
	for i, m := range r.members {
		if m == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Room) Has(id ConnectionID) bool {
	for _, m := range r.members {
		if m == id {
			return true
		}
	}
	return false
}

// Members returns a copy, safe to hand to other goroutines.
func (r *Room) Members() []ConnectionID {
	out := make([]ConnectionID, len(r.members))
	copy(out, r.members)
	return out
}

func (r *Room) IsEmpty() bool {
	return len(r.members) == 0
}
