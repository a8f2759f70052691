package runtime

import (
	"fmt"

	"presence-relay/contract"
	"presence-relay/domain"
	"presence-relay/errors"

	"github.com/samber/lo"
)

var _ contract.IRoomDirectory = (*RoomDirectory)(nil)

// RoomDirectory keeps the live rooms, their secrets and their members.
// A room never survives its last member.
// Like SessionRegistry it is owned by the Engine loop.
type RoomDirectory struct {
	rooms    map[domain.RoomID]*domain.Room
	sessions contract.ISessionRegistry
	hasher   contract.SecretHasher
}

func NewRoomDirectory(sessions contract.ISessionRegistry, hasher contract.SecretHasher) *RoomDirectory {
	return &RoomDirectory{
		rooms:    make(map[domain.RoomID]*domain.Room),
		sessions: sessions,
		hasher:   hasher,
	}
}

func (d *RoomDirectory) Exists(roomID domain.RoomID) bool {
	_, ok := d.rooms[roomID]
	return ok
}

// Create is a no-op when the room already exists, the first secret stays.
func (d *RoomDirectory) Create(roomID domain.RoomID, password string) error {
	if d.Exists(roomID) {
		return nil
	}
	secret, err := d.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing secret of room %s: %w", roomID, err)
	}
	d.rooms[roomID] = domain.NewRoom(roomID, secret)
	return nil
}

// Join adds id to the room once the password matches.
// A failed join leaves the room untouched.
func (d *RoomDirectory) Join(id domain.ConnectionID, roomID domain.RoomID, password string) error {
	room, ok := d.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrRoomNotFound, roomID)
	}
	match, err := d.hasher.Compare(password, room.Secret)
	if err != nil {
		return fmt.Errorf("checking secret of room %s: %w", roomID, err)
	}
	if !match {
		return fmt.Errorf("%w: %s", errors.ErrInvalidPassword, roomID)
	}
	room.Add(id)
	return nil
}

// Leave reports whether the room was deleted because id was its last member.
func (d *RoomDirectory) Leave(id domain.ConnectionID, roomID domain.RoomID) bool {
	room, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	room.Remove(id)
	if room.IsEmpty() {
		delete(d.rooms, roomID)
		return true
	}
	return false
}

// Evict removes id from every room and returns the rooms it was part of.
func (d *RoomDirectory) Evict(id domain.ConnectionID) []domain.RoomID {
	var left []domain.RoomID
	for roomID, room := range d.rooms {
		if !room.Remove(id) {
			continue
		}
		left = append(left, roomID)
		if room.IsEmpty() {
			delete(d.rooms, roomID)
		}
	}
	return left
}

// MembersOf resolves member names in join order.
// Members without a session are skipped.
func (d *RoomDirectory) MembersOf(roomID domain.RoomID) []string {
	return lo.FilterMap(d.MemberIDs(roomID), func(id domain.ConnectionID, _ int) (string, bool) {
		return d.sessions.Lookup(id)
	})
}

func (d *RoomDirectory) MemberIDs(roomID domain.RoomID) []domain.ConnectionID {
	room, ok := d.rooms[roomID]
	if !ok {
		return []domain.ConnectionID{}
	}
	return room.Members()
}

func (d *RoomDirectory) Len() int {
	return len(d.rooms)
}
