package runtime

import (
	"testing"

	"presence-relay/auth"
	"presence-relay/domain"
	"presence-relay/errors"

	"github.com/stretchr/testify/require"
)

var cheapHasher = auth.NewHasher(auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1})

func newTestDirectory(t *testing.T) (*SessionRegistry, *RoomDirectory) {
	t.Helper()
	sessions := NewSessionRegistry()
	require.NoError(t, sessions.Register("A", "alice"))
	require.NoError(t, sessions.Register("B", "bob"))
	return sessions, NewRoomDirectory(sessions, cheapHasher)
}

func TestRoomDirectory_Join_UnknownRoom(t *testing.T) {
	req := require.New(t)
	_, directory := newTestDirectory(t)

	err := directory.Join("A", "r1", "secret")

	// Then nothing is created as a side effect
	req.ErrorIs(err, errors.ErrRoomNotFound)
	req.False(directory.Exists("r1"))
	req.Equal(0, directory.Len())
}

func TestRoomDirectory_Join_WrongPassword(t *testing.T) {
	req := require.New(t)
	_, directory := newTestDirectory(t)

	// Given alice in r1
	req.NoError(directory.Create("r1", "secret"))
	req.NoError(directory.Join("A", "r1", "secret"))
	req.Equal([]string{"alice"}, directory.MembersOf("r1"))

	// When bob tries a wrong password
	err := directory.Join("B", "r1", "wrong")

	// Then membership is unchanged
	req.ErrorIs(err, errors.ErrInvalidPassword)
	req.Equal([]string{"alice"}, directory.MembersOf("r1"))
}

func TestRoomDirectory_Join_Idempotent(t *testing.T) {
	req := require.New(t)
	_, directory := newTestDirectory(t)
	req.NoError(directory.Create("r1", "secret"))

	req.NoError(directory.Join("A", "r1", "secret"))
	req.NoError(directory.Join("A", "r1", "secret"))

	req.Equal([]domain.ConnectionID{"A"}, directory.MemberIDs("r1"))
}

func TestRoomDirectory_Create_ExistingKeepsSecret(t *testing.T) {
	req := require.New(t)
	_, directory := newTestDirectory(t)

	req.NoError(directory.Create("r1", "first"))
	req.NoError(directory.Join("A", "r1", "first"))

	// When the room is created again with another password
	req.NoError(directory.Create("r1", "second"))

	// Then the first secret still rules
	req.ErrorIs(directory.Join("B", "r1", "second"), errors.ErrInvalidPassword)
	req.NoError(directory.Join("B", "r1", "first"))
	req.Equal([]string{"alice", "bob"}, directory.MembersOf("r1"))
}

func TestRoomDirectory_Leave_DeletesEmptyRoom(t *testing.T) {
	req := require.New(t)
	_, directory := newTestDirectory(t)

	// Given alice and bob in r1
	req.NoError(directory.Create("r1", "secret"))
	req.NoError(directory.Join("A", "r1", "secret"))
	req.NoError(directory.Join("B", "r1", "secret"))

	// When alice leaves
	req.False(directory.Leave("A", "r1"))
	req.Equal([]string{"bob"}, directory.MembersOf("r1"))

	// When bob leaves too
	req.True(directory.Leave("B", "r1"))

	// Then the room is gone
	req.False(directory.Exists("r1"))
	req.Empty(directory.MembersOf("r1"))
}

func TestRoomDirectory_Leave_UnknownRoom(t *testing.T) {
	req := require.New(t)
	_, directory := newTestDirectory(t)

	req.False(directory.Leave("A", "nowhere"))
	req.Equal(0, directory.Len())
}

func TestRoomDirectory_PasswordForgottenAfterDeletion(t *testing.T) {
	req := require.New(t)
	_, directory := newTestDirectory(t)

	req.NoError(directory.Create("r1", "pw"))
	req.NoError(directory.Join("A", "r1", "pw"))
	directory.Leave("A", "r1")

	req.ErrorIs(directory.Join("A", "r1", "pw"), errors.ErrRoomNotFound)
}

func TestRoomDirectory_Evict_AllRooms(t *testing.T) {
	req := require.New(t)
	_, directory := newTestDirectory(t)

	// Given alice in r1 alone and in r2 with bob
	req.NoError(directory.Create("r1", "pw"))
	req.NoError(directory.Create("r2", "pw"))
	req.NoError(directory.Join("A", "r1", "pw"))
	req.NoError(directory.Join("A", "r2", "pw"))
	req.NoError(directory.Join("B", "r2", "pw"))

	// When alice is evicted
	left := directory.Evict("A")

	// Then she is out of both and the room she was alone in is deleted
	req.ElementsMatch([]domain.RoomID{"r1", "r2"}, left)
	req.False(directory.Exists("r1"))
	req.True(directory.Exists("r2"))
	req.Equal([]string{"bob"}, directory.MembersOf("r2"))
}

func TestRoomDirectory_MembersOf_SkipsUnregistered(t *testing.T) {
	req := require.New(t)
	sessions, directory := newTestDirectory(t)
	req.NoError(directory.Create("r1", "pw"))
	req.NoError(directory.Join("A", "r1", "pw"))
	req.NoError(directory.Join("B", "r1", "pw"))

	sessions.Unregister("A")

	req.Equal([]string{"bob"}, directory.MembersOf("r1"))
}
