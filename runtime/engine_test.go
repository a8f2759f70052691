package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"presence-relay/contract"
	"presence-relay/domain"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestEngine(outbound chan<- domain.Outbound) *Engine {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	sessions := NewSessionRegistry()
	return NewEngine(log, sessions, NewRoomDirectory(sessions, cheapHasher), nil, outbound, 16)
}

func connect(t *testing.T, e *Engine, id domain.ConnectionID, name string) {
	t.Helper()
	out := e.Handle(domain.ConnectCommand{ConnectionID: id, Username: name})
	require.Len(t, out, 2)
}

func TestEngine_Connect(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)

	connect(t, engine, "A", "alice")

	// When bob connects
	out := engine.Handle(domain.ConnectCommand{ConnectionID: "B", Username: "bob"})

	// Then everyone learns about bob, then receives the refreshed roster
	req.Len(out, 2)
	req.Equal(domain.EventUserJoined, out[0].Event)
	req.Equal(domain.TargetAll, out[0].Target)
	req.Equal(domain.UsernamePayload{Username: "bob"}, out[0].Payload)
	req.Equal([]domain.ConnectionID{"A", "B"}, out[0].Recipients)

	req.Equal(domain.EventUserList, out[1].Event)
	req.Equal([]string{"alice", "bob"}, out[1].Payload)
	req.Equal([]domain.ConnectionID{"A", "B"}, out[1].Recipients)
}

func TestEngine_Connect_MissingUsername(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)

	out := engine.Handle(domain.ConnectCommand{ConnectionID: "A"})

	// Then the requester alone gets an error and is closed
	req.Len(out, 2)
	req.Equal(domain.ErrorTo("A", "Username is required"), out[0])
	req.Equal(domain.ActionClose, out[1].Action)
	req.Equal([]domain.ConnectionID{"A"}, out[1].Recipients)

	// And nothing was registered
	req.Equal(0, engine.sessions.Len())
}

func TestEngine_Disconnect(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")
	connect(t, engine, "B", "bob")

	out := engine.Handle(domain.DisconnectCommand{ConnectionID: "A"})

	req.Len(out, 2)
	req.Equal(domain.EventUserLeft, out[0].Event)
	req.Equal(domain.UsernamePayload{Username: "alice"}, out[0].Payload)
	req.Equal([]domain.ConnectionID{"B"}, out[0].Recipients)
	req.Equal(domain.EventUserList, out[1].Event)
	req.Equal([]string{"bob"}, out[1].Payload)
}

func TestEngine_Disconnect_Unknown(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "B", "bob")

	out := engine.Handle(domain.DisconnectCommand{ConnectionID: "ghost"})

	// Then no broadcast, only a best effort unicast
	req.Equal([]domain.Outbound{domain.ErrorTo("ghost", "Username is required")}, out)
}

func TestEngine_Disconnect_EvictsRooms(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")
	engine.Handle(domain.CreateRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "pw"})

	engine.Handle(domain.DisconnectCommand{ConnectionID: "A"})

	req.False(engine.rooms.Exists("r1"))
}

func TestEngine_CreateRoom_JoinsCreator(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")

	out := engine.Handle(domain.CreateRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "secret"})

	// Then the joined notice precedes the roster
	req.Len(out, 2)
	req.Equal(domain.EventRoomJoined, out[0].Event)
	req.Equal(domain.TargetRoom, out[0].Target)
	req.Equal(domain.RoomID("r1"), out[0].RoomID)
	req.Equal(domain.UsernamePayload{Username: "alice"}, out[0].Payload)
	req.Equal(domain.EventRoomUsers, out[1].Event)
	req.Equal([]string{"alice"}, out[1].Payload)
	req.Equal([]domain.ConnectionID{"A"}, out[1].Recipients)
}

func TestEngine_CreateRoom_ExistingWithWrongPassword(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")
	connect(t, engine, "B", "bob")
	engine.Handle(domain.CreateRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "first"})

	// When bob "creates" the same room with another password
	out := engine.Handle(domain.CreateRoomCommand{ConnectionID: "B", RoomID: "r1", Password: "second"})

	// Then it is a failed join, reported to bob only
	req.Equal([]domain.Outbound{domain.ErrorTo("B", "Invalid password for room r1")}, out)
	req.Equal([]string{"alice"}, engine.rooms.MembersOf("r1"))
}

func TestEngine_CreateRoom_UnknownConnectionCreatesNothing(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")

	// Given a connection refused for lack of a username
	refused := engine.Handle(domain.ConnectCommand{ConnectionID: "X"})
	req.Len(refused, 2)

	// When it tries to create a room
	out := engine.Handle(domain.CreateRoomCommand{ConnectionID: "X", RoomID: "r1", Password: "squat"})

	// Then the failure names the creation and no room is left behind
	req.Equal([]domain.Outbound{domain.ErrorTo("X", "Room creation failed: unknown connection")}, out)
	req.False(engine.rooms.Exists("r1"))
	req.Equal(0, engine.rooms.Len())

	// When alice creates the same room with her own password
	out = engine.Handle(domain.CreateRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "mine"})

	// Then she is its only member
	req.Len(out, 2)
	req.Equal(domain.EventRoomJoined, out[0].Event)
	req.Equal([]string{"alice"}, engine.rooms.MembersOf("r1"))
}

func TestEngine_JoinRoom_UnknownConnection(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")
	engine.Handle(domain.CreateRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "secret"})

	out := engine.Handle(domain.JoinRoomCommand{ConnectionID: "X", RoomID: "r1", Password: "secret"})

	req.Equal([]domain.Outbound{domain.ErrorTo("X", "Room join failed: unknown connection")}, out)
	req.Equal([]string{"alice"}, engine.rooms.MembersOf("r1"))
}

func TestEngine_JoinRoom_NotFound(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")

	out := engine.Handle(domain.JoinRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "pw"})

	req.Equal([]domain.Outbound{domain.ErrorTo("A", "Room r1 was not found")}, out)
	req.False(engine.rooms.Exists("r1"))
}

func TestEngine_JoinRoom_WrongPassword(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")
	connect(t, engine, "B", "bob")

	// Given create("r1","secret") and alice inside
	engine.Handle(domain.CreateRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "secret"})
	req.Equal([]string{"alice"}, engine.rooms.MembersOf("r1"))

	// When bob joins with a wrong password
	out := engine.Handle(domain.JoinRoomCommand{ConnectionID: "B", RoomID: "r1", Password: "wrong"})

	// Then bob alone is told, no broadcast
	req.Len(out, 1)
	req.Equal(domain.TargetConnection, out[0].Target)
	req.Equal([]domain.ConnectionID{"B"}, out[0].Recipients)
	req.Equal(domain.EventError, out[0].Event)
	req.Equal([]string{"alice"}, engine.rooms.MembersOf("r1"))
}

func TestEngine_JoinRoom_BroadcastsToMembersIncludingJoiner(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")
	connect(t, engine, "B", "bob")
	connect(t, engine, "C", "carol")
	engine.Handle(domain.CreateRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "secret"})

	out := engine.Handle(domain.JoinRoomCommand{ConnectionID: "B", RoomID: "r1", Password: "secret"})

	req.Len(out, 2)
	req.Equal(domain.UsernamePayload{Username: "bob"}, out[0].Payload)
	req.Equal([]domain.ConnectionID{"A", "B"}, out[0].Recipients)
	req.Equal([]string{"alice", "bob"}, out[1].Payload)
	req.NotContains(out[1].Recipients, domain.ConnectionID("C"))
}

func TestEngine_LeaveRoom(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")
	connect(t, engine, "B", "bob")
	engine.Handle(domain.CreateRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "secret"})
	engine.Handle(domain.JoinRoomCommand{ConnectionID: "B", RoomID: "r1", Password: "secret"})

	// When alice leaves
	out := engine.Handle(domain.LeaveRoomCommand{ConnectionID: "A", RoomID: "r1"})

	// Then bob is told, alice is not among the recipients
	req.Len(out, 2)
	req.Equal(domain.EventRoomLeft, out[0].Event)
	req.Equal(domain.UsernamePayload{Username: "alice"}, out[0].Payload)
	req.Equal([]domain.ConnectionID{"B"}, out[0].Recipients)
	req.Equal(domain.EventRoomUsers, out[1].Event)
	req.Equal([]string{"bob"}, out[1].Payload)

	// When bob leaves
	out = engine.Handle(domain.LeaveRoomCommand{ConnectionID: "B", RoomID: "r1"})

	// Then the room is gone and the roster is empty
	req.False(engine.rooms.Exists("r1"))
	req.Empty(out[1].Payload)
	req.Empty(out[1].Recipients)
}

func TestEngine_LeaveRoom_NotAMember(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")
	connect(t, engine, "B", "bob")
	engine.Handle(domain.CreateRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "secret"})

	// When bob leaves a room he never joined
	out := engine.Handle(domain.LeaveRoomCommand{ConnectionID: "B", RoomID: "r1"})

	// Then nobody is told and alice stays in
	req.Empty(out)
	req.True(engine.rooms.Exists("r1"))
	req.Equal([]string{"alice"}, engine.rooms.MembersOf("r1"))

	// When bob leaves a room that does not exist
	out = engine.Handle(domain.LeaveRoomCommand{ConnectionID: "B", RoomID: "nowhere"})

	// Then nothing happens either
	req.Empty(out)
	req.False(engine.rooms.Exists("nowhere"))
}

func TestEngine_RoomPasswordForgottenAfterDeletion(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")

	engine.Handle(domain.CreateRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "pw"})
	engine.Handle(domain.LeaveRoomCommand{ConnectionID: "A", RoomID: "r1"})
	out := engine.Handle(domain.JoinRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "pw"})

	req.Equal([]domain.Outbound{domain.ErrorTo("A", "Room r1 was not found")}, out)
}

func TestEngine_SendMessage_Global(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")
	connect(t, engine, "B", "bob")

	out := engine.Handle(domain.SendMessageCommand{ConnectionID: "A", Message: "hello"})

	req.Len(out, 1)
	req.Equal(domain.EventMessageReceive, out[0].Event)
	req.Equal(domain.TargetAll, out[0].Target)
	req.Equal(domain.MessagePayload{ClientID: "A", Username: "alice", Message: "hello"}, out[0].Payload)
	req.Equal([]domain.ConnectionID{"A", "B"}, out[0].Recipients)
}

func TestEngine_SendMessage_RoomOnly(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	connect(t, engine, "A", "alice")
	connect(t, engine, "B", "bob")
	connect(t, engine, "C", "carol")
	engine.Handle(domain.CreateRoomCommand{ConnectionID: "A", RoomID: "r1", Password: "pw"})
	engine.Handle(domain.JoinRoomCommand{ConnectionID: "B", RoomID: "r1", Password: "pw"})

	out := engine.Handle(domain.SendMessageCommand{ConnectionID: "A", Message: "psst", RoomID: "r1"})

	// Then only r1 members receive it
	req.Len(out, 1)
	req.Equal(domain.TargetRoom, out[0].Target)
	req.Equal([]domain.ConnectionID{"A", "B"}, out[0].Recipients)
	req.NotContains(out[0].Recipients, domain.ConnectionID("C"))
}

func TestEngine_SendMessage_UnknownConnection(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)

	out := engine.Handle(domain.SendMessageCommand{ConnectionID: "ghost", Message: "hello"})

	req.Len(out, 1)
	req.Equal(domain.EventError, out[0].Event)
	req.Equal([]domain.ConnectionID{"ghost"}, out[0].Recipients)
	req.Contains(out[0].Payload.(domain.ErrorPayload).Message, "Message sending failed")
}

type unknownCommand struct{}

func (unknownCommand) Connection() domain.ConnectionID { return "A" }

func TestEngine_UnknownCommand(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)

	out := engine.Handle(unknownCommand{})

	req.Len(out, 1)
	req.Equal(domain.EventError, out[0].Event)
}

type panickingDirectory struct {
	contract.IRoomDirectory
}

func (panickingDirectory) Exists(domain.RoomID) bool { panic("boom") }

func TestEngine_HandlerPanicIsReported(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	sessions := NewSessionRegistry()
	directory := NewRoomDirectory(sessions, cheapHasher)
	engine := NewEngine(log, sessions, panickingDirectory{directory}, nil, nil, 1)
	connect(t, engine, "A", "alice")

	out := engine.Handle(domain.JoinRoomCommand{ConnectionID: "A", RoomID: "r1"})

	req.Len(out, 1)
	req.Equal([]domain.ConnectionID{"A"}, out[0].Recipients)
	req.Contains(out[0].Payload.(domain.ErrorPayload).Message, "Room join failed")
}

func TestEngine_Run_DeliversInOrder(t *testing.T) {
	req := require.New(t)
	outbound := make(chan domain.Outbound, 16)
	engine := newTestEngine(outbound)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = engine.Run(ctx) }()

	req.NoError(engine.Submit(ctx, domain.ConnectCommand{ConnectionID: "A", Username: "alice"}))
	out, err := engine.Process(ctx, domain.SendMessageCommand{ConnectionID: "A", Message: "hey"})
	req.NoError(err)
	req.Len(out, 1)

	var events []string
	for i := 0; i < 3; i++ {
		select {
		case o := <-outbound:
			events = append(events, o.Event)
		case <-time.After(time.Second):
			req.Fail("outbound instruction missing")
		}
	}
	req.Equal([]string{domain.EventUserJoined, domain.EventUserList, domain.EventMessageReceive}, events)
}

// Concurrent joins and leaves on one room must never lose an operation.
func TestEngine_ConcurrentJoinLeave(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = engine.Run(ctx) }()

	_, err := engine.Process(ctx, domain.ConnectCommand{ConnectionID: "owner", Username: "owner"})
	req.NoError(err)
	_, err = engine.Process(ctx, domain.CreateRoomCommand{ConnectionID: "owner", RoomID: "r1", Password: "pw"})
	req.NoError(err)

	const clients = 20
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := domain.ConnectionID(fmt.Sprintf("c%d", i))
			_, _ = engine.Process(ctx, domain.ConnectCommand{ConnectionID: id, Username: string(id)})
			_, _ = engine.Process(ctx, domain.JoinRoomCommand{ConnectionID: id, RoomID: "r1", Password: "pw"})
			if i%2 == 0 {
				_, _ = engine.Process(ctx, domain.LeaveRoomCommand{ConnectionID: id, RoomID: "r1"})
			}
		}(i)
	}
	wg.Wait()

	out, err := engine.Process(ctx, domain.SendMessageCommand{ConnectionID: "owner", Message: "count", RoomID: "r1"})
	req.NoError(err)
	// owner plus the odd clients
	req.Len(out[0].Recipients, 1+clients/2)
}
