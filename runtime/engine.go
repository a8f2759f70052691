// Package runtime owns the relay state and decides what every inbound event
// broadcasts. It contains no network code.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"presence-relay/contract"
	"presence-relay/domain"
	rerrors "presence-relay/errors"

	"github.com/samber/lo"
)

var (
	_ contract.IEngine = (*Engine)(nil)
	_ contract.Worker  = (*Engine)(nil)
)

type request struct {
	cmd   domain.Command
	reply chan []domain.Outbound
}

// Engine serializes every inbound event through a single goroutine.
// The registry and the directory are only touched from Run, so each handler
// (room creation followed by its join included) is atomic with regard to the others.
type Engine struct {
	log      *slog.Logger
	sessions contract.ISessionRegistry
	rooms    contract.IRoomDirectory
	gauges   contract.Gauges
	requests chan request
	outbound chan<- domain.Outbound
}

// NewEngine builds an engine writing its instructions to outbound.
// A nil outbound keeps instructions local to Process callers.
func NewEngine(log *slog.Logger, sessions contract.ISessionRegistry, rooms contract.IRoomDirectory,
	gauges contract.Gauges, outbound chan<- domain.Outbound, bufferSize int) *Engine {
	if gauges == nil {
		gauges = noopGauges{}
	}
	return &Engine{
		log:      log,
		sessions: sessions,
		rooms:    rooms,
		gauges:   gauges,
		requests: make(chan request, bufferSize),
		outbound: outbound,
	}
}

// Submit queues cmd without waiting for it to be handled.
// Commands submitted by one goroutine are handled in submission order.
func (e *Engine) Submit(ctx context.Context, cmd domain.Command) error {
	select {
	case e.requests <- request{cmd: cmd}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process queues cmd and waits for the instructions it produced.
// The instructions are delivered to outbound as well.
func (e *Engine) Process(ctx context.Context, cmd domain.Command) ([]domain.Outbound, error) {
	reply := make(chan []domain.Outbound, 1)
	select {
	case e.requests <- request{cmd: cmd, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Requests exposes the command queue for capacity sampling.
func (e *Engine) Requests() any {
	return e.requests
}

func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			e.log.Debug("Stopping engine")
			return nil
		case req := <-e.requests:
			out := e.Handle(req.cmd)
			if req.reply != nil {
				req.reply <- out
			}
			if err := e.deliver(ctx, out); err != nil {
				return nil
			}
		}
	}
}

func (e *Engine) deliver(ctx context.Context, out []domain.Outbound) error {
	if e.outbound == nil {
		return nil
	}
	for _, o := range out {
		select {
		case e.outbound <- o:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Handle applies cmd and returns the resulting instructions.
// It must only be called from the goroutine owning the state (Run, or a test).
func (e *Engine) Handle(cmd domain.Command) (out []domain.Outbound) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Handler panicked", "connection_id", cmd.Connection(), "panic", r)
			out = []domain.Outbound{e.failure(cmd, fmt.Errorf("%w: %v", rerrors.ErrHandlerPanic, r))}
		}
		e.gauges.SetSessions(e.sessions.Len())
		e.gauges.SetRooms(e.rooms.Len())
	}()

	switch c := cmd.(type) {
	case domain.ConnectCommand:
		return e.onConnect(c)
	case domain.DisconnectCommand:
		return e.onDisconnect(c)
	case domain.CreateRoomCommand:
		return e.onRoomCreate(c)
	case domain.JoinRoomCommand:
		return e.onRoomJoin(c)
	case domain.LeaveRoomCommand:
		return e.onRoomLeave(c)
	case domain.SendMessageCommand:
		return e.onMessageSend(c)
	default:
		return []domain.Outbound{e.failure(cmd, fmt.Errorf("%w: %T", rerrors.ErrUnknownEvent, cmd))}
	}
}

func (e *Engine) onConnect(c domain.ConnectCommand) []domain.Outbound {
	if err := e.sessions.Register(c.ConnectionID, c.Username); err != nil {
		if errors.Is(err, rerrors.ErrMissingUsername) {
			e.log.Debug("Connection refused without username", "connection_id", c.ConnectionID)
			return []domain.Outbound{
				domain.ErrorTo(c.ConnectionID, domain.MissingUsernameMessage),
				domain.CloseConnection(c.ConnectionID),
			}
		}
		return []domain.Outbound{e.failure(c, err)}
	}

	e.log.Info("User connected", "connection_id", c.ConnectionID, "username", c.Username)
	everyone := e.sessions.Connections()
	return []domain.Outbound{
		toAll(everyone, domain.EventUserJoined, domain.UsernamePayload{Username: c.Username}),
		toAll(everyone, domain.EventUserList, e.sessions.ListAll()),
	}
}

func (e *Engine) onDisconnect(c domain.DisconnectCommand) []domain.Outbound {
	username, known := e.sessions.Lookup(c.ConnectionID)
	e.sessions.Unregister(c.ConnectionID)
	left := e.rooms.Evict(c.ConnectionID)

	if !known {
		return []domain.Outbound{domain.ErrorTo(c.ConnectionID, domain.MissingUsernameMessage)}
	}

	e.log.Info("User disconnected", "connection_id", c.ConnectionID, "username", username, "rooms", left)
	everyone := e.sessions.Connections()
	return []domain.Outbound{
		toAll(everyone, domain.EventUserLeft, domain.UsernamePayload{Username: username}),
		toAll(everyone, domain.EventUserList, e.sessions.ListAll()),
	}
}

// onRoomCreate always goes through the join path, so a creator racing
// another one on the same room id is checked against the first secret.
// Nothing is created for a connection without a session.
func (e *Engine) onRoomCreate(c domain.CreateRoomCommand) []domain.Outbound {
	if _, ok := e.sessions.Lookup(c.ConnectionID); !ok {
		return []domain.Outbound{e.failure(c, rerrors.ErrUnknownConnection)}
	}

	created := false
	if !e.rooms.Exists(c.RoomID) {
		if err := e.rooms.Create(c.RoomID, c.Password); err != nil {
			return []domain.Outbound{e.failure(c, err)}
		}
		created = true
		e.log.Info("Room created", "room_id", c.RoomID, "connection_id", c.ConnectionID)
	}

	out := e.join(c, c.ConnectionID, c.RoomID, c.Password)
	if created && len(e.rooms.MemberIDs(c.RoomID)) == 0 {
		// The creator never made it in, the room must not outlive this event
		e.rooms.Leave(c.ConnectionID, c.RoomID)
		e.log.Info("Room deleted", "room_id", c.RoomID)
	}
	return out
}

func (e *Engine) onRoomJoin(c domain.JoinRoomCommand) []domain.Outbound {
	return e.join(c, c.ConnectionID, c.RoomID, c.Password)
}

// join reports unexpected failures under the operation of cmd.
func (e *Engine) join(cmd domain.Command, id domain.ConnectionID, roomID domain.RoomID, password string) []domain.Outbound {
	if !e.rooms.Exists(roomID) {
		return []domain.Outbound{domain.ErrorTo(id, roomNotFoundMessage(roomID))}
	}
	username, ok := e.sessions.Lookup(id)
	if !ok {
		return []domain.Outbound{e.failure(cmd, rerrors.ErrUnknownConnection)}
	}

	if err := e.rooms.Join(id, roomID, password); err != nil {
		switch {
		case errors.Is(err, rerrors.ErrRoomNotFound):
			return []domain.Outbound{domain.ErrorTo(id, roomNotFoundMessage(roomID))}
		case errors.Is(err, rerrors.ErrInvalidPassword):
			e.log.Debug("Room join refused", "room_id", roomID, "connection_id", id)
			return []domain.Outbound{domain.ErrorTo(id, invalidPasswordMessage(roomID))}
		default:
			return []domain.Outbound{e.failure(cmd, err)}
		}
	}

	members := e.rooms.MemberIDs(roomID)
	return []domain.Outbound{
		toRoom(roomID, members, domain.EventRoomJoined, domain.UsernamePayload{Username: username}),
		toRoom(roomID, members, domain.EventRoomUsers, e.rooms.MembersOf(roomID)),
	}
}

// onRoomLeave notifies the members that remain. When the room disappears with
// its last member, the roster is empty and nobody is left to receive it.
// Leaving a room the connection is not part of produces nothing.
func (e *Engine) onRoomLeave(c domain.LeaveRoomCommand) []domain.Outbound {
	username, ok := e.sessions.Lookup(c.ConnectionID)
	if !ok {
		return []domain.Outbound{e.failure(c, rerrors.ErrUnknownConnection)}
	}

	before := e.rooms.MemberIDs(c.RoomID)
	if !lo.Contains(before, c.ConnectionID) {
		e.log.Debug("Leave ignored, not a member", "room_id", c.RoomID, "connection_id", c.ConnectionID)
		return nil
	}
	if deleted := e.rooms.Leave(c.ConnectionID, c.RoomID); deleted {
		e.log.Info("Room deleted", "room_id", c.RoomID)
	}
	remaining := lo.Without(before, c.ConnectionID)

	return []domain.Outbound{
		toRoom(c.RoomID, remaining, domain.EventRoomLeft, domain.UsernamePayload{Username: username}),
		toRoom(c.RoomID, remaining, domain.EventRoomUsers, e.rooms.MembersOf(c.RoomID)),
	}
}

func (e *Engine) onMessageSend(c domain.SendMessageCommand) []domain.Outbound {
	username, ok := e.sessions.Lookup(c.ConnectionID)
	if !ok {
		return []domain.Outbound{e.failure(c, rerrors.ErrUnknownConnection)}
	}
	e.gauges.IncrMessages()

	payload := domain.MessagePayload{
		ClientID: c.ConnectionID,
		Username: username,
		Message:  c.Message,
	}
	if c.RoomID != "" {
		return []domain.Outbound{
			toRoom(c.RoomID, e.rooms.MemberIDs(c.RoomID), domain.EventMessageReceive, payload),
		}
	}
	return []domain.Outbound{toAll(e.sessions.Connections(), domain.EventMessageReceive, payload)}
}

// failure reports an unexpected error to the requester only.
func (e *Engine) failure(cmd domain.Command, err error) domain.Outbound {
	e.gauges.IncrErrors()
	e.log.Error("Handler failed", "connection_id", cmd.Connection(), "command", fmt.Sprintf("%T", cmd), "error", err)
	return domain.ErrorTo(cmd.Connection(), fmt.Sprintf("%s failed: %s", operationName(cmd), err))
}

func operationName(cmd domain.Command) string {
	switch cmd.(type) {
	case domain.ConnectCommand:
		return "Connection"
	case domain.DisconnectCommand:
		return "Disconnection"
	case domain.CreateRoomCommand:
		return "Room creation"
	case domain.JoinRoomCommand:
		return "Room join"
	case domain.LeaveRoomCommand:
		return "Room leave"
	case domain.SendMessageCommand:
		return "Message sending"
	default:
		return "Operation"
	}
}

func roomNotFoundMessage(roomID domain.RoomID) string {
	return fmt.Sprintf("Room %s was not found", roomID)
}

func invalidPasswordMessage(roomID domain.RoomID) string {
	return fmt.Sprintf("Invalid password for room %s", roomID)
}

func toAll(recipients []domain.ConnectionID, event string, payload any) domain.Outbound {
	return domain.Outbound{
		Action:     domain.ActionEmit,
		Event:      event,
		Payload:    payload,
		Target:     domain.TargetAll,
		Recipients: recipients,
	}
}

func toRoom(roomID domain.RoomID, recipients []domain.ConnectionID, event string, payload any) domain.Outbound {
	return domain.Outbound{
		Action:     domain.ActionEmit,
		Event:      event,
		Payload:    payload,
		Target:     domain.TargetRoom,
		RoomID:     roomID,
		Recipients: recipients,
	}
}

type noopGauges struct{}

func (noopGauges) SetSessions(int) {}
func (noopGauges) SetRooms(int)    {}
func (noopGauges) IncrMessages()   {}
func (noopGauges) IncrErrors()     {}
func (noopGauges) IncrDropped()    {}
